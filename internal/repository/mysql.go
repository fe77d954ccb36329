package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"cardfolio-api/internal/logger"
)

var mysqlDialect = dialect{
	name:   "mysql",
	driver: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection VARCHAR(255) NOT NULL,
			id VARCHAR(64) NOT NULL,
			owner_id VARCHAR(128) NOT NULL DEFAULT '',
			body LONGTEXT NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			PRIMARY KEY (collection, id),
			INDEX idx_documents_owner (collection, owner_id)
		)`,
	},
	upsert: `
		INSERT INTO documents (collection, id, owner_id, body, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			owner_id = VALUES(owner_id),
			body = VALUES(body),
			updated_at = VALUES(updated_at)`,
	selectOne:     "SELECT body FROM documents WHERE collection = ? AND id = ?",
	selectLock:    "SELECT body FROM documents WHERE collection = ? AND id = ? FOR UPDATE",
	deleteOne:     "DELETE FROM documents WHERE collection = ? AND id = ?",
	selectAll:     "SELECT id, body FROM documents WHERE collection = ?",
	selectByOwner: "SELECT id, body FROM documents WHERE collection = ? AND owner_id = ?",
	count:         "SELECT COUNT(*) FROM documents",
}

// NewMySQLStore opens a MySQL-backed store.
// dsn format: "user:password@tcp(host:port)/dbname"
func NewMySQLStore(dsn string) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	store, err := newSQLStore(db, mysqlDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Named(logger.L(), "SQLStore").Info("initialized", zap.String("dialect", "mysql"), zap.String("addr", cfg.Addr))
	return store, nil
}
