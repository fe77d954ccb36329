package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"cardfolio-api/internal/logger"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			owner_id TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(collection, owner_id)`,
	},
	upsert: `
		INSERT INTO documents (collection, id, owner_id, body, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			owner_id = excluded.owner_id,
			body = excluded.body,
			updated_at = excluded.updated_at`,
	selectOne:     `SELECT body FROM documents WHERE collection = ? AND id = ?`,
	selectLock:    `SELECT body FROM documents WHERE collection = ? AND id = ?`,
	deleteOne:     `DELETE FROM documents WHERE collection = ? AND id = ?`,
	selectAll:     `SELECT id, body FROM documents WHERE collection = ?`,
	selectByOwner: `SELECT id, body FROM documents WHERE collection = ? AND owner_id = ?`,
	count:         `SELECT COUNT(*) FROM documents`,
}

// NewSQLiteStore opens a SQLite-backed store.
// dbPath is the path to the SQLite database file (e.g., "./data/cardfolio.db")
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open(sqliteDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports 1 writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Keep connection alive

	store, err := newSQLStore(db, sqliteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Named(logger.L(), "SQLStore").Info("initialized", zap.String("dialect", "sqlite"), zap.String("path", dbPath))
	return store, nil
}
