package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"cardfolio-api/internal/logger"
	"cardfolio-api/internal/model"
	"cardfolio-api/pkg/uid"
)

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	name          string
	driver        string
	schema        []string
	upsert        string
	selectOne     string
	selectLock    string
	deleteOne     string
	selectAll     string
	selectByOwner string
	count         string
}

// SQLStore is a DocumentStore over database/sql. Documents are stored as
// JSON bodies in one table; the owner filter is pushed down to an indexed
// column and the rest of a query is evaluated in Go.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	log     *zap.Logger
}

var _ DocumentStore = (*SQLStore)(nil)

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return &SQLStore{
		db:      db,
		dialect: d,
		log:     logger.Named(logger.L(), "SQLStore").With(zap.String("dialect", d.name)),
	}, nil
}

// Create inserts doc under a generated id.
func (s *SQLStore) Create(ctx context.Context, collection string, doc model.Document) (string, error) {
	id := uid.New()
	if err := s.Put(ctx, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Put writes doc under id, replacing any existing document.
func (s *SQLStore) Put(ctx context.Context, collection, id string, doc model.Document) error {
	stored := model.Document{}
	mergeDocument(stored, doc)
	return s.write(ctx, s.db, collection, id, stored)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) write(ctx context.Context, ex execer, collection, id string, doc model.Document) error {
	body, err := encodeBody(doc)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, s.dialect.upsert,
		collection, id, doc.String(model.FieldUserID), string(body), time.Now().UTC())
	if err != nil {
		return storeError("put "+collection, err)
	}
	return nil
}

// Read returns the document, or nil when absent.
func (s *SQLStore) Read(ctx context.Context, collection, id string) (model.Document, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, s.dialect.selectOne, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("read "+collection, err)
	}
	return decodeBody(body)
}

// Update merges partial into the stored document inside a transaction.
func (s *SQLStore) Update(ctx context.Context, collection, id string, partial model.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin transaction", err)
	}
	defer tx.Rollback()

	var body []byte
	err = tx.QueryRowContext(ctx, s.dialect.selectLock, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(collection, id)
	}
	if err != nil {
		return storeError("read "+collection, err)
	}

	doc, err := decodeBody(body)
	if err != nil {
		return err
	}
	mergeDocument(doc, partial)

	if err := s.write(ctx, tx, collection, id, doc); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit", err)
	}
	return nil
}

// Delete removes the document.
func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.deleteOne, collection, id); err != nil {
		return storeError("delete "+collection, err)
	}
	return nil
}

// Query returns the matching documents.
func (s *SQLStore) Query(ctx context.Context, collection string, q Query) ([]Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if owner, ok := ownerFilter(q.Filters); ok {
		rows, err = s.db.QueryContext(ctx, s.dialect.selectByOwner, collection, owner)
	} else {
		rows, err = s.db.QueryContext(ctx, s.dialect.selectAll, collection)
	}
	if err != nil {
		return nil, storeError("query "+collection, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, storeError("scan "+collection, err)
		}
		doc, err := decodeBody(body)
		if err != nil {
			s.log.Warn("skipping undecodable document", zap.String("collection", collection), zap.String("id", id), zap.Error(err))
			continue
		}
		records = append(records, Record{ID: id, Data: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("query "+collection, err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return applyQuery(records, q), nil
}

func ownerFilter(filters []Filter) (string, bool) {
	for _, f := range filters {
		if f.Field == model.FieldUserID && f.Op == OpEqual {
			if s, ok := f.Value.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// Stats returns the document count and connection pool statistics.
func (s *SQLStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{
		"backend": s.dialect.name,
		"status":  "connected",
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, s.dialect.count).Scan(&count); err != nil {
		stats["status"] = "error"
		return stats, storeError("count", err)
	}
	stats["total_documents"] = count

	pool := s.db.Stats()
	stats["open_connections"] = pool.OpenConnections
	stats["in_use"] = pool.InUse
	stats["idle"] = pool.Idle

	return stats, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
