package repository

import (
	"context"
	"sort"
	"sync"

	"cardfolio-api/internal/model"
	"cardfolio-api/pkg/uid"
)

// MemoryStore is an in-memory DocumentStore.
// Use this for development/testing or single-instance deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]model.Document
}

var _ DocumentStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]model.Document),
	}
}

// Create inserts doc under a generated id.
func (s *MemoryStore) Create(ctx context.Context, collection string, doc model.Document) (string, error) {
	id := uid.New()
	if err := s.Put(ctx, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Put writes doc under id.
func (s *MemoryStore) Put(ctx context.Context, collection, id string, doc model.Document) error {
	if err := ctx.Err(); err != nil {
		return storeError("put", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]model.Document)
		s.collections[collection] = coll
	}
	stored := model.Document{}
	mergeDocument(stored, doc.Clone())
	coll[id] = stored
	return nil
}

// Read returns a copy of the document, or nil when absent.
func (s *MemoryStore) Read(ctx context.Context, collection, id string) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError("read", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return doc.Clone(), nil
}

// Update merges partial into the stored document.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, partial model.Document) error {
	if err := ctx.Err(); err != nil {
		return storeError("update", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return notFound(collection, id)
	}
	mergeDocument(doc, model.Document(partial).Clone())
	return nil
}

// Delete removes the document.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return storeError("delete", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], id)
	return nil
}

// Query returns copies of the matching documents.
func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError("query", err)
	}

	s.mu.RLock()
	coll := s.collections[collection]
	records := make([]Record, 0, len(coll))
	for id, doc := range coll {
		records = append(records, Record{ID: id, Data: doc.Clone()})
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return applyQuery(records, q), nil
}

// Stats returns document counts per collection.
func (s *MemoryStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(s.collections))
	total := 0
	for name, coll := range s.collections {
		counts[name] = len(coll)
		total += len(coll)
	}
	return map[string]interface{}{
		"backend":         "memory",
		"status":          "connected",
		"total_documents": total,
		"collections":     counts,
	}, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
