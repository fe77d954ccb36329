package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"cardfolio-api/internal/logger"
	"cardfolio-api/internal/metrics"
	"cardfolio-api/internal/model"
	"cardfolio-api/pkg/apierror"
)

// BreakerConfig holds configuration for the store circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns a default configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "document-store",
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// BreakerStore decorates a DocumentStore with a circuit breaker and
// per-operation metrics. While the breaker is open every call fails fast with
// a retryable RemoteStore error.
type BreakerStore struct {
	next    DocumentStore
	cb      *gobreaker.CircuitBreaker
	metrics *metrics.Collector
}

var _ DocumentStore = (*BreakerStore)(nil)

// NewBreakerStore wraps next. m may be nil.
func NewBreakerStore(next DocumentStore, cfg BreakerConfig, m *metrics.Collector) *BreakerStore {
	log := logger.Named(logger.L(), "BreakerStore")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// Absent documents are an answer, not a backend failure.
			return err == nil || errors.Is(err, ErrNotFound)
		},
	})

	return &BreakerStore{next: next, cb: cb, metrics: m}
}

// State returns the breaker state name.
func (s *BreakerStore) State() string {
	return s.cb.State().String()
}

func (s *BreakerStore) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := s.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = apierror.RemoteStore("document store unavailable", true, err)
	}
	s.metrics.StoreOperation(op, err)
	return result, err
}

// Create implements DocumentStore.
func (s *BreakerStore) Create(ctx context.Context, collection string, doc model.Document) (string, error) {
	res, err := s.execute("create", func() (interface{}, error) {
		return s.next.Create(ctx, collection, doc)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// Put implements DocumentStore.
func (s *BreakerStore) Put(ctx context.Context, collection, id string, doc model.Document) error {
	_, err := s.execute("put", func() (interface{}, error) {
		return nil, s.next.Put(ctx, collection, id, doc)
	})
	return err
}

// Read implements DocumentStore.
func (s *BreakerStore) Read(ctx context.Context, collection, id string) (model.Document, error) {
	res, err := s.execute("read", func() (interface{}, error) {
		return s.next.Read(ctx, collection, id)
	})
	if err != nil {
		return nil, err
	}
	doc, _ := res.(model.Document)
	return doc, nil
}

// Update implements DocumentStore.
func (s *BreakerStore) Update(ctx context.Context, collection, id string, partial model.Document) error {
	_, err := s.execute("update", func() (interface{}, error) {
		return nil, s.next.Update(ctx, collection, id, partial)
	})
	return err
}

// Delete implements DocumentStore.
func (s *BreakerStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.execute("delete", func() (interface{}, error) {
		return nil, s.next.Delete(ctx, collection, id)
	})
	return err
}

// Query implements DocumentStore.
func (s *BreakerStore) Query(ctx context.Context, collection string, q Query) ([]Record, error) {
	res, err := s.execute("query", func() (interface{}, error) {
		return s.next.Query(ctx, collection, q)
	})
	if err != nil {
		return nil, err
	}
	records, _ := res.([]Record)
	return records, nil
}

// Stats adds the breaker state to the wrapped store's statistics.
func (s *BreakerStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats, err := s.next.Stats(ctx)
	if stats == nil {
		stats = map[string]interface{}{}
	}
	stats["breaker"] = s.State()
	return stats, err
}

// Close closes the wrapped store.
func (s *BreakerStore) Close() error {
	return s.next.Close()
}
