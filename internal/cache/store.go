// Package cache implements the single-owner cache every data service is
// built on.
//
// A Store holds one value for at most one owner (a user id). Loads are
// coalesced, reloads never overlap, and a load still in flight when the
// cache is cleared is discarded instead of leaking into the next owner's
// slot. Fetch failures only flip the error flag; they never reach
// subscribers as stream errors.
package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"cardfolio-api/internal/logger"
	"cardfolio-api/internal/metrics"
	"cardfolio-api/internal/stream"
)

// FetchFunc loads the value for owner from the source of truth.
type FetchFunc[T any] func(ctx context.Context, owner string) (T, error)

// Config configures a Store.
type Config[T any] struct {
	// Name identifies the cache in logs and metrics.
	Name string

	// Fetch is required.
	Fetch FetchFunc[T]

	// Equal de-duplicates consecutive data emissions. Nil disables
	// de-duplication.
	Equal stream.EqualFunc[T]

	// FetchTimeout bounds a single fetch. Zero means no bound.
	FetchTimeout time.Duration

	// Accept, if set, gates loads by owner: GetData does not start a fetch
	// for an owner Accept rejects, and a completed fetch is only published
	// while Accept still holds. It runs under the store lock.
	Accept func(owner string) bool

	// OnChange, if set, is called with every value the store publishes,
	// including the zero value on Clear. It runs under the store lock and
	// must not call back into the store.
	OnChange func(v T)

	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// errStale marks a fetch that completed after the cache was cleared.
var errStale = errors.New("cache: fetch result discarded after clear")

// Store is a generic single-owner cache.
type Store[T any] struct {
	name     string
	fetch    FetchFunc[T]
	onChange func(T)
	accept   func(string) bool
	timeout  time.Duration
	log      *zap.Logger
	metrics  *metrics.Collector

	group singleflight.Group

	mu          sync.Mutex
	owner       string
	initialized bool
	hasValue    bool
	epoch       uint64
	seq         uint64

	fetching    bool
	fetchKey    string
	fetchOwner  string
	fetchReload bool

	data    *stream.Subject[T]
	loading *stream.Subject[bool]
	errored *stream.Subject[bool]
}

// New creates an empty store.
func New[T any](cfg Config[T]) *Store[T] {
	if cfg.Fetch == nil {
		panic("cache: Config.Fetch is required")
	}
	var zero T
	return &Store[T]{
		name:     cfg.Name,
		fetch:    cfg.Fetch,
		onChange: cfg.OnChange,
		accept:   cfg.Accept,
		timeout:  cfg.FetchTimeout,
		log:      logger.Named(cfg.Logger, "cache").With(zap.String("cache", cfg.Name)),
		metrics:  cfg.Metrics,
		data:     stream.New(zero, cfg.Equal),
		loading:  stream.New(false, stream.Comparable[bool]()),
		errored:  stream.New(false, stream.Comparable[bool]()),
	}
}

// Name returns the cache name.
func (s *Store[T]) Name() string { return s.name }

// Data is the live value stream.
func (s *Store[T]) Data() *stream.Subject[T] { return s.data }

// Loading reports whether a fetch is in flight.
func (s *Store[T]) Loading() *stream.Subject[bool] { return s.loading }

// Errored reports whether the last fetch failed.
func (s *Store[T]) Errored() *stream.Subject[bool] { return s.errored }

// Value returns the cached value, or the zero value when empty.
func (s *Store[T]) Value() T { return s.data.Value() }

// Owner returns the owner the cached value belongs to, or "".
func (s *Store[T]) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// HasCachedData reports whether a value has been loaded or set.
func (s *Store[T]) HasCachedData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized && s.hasValue
}

// GetData returns the data stream for owner, loading it first unless it is
// already cached. Concurrent callers for the same owner share one fetch.
// GetData blocks until that fetch settles or ctx ends; the fetch itself
// always runs to completion.
//
// Asking for a different owner than the one cached clears the cache first.
func (s *Store[T]) GetData(ctx context.Context, owner string) *stream.Subject[T] {
	if owner == "" {
		return s.data
	}

	s.mu.Lock()
	if s.initialized && s.hasValue && s.owner == owner {
		s.mu.Unlock()
		s.metrics.CacheHit(s.name)
		return s.data
	}

	if !s.acceptLocked(owner) {
		s.mu.Unlock()
		s.log.Debug("load refused for inactive owner", zap.String("owner", owner))
		return s.data
	}

	if (s.initialized && s.owner != owner) || (s.fetching && s.fetchOwner != owner) {
		s.log.Info("owner changed, clearing cache", zap.String("from", s.ownerOrPending()), zap.String("to", owner))
		s.clearLocked()
	}

	var ch <-chan singleflight.Result
	if s.fetching {
		ch = s.joinLocked()
		s.metrics.Coalesced(s.name)
	} else {
		ch = s.startLocked(owner, false)
	}
	s.mu.Unlock()

	_, _ = wait(ctx, ch)
	return s.data
}

// Reload fetches the current owner's value again even if it is cached. It
// waits for any fetch in flight first; a reload that arrives while another
// reload is in flight joins it. On failure the previous value is kept, the
// error flag is set and the error is returned. Without an owner Reload does
// nothing.
func (s *Store[T]) Reload(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.fetching {
			reloading := s.fetchReload
			ch := s.joinLocked()
			s.mu.Unlock()

			res, err := wait(ctx, ch)
			if err != nil {
				return err
			}
			if reloading {
				return filterStale(res.Err)
			}
			continue
		}

		owner := s.owner
		if owner == "" {
			s.mu.Unlock()
			s.log.Debug("reload skipped, no owner")
			return nil
		}
		ch := s.startLocked(owner, true)
		s.mu.Unlock()

		res, err := wait(ctx, ch)
		if err != nil {
			return err
		}
		return filterStale(res.Err)
	}
}

// Clear resets the cache to empty. A fetch still in flight is discarded when
// it completes. Clear is idempotent.
func (s *Store[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

// UpdateCache replaces the cached value, marking the cache initialized. The
// owner is left untouched.
func (s *Store[T]) UpdateCache(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(v)
}

// Mutate atomically replaces the cached value with fn(current) and returns
// the new value. fn must build a new value rather than modify current.
func (s *Store[T]) Mutate(fn func(current T) T) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.data.Value())
	s.setLocked(next)
	return next
}

// MutateOwned is Mutate restricted to owner's data. When the cache is not
// initialized for owner it does nothing and returns false.
func (s *Store[T]) MutateOwned(owner string, fn func(current T) T) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized || s.owner != owner {
		var zero T
		return zero, false
	}
	next := fn(s.data.Value())
	s.setLocked(next)
	return next, true
}

// VerifyClean reports whether the cache holds nothing or only owner's data.
// If it holds another owner's data it is cleared and false is returned.
func (s *Store[T]) VerifyClean(owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized && s.owner != owner {
		s.log.Warn("cache held another owner's data", zap.String("cached", s.owner), zap.String("expected", owner))
		s.clearLocked()
		return false
	}
	return true
}

func (s *Store[T]) setLocked(v T) {
	s.data.Publish(v)
	s.initialized = true
	s.hasValue = true
	if s.onChange != nil {
		s.onChange(v)
	}
}

func (s *Store[T]) clearLocked() {
	var zero T
	s.epoch++
	s.owner = ""
	s.initialized = false
	s.hasValue = false
	s.fetching = false
	s.fetchKey = ""
	s.fetchOwner = ""
	s.fetchReload = false
	s.data.Publish(zero)
	s.errored.Publish(false)
	s.loading.Publish(false)
	if s.onChange != nil {
		s.onChange(zero)
	}
}

func (s *Store[T]) acceptLocked(owner string) bool {
	return s.accept == nil || s.accept(owner)
}

func (s *Store[T]) ownerOrPending() string {
	if s.owner != "" {
		return s.owner
	}
	return s.fetchOwner
}

// startLocked begins a fetch for owner under a fresh singleflight key.
func (s *Store[T]) startLocked(owner string, reload bool) <-chan singleflight.Result {
	s.seq++
	key := strconv.FormatUint(s.epoch, 10) + "/" + strconv.FormatUint(s.seq, 10) + "/" + owner
	epoch := s.epoch

	s.fetching = true
	s.fetchKey = key
	s.fetchOwner = owner
	s.fetchReload = reload
	s.loading.Publish(true)
	s.errored.Publish(false)

	return s.group.DoChan(key, func() (interface{}, error) {
		return s.run(key, owner, epoch)
	})
}

// joinLocked attaches to the fetch in flight. The caller holds s.mu and has
// seen s.fetching, so the call is still registered in the group and the
// function passed here is never run.
func (s *Store[T]) joinLocked() <-chan singleflight.Result {
	return s.group.DoChan(s.fetchKey, func() (interface{}, error) {
		return nil, errStale
	})
}

func (s *Store[T]) run(key, owner string, epoch uint64) (interface{}, error) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.metrics.CacheFetch(s.name)
	start := time.Now()
	v, err := s.fetch(ctx, owner)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fetchKey == key {
		s.fetching = false
		s.fetchKey = ""
		s.fetchOwner = ""
		s.fetchReload = false
	}

	if epoch != s.epoch {
		s.log.Debug("discarding fetch completed after clear", zap.String("owner", owner))
		return nil, errStale
	}

	if !s.acceptLocked(owner) {
		s.log.Debug("discarding fetch for inactive owner", zap.String("owner", owner))
		s.loading.Publish(false)
		return nil, errStale
	}

	if err != nil {
		s.metrics.FetchError(s.name)
		s.log.Warn("fetch failed",
			zap.String("owner", owner),
			zap.Bool("kept_previous", s.initialized),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		s.errored.Publish(true)
		s.loading.Publish(false)
		return nil, err
	}

	s.owner = owner
	s.setLocked(v)
	s.errored.Publish(false)
	s.loading.Publish(false)
	s.log.Debug("fetched", zap.String("owner", owner), zap.Duration("elapsed", time.Since(start)))
	return v, nil
}

func wait(ctx context.Context, ch <-chan singleflight.Result) (singleflight.Result, error) {
	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return singleflight.Result{}, ctx.Err()
	}
}

func filterStale(err error) error {
	if errors.Is(err, errStale) {
		return nil
	}
	return err
}
