package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cardfolio-api/internal/metrics"
	"cardfolio-api/internal/model"
	"cardfolio-api/internal/repository"
	"cardfolio-api/internal/session"
	"cardfolio-api/internal/stream"
	"cardfolio-api/pkg/apierror"
)

var errBackend = apierror.RemoteStore("backend unavailable", true, errors.New("connection refused"))

// flakyStore wraps a DocumentStore and fails selected operations.
type flakyStore struct {
	repository.DocumentStore

	mu    sync.Mutex
	fails map[string]error
	calls map[string]int
	gates map[string]chan struct{}
}

func newFlakyStore(next repository.DocumentStore) *flakyStore {
	return &flakyStore{
		DocumentStore: next,
		fails:         map[string]error{},
		calls:         map[string]int{},
		gates:         map[string]chan struct{}{},
	}
}

// failOn makes op on collection fail with err. An empty collection matches
// every collection.
func (f *flakyStore) failOn(op, collection string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[op+" "+collection] = err
}

func (f *flakyStore) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails = map[string]error{}
}

func (f *flakyStore) count(op, collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op+" "+collection]
}

// hold makes op on collection block until release is called.
func (f *flakyStore) hold(op, collection string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[op+" "+collection] = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *flakyStore) check(op, collection string) error {
	key := op + " " + collection
	f.mu.Lock()
	f.calls[key]++
	gate := f.gates[key]
	err, ok := f.fails[key]
	if !ok {
		err = f.fails[op+" "]
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return err
}

func (f *flakyStore) Create(ctx context.Context, collection string, doc model.Document) (string, error) {
	if err := f.check("create", collection); err != nil {
		return "", err
	}
	return f.DocumentStore.Create(ctx, collection, doc)
}

func (f *flakyStore) Put(ctx context.Context, collection, id string, doc model.Document) error {
	if err := f.check("put", collection); err != nil {
		return err
	}
	return f.DocumentStore.Put(ctx, collection, id, doc)
}

func (f *flakyStore) Read(ctx context.Context, collection, id string) (model.Document, error) {
	if err := f.check("read", collection); err != nil {
		return nil, err
	}
	return f.DocumentStore.Read(ctx, collection, id)
}

func (f *flakyStore) Update(ctx context.Context, collection, id string, partial model.Document) error {
	if err := f.check("update", collection); err != nil {
		return err
	}
	return f.DocumentStore.Update(ctx, collection, id, partial)
}

func (f *flakyStore) Delete(ctx context.Context, collection, id string) error {
	if err := f.check("delete", collection); err != nil {
		return err
	}
	return f.DocumentStore.Delete(ctx, collection, id)
}

func (f *flakyStore) Query(ctx context.Context, collection string, q repository.Query) ([]repository.Record, error) {
	if err := f.check("query", collection); err != nil {
		return nil, err
	}
	return f.DocumentStore.Query(ctx, collection, q)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	mem     *repository.MemoryStore
	store   *flakyStore
	session *session.Manager
	clock   *fakeClock
	metrics *metrics.Collector
	deps    Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := repository.NewMemoryStore()
	h := &harness{
		mem:     mem,
		store:   newFlakyStore(mem),
		session: session.NewManager(zap.NewNop()),
		clock:   &fakeClock{now: time.Date(2025, time.March, 14, 15, 4, 5, 0, time.Local)},
		metrics: metrics.NewCollector("test"),
	}
	h.deps = Deps{
		Store:   h.store,
		Session: h.session,
		Logger:  zap.NewNop(),
		Metrics: h.metrics,
		Now:     h.clock.Now,
	}
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) signIn(userID string) {
	h.session.SignIn(model.Identity{
		UserID:      userID,
		Email:       userID + "@example.com",
		DisplayName: userID,
	})
}

func (h *harness) putCard(t *testing.T, owner string, it model.InventoryItem) {
	t.Helper()
	require.NoError(t, h.mem.Put(context.Background(), repository.CardsCollection(owner), it.ID, it.ToDocument()))
}

func (h *harness) putProfile(t *testing.T, p *model.UserProfile) {
	t.Helper()
	require.NoError(t, h.mem.Put(context.Background(), repository.UsersCollection, p.ID, p.ToDocument()))
}

func (h *harness) readProfile(t *testing.T, id string) *model.UserProfile {
	t.Helper()
	doc, err := h.mem.Read(context.Background(), repository.UsersCollection, id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	return model.ProfileFromDocument(id, doc)
}

// caches wires the four user caches the way cmd/api does.
type caches struct {
	profile   *ProfileCache
	inventory *InventoryCache
	valuation *ValuationHistoryCache
	actions   *ActionLogCache
}

func (h *harness) caches() caches {
	profile := NewProfileCache(h.deps)
	valuation := NewValuationHistoryCache(h.deps)
	actions := NewActionLogCache(h.deps)
	return caches{
		profile:   profile,
		inventory: NewInventoryCache(h.deps, profile, valuation, actions),
		valuation: valuation,
		actions:   actions,
	}
}

// start binds every cache to the session until the test ends.
func (c caches) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c.profile.Start(ctx)
	c.valuation.Start(ctx)
	c.actions.Start(ctx)
	c.inventory.Start(ctx)
	t.Cleanup(func() {
		cancel()
		c.inventory.Stop()
		c.actions.Stop()
		c.valuation.Stop()
		c.profile.Stop()
	})
}

// record collects every emission of subj, the replayed current value first.
func record[T any](t *testing.T, subj *stream.Subject[T]) func() []T {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var (
		mu  sync.Mutex
		got []T
	)
	ch := subj.Subscribe(ctx)
	go func() {
		for v := range ch {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		}
	}()
	return func() []T {
		mu.Lock()
		defer mu.Unlock()
		return append([]T(nil), got...)
	}
}

func itemIDs(items []model.InventoryItem) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func card(id, name, price string, added time.Time) model.InventoryItem {
	return model.InventoryItem{ID: id, Name: name, Price: dec(price), AddedDate: added}
}
