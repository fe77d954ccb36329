package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardfolio-api/internal/metrics"
	"cardfolio-api/internal/stream"
)

// fakeSource is a controllable fetch function.
type fakeSource struct {
	mu      sync.Mutex
	calls   int32
	owners  []string
	values  map[string][]string
	err     error
	gate    chan struct{}
	started chan string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		values:  map[string][]string{},
		started: make(chan string, 16),
	}
}

func (f *fakeSource) fetch(ctx context.Context, owner string) ([]string, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.owners = append(f.owners, owner)
	gate := f.gate
	f.mu.Unlock()

	f.started <- owner
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	v := f.values[owner]
	out := make([]string, len(v))
	copy(out, v)
	return out, nil
}

func (f *fakeSource) set(owner string, v ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[owner] = v
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSource) block() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

func (f *fakeSource) unblock() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = nil
}

func (f *fakeSource) count() int {
	return int(atomic.LoadInt32(&f.calls))
}

func newTestStore(t *testing.T, src *fakeSource) (*Store[[]string], *metrics.Collector) {
	t.Helper()
	m := metrics.NewCollector("test")
	s := New(Config[[]string]{
		Name:    "items",
		Fetch:   src.fetch,
		Equal:   stream.SameSlice[string],
		Metrics: m,
	})
	return s, m
}

func TestGetData_CoalescesConcurrentCalls(t *testing.T) {
	src := newFakeSource()
	src.set("u1", "a", "b")
	gate := src.block()
	s, m := newTestStore(t, src)

	ctx := context.Background()
	results := make([][]string, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.GetData(ctx, "u1").Value()
		}(i)
	}

	<-src.started
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.CacheCoalesced.WithLabelValues("items")) == 2
	}, time.Second, 5*time.Millisecond)

	close(gate)
	wg.Wait()

	assert.Equal(t, 1, src.count())
	for _, r := range results {
		assert.Equal(t, []string{"a", "b"}, r)
	}
	assert.True(t, s.HasCachedData())
	assert.Equal(t, "u1", s.Owner())
}

func TestGetData_ShortCircuitsWhenCached(t *testing.T) {
	src := newFakeSource()
	src.set("u1", "a")
	s, m := newTestStore(t, src)
	ctx := context.Background()

	s.GetData(ctx, "u1")
	require.Equal(t, 1, src.count())

	s.GetData(ctx, "u1")
	s.GetData(ctx, "u1")
	assert.Equal(t, 1, src.count())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheHits.WithLabelValues("items")))
}

func TestGetData_EmptyOwnerDoesNotFetch(t *testing.T) {
	src := newFakeSource()
	s, _ := newTestStore(t, src)

	assert.Nil(t, s.GetData(context.Background(), "").Value())
	assert.Equal(t, 0, src.count())
}

func TestGetData_FirstLoadFailureLeavesValueEmpty(t *testing.T) {
	src := newFakeSource()
	src.fail(errors.New("backend down"))
	s, _ := newTestStore(t, src)
	ctx := context.Background()

	assert.Nil(t, s.GetData(ctx, "u1").Value())
	assert.True(t, s.Errored().Value())
	assert.False(t, s.Loading().Value())
	assert.False(t, s.HasCachedData())

	// ERROR is not terminal.
	src.fail(nil)
	src.set("u1", "a")
	assert.Equal(t, []string{"a"}, s.GetData(ctx, "u1").Value())
	assert.False(t, s.Errored().Value())
	assert.Equal(t, 2, src.count())
}

func TestGetData_OtherOwnerClearsFirst(t *testing.T) {
	src := newFakeSource()
	src.set("alice", "a1")
	src.set("bob", "b1")
	s, _ := newTestStore(t, src)
	ctx := context.Background()

	s.GetData(ctx, "alice")
	got := s.GetData(ctx, "bob").Value()

	assert.Equal(t, []string{"b1"}, got)
	assert.Equal(t, "bob", s.Owner())
}

func TestReload_BypassesCache(t *testing.T) {
	src := newFakeSource()
	src.set("u1", "a")
	s, _ := newTestStore(t, src)
	ctx := context.Background()

	s.GetData(ctx, "u1")
	require.True(t, s.HasCachedData())

	src.set("u1", "a", "b")
	require.NoError(t, s.Reload(ctx))

	assert.Equal(t, 2, src.count())
	assert.Equal(t, []string{"a", "b"}, s.Value())
}

func TestReload_FailureKeepsPreviousValue(t *testing.T) {
	src := newFakeSource()
	src.set("u1", "a")
	s, _ := newTestStore(t, src)
	ctx := context.Background()

	s.GetData(ctx, "u1")
	boom := errors.New("timeout")
	src.fail(boom)

	err := s.Reload(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, s.Value())
	assert.True(t, s.Errored().Value())
	assert.True(t, s.HasCachedData())

	src.fail(nil)
	require.NoError(t, s.Reload(ctx))
	assert.False(t, s.Errored().Value())
}

func TestReload_WithoutOwnerIsNoop(t *testing.T) {
	src := newFakeSource()
	s, _ := newTestStore(t, src)

	require.NoError(t, s.Reload(context.Background()))
	assert.Equal(t, 0, src.count())
}

func TestReload_WaitsForInFlightLoadAndCoalesces(t *testing.T) {
	src := newFakeSource()
	src.set("u1", "a")
	gate := src.block()
	s, _ := newTestStore(t, src)
	ctx := context.Background()

	loaded := make(chan struct{})
	go func() {
		s.GetData(ctx, "u1")
		close(loaded)
	}()
	<-src.started

	// Reloads issued during the initial load queue behind it.
	reloadGate := make(chan struct{})
	src.mu.Lock()
	src.gate = reloadGate
	src.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Reload(ctx)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, src.count(), "no fetch may overlap the in-flight load")

	close(gate)
	<-loaded
	<-src.started
	time.Sleep(20 * time.Millisecond)
	close(reloadGate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 2, src.count(), "concurrent reloads share one fetch")
}

func TestClear_DiscardsInFlightFetch(t *testing.T) {
	src := newFakeSource()
	src.set("alice", "secret")
	gate := src.block()
	s, _ := newTestStore(t, src)

	done := make(chan struct{})
	go func() {
		s.GetData(context.Background(), "alice")
		close(done)
	}()
	<-src.started

	s.Clear()
	close(gate)
	<-done

	assert.Nil(t, s.Value())
	assert.False(t, s.HasCachedData())
	assert.Equal(t, "", s.Owner())
	assert.False(t, s.Loading().Value())
}

func TestClear_IsIdempotent(t *testing.T) {
	src := newFakeSource()
	src.set("u1", "a")
	s, _ := newTestStore(t, src)
	s.GetData(context.Background(), "u1")

	s.Clear()
	s.Clear()

	assert.False(t, s.HasCachedData())
	assert.Nil(t, s.Value())
	assert.False(t, s.Errored().Value())
}

func TestUpdateCache_KeepsOwner(t *testing.T) {
	src := newFakeSource()
	src.set("u1", "a")
	s, _ := newTestStore(t, src)
	s.GetData(context.Background(), "u1")

	s.UpdateCache([]string{"b", "a"})
	assert.Equal(t, []string{"b", "a"}, s.Value())
	assert.Equal(t, "u1", s.Owner())

	got := s.Mutate(func(cur []string) []string {
		return append([]string{"c"}, cur...)
	})
	assert.Equal(t, []string{"c", "b", "a"}, got)
	assert.Equal(t, got, s.Value())
}

func TestVerifyClean(t *testing.T) {
	src := newFakeSource()
	src.set("alice", "a1")
	s, _ := newTestStore(t, src)

	assert.True(t, s.VerifyClean("bob"), "empty cache is clean")

	s.GetData(context.Background(), "alice")
	assert.True(t, s.VerifyClean("alice"))
	assert.False(t, s.VerifyClean("bob"))
	assert.False(t, s.HasCachedData())
	assert.True(t, s.VerifyClean("bob"))
}

func TestSubscribersSeeStateWithoutErrors(t *testing.T) {
	src := newFakeSource()
	src.set("u1", "a")
	s, _ := newTestStore(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	data := s.Data().Subscribe(ctx)

	assert.Nil(t, <-data, "replays the empty value")

	s.GetData(ctx, "u1")
	assert.Equal(t, []string{"a"}, <-data)

	src.fail(errors.New("network"))
	_ = s.Reload(ctx)

	select {
	case v := <-data:
		t.Fatalf("failed reload must not emit, got %v", v)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMutateOwned_IgnoresOtherOwner(t *testing.T) {
	src := newFakeSource()
	src.set("u1", "a")
	s, _ := newTestStore(t, src)

	_, ok := s.MutateOwned("u1", func(cur []string) []string { return []string{"x"} })
	assert.False(t, ok, "empty cache")
	assert.False(t, s.HasCachedData())

	s.GetData(context.Background(), "u1")
	_, ok = s.MutateOwned("u2", func(cur []string) []string { return []string{"x"} })
	assert.False(t, ok)
	assert.Equal(t, []string{"a"}, s.Value())

	got, ok := s.MutateOwned("u1", func(cur []string) []string { return append([]string{"b"}, cur...) })
	assert.True(t, ok)
	assert.Equal(t, []string{"b", "a"}, got)
}

func TestAccept_GatesLoadsByOwner(t *testing.T) {
	src := newFakeSource()
	src.set("alice", "a1")
	src.set("bob", "b1")

	var active atomic.Value
	active.Store("bob")
	s := New(Config[[]string]{
		Name:   "items",
		Fetch:  src.fetch,
		Equal:  stream.SameSlice[string],
		Accept: func(owner string) bool { return active.Load() == owner },
	})

	s.GetData(context.Background(), "alice")
	assert.Zero(t, src.count(), "no fetch for an owner that is not active")
	assert.False(t, s.HasCachedData())

	assert.Equal(t, []string{"b1"}, s.GetData(context.Background(), "bob").Value())
	assert.Equal(t, "bob", s.Owner())
}

func TestAccept_DiscardsFetchWhoseOwnerWentInactive(t *testing.T) {
	src := newFakeSource()
	src.set("alice", "a1")
	gate := src.block()

	var active atomic.Value
	active.Store("alice")
	s := New(Config[[]string]{
		Name:   "items",
		Fetch:  src.fetch,
		Equal:  stream.SameSlice[string],
		Accept: func(owner string) bool { return active.Load() == owner },
	})
	emitted := make(chan []string, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for v := range s.Data().Subscribe(ctx) {
			emitted <- v
		}
	}()

	done := make(chan struct{})
	go func() {
		s.GetData(context.Background(), "alice")
		close(done)
	}()
	<-src.started

	active.Store("bob")
	close(gate)
	<-done

	assert.Nil(t, s.Value())
	assert.False(t, s.HasCachedData())
	assert.False(t, s.Loading().Value())

	cancel()
	for {
		select {
		case v := <-emitted:
			assert.NotContains(t, v, "a1")
			continue
		case <-time.After(50 * time.Millisecond):
		}
		break
	}
}
