package sequence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-core/internal/shared"
)

// memStore serialises Advance with a mutex.
type memStore struct {
	mu       sync.Mutex
	records  map[string]Record
	advances int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]Record)}
}

func (m *memStore) Get(_ context.Context, key string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	return rec, ok, nil
}

func (m *memStore) Advance(_ context.Context, key string, seed Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advances++
	rec, ok := m.records[key]
	if !ok {
		rec = seed
	}
	next := rec
	next.NextNumber++
	m.records[key] = next
	return rec, nil
}

// flakyStore fails the first conflicts calls with a write conflict, then
// delegates.
type flakyStore struct {
	*memStore
	mu        sync.Mutex
	conflicts int
	err       error
	calls     int
}

func (f *flakyStore) Advance(ctx context.Context, key string, seed Record) (Record, error) {
	f.mu.Lock()
	f.calls++
	if f.err != nil {
		f.mu.Unlock()
		return Record{}, f.err
	}
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return Record{}, ErrStoreConflict
	}
	f.mu.Unlock()
	return f.memStore.Advance(ctx, key, seed)
}

type recordingObserver struct {
	mu        sync.Mutex
	conflicts int
	failures  int
	issued    int
}

func (o *recordingObserver) ObserveIssuance(_ string, conflicts int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conflicts += conflicts
	if err != nil {
		o.failures++
		return
	}
	o.issued++
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry(n uint64) RetryConfig {
	return RetryConfig{MaxRetries: n, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func woCatalog(t *testing.T) Catalog {
	t.Helper()
	c, err := NewCatalog(Definition{Key: "WO", Prefix: "WO", Padding: 5, NextNumber: 873, Scope: "production"})
	require.NoError(t, err)
	return c
}

func TestIssueWorkOrderScenario(t *testing.T) {
	store := newMemStore()
	issuer := NewIssuer(woCatalog(t), store, fastRetry(3), quietLogger(), nil)
	ctx := context.Background()

	first, err := issuer.Issue(ctx, "WO")
	require.NoError(t, err)
	assert.Equal(t, Issued{Key: "WO", Value: "WO00873", IssuedNumber: 873}, first)

	rec, found, err := store.Get(ctx, "WO")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(874), rec.NextNumber)

	second, err := issuer.Issue(ctx, "WO")
	require.NoError(t, err)
	assert.Equal(t, Issued{Key: "WO", Value: "WO00874", IssuedNumber: 874}, second)
}

func TestIssueUnknownKeyDoesNotTouchStore(t *testing.T) {
	store := newMemStore()
	issuer := NewIssuer(woCatalog(t), store, fastRetry(3), quietLogger(), nil)

	_, err := issuer.Issue(context.Background(), "NOPE")
	require.ErrorIs(t, err, ErrUnknownSequence)
	_, err = issuer.Peek("NOPE")
	require.ErrorIs(t, err, ErrUnknownSequence)
	_, err = issuer.Current(context.Background(), "NOPE")
	require.ErrorIs(t, err, ErrUnknownSequence)

	assert.Zero(t, store.advances)
	assert.Empty(t, store.records)
}

func TestIssueUsesStoredStateNotSeed(t *testing.T) {
	store := newMemStore()
	store.records["WO"] = Record{Prefix: "WK", Padding: 7, NextNumber: 5000}
	issuer := NewIssuer(woCatalog(t), store, fastRetry(3), quietLogger(), nil)

	got, err := issuer.Issue(context.Background(), "WO")
	require.NoError(t, err)
	assert.Equal(t, Issued{Key: "WO", Value: "WK0005000", IssuedNumber: 5000}, got)

	// peek is seed-only and does not reflect issuance
	p, err := issuer.Peek("WO")
	require.NoError(t, err)
	assert.Equal(t, int64(873), p.NextNumber)
	assert.Equal(t, "WO00873", p.Formatted)

	cur, err := issuer.Current(context.Background(), "WO")
	require.NoError(t, err)
	assert.Equal(t, int64(5001), cur.NextNumber)
	assert.Equal(t, "WK0005001", cur.Formatted)
}

func TestIssueRetriesConflicts(t *testing.T) {
	store := &flakyStore{memStore: newMemStore(), conflicts: 2}
	obs := &recordingObserver{}
	issuer := NewIssuer(woCatalog(t), store, fastRetry(5), quietLogger(), obs)

	got, err := issuer.Issue(context.Background(), "WO")
	require.NoError(t, err)
	assert.Equal(t, int64(873), got.IssuedNumber)
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 2, obs.conflicts)
	assert.Equal(t, 1, obs.issued)
}

func TestIssueRetriesExhausted(t *testing.T) {
	store := &flakyStore{memStore: newMemStore(), conflicts: 100}
	obs := &recordingObserver{}
	issuer := NewIssuer(woCatalog(t), store, fastRetry(3), quietLogger(), obs)

	_, err := issuer.Issue(context.Background(), "WO")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.ErrorIs(t, err, shared.ErrUnavailable)
	assert.False(t, errors.Is(err, ErrStoreConflict), "conflicts must not leak to callers")
	assert.Equal(t, 4, store.calls)
	assert.Empty(t, store.records)
	assert.Equal(t, 1, obs.failures)
}

func TestIssueDoesNotRetryHardFailures(t *testing.T) {
	store := &flakyStore{memStore: newMemStore(), err: errors.New("connection refused")}
	issuer := NewIssuer(woCatalog(t), store, fastRetry(5), quietLogger(), nil)

	_, err := issuer.Issue(context.Background(), "WO")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 1, store.calls)
}

func TestIssueStopsOnCancelledContext(t *testing.T) {
	store := &flakyStore{memStore: newMemStore(), conflicts: 1000}
	issuer := NewIssuer(woCatalog(t), store, RetryConfig{MaxRetries: 1000, InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second}, quietLogger(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := issuer.Issue(ctx, "WO")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Empty(t, store.records)
}

func TestIssueConcurrentIsContiguous(t *testing.T) {
	store := newMemStore()
	issuer := NewIssuer(woCatalog(t), store, fastRetry(3), quietLogger(), nil)
	const n = 64

	numbers := make([]int64, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			got, err := issuer.Issue(context.Background(), "WO")
			if err != nil {
				return err
			}
			numbers[i] = got.IssuedNumber
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assertContiguous(t, numbers, 873)
}

func TestListAndPeek(t *testing.T) {
	issuer := NewIssuer(DefaultCatalog(), newMemStore(), RetryConfig{}, nil, nil)
	list := issuer.List()
	require.Len(t, list, 6)
	assert.Equal(t, "ACCOUNT", list[0].Key)
	assert.Equal(t, "AC001000", list[0].Formatted)

	p, err := issuer.Peek("ORDER")
	require.NoError(t, err)
	assert.Equal(t, Preview{Key: "ORDER", Prefix: "SO", NextNumber: 1, Formatted: "SO00001", Scope: "sales", Padding: 5}, p)
}

func assertContiguous(t *testing.T, numbers []int64, start int64) {
	t.Helper()
	sorted := append([]int64(nil), numbers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i, v := range sorted {
		require.Equal(t, start+int64(i), v, "issued numbers must be unique and gap-free")
	}
}
