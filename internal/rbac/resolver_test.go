package rbac

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-core/internal/shared"
)

type stubSource struct {
	access map[string]Access
	err    error
	calls  atomic.Int32
}

func (s *stubSource) LoadAccess(ctx context.Context, subject string) (Access, error) {
	s.calls.Add(1)
	if s.err != nil {
		return Access{}, s.err
	}
	a, ok := s.access[subject]
	if !ok {
		return Access{}, ErrNoAccessRecord
	}
	return a, nil
}

type stubResolver struct {
	name     string
	decision Decision
	err      error
	called   bool
}

func (s *stubResolver) Name() string { return s.name }

func (s *stubResolver) Resolve(context.Context, Request) (Decision, error) {
	s.called = true
	return s.decision, s.err
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveAuthz(tier, decision string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, tier+":"+decision)
}

func TestChainStopsAtFirstConclusive(t *testing.T) {
	first := &stubResolver{name: "first", decision: Inconclusive}
	second := &stubResolver{name: "second", decision: Deny}
	third := &stubResolver{name: "third", decision: Grant}
	obs := &recordingObserver{}
	chain := NewChain(nil, obs, first, second, third)

	v, err := chain.Decide(context.Background(), Request{Subject: "u", Module: ModuleOrders, Action: ActionView})
	require.NoError(t, err)
	assert.Equal(t, Verdict{Decision: Deny, Tier: "second"}, v)
	assert.True(t, first.called)
	assert.False(t, third.called, "a conclusive deny must not fall through")
	assert.Equal(t, []string{"second:deny"}, obs.calls)
}

func TestChainTreatsErrorsAsInconclusive(t *testing.T) {
	broken := &stubResolver{name: "broken", decision: Grant, err: errors.New("lookup failed")}
	fallback := &stubResolver{name: "fallback", decision: Grant}
	chain := NewChain(nil, nil, broken, fallback)

	v, err := chain.Decide(context.Background(), Request{Subject: "u", Module: ModuleOrders, Action: ActionView})
	require.NoError(t, err)
	assert.Equal(t, "fallback", v.Tier)
}

func TestChainExhaustedDenies(t *testing.T) {
	chain := NewChain(nil, nil, &stubResolver{name: "a"}, &stubResolver{name: "b"})

	err := chain.Authorize(context.Background(), Request{Subject: "u", Module: ModuleOrders, Action: ActionView})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestChainRejectsUnknownIdentifiers(t *testing.T) {
	grant := &stubResolver{name: "grant", decision: Grant}
	chain := NewChain(nil, nil, grant)

	_, err := chain.Decide(context.Background(), Request{Module: "payroll", Action: ActionView})
	require.ErrorIs(t, err, ErrUnknownModule)
	_, err = chain.Decide(context.Background(), Request{Module: ModuleOrders, Action: "fly"})
	require.ErrorIs(t, err, ErrUnknownAction)
	assert.False(t, grant.called)
}

func TestDefaultChainTiers(t *testing.T) {
	engine := DefaultEngine()
	source := &stubSource{access: map[string]Access{
		"u-record": {Assignments: []Assignment{{Role: RoleOperator, Departments: []DepartmentID{DeptProduction}}}},
		"u-override": {
			Assignments: []Assignment{{Role: RoleOperator}},
			Overrides:   Overrides{ModuleUsers: Of(ActionView, ActionCreate)},
		},
	}}
	chain := DefaultChain(nil, nil, engine, source, []string{"bootstrap"})
	ctx := context.Background()

	cases := []struct {
		name string
		req  Request
		want Decision
		tier string
	}{
		{
			name: "elevated role",
			req:  Request{Subject: "a", Claims: &Claims{Subject: "a", Roles: []RoleID{RoleAdmin}}, Module: ModuleSequences, Action: ActionSequenceAdjust},
			want: Grant, tier: "elevated-role",
		},
		{
			name: "claims module list grants",
			req:  Request{Subject: "b", Claims: &Claims{Subject: "b", Modules: Overrides{ModuleOrders: Of(ActionView)}}, Module: ModuleOrders, Action: ActionView},
			want: Grant, tier: "claims",
		},
		{
			name: "claims module list denies conclusively",
			req:  Request{Subject: "bootstrap", Claims: &Claims{Subject: "bootstrap", Modules: Overrides{ModuleUsers: Of(ActionView)}}, Module: ModuleUsers, Action: ActionCreate},
			want: Deny, tier: "claims",
		},
		{
			name: "claimed roles profile",
			req:  Request{Subject: "c", Claims: &Claims{Subject: "c", Roles: []RoleID{RoleManager}}, Module: ModuleOrders, Action: ActionApprove},
			want: Grant, tier: "claims",
		},
		{
			name: "persisted record",
			req:  Request{Subject: "u-record", Claims: &Claims{Subject: "u-record"}, Module: ModuleProduction, Action: ActionUpdate},
			want: Grant, tier: "record",
		},
		{
			name: "persisted override",
			req:  Request{Subject: "u-override", Module: ModuleUsers, Action: ActionCreate},
			want: Grant, tier: "record",
		},
		{
			name: "persisted record denies",
			req:  Request{Subject: "u-record", Module: ModuleUsers, Action: ActionCreate},
			want: Deny, tier: "record",
		},
		{
			name: "allow list",
			req:  Request{Subject: "bootstrap", Module: ModuleUsers, Action: ActionCreate},
			want: Grant, tier: "allow-list",
		},
		{
			name: "nobody",
			req:  Request{Subject: "stranger", Module: ModuleUsers, Action: ActionView},
			want: Deny, tier: "exhausted",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := chain.Decide(ctx, tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, v.Decision)
			assert.Equal(t, tc.tier, v.Tier)
		})
	}
}

func TestRecordResolverFailureFallsThrough(t *testing.T) {
	source := &stubSource{err: errors.New("db down")}
	chain := DefaultChain(nil, nil, DefaultEngine(), source, []string{"bootstrap"})

	v, err := chain.Decide(context.Background(), Request{Subject: "bootstrap", Module: ModuleUsers, Action: ActionCreate})
	require.NoError(t, err)
	assert.Equal(t, Verdict{Decision: Grant, Tier: "allow-list"}, v)

	err = chain.Authorize(context.Background(), Request{Subject: "someone", Module: ModuleUsers, Action: ActionCreate})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

type blockingSource struct {
	access  Access
	started chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func newBlockingSource(access Access) *blockingSource {
	return &blockingSource{access: access, started: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingSource) LoadAccess(ctx context.Context, _ string) (Access, error) {
	s.calls.Add(1)
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
		return s.access, nil
	case <-ctx.Done():
		return Access{}, ctx.Err()
	}
}

func TestRecordResolverSharedLoadSurvivesCallerCancel(t *testing.T) {
	source := newBlockingSource(Access{Assignments: []Assignment{{Role: RoleManager, Departments: []DepartmentID{DeptSales}}}})
	chain := DefaultChain(nil, nil, DefaultEngine(), source, nil)
	req := Request{Subject: "u-manager", Module: ModuleOrders, Action: ActionView}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan Verdict, 1)
	go func() {
		v, _ := chain.Decide(firstCtx, req)
		first <- v
	}()
	<-source.started

	second := make(chan Verdict, 1)
	go func() {
		v, _ := chain.Decide(context.Background(), req)
		second <- v
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.Equal(t, Verdict{Decision: Deny, Tier: "exhausted"}, <-first)

	close(source.release)
	assert.Equal(t, Verdict{Decision: Grant, Tier: "record"}, <-second)
}

func TestRecordResolverLoadTimeout(t *testing.T) {
	source := newBlockingSource(Access{})
	r := &RecordResolver{Engine: DefaultEngine(), Source: source, LoadTimeout: 10 * time.Millisecond}

	d, err := r.Resolve(context.Background(), Request{Subject: "u-slow", Module: ModuleOrders, Action: ActionView})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Inconclusive, d)
}

func TestRecordResolverWithoutSubjectIsInconclusive(t *testing.T) {
	source := &stubSource{}
	r := &RecordResolver{Engine: DefaultEngine(), Source: source}

	d, err := r.Resolve(context.Background(), Request{Module: ModuleUsers, Action: ActionView})
	require.NoError(t, err)
	assert.Equal(t, Inconclusive, d)
	assert.Zero(t, source.calls.Load())
}
