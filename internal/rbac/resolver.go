package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-core/internal/shared"
)

// Decision is the tagged outcome of a single resolver.
type Decision int

const (
	// Inconclusive passes the request to the next resolver.
	Inconclusive Decision = iota
	// Grant allows the request and stops the chain.
	Grant
	// Deny refuses the request and stops the chain.
	Deny
)

func (d Decision) String() string {
	switch d {
	case Grant:
		return "grant"
	case Deny:
		return "deny"
	default:
		return "inconclusive"
	}
}

// Request asks whether Subject may perform Action on Module.
type Request struct {
	Subject string
	Claims  *Claims
	Module  Module
	Action  Action
}

// Resolver is one tier of the precedence chain. An error is treated as
// Inconclusive by the chain.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, req Request) (Decision, error)
}

// Verdict records which tier settled a request.
type Verdict struct {
	Decision Decision
	Tier     string
}

// DecisionObserver receives every conclusive or exhausted chain outcome.
type DecisionObserver interface {
	ObserveAuthz(tier, decision string)
}

// Chain evaluates resolvers in order until one is conclusive. Exhausting the
// chain denies.
type Chain struct {
	resolvers []Resolver
	logger    *slog.Logger
	observer  DecisionObserver
}

// NewChain builds a chain over resolvers in precedence order.
func NewChain(logger *slog.Logger, observer DecisionObserver, resolvers ...Resolver) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{resolvers: resolvers, logger: logger, observer: observer}
}

// Decide runs the chain and reports the settling tier. Unknown modules or
// actions are rejected before any resolver runs.
func (c *Chain) Decide(ctx context.Context, req Request) (Verdict, error) {
	if !req.Module.Valid() {
		return Verdict{}, fmt.Errorf("%w %q", ErrUnknownModule, req.Module)
	}
	if !req.Action.Valid() {
		return Verdict{}, fmt.Errorf("%w %q", ErrUnknownAction, req.Action)
	}
	for _, r := range c.resolvers {
		decision, err := r.Resolve(ctx, req)
		if err != nil {
			c.logger.Warn("authz resolver inconclusive",
				slog.String("resolver", r.Name()),
				slog.String("subject", req.Subject),
				slog.Any("error", err))
			continue
		}
		if decision == Inconclusive {
			continue
		}
		c.observe(r.Name(), decision)
		return Verdict{Decision: decision, Tier: r.Name()}, nil
	}
	c.observe("exhausted", Deny)
	return Verdict{Decision: Deny, Tier: "exhausted"}, nil
}

// Authorize returns nil when the request is granted and an error wrapping
// shared.ErrPermissionDenied otherwise.
func (c *Chain) Authorize(ctx context.Context, req Request) error {
	v, err := c.Decide(ctx, req)
	if err != nil {
		return err
	}
	if v.Decision != Grant {
		return fmt.Errorf("%w: %s may not %s %s (%s)", shared.ErrPermissionDenied, req.Subject, req.Action, req.Module, v.Tier)
	}
	return nil
}

func (c *Chain) observe(tier string, d Decision) {
	if c.observer != nil {
		c.observer.ObserveAuthz(tier, d.String())
	}
}

// ElevatedRoleResolver grants everything to identities claiming an elevated
// role.
type ElevatedRoleResolver struct {
	Roles []RoleID
}

func (ElevatedRoleResolver) Name() string { return "elevated-role" }

func (r ElevatedRoleResolver) Resolve(_ context.Context, req Request) (Decision, error) {
	for _, role := range r.Roles {
		if req.Claims.HasRole(role) {
			return Grant, nil
		}
	}
	return Inconclusive, nil
}

// ClaimsResolver answers from the module list carried in claims, or from the
// profile of the claimed roles.
type ClaimsResolver struct {
	Engine *Engine
}

func (ClaimsResolver) Name() string { return "claims" }

func (r ClaimsResolver) Resolve(_ context.Context, req Request) (Decision, error) {
	if req.Claims == nil {
		return Inconclusive, nil
	}
	if set, ok := req.Claims.Modules[req.Module]; ok {
		return decide(set.Has(req.Action)), nil
	}
	assignments := req.Claims.Assignments()
	if len(assignments) == 0 {
		return Inconclusive, nil
	}
	ok, err := r.Engine.CanPerform(assignments, req.Module, req.Action, Options{})
	if err != nil {
		return Inconclusive, err
	}
	return decide(ok), nil
}

// Access is the persisted access record of a user.
type Access struct {
	Assignments []Assignment
	Overrides   Overrides
}

// AccessSource loads persisted access records. Missing records return an
// error matching ErrNoAccessRecord.
type AccessSource interface {
	LoadAccess(ctx context.Context, subject string) (Access, error)
}

// DefaultRecordLoadTimeout bounds a shared record load.
const DefaultRecordLoadTimeout = 5 * time.Second

// RecordResolver rebuilds the profile from persisted assignments. Concurrent
// lookups for the same subject share one load. The shared load is detached
// from any single caller's cancellation; each caller stops waiting on its own
// context.
type RecordResolver struct {
	Engine      *Engine
	Source      AccessSource
	LoadTimeout time.Duration
	group       singleflight.Group
}

func (*RecordResolver) Name() string { return "record" }

func (r *RecordResolver) Resolve(ctx context.Context, req Request) (Decision, error) {
	if r.Source == nil || req.Subject == "" {
		return Inconclusive, nil
	}
	timeout := r.LoadTimeout
	if timeout <= 0 {
		timeout = DefaultRecordLoadTimeout
	}
	ch := r.group.DoChan(req.Subject, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return r.Source.LoadAccess(loadCtx, req.Subject)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Inconclusive, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		if errors.Is(res.Err, ErrNoAccessRecord) {
			return Inconclusive, nil
		}
		return Inconclusive, res.Err
	}
	access := res.Val.(Access)
	ok, err := r.Engine.CanPerform(access.Assignments, req.Module, req.Action, Options{Overrides: access.Overrides})
	if err != nil {
		return Inconclusive, err
	}
	return decide(ok), nil
}

// AllowListResolver grants listed identities. It exists only to bootstrap a
// fresh installation and never denies.
type AllowListResolver struct {
	Subjects map[string]struct{}
}

// NewAllowListResolver builds a resolver from subject identifiers.
func NewAllowListResolver(subjects ...string) AllowListResolver {
	set := make(map[string]struct{}, len(subjects))
	for _, s := range subjects {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return AllowListResolver{Subjects: set}
}

func (AllowListResolver) Name() string { return "allow-list" }

func (r AllowListResolver) Resolve(_ context.Context, req Request) (Decision, error) {
	if _, ok := r.Subjects[req.Subject]; ok {
		return Grant, nil
	}
	return Inconclusive, nil
}

// DefaultChain wires the four standard tiers in precedence order.
func DefaultChain(logger *slog.Logger, observer DecisionObserver, engine *Engine, source AccessSource, allowList []string) *Chain {
	return NewChain(logger, observer,
		ElevatedRoleResolver{Roles: []RoleID{RoleAdmin}},
		ClaimsResolver{Engine: engine},
		&RecordResolver{Engine: engine, Source: source},
		NewAllowListResolver(allowList...),
	)
}

func decide(ok bool) Decision {
	if ok {
		return Grant
	}
	return Deny
}
