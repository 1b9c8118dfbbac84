package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/odyssey-erp/odyssey-core/internal/rbac"
	"github.com/odyssey-erp/odyssey-core/internal/shared"
)

// Repository persists requests and the accounts they create.
type Repository interface {
	Insert(ctx context.Context, req Request) error
	Get(ctx context.Context, id string) (Request, error)
	// Finish moves a pending request to a terminal state. A request that is
	// already terminal is returned unchanged.
	Finish(ctx context.Context, id string, state State, code ErrorCode, at time.Time) (Request, error)
	// CreateAccount stores acct and completes the request in one transaction.
	// An existing account with the same id or email yields ErrAccountExists.
	CreateAccount(ctx context.Context, requestID string, acct Account, at time.Time) (Request, error)
	// ListPending returns ids of pending requests created before cutoff,
	// oldest first.
	ListPending(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Enqueuer schedules asynchronous processing of a request.
type Enqueuer interface {
	EnqueueProvision(ctx context.Context, requestID string) error
}

// Observer receives terminal outcomes.
type Observer interface {
	ObserveProvisioning(state State, code ErrorCode)
}

// Service accepts provisioning requests and processes them.
type Service struct {
	repo     Repository
	engine   *rbac.Engine
	chain    *rbac.Chain
	enqueuer Enqueuer
	auditor  shared.Auditor
	observer Observer
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// Config collects Service dependencies. Enqueuer, Auditor and Observer are
// optional; without an Enqueuer requests are processed inline on submit.
type Config struct {
	Repository Repository
	Engine     *rbac.Engine
	Chain      *rbac.Chain
	Enqueuer   Enqueuer
	Auditor    shared.Auditor
	Observer   Observer
	Logger     *slog.Logger
}

// NewService builds Service instance.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     cfg.Repository,
		engine:   cfg.Engine,
		chain:    cfg.Chain,
		enqueuer: cfg.Enqueuer,
		auditor:  cfg.Auditor,
		observer: cfg.Observer,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Submit records a pending request and schedules it.
func (s *Service) Submit(ctx context.Context, requester Requester, payload Payload) (Request, error) {
	requester.Subject = strings.TrimSpace(requester.Subject)
	if requester.Subject == "" {
		return Request{}, shared.NewError(shared.ErrUnauthenticated, "provisioning: requester required")
	}
	req := Request{
		ID:          uuid.NewString(),
		RequestedBy: requester,
		Payload:     payload,
		State:       StatePending,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, req); err != nil {
		return Request{}, fmt.Errorf("provisioning: insert request: %w", err)
	}
	s.logger.Info("provisioning request submitted",
		slog.String("request_id", req.ID),
		slog.String("requested_by", requester.Subject))

	if s.enqueuer == nil {
		return s.Process(ctx, req.ID)
	}
	if err := s.enqueuer.EnqueueProvision(ctx, req.ID); err != nil {
		s.logger.Error("provisioning enqueue", slog.String("request_id", req.ID), slog.Any("error", err))
		return req, fmt.Errorf("%w: enqueue provisioning: %v", shared.ErrUnavailable, err)
	}
	return req, nil
}

// Get returns a request by id.
func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	return s.repo.Get(ctx, id)
}

// Process authorizes and validates a pending request, then creates the
// account. Authorization is decided before the payload is inspected, and
// nothing is written unless both pass. Terminal requests are returned as is.
// Errors returned leave the request pending and may be retried.
func (s *Service) Process(ctx context.Context, id string) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.State.Terminal() {
		return req, nil
	}

	if err := s.authorize(ctx, req.RequestedBy); err != nil {
		if errors.Is(err, shared.ErrPermissionDenied) {
			s.logger.Warn("provisioning rejected",
				slog.String("request_id", req.ID),
				slog.String("requested_by", req.RequestedBy.Subject),
				slog.Any("error", err))
			return s.finish(ctx, req, StateRejected, CodePermissionDenied)
		}
		return Request{}, err
	}

	acct, err := s.account(req.Payload)
	if err != nil {
		s.logger.Warn("provisioning rejected",
			slog.String("request_id", req.ID),
			slog.Any("error", err))
		return s.finish(ctx, req, StateRejected, CodeInvalidArgument)
	}

	done, err := s.repo.CreateAccount(ctx, req.ID, acct, s.now().UTC())
	if errors.Is(err, ErrAccountExists) {
		return s.finish(ctx, req, StateFailed, CodeAlreadyExists)
	}
	if err != nil {
		return Request{}, fmt.Errorf("provisioning: create account: %w", err)
	}
	s.logger.Info("provisioning completed",
		slog.String("request_id", req.ID),
		slog.String("user_id", acct.ID))
	s.audit(ctx, done)
	s.observe(done)
	return done, nil
}

// Fail marks a pending request failed with an internal error. Used once
// retries are exhausted.
func (s *Service) Fail(ctx context.Context, id string) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.State.Terminal() {
		return req, nil
	}
	return s.finish(ctx, req, StateFailed, CodeInternal)
}

// Redeliver re-enqueues pending requests older than staleAfter, covering
// submissions whose enqueue failed. Requests still queued collapse on their
// task id. It returns how many were enqueued.
func (s *Service) Redeliver(ctx context.Context, staleAfter time.Duration, limit int) (int, error) {
	if s.enqueuer == nil {
		return 0, errors.New("provisioning: redeliver requires an enqueuer")
	}
	ids, err := s.repo.ListPending(ctx, s.now().UTC().Add(-staleAfter), limit)
	if err != nil {
		return 0, fmt.Errorf("provisioning: list pending: %w", err)
	}
	var (
		enqueued int
		errs     []error
	)
	for _, id := range ids {
		if err := s.enqueuer.EnqueueProvision(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		enqueued++
	}
	if len(ids) > 0 {
		s.logger.Info("provisioning redelivered",
			slog.Int("stale", len(ids)),
			slog.Int("enqueued", enqueued))
	}
	if len(errs) > 0 {
		return enqueued, fmt.Errorf("%w: redeliver: %v", shared.ErrUnavailable, errors.Join(errs...))
	}
	return enqueued, nil
}

func (s *Service) authorize(ctx context.Context, requester Requester) error {
	claims, err := rbac.DecodeClaims(requester.Subject, requester.Claims, s.engine)
	if err != nil {
		return err
	}
	return s.chain.Authorize(ctx, rbac.Request{
		Subject: claims.Subject,
		Claims:  claims,
		Module:  rbac.ModuleUsers,
		Action:  rbac.ActionCreate,
	})
}

func (s *Service) account(p Payload) (Account, error) {
	if err := s.validate.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields = append(fields, fe.Field()+":"+fe.Tag())
			}
			return Account{}, fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(fields, ", "))
		}
		return Account{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if strings.TrimSpace(p.ID) != p.ID {
		return Account{}, fmt.Errorf("%w: id must not carry surrounding whitespace", ErrInvalidPayload)
	}

	depts := make([]rbac.DepartmentID, 0, len(p.Departments))
	for _, d := range p.Departments {
		depts = append(depts, rbac.DepartmentID(d))
	}
	primary := rbac.RoleID(p.PrimaryRole)
	assignments := []rbac.Assignment{{Role: primary, Departments: depts, Primary: true}}
	seen := map[rbac.RoleID]bool{primary: true}
	for _, r := range p.Roles {
		role := rbac.RoleID(r)
		if seen[role] {
			continue
		}
		seen[role] = true
		assignments = append(assignments, rbac.Assignment{Role: role, Departments: depts})
	}
	overrides, err := rbac.ParseOverrides(p.Overrides)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if _, err := s.engine.BuildProfile(assignments, rbac.Options{Overrides: overrides}); err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	status := p.Status
	if status == "" {
		status = "active"
	}
	return Account{
		ID:          p.ID,
		Name:        strings.TrimSpace(p.Name),
		Email:       foldEmail(p.Email),
		Status:      status,
		Assignments: assignments,
		Overrides:   overrides,
	}, nil
}

// foldEmail makes addresses comparable under the users.email unique index.
// Catalog identifiers are never folded.
func foldEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

func (s *Service) finish(ctx context.Context, req Request, state State, code ErrorCode) (Request, error) {
	done, err := s.repo.Finish(ctx, req.ID, state, code, s.now().UTC())
	if err != nil {
		return Request{}, fmt.Errorf("provisioning: finish request: %w", err)
	}
	s.audit(ctx, done)
	s.observe(done)
	return done, nil
}

func (s *Service) audit(ctx context.Context, req Request) {
	if s.auditor == nil {
		return
	}
	entry := shared.AuditEntry{
		Actor:    req.RequestedBy.Subject,
		Action:   "provisioning." + string(req.State),
		Entity:   "user",
		EntityID: req.Payload.ID,
		Meta:     map[string]any{"request_id": req.ID, "error": string(req.Error)},
	}
	if entry.EntityID == "" {
		entry.EntityID = req.ID
	}
	if req.CompletedAt != nil {
		entry.At = *req.CompletedAt
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn("provisioning audit", slog.String("request_id", req.ID), slog.Any("error", err))
	}
}

func (s *Service) observe(req Request) {
	if s.observer != nil {
		s.observer.ObserveProvisioning(req.State, req.Error)
	}
}
