package provisioning

import (
	"time"

	"github.com/odyssey-erp/odyssey-core/internal/rbac"
	"github.com/odyssey-erp/odyssey-core/internal/shared"
)

// State is the lifecycle state of a provisioning request.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateRejected  State = "rejected"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateRejected || s == StateFailed
}

// ErrorCode classifies why a request ended rejected or failed.
type ErrorCode string

const (
	CodeNone             ErrorCode = ""
	CodePermissionDenied ErrorCode = "permission-denied"
	CodeInvalidArgument  ErrorCode = "invalid-argument"
	CodeAlreadyExists    ErrorCode = "already-exists"
	CodeInternal         ErrorCode = "internal"
)

// Payload describes the account to create.
type Payload struct {
	ID          string              `json:"id" validate:"required,max=128"`
	Name        string              `json:"name" validate:"required,max=200"`
	Email       string              `json:"email" validate:"required,email"`
	PrimaryRole string              `json:"primaryRole" validate:"required"`
	Departments []string            `json:"departments" validate:"required,min=1,dive,required"`
	Status      string              `json:"status" validate:"omitempty,oneof=active disabled"`
	Roles       []string            `json:"roles,omitempty" validate:"dive,required"`
	Overrides   map[string][]string `json:"overrides,omitempty"`
}

// Requester is the identity that submitted a request together with the
// claims it presented at submission time.
type Requester struct {
	Subject string         `json:"subject"`
	Claims  rbac.RawClaims `json:"claims"`
}

// Request is a persisted provisioning request.
type Request struct {
	ID          string     `json:"id"`
	RequestedBy Requester  `json:"requestedBy"`
	Payload     Payload    `json:"payload"`
	State       State      `json:"state"`
	Error       ErrorCode  `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Account is the user record created for a completed request.
type Account struct {
	ID          string
	Name        string
	Email       string
	Status      string
	Assignments []rbac.Assignment
	Overrides   rbac.Overrides
}

// Sentinel errors.
var (
	ErrRequestNotFound = shared.NewError(shared.ErrNotFound, "provisioning: request not found")
	ErrAccountExists   = shared.NewError(shared.ErrAlreadyExists, "provisioning: account already exists")
	ErrInvalidPayload  = shared.NewError(shared.ErrInvalidArgument, "provisioning: invalid payload")
)
