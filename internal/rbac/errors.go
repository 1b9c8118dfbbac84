package rbac

import "github.com/odyssey-erp/odyssey-core/internal/shared"

// Sentinel errors. The unknown-identifier errors indicate a caller bug or a
// stale catalog and are never retryable.
var (
	ErrUnknownModule     = shared.NewError(shared.ErrInvalidArgument, "rbac: unknown module")
	ErrUnknownAction     = shared.NewError(shared.ErrInvalidArgument, "rbac: unknown action")
	ErrUnknownRole       = shared.NewError(shared.ErrInvalidArgument, "rbac: unknown role")
	ErrUnknownDepartment = shared.NewError(shared.ErrInvalidArgument, "rbac: unknown department")
	ErrInvalidToken      = shared.NewError(shared.ErrUnauthenticated, "rbac: invalid token")
	ErrInvalidClaims     = shared.NewError(shared.ErrPermissionDenied, "rbac: invalid claims")
	ErrNoAccessRecord    = shared.NewError(shared.ErrNotFound, "rbac: no access record")
)
