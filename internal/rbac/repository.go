package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-core/internal/platform/db"
)

// Repository loads persisted role assignments and overrides from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadAccess returns the assignments and overrides stored for subject, read
// from one snapshot. Users without an active row yield ErrNoAccessRecord.
func (r *Repository) LoadAccess(ctx context.Context, subject string) (Access, error) {
	var access Access
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		access, err = loadAccess(ctx, tx, subject)
		return err
	})
	return access, err
}

func loadAccess(ctx context.Context, tx pgx.Tx, subject string) (Access, error) {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND status = 'active')`, subject).Scan(&exists); err != nil {
		return Access{}, fmt.Errorf("rbac: lookup user: %w", err)
	}
	if !exists {
		return Access{}, ErrNoAccessRecord
	}

	rows, err := tx.Query(ctx, `SELECT role, departments, is_primary FROM user_role_assignments WHERE user_id = $1 ORDER BY role`, subject)
	if err != nil {
		return Access{}, fmt.Errorf("rbac: load assignments: %w", err)
	}
	assignments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Assignment, error) {
		var (
			role    string
			depts   []string
			primary bool
		)
		if err := row.Scan(&role, &depts, &primary); err != nil {
			return Assignment{}, err
		}
		a := Assignment{Role: RoleID(role), Primary: primary, Departments: make([]DepartmentID, len(depts))}
		for i, d := range depts {
			a.Departments[i] = DepartmentID(d)
		}
		return a, nil
	})
	if err != nil {
		return Access{}, fmt.Errorf("rbac: scan assignments: %w", err)
	}

	rows, err = tx.Query(ctx, `SELECT module, actions FROM user_permission_overrides WHERE user_id = $1`, subject)
	if err != nil {
		return Access{}, fmt.Errorf("rbac: load overrides: %w", err)
	}
	defer rows.Close()
	var raw map[string][]string
	for rows.Next() {
		var (
			module string
			acts   []string
		)
		if err := rows.Scan(&module, &acts); err != nil {
			return Access{}, fmt.Errorf("rbac: scan overrides: %w", err)
		}
		if raw == nil {
			raw = make(map[string][]string)
		}
		raw[module] = acts
	}
	if err := rows.Err(); err != nil {
		return Access{}, fmt.Errorf("rbac: scan overrides: %w", err)
	}
	overrides, err := ParseOverrides(raw)
	if err != nil {
		return Access{}, fmt.Errorf("rbac: stored overrides: %w", err)
	}
	return Access{Assignments: assignments, Overrides: overrides}, nil
}
