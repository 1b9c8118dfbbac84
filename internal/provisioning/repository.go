package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-core/internal/platform/db"
)

// PostgresRepository stores requests in provisioning_requests and accounts in
// users, user_role_assignments and user_permission_overrides.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectRequest = `SELECT id::text, requested_by, requester_claims, payload, state, error_code, created_at, completed_at
FROM provisioning_requests WHERE id = $1`

// Insert stores a new request.
func (r *PostgresRepository) Insert(ctx context.Context, req Request) error {
	claims, err := json.Marshal(req.RequestedBy.Claims)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO provisioning_requests
		(id, requested_by, requester_claims, payload, state, error_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID, req.RequestedBy.Subject, claims, payload, string(req.State), string(req.Error), req.CreatedAt)
	return err
}

// Get loads a request.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Request, error) {
	return scanRequest(r.pool.QueryRow(ctx, selectRequest, id))
}

// Finish transitions a pending request to a terminal state.
func (r *PostgresRepository) Finish(ctx context.Context, id string, state State, code ErrorCode, at time.Time) (Request, error) {
	var out Request
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		out, err = finishTx(ctx, tx, id, state, code, at)
		return err
	})
	return out, err
}

// CreateAccount inserts the user with assignments and overrides, then
// completes the request.
func (r *PostgresRepository) CreateAccount(ctx context.Context, requestID string, acct Account, at time.Time) (Request, error) {
	var out Request
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO users (id, name, email, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
			acct.ID, acct.Name, acct.Email, acct.Status, at)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrAccountExists, acct.ID)
			}
			return err
		}
		for _, a := range acct.Assignments {
			depts := make([]string, len(a.Departments))
			for i, d := range a.Departments {
				depts[i] = string(d)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO user_role_assignments (user_id, role, departments, is_primary) VALUES ($1, $2, $3, $4)`,
				acct.ID, string(a.Role), depts, a.Primary); err != nil {
				return err
			}
		}
		for module, set := range acct.Overrides {
			if _, err := tx.Exec(ctx, `INSERT INTO user_permission_overrides (user_id, module, actions) VALUES ($1, $2, $3)`,
				acct.ID, string(module), set.Strings()); err != nil {
				return err
			}
		}
		out, err = finishTx(ctx, tx, requestID, StateCompleted, CodeNone, at)
		return err
	})
	return out, err
}

// ListPending returns pending request ids created before cutoff.
func (r *PostgresRepository) ListPending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text FROM provisioning_requests
		WHERE state = 'pending' AND created_at < $1
		ORDER BY created_at LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func finishTx(ctx context.Context, tx pgx.Tx, id string, state State, code ErrorCode, at time.Time) (Request, error) {
	_, err := tx.Exec(ctx, `UPDATE provisioning_requests
		SET state = $2, error_code = $3, completed_at = $4
		WHERE id = $1 AND state = 'pending'`, id, string(state), string(code), at)
	if err != nil {
		return Request{}, err
	}
	return scanRequest(tx.QueryRow(ctx, selectRequest, id))
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req         Request
		claims      []byte
		payload     []byte
		state, code string
	)
	err := row.Scan(&req.ID, &req.RequestedBy.Subject, &claims, &payload, &state, &code, &req.CreatedAt, &req.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrRequestNotFound
	}
	if err != nil {
		return Request{}, fmt.Errorf("provisioning: scan request: %w", err)
	}
	if err := json.Unmarshal(claims, &req.RequestedBy.Claims); err != nil {
		return Request{}, fmt.Errorf("provisioning: decode claims: %w", err)
	}
	if err := json.Unmarshal(payload, &req.Payload); err != nil {
		return Request{}, fmt.Errorf("provisioning: decode payload: %w", err)
	}
	req.State = State(state)
	req.Error = ErrorCode(code)
	return req, nil
}
