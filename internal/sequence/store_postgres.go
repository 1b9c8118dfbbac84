package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-core/internal/platform/db"
)

// PostgresStore keeps one row per key in the sequences table and advances it
// inside a serializable transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get returns the stored record for key.
func (s *PostgresStore) Get(ctx context.Context, key string) (Record, bool, error) {
	var rec Record
	err := s.pool.QueryRow(ctx, `SELECT prefix, padding, next_number FROM sequences WHERE key = $1`, key).
		Scan(&rec.Prefix, &rec.Padding, &rec.NextNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("sequence: get %s: %w", key, err)
	}
	return rec, true, nil
}

// Advance reads and increments the row for key. Serialization failures and
// concurrent first inserts surface as ErrStoreConflict.
func (s *PostgresStore) Advance(ctx context.Context, key string, seed Record) (Record, error) {
	var issued Record
	err := db.WithSerializableTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT prefix, padding, next_number FROM sequences WHERE key = $1`, key).
			Scan(&issued.Prefix, &issued.Padding, &issued.NextNumber)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			issued = seed
			_, err = tx.Exec(ctx, `INSERT INTO sequences (key, prefix, padding, next_number, updated_at)
				VALUES ($1, $2, $3, $4, NOW())`, key, seed.Prefix, seed.Padding, seed.NextNumber+1)
			return err
		case err != nil:
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE sequences SET next_number = $2, updated_at = NOW() WHERE key = $1`,
			key, issued.NextNumber+1)
		return err
	})
	if err != nil {
		if db.IsConflict(err) {
			return Record{}, fmt.Errorf("%w: %s: %v", ErrStoreConflict, key, err)
		}
		return Record{}, fmt.Errorf("sequence: advance %s: %w", key, err)
	}
	return issued, nil
}
