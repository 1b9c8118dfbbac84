package sequence

import "context"

// Store is the transactional collaborator holding authoritative counters.
type Store interface {
	// Get returns the stored record for key. found is false when the key has
	// never been issued.
	Get(ctx context.Context, key string) (rec Record, found bool, err error)
	// Advance atomically reads the record for key (or seed when absent),
	// persists NextNumber+1 and returns the record as read. A lost race
	// returns an error matching ErrStoreConflict and leaves nothing written.
	Advance(ctx context.Context, key string, seed Record) (Record, error)
}
