package app

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-core/internal/sequence"
)

// LoadSequenceCatalog returns the catalog from SEQUENCE_CATALOG_PATH, or the
// stock catalog when unset.
func LoadSequenceCatalog(cfg *Config) (sequence.Catalog, error) {
	if cfg == nil || cfg.SequenceCatalogPath == "" {
		return sequence.DefaultCatalog(), nil
	}
	return sequence.LoadCatalogFile(cfg.SequenceCatalogPath)
}

// NewSequenceStore selects the configured backend.
func NewSequenceStore(cfg *Config, pool *pgxpool.Pool, client redis.UniversalClient) (sequence.Store, error) {
	switch cfg.SequenceBackend {
	case BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("sequence backend %s requires a redis client", cfg.SequenceBackend)
		}
		return sequence.NewRedisStore(client, ""), nil
	case BackendPostgres:
		if pool == nil {
			return nil, fmt.Errorf("sequence backend %s requires a database pool", cfg.SequenceBackend)
		}
		return sequence.NewPostgresStore(pool), nil
	default:
		return nil, fmt.Errorf("unsupported sequence backend %q", cfg.SequenceBackend)
	}
}

// SequenceRetry maps configuration onto the issuer retry policy.
func SequenceRetry(cfg *Config) sequence.RetryConfig {
	return sequence.RetryConfig{
		MaxRetries:      cfg.SequenceMaxRetries,
		InitialInterval: cfg.SequenceRetryBase,
		MaxInterval:     cfg.SequenceRetryMax,
	}
}
