package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the internal retry of store write conflicts.
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig is used for zero fields of a supplied config.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:      10,
	InitialInterval: 5 * time.Millisecond,
	MaxInterval:     250 * time.Millisecond,
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultRetryConfig.MaxRetries
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = DefaultRetryConfig.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultRetryConfig.MaxInterval
	}
	return c
}

// Observer receives issuance outcomes.
type Observer interface {
	ObserveIssuance(key string, conflicts int, err error)
}

// Issuer hands out formatted sequence numbers. Seed definitions are
// read-only; counters are read and written only through the store.
type Issuer struct {
	catalog  Catalog
	store    Store
	retry    RetryConfig
	logger   *slog.Logger
	observer Observer
}

// NewIssuer constructs an issuer. observer may be nil.
func NewIssuer(catalog Catalog, store Store, retry RetryConfig, logger *slog.Logger, observer Observer) *Issuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{
		catalog:  catalog,
		store:    store,
		retry:    retry.withDefaults(),
		logger:   logger,
		observer: observer,
	}
}

// Peek previews key from the seed catalog without consulting the store.
func (i *Issuer) Peek(key string) (Preview, error) {
	def, ok := i.catalog.Lookup(key)
	if !ok {
		return Preview{}, fmt.Errorf("%w %q", ErrUnknownSequence, key)
	}
	return preview(key, def.Seed(), def.Scope), nil
}

// List previews every seed definition ordered by key.
func (i *Issuer) List() []Preview {
	keys := i.catalog.Keys()
	out := make([]Preview, 0, len(keys))
	for _, k := range keys {
		def, _ := i.catalog.Lookup(k)
		out = append(out, preview(k, def.Seed(), def.Scope))
	}
	return out
}

// Current previews key from the store, falling back to the seed when the key
// has never been issued. The result is stale as soon as it is returned.
func (i *Issuer) Current(ctx context.Context, key string) (Preview, error) {
	def, ok := i.catalog.Lookup(key)
	if !ok {
		return Preview{}, fmt.Errorf("%w %q", ErrUnknownSequence, key)
	}
	rec, found, err := i.store.Get(ctx, key)
	if err != nil {
		return Preview{}, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, key, err)
	}
	if !found {
		rec = def.Seed()
	}
	return preview(key, rec, def.Scope), nil
}

// Format renders value using the seed prefix and padding of key.
func (i *Issuer) Format(key string, value int64) (string, error) {
	def, ok := i.catalog.Lookup(key)
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownSequence, key)
	}
	return Format(def.Prefix, def.Padding, value), nil
}

// Issue allocates the next number for key. Store conflicts are retried with
// exponential backoff; any other failure, or running out of retries, returns
// ErrStoreUnavailable. The call returns only after the increment committed.
func (i *Issuer) Issue(ctx context.Context, key string) (Issued, error) {
	def, ok := i.catalog.Lookup(key)
	if !ok {
		return Issued{}, fmt.Errorf("%w %q", ErrUnknownSequence, key)
	}

	var (
		rec       Record
		conflicts int
	)
	op := func() error {
		r, err := i.store.Advance(ctx, key, def.Seed())
		if err == nil {
			rec = r
			return nil
		}
		if errors.Is(err, ErrStoreConflict) {
			conflicts++
			return err
		}
		return backoff.Permanent(err)
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(i.newBackOff(), i.retry.MaxRetries), ctx))
	if err != nil {
		err = fmt.Errorf("%w: %s after %d conflicts: %v", ErrStoreUnavailable, key, conflicts, err)
		i.logger.Error("sequence issue failed",
			slog.String("key", key),
			slog.Int("conflicts", conflicts),
			slog.Any("error", err))
		i.observe(key, conflicts, err)
		return Issued{}, err
	}

	issued := Issued{
		Key:          key,
		Value:        Format(rec.Prefix, rec.Padding, rec.NextNumber),
		IssuedNumber: rec.NextNumber,
	}
	if conflicts > 0 {
		i.logger.Debug("sequence issued after conflicts",
			slog.String("key", key),
			slog.Int("conflicts", conflicts))
	}
	i.observe(key, conflicts, nil)
	return issued, nil
}

func (i *Issuer) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = i.retry.InitialInterval
	b.MaxInterval = i.retry.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (i *Issuer) observe(key string, conflicts int, err error) {
	if i.observer != nil {
		i.observer.ObserveIssuance(key, conflicts, err)
	}
}

func preview(key string, rec Record, scope string) Preview {
	return Preview{
		Key:        key,
		Prefix:     rec.Prefix,
		NextNumber: rec.NextNumber,
		Formatted:  Format(rec.Prefix, rec.Padding, rec.NextNumber),
		Scope:      scope,
		Padding:    rec.Padding,
	}
}
