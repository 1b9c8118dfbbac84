package sequence

import "github.com/odyssey-erp/odyssey-core/internal/shared"

// Definition describes a numbering domain as seeded at startup.
type Definition struct {
	Key        string `json:"key" yaml:"key"`
	Prefix     string `json:"prefix" yaml:"prefix"`
	Padding    int    `json:"padding" yaml:"padding"`
	NextNumber int64  `json:"nextNumber" yaml:"nextNumber"`
	Scope      string `json:"scope" yaml:"scope"`
}

// Record is the persisted counter state for a key.
type Record struct {
	Prefix     string
	Padding    int
	NextNumber int64
}

// Seed returns the record a store synthesises when the key has never been
// issued.
func (d Definition) Seed() Record {
	return Record{Prefix: d.Prefix, Padding: d.Padding, NextNumber: d.NextNumber}
}

// Preview is a non-authoritative view of a sequence for display.
type Preview struct {
	Key        string `json:"key"`
	Prefix     string `json:"prefix"`
	NextNumber int64  `json:"nextNumber"`
	Formatted  string `json:"formatted"`
	Scope      string `json:"scope"`
	Padding    int    `json:"padding"`
}

// Issued is the result of one successful issuance.
type Issued struct {
	Key          string `json:"key"`
	Value        string `json:"value"`
	IssuedNumber int64  `json:"issuedNumber"`
}

// Sentinel errors.
var (
	// ErrUnknownSequence indicates the key is not in the seed catalog.
	ErrUnknownSequence = shared.NewError(shared.ErrNotFound, "sequence: unknown sequence")
	// ErrStoreConflict indicates a concurrent writer won the race. The issuer
	// retries it internally.
	ErrStoreConflict = shared.NewError(shared.ErrUnavailable, "sequence: store write conflict")
	// ErrStoreUnavailable indicates the store failed or retries ran out. No
	// partial increment is left behind.
	ErrStoreUnavailable = shared.NewError(shared.ErrUnavailable, "sequence: store unavailable")
)
