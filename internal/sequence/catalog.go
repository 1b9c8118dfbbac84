package sequence

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the immutable table of seed definitions. It defines the universe
// of valid keys; the store never introduces new ones.
type Catalog struct {
	defs map[string]Definition
	keys []string
}

// MaxPadding bounds the zero-padding width of a definition.
const MaxPadding = 32

// NewCatalog validates definitions: keys unique and non-empty, padding
// between one and MaxPadding, next number non-negative.
func NewCatalog(defs ...Definition) (Catalog, error) {
	byKey := make(map[string]Definition, len(defs))
	for _, d := range defs {
		d.Key = strings.TrimSpace(d.Key)
		if d.Key == "" {
			return Catalog{}, fmt.Errorf("sequence: definition key required")
		}
		if _, dup := byKey[d.Key]; dup {
			return Catalog{}, fmt.Errorf("sequence: duplicate key %q", d.Key)
		}
		if d.Padding < 1 || d.Padding > MaxPadding {
			return Catalog{}, fmt.Errorf("sequence: %s padding must be between 1 and %d", d.Key, MaxPadding)
		}
		if d.NextNumber < 0 {
			return Catalog{}, fmt.Errorf("sequence: %s next number must not be negative", d.Key)
		}
		byKey[d.Key] = d
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Catalog{defs: byKey, keys: keys}, nil
}

// Lookup returns the seed definition for key.
func (c Catalog) Lookup(key string) (Definition, bool) {
	d, ok := c.defs[key]
	return d, ok
}

// Keys returns every key in ascending order.
func (c Catalog) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// DefaultDefinitions are the stock numbering domains.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Key: "QUOTE", Prefix: "QT", Padding: 5, NextNumber: 1, Scope: "sales"},
		{Key: "ORDER", Prefix: "SO", Padding: 5, NextNumber: 1, Scope: "sales"},
		{Key: "WO", Prefix: "WO", Padding: 5, NextNumber: 873, Scope: "production"},
		{Key: "SERIAL", Prefix: "SN", Padding: 8, NextNumber: 1, Scope: "production"},
		{Key: "ACCOUNT", Prefix: "AC", Padding: 6, NextNumber: 1000, Scope: "finance"},
		{Key: "PURCHASE", Prefix: "PO", Padding: 5, NextNumber: 1, Scope: "procurement"},
	}
}

// DefaultCatalog builds the stock catalog.
func DefaultCatalog() Catalog {
	c, err := NewCatalog(DefaultDefinitions()...)
	if err != nil {
		panic(err)
	}
	return c
}

type catalogFile struct {
	Sequences []Definition `yaml:"sequences"`
}

// LoadCatalogFile reads seed definitions from a YAML file of the form
//
//	sequences:
//	  - key: ORDER
//	    prefix: SO
//	    padding: 5
//	    nextNumber: 1
//	    scope: sales
func LoadCatalogFile(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("sequence: read catalog: %w", err)
	}
	var file catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return Catalog{}, fmt.Errorf("sequence: parse catalog %s: %w", path, err)
	}
	if len(file.Sequences) == 0 {
		return Catalog{}, fmt.Errorf("sequence: catalog %s defines no sequences", path)
	}
	return NewCatalog(file.Sequences...)
}
