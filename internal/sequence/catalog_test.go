package sequence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalogValidation(t *testing.T) {
	_, err := NewCatalog(Definition{Key: "", Prefix: "X", Padding: 1})
	require.Error(t, err)

	_, err = NewCatalog(Definition{Key: "A", Padding: 0})
	require.Error(t, err)

	_, err = NewCatalog(Definition{Key: "A", Padding: 1, NextNumber: -1})
	require.Error(t, err)

	_, err = NewCatalog(Definition{Key: "A", Padding: 1}, Definition{Key: "A", Padding: 2})
	require.Error(t, err)
}

func TestDefaultCatalogKeys(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, []string{"ACCOUNT", "ORDER", "PURCHASE", "QUOTE", "SERIAL", "WO"}, c.Keys())

	wo, ok := c.Lookup("WO")
	require.True(t, ok)
	assert.Equal(t, int64(873), wo.NextNumber)
}

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sequences.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sequences:
  - key: INVOICE
    prefix: INV-
    padding: 6
    nextNumber: 10
    scope: finance
`), 0o600))

	c, err := LoadCatalogFile(path)
	require.NoError(t, err)
	def, ok := c.Lookup("INVOICE")
	require.True(t, ok)
	assert.Equal(t, Definition{Key: "INVOICE", Prefix: "INV-", Padding: 6, NextNumber: 10, Scope: "finance"}, def)
}

func TestLoadCatalogFileRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sequences.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sequences:
  - key: INVOICE
    prefix: INV
    padding: 6
    width: 9
`), 0o600))

	_, err := LoadCatalogFile(path)
	require.Error(t, err)

	_, err = LoadCatalogFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestNewCatalogBoundsPadding(t *testing.T) {
	_, err := NewCatalog(Definition{Key: "A", Prefix: "A", Padding: MaxPadding})
	require.NoError(t, err)

	_, err = NewCatalog(Definition{Key: "A", Prefix: "A", Padding: MaxPadding + 1})
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "sequences.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sequences:
  - key: HUGE
    prefix: H
    padding: 100000000
    nextNumber: 1
`), 0o600))
	_, err = LoadCatalogFile(path)
	require.Error(t, err)
}
