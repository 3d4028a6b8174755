package main

import (
	"os"
	"path/filepath"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-pricing/db"
)

func TestReadSeed_Embedded(t *testing.T) {
	seed, err := readSeed("")
	require.NoError(t, err)

	require.NotEmpty(t, seed.Products)
	require.NotEmpty(t, seed.Discounts)
	require.NotEmpty(t, seed.Shipping)
	require.NotEmpty(t, seed.Tax)

	var variants int
	for _, p := range seed.Products {
		assert.NotEmpty(t, p.ID)
		assert.True(t, p.Price.IsPositive(), "product %s", p.ID)
		variants += len(p.Variants)
	}
	assert.Positive(t, variants)
}

func TestReadSeed_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write(db.Seed)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	fromGzip, err := readSeed(path)
	require.NoError(t, err)
	embedded, err := readSeed("")
	require.NoError(t, err)

	assert.Equal(t, embedded, fromGzip)
}

func TestReadSeed_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	notGzip := filepath.Join(dir, "plain.json.gz")
	require.NoError(t, os.WriteFile(notGzip, []byte("{}"), 0o600))

	for _, path := range []string{filepath.Join(dir, "missing.json"), bad, notGzip} {
		_, err := readSeed(path)
		assert.Error(t, err, path)
	}
}
