package subkey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeyFile(t *testing.T, dir string, contents []byte, mode os.FileMode) string {
	t.Helper()
	p := filepath.Join(dir, "munge.key")
	require.NoError(t, os.WriteFile(p, contents, mode))
	require.NoError(t, os.Chmod(p, mode))
	return p
}

func TestLoadDerivesDistinctSubkeys(t *testing.T) {
	dir := t.TempDir()
	contents := make([]byte, MinKeyFileLen)
	for i := range contents {
		contents[i] = byte(i)
	}
	p := writeKeyFile(t, dir, contents, 0o600)

	sk, err := Load(p, LoadOptions{})
	require.NoError(t, err)
	assert.Len(t, sk.DEK, 20)
	assert.Len(t, sk.MAC, 20)
	assert.NotEqual(t, sk.DEK, sk.MAC)

	sk2, err := Load(p, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, sk.DEK, sk2.DEK, "derivation must be deterministic")
	assert.Equal(t, sk.MAC, sk2.MAC)
}

func TestLoadRejectsShortKeyFileWithoutForce(t *testing.T) {
	dir := t.TempDir()
	p := writeKeyFile(t, dir, []byte("too short"), 0o600)

	_, err := Load(p, LoadOptions{})
	require.Error(t, err)
}

func TestLoadAllowsShortKeyFileWithForce(t *testing.T) {
	dir := t.TempDir()
	p := writeKeyFile(t, dir, []byte("too short"), 0o600)

	var warned bool
	sk, err := Load(p, LoadOptions{Force: true, Warn: func(string) { warned = true }})
	require.NoError(t, err)
	assert.NotNil(t, sk)
	assert.True(t, warned)
}

func TestZeroClearsSubkeys(t *testing.T) {
	sk := &Subkeys{DEK: []byte{1, 2, 3}, MAC: []byte{4, 5, 6}}
	sk.Zero()
	assert.Equal(t, []byte{0, 0, 0}, sk.DEK)
	assert.Equal(t, []byte{0, 0, 0}, sk.MAC)
}
