package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dun/munge/internal/munge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, munge.MacSHA256, c.Mac())
	assert.Equal(t, munge.CipherAES128, c.Cipher())
	assert.Equal(t, munge.ZipNone, c.Zip())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nonexistent.conf"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSocketPath, c.Munged.SocketPath)
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "munge.conf")
	body := "[munged]\n" +
		"socket_path = /tmp/test.socket\n" +
		"num_threads = 8\n" +
		"max_ttl = 120\n" +
		"default_cipher = aes256\n" +
		"default_mac = sha512\n" +
		"allow_root_decode = true\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test.socket", c.Munged.SocketPath)
	assert.Equal(t, 8, c.Munged.NumThreads)
	assert.EqualValues(t, 120, c.Munged.MaxTTL)
	assert.Equal(t, munge.CipherAES256, c.Cipher())
	assert.Equal(t, munge.MacSHA512, c.Mac())
	assert.True(t, c.Munged.AllowRootDecode)
}

func TestValidateRejectsUnknownCipher(t *testing.T) {
	c := Default()
	c.Munged.DefaultCipher = "rot13"
	assert.ErrorIs(t, c.Validate(), ErrUnknownCipher)
}

func TestValidateRejectsMacNone(t *testing.T) {
	c := Default()
	c.Munged.DefaultMac = "none"
	assert.ErrorIs(t, c.Validate(), ErrMacRequired)
}

func TestValidateRejectsZipNotEncodable(t *testing.T) {
	c := Default()
	c.Munged.DefaultZip = "bzlib"
	assert.ErrorIs(t, c.Validate(), ErrZipNotEncodable)
}

func TestValidateAcceptsZlibZip(t *testing.T) {
	c := Default()
	c.Munged.DefaultZip = "zlib"
	require.NoError(t, c.Validate())
	assert.Equal(t, munge.ZipZLIB, c.Zip())
}

func TestValidateFillsZeroNumThreads(t *testing.T) {
	c := Default()
	c.Munged.NumThreads = 0
	require.NoError(t, c.Validate())
	assert.Equal(t, DefaultNumThreads, c.Munged.NumThreads)
}
