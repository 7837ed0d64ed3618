package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withSecretsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev := SecretsDir
	SecretsDir = dir
	t.Cleanup(func() { SecretsDir = prev })
	return dir
}

func TestReadSecret(t *testing.T) {
	dir := withSecretsDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jwt_secret"), []byte("  s3cr3t\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty"), []byte("\n"), 0o600))

	t.Run("trimmed value", func(t *testing.T) {
		got, err := ReadSecret("jwt_secret")
		require.NoError(t, err)
		assert.Equal(t, "s3cr3t", got)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := ReadSecret("empty")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadSecret("nope")
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("optional missing file", func(t *testing.T) {
		got, err := ReadOptionalSecret("nope")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
