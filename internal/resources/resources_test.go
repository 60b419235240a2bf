package resources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"survey", "login", "empty"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
	}
	for _, name := range []string{"survey", "login"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name, IndexFile), []byte("<html></html>"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.html"), nil, 0o644))

	got, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"login", "survey"}, got)
}

func TestList_MissingDir(t *testing.T) {
	t.Parallel()

	got, err := List(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
