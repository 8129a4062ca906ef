package lock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireIsExclusive(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "locks")
	release, err := Acquire(dir, "github-mcp-topic")
	require.NoError(t, err)

	_, err = Acquire(dir, "github-mcp-topic")
	require.ErrorIs(t, err, ErrHeld)

	other, err := Acquire(dir, "npm-mcp-packages")
	require.NoError(t, err, "locks are per source")
	other()

	release()
	again, err := Acquire(dir, "github-mcp-topic")
	require.NoError(t, err)
	again()
}

func TestPathSanitizesName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("d", "a_b.lock"), Path("d", "a/b"))
}
