package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutOpenDelete(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "payments/a.png", "image/png", strings.NewReader("data")))

	rc, err := store.Open(ctx, "payments/a.png")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "data", string(body))

	require.NoError(t, store.Delete(ctx, "payments/a.png"))
	_, err = os.Stat(filepath.Join(store.Root(), "payments", "a.png"))
	require.True(t, os.IsNotExist(err))

	require.NoError(t, store.Delete(ctx, "payments/a.png"), "deleting twice is not an error")
	_, err = store.Open(ctx, "payments/a.png")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	require.NoError(t, err)

	path, err := store.resolve("../../etc/passwd")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(path, root))

	_, err = store.resolve("")
	require.Error(t, err)
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := New(" ")
	require.Error(t, err)
}
