package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hkcovid-dashboard/internal/storage"
	"github.com/JakeFAU/hkcovid-dashboard/internal/storage/local"
)

func TestNewCreatesMissingDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "cache", "nested")
	_, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	_, err = os.Stat(filepath.Join(dir, ".writable_test"))
	assert.True(t, os.IsNotExist(err), "probe file must be removed")
}

func TestNewRejectsBadBaseDir(t *testing.T) {
	t.Parallel()

	_, err := local.New(local.Config{BaseDir: "  "})
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "dataset.gob")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = local.New(local.Config{BaseDir: file})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestPutThenGetReplacesSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(ctx, "snapshots/dataset.gob", "application/octet-stream", strings.NewReader("v1"))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, "snapshots", "dataset.gob"), uri)

	_, err = store.PutObject(ctx, "snapshots/dataset.gob", "", strings.NewReader("v2"))
	require.NoError(t, err)

	got, err := store.GetObject(ctx, "snapshots/dataset.gob")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	entries, err := os.ReadDir(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestGetMissingObject(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.GetObject(context.Background(), "dataset.gob")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestPathTraversalRejected(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.gob", "", strings.NewReader("x"))
	require.Error(t, err)
	_, err = store.GetObject(context.Background(), "../../etc/passwd")
	require.Error(t, err)
	_, err = store.PutObject(context.Background(), "", "", strings.NewReader("x"))
	require.Error(t, err)
}
