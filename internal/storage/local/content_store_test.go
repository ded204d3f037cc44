// Package local_test tests the local filesystem content store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-cloner/internal/cloner"
	"github.com/JakeFAU/site-cloner/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})
	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})
}

func TestEnsureContainer(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingWithoutCreate", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: filepath.Join(t.TempDir(), "sites")})
		require.NoError(t, err)
		require.ErrorIs(t, store.EnsureContainer(ctx, false), cloner.ErrContainerNotFound)
	})

	t.Run("CreatesDirectory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "sites")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		require.NoError(t, store.EnsureContainer(ctx, true))
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "testfile")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		store, err := local.New(local.Config{BaseDir: file})
		require.NoError(t, err)
		assert.Error(t, store.EnsureContainer(ctx, true))
	})
}

func TestPutGetDelete(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	status, err := store.Put(ctx, "clonedwebs/a/style.css", "text/css", []byte("body{}"))
	require.NoError(t, err)
	assert.Equal(t, cloner.PutCreated, status)

	status, err = store.Put(ctx, "clonedwebs/a/style.css", "text/css", []byte("body{}"))
	require.NoError(t, err)
	assert.Equal(t, cloner.PutUnchanged, status)

	status, err = store.Put(ctx, "clonedwebs/a/style.css", "text/css", []byte("p{}"))
	require.NoError(t, err)
	assert.Equal(t, cloner.PutUpdated, status)

	obj, err := store.Get(ctx, "clonedwebs/a/style.css")
	require.NoError(t, err)
	assert.Equal(t, "p{}", string(obj.Data))
	assert.Contains(t, obj.ContentType, "text/css")

	// #nosec G304 -- test reads from the controlled temp directory.
	onDisk, err := os.ReadFile(filepath.Join(tempDir, "clonedwebs", "a", "style.css"))
	require.NoError(t, err)
	assert.Equal(t, "p{}", string(onDisk))

	require.NoError(t, store.Delete(ctx, "clonedwebs/a/style.css"))
	_, err = store.Get(ctx, "clonedwebs/a/style.css")
	require.ErrorIs(t, err, cloner.ErrObjectNotFound)
	require.ErrorIs(t, store.Delete(ctx, "clonedwebs/a/style.css"), cloner.ErrObjectNotFound)

	_, err = os.Stat(filepath.Join(tempDir, "clonedwebs", "a"))
	assert.True(t, os.IsNotExist(err), "empty site directory should be removed")
}

func TestPathTraversal(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, "../../etc/passwd", "text/plain", []byte("x"))
	assert.ErrorContains(t, err, "path traversal detected")
	_, err = store.Put(ctx, " ", "text/plain", []byte("x"))
	assert.ErrorContains(t, err, "path is required")
	_, err = store.Get(ctx, "../outside")
	assert.ErrorContains(t, err, "path traversal detected")
}

func TestListAndPublicURL(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir, PublicBaseURL: "https://sites.example.com/"})
	require.NoError(t, err)
	ctx := context.Background()

	for _, p := range []string{"clonedwebs/b/index.html", "clonedwebs/a/index.html", "clonedwebs/readme.txt"} {
		_, err := store.Put(ctx, p, "", []byte("hello"))
		require.NoError(t, err)
	}

	entries, err := store.List(ctx, "clonedwebs/")
	require.NoError(t, err)
	assert.Equal(t, []cloner.ObjectInfo{
		{Path: "clonedwebs/a", Name: "a", IsDir: true},
		{Path: "clonedwebs/b", Name: "b", IsDir: true},
		{Path: "clonedwebs/readme.txt", Name: "readme.txt", Size: 5},
	}, entries)

	_, err = store.List(ctx, "missing")
	require.ErrorIs(t, err, cloner.ErrObjectNotFound)

	assert.Equal(t, "https://sites.example.com/clonedwebs/a/index.html", store.PublicURL("clonedwebs/a/index.html"))

	fileStore, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(tempDir, "clonedwebs", "a", "index.html"), fileStore.PublicURL("clonedwebs/a/index.html"))
}
