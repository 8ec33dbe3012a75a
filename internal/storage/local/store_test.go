// Package local_test tests the local filesystem store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/irc-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "out")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestSaveWritesAtomicallyAndOverwrites(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "a/b/file.json", []byte("first")))
	require.NoError(t, store.Save(ctx, "a/b/file.json", []byte("second")))

	data, err := os.ReadFile(filepath.Join(dir, "a", "b", "file.json"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "a", "b"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestSaveRejectsTraversal(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	err = store.Save(context.Background(), "../escape.json", []byte("x"))
	assert.Error(t, err)
}

func TestLoadAndRemove(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Load("missing.json")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, store.Exists("missing.json"))
	assert.NoError(t, store.Remove("missing.json"))

	require.NoError(t, store.Save(context.Background(), "present.json", []byte("{}")))
	assert.True(t, store.Exists("present.json"))
	data, err := store.Load("present.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	require.NoError(t, store.Remove("present.json"))
	assert.False(t, store.Exists("present.json"))
}
