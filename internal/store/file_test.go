package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStorageRoundTrip(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	_, ok, err := storage.Load("store-auth")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, storage.Save("store-auth", []byte(`{"state":{}}`)))

	data, ok, err := storage.Load("store-auth")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"state":{}}`, string(data))

	require.NoError(t, storage.Delete("store-auth"))
	_, ok, err = storage.Load("store-auth")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStorageDeleteMissingKey(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, storage.Delete("never-saved"))
}

func TestFileStorageCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	_, err := NewFileStorage(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestFileStorageRequiresDirectory(t *testing.T) {
	_, err := NewFileStorage("")
	require.Error(t, err)
}

func TestFileStorageLeavesNoPartialFiles(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFileStorage(dir)
	require.NoError(t, err)
	require.NoError(t, storage.Save("store-theme", []byte(`{"state":{"mode":"dark"}}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "store-theme.json", entries[0].Name())
}
