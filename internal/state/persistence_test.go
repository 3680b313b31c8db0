package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Capital  float64 `json:"current_capital"`
	Reserved float64 `json:"reserved"`
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	var empty record
	found, err := store.Load(&empty)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Save(record{Capital: 1000, Reserved: 30}))
	require.NoError(t, store.Save(record{Capital: 970, Reserved: 0}))

	var got record
	found, err = store.Load(&got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, record{Capital: 970, Reserved: 0}, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "breaker.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	var got record
	found, err := store.Load(&got)
	assert.Error(t, err)
	assert.False(t, found)
}

func TestFileStoreRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "breaker.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Remove())
	require.NoError(t, store.Save(record{Capital: 1}))
	require.NoError(t, store.Remove())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}
