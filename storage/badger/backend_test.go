package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docingest/retry"
	"github.com/poiesic/docingest/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	tmpDir := t.TempDir()
	backend, err := OpenBackend(tmpDir+"/nested/db", false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	err = backend.View(func(tx *badger.Txn) error { return nil })
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestBackendUpdate_ConflictExhaustsRetries(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	attempts := 0
	err = backend.Update(context.Background(), retry.Policy{MaxAttempts: 3}, func(tx *badger.Txn) error {
		attempts++
		return badger.ErrConflict
	})
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.ErrorIs(t, err, badger.ErrConflict)
	assert.Equal(t, 3, attempts)
}

func TestBackendUpdate_OtherErrorsAreNotRetried(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	boom := errors.New("boom")
	attempts := 0
	err = backend.Update(context.Background(), retry.Policy{MaxAttempts: 3}, func(tx *badger.Txn) error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.Equal(t, 1, attempts)
}

func TestBackendUpdate_Commits(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	err = backend.Update(context.Background(), retry.StorePolicy(), func(tx *badger.Txn) error {
		return tx.Set([]byte("k"), []byte("v"))
	})
	require.NoError(t, err)

	err = backend.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte("k"))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			assert.Equal(t, "v", string(val))
			return nil
		})
	})
	require.NoError(t, err)
}
