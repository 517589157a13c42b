package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"h2gb/engine/internal/config"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	mem, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	return map[string]Store{"sqlite": sqlite, "badger": mem}
}

func TestStore_Binaries(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			b := &Binary{Name: "a.out", Format: "ELF", Data: []byte{0x7f, 'E', 'L', 'F'}, CreatedAt: 100}
			require.NoError(t, s.CreateBinary(ctx, b))
			require.NotEmpty(t, b.ID)
			assert.Equal(t, int64(4), b.Size)

			second := &Binary{Name: "b.bin", Comment: "firmware", Format: "raw", Data: []byte{1, 2}, CreatedAt: 200}
			require.NoError(t, s.CreateBinary(ctx, second))

			got, err := s.GetBinary(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, b.Data, got.Data)
			assert.Equal(t, "a.out", got.Name)
			assert.Equal(t, int64(4), got.Size)

			list, err := s.ListBinaries(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, b.ID, list[0].ID)
			assert.Nil(t, list[0].Data)
			assert.Equal(t, int64(2), list[1].Size)
			assert.Equal(t, "firmware", list[1].Comment)

			require.NoError(t, s.DeleteBinary(ctx, b.ID))
			_, err = s.GetBinary(ctx, b.ID)
			require.ErrorIs(t, err, ErrNotFound)
			require.ErrorIs(t, s.DeleteBinary(ctx, b.ID), ErrNotFound)
		})
	}
}

func TestStore_Workspaces(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			b := &Binary{Name: "a.out", Format: "raw", Data: []byte{0}}
			require.NoError(t, s.CreateBinary(ctx, b))

			err := s.CreateWorkspace(ctx, &WorkspaceRecord{BinaryID: "missing", Name: "w"})
			require.ErrorIs(t, err, ErrNotFound)

			w := &WorkspaceRecord{BinaryID: b.ID, Name: "main", CreatedAt: 10}
			require.NoError(t, s.CreateWorkspace(ctx, w))
			other := &WorkspaceRecord{BinaryID: b.ID, Name: "scratch", CreatedAt: 20}
			require.NoError(t, s.CreateWorkspace(ctx, other))

			got, err := s.GetWorkspace(ctx, w.ID)
			require.NoError(t, err)
			assert.Equal(t, "main", got.Name)
			assert.Empty(t, got.State)

			require.NoError(t, s.SaveState(ctx, w.ID, 7, []byte(`{"revision":7}`)))
			require.NoError(t, s.SaveState(ctx, w.ID, 9, []byte(`{"revision":9}`)))
			got, err = s.GetWorkspace(ctx, w.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(9), got.Revision)
			assert.Equal(t, []byte(`{"revision":9}`), got.State, "last write wins")
			assert.GreaterOrEqual(t, got.UpdatedAt, got.CreatedAt)

			require.ErrorIs(t, s.SaveState(ctx, "missing", 1, nil), ErrNotFound)

			list, err := s.ListWorkspaces(ctx, b.ID)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, w.ID, list[0].ID)
			assert.Nil(t, list[0].State)

			all, err := s.ListWorkspaces(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 2)

			require.NoError(t, s.DeleteWorkspace(ctx, other.ID))
			require.ErrorIs(t, s.DeleteWorkspace(ctx, other.ID), ErrNotFound)

			// Deleting the binary takes its workspaces with it.
			require.NoError(t, s.DeleteBinary(ctx, b.ID))
			_, err = s.GetWorkspace(ctx, w.ID)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(config.StorageConfig{Backend: config.BackendBadger, InMemory: true}, "", nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(config.StorageConfig{}, filepath.Join(t.TempDir(), "x.db"), nil)
	require.NoError(t, err)
	_, ok := s.(*DB)
	assert.True(t, ok)
	require.NoError(t, s.Close())

	_, err = Open(config.StorageConfig{Backend: "postgres"}, "", nil)
	require.Error(t, err)
}
