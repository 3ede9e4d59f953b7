package sqlitestore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/dkeye/Pairwise/internal/storage"
	"github.com/dkeye/Pairwise/internal/storage/sqlitestore"
	"github.com/dkeye/Pairwise/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string) *sqlitestore.Store {
	t.Helper()
	s, err := sqlitestore.Open(sqlitestore.Config{Path: path, PoolSize: 2})
	require.NoError(t, err)
	return s
}

func TestSQLiteStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s := openStore(t, filepath.Join(t.TempDir(), "rooms.db"))
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := sqlitestore.Open(sqlitestore.Config{})
	assert.Error(t, err)
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data", "nested")
	s := openStore(t, filepath.Join(dir, "pairwise.db"))
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Put(context.Background(), "abc123", "k", []byte("v")))
	assert.DirExists(t, dir)
	assert.FileExists(t, filepath.Join(dir, "pairwise.db"))
}

func TestStrokesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rooms.db")

	first := openStore(t, path)
	stroke := domain.Stroke{
		ID:        "s1",
		Tool:      domain.ToolEraser,
		Color:     "#123456",
		Points:    []domain.Point{{X: 0.5, Y: 10}, {X: 11.125, Y: 12}},
		Timestamp: 1_700_000_000_001,
	}
	require.NoError(t, storage.NewStrokeStore("abc123", first).Persist(ctx, stroke))
	require.NoError(t, first.Close())

	second := openStore(t, path)
	t.Cleanup(func() { _ = second.Close() })
	got, err := storage.NewStrokeStore("abc123", second).LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Stroke{stroke}, got)
}
