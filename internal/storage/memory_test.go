package storage_test

import (
	"testing"

	"github.com/dkeye/Pairwise/internal/storage"
	"github.com/dkeye/Pairwise/internal/storage/storagetest"
)

func TestMemoryStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return storage.NewMemoryStore()
	})
}
