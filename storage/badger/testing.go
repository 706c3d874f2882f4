package badger

import (
	"github.com/poiesic/corpus/storage"
)

// NewMemoryStore creates a staging store backed by an in-memory Badger
// instance. Intended for tests; the returned store owns its backend, so
// Close releases everything.
func NewMemoryStore(opts ...Option) (storage.StagingStore, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}

	store, err := NewStagingStore(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &ownedStore{StagingStore: store, backend: backend}, nil
}

// ownedStore closes its backend together with the store.
type ownedStore struct {
	storage.StagingStore
	backend *Backend
}

func (o *ownedStore) Close() error {
	if err := o.StagingStore.Close(); err != nil {
		o.backend.Close()
		return err
	}
	return o.backend.Close()
}
