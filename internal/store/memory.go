package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"civicpipe/internal/model"
)

// MemoryStore is an in-process ManifestStore used by tests and by the
// Pipeline Orchestrator's own test suite; it enforces the same
// single-active-row-per-identity and version-monotonicity invariants
// as the Postgres-backed Store, without a database.
type MemoryStore struct {
	mu        sync.Mutex
	manifests map[string][]model.StructuralManifest // keyed by identity key, newest last
}

// NewMemory constructs an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{manifests: make(map[string][]model.StructuralManifest)}
}

func identityKey(id model.Identity) string {
	return id.RegionID + "\x00" + id.SourceURL + "\x00" + id.DataType
}

func (m *MemoryStore) FindLatest(_ context.Context, identity model.Identity) (*model.StructuralManifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions := m.manifests[identityKey(identity)]
	for i := range versions {
		if versions[i].IsActive {
			found := versions[i]
			return &found, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) Save(_ context.Context, manifest model.StructuralManifest) (model.StructuralManifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := identityKey(model.Identity{RegionID: manifest.RegionID, SourceURL: manifest.SourceURL, DataType: manifest.DataType})
	versions := m.manifests[key]

	maxVersion := 0
	for i := range versions {
		versions[i].IsActive = false
		if versions[i].Version > maxVersion {
			maxVersion = versions[i].Version
		}
	}

	manifest.Version = maxVersion + 1
	manifest.ID = uuid.New().String()
	manifest.IsActive = true
	if manifest.CreatedAt.IsZero() {
		manifest.CreatedAt = time.Now().UTC()
	}

	versions = append(versions, manifest)
	m.manifests[key] = versions
	return manifest, nil
}

func (m *MemoryStore) IncrementSuccess(_ context.Context, id string) error {
	return m.mutate(id, func(manifest *model.StructuralManifest) {
		manifest.SuccessCount++
		now := time.Now().UTC()
		manifest.LastUsedAt = &now
	})
}

func (m *MemoryStore) IncrementFailure(_ context.Context, id string) error {
	return m.mutate(id, func(manifest *model.StructuralManifest) {
		manifest.FailureCount++
		now := time.Now().UTC()
		manifest.LastUsedAt = &now
	})
}

func (m *MemoryStore) MarkChecked(_ context.Context, id string) error {
	return m.mutate(id, func(manifest *model.StructuralManifest) {
		now := time.Now().UTC()
		manifest.LastCheckedAt = &now
	})
}

func (m *MemoryStore) mutate(id string, fn func(*model.StructuralManifest)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, versions := range m.manifests {
		for i := range versions {
			if versions[i].ID == id {
				fn(&versions[i])
				m.manifests[key] = versions
				return nil
			}
		}
	}
	return fmt.Errorf("store: manifest %s not found", id)
}

func (m *MemoryStore) GetHistory(_ context.Context, identity model.Identity) ([]model.StructuralManifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions := m.manifests[identityKey(identity)]
	out := make([]model.StructuralManifest, len(versions))
	for i := range versions {
		out[len(versions)-1-i] = versions[i]
	}
	return out, nil
}
