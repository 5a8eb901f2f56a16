package ports

import "go.trai.ch/respawn/internal/core/domain"

// ArtifactStore persists compiled artifacts across coordinator runs.
//
//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type ArtifactStore interface {
	// Get returns the stored artifact for path if it was built from a source
	// with the given modification time. It returns nil, nil on a miss.
	Get(path string, modTime int64) (*domain.Artifact, error)
	// Put stores an artifact, replacing any previous one for the same path.
	Put(artifact *domain.Artifact) error
	// Delete removes the stored artifact for path, if any.
	Delete(path string) error
}
