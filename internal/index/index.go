// Package index defines the search-index collaborator and an in-memory backend.
package index

import (
	"context"

	"github.com/kilupskalvis/contentsync/internal/models"
)

// Index defines the contract for search index operations.
// Backends: MemoryIndex, weaviate.Client and bleveindex.Index.
type Index interface {
	// ApplySettings configures searchable, facet and snippet attributes
	ApplySettings(ctx context.Context, settings *models.IndexSettings) error

	// Upsert overwrites records by object ID and returns the IDs written
	Upsert(ctx context.Context, items []*models.SearchableItem) ([]string, error)
	// Delete removes records by object ID. Absent IDs are ignored.
	Delete(ctx context.Context, objectIDs []string) ([]string, error)

	// FindByBlockCodename returns every record with a block for codename
	FindByBlockCodename(ctx context.Context, codename string) ([]*models.SearchableItem, error)
	// ListObjectIDs returns all object IDs in the index, sorted
	ListObjectIDs(ctx context.Context) ([]string, error)

	Close() error
}

// Verify that *MemoryIndex implements Index at compile time
var _ Index = (*MemoryIndex)(nil)
