package index

import (
	"context"
	"sort"
	"sync"

	"github.com/kilupskalvis/contentsync/internal/models"
)

// MemoryIndex is an in-memory Index. It backs tests and dry runs.
type MemoryIndex struct {
	mu       sync.Mutex
	records  map[string]*models.SearchableItem
	settings *models.IndexSettings

	// Err can be set to make methods return an error
	Err error
	// UpsertCalls records the object IDs of every Upsert call
	UpsertCalls [][]string
	// DeleteCalls records the object IDs of every Delete call
	DeleteCalls [][]string
}

// NewMemoryIndex creates an empty MemoryIndex holding the given records.
func NewMemoryIndex(items ...*models.SearchableItem) *MemoryIndex {
	m := &MemoryIndex{records: make(map[string]*models.SearchableItem)}
	for _, item := range items {
		m.records[item.ObjectID] = item
	}
	return m
}

// Settings returns the last applied settings, or nil.
func (m *MemoryIndex) Settings() *models.IndexSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// Get returns a record by object ID.
func (m *MemoryIndex) Get(objectID string) (*models.SearchableItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.records[objectID]
	return item, ok
}

// Len returns the number of records.
func (m *MemoryIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MemoryIndex) ApplySettings(ctx context.Context, settings *models.IndexSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.settings = settings
	return nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, items []*models.SearchableItem) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	ids := models.ObjectIDs(items)
	m.UpsertCalls = append(m.UpsertCalls, ids)
	for _, item := range items {
		m.records[item.ObjectID] = item
	}
	return ids, nil
}

func (m *MemoryIndex) Delete(ctx context.Context, objectIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.DeleteCalls = append(m.DeleteCalls, append([]string{}, objectIDs...))
	for _, id := range objectIDs {
		delete(m.records, id)
	}
	return objectIDs, nil
}

func (m *MemoryIndex) FindByBlockCodename(ctx context.Context, codename string) ([]*models.SearchableItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var hits []*models.SearchableItem
	for _, item := range m.records {
		for _, block := range item.Content {
			if block.Codename == codename {
				hits = append(hits, item)
				break
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ObjectID < hits[j].ObjectID })
	return hits, nil
}

func (m *MemoryIndex) ListObjectIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryIndex) Close() error { return nil }
