package delivery

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilupskalvis/contentsync/internal/models"
)

// MockClient is an in-memory implementation of ClientInterface for testing.
type MockClient struct {
	mu    sync.Mutex
	items map[string]*models.ContentItem
	order []string

	// Err can be set to make methods return an error
	Err error
	// Calls counts FetchItem calls by codename
	Calls map[string]int
}

// NewMockClient creates a new MockClient holding the given items.
func NewMockClient(items ...*models.ContentItem) *MockClient {
	m := &MockClient{
		items: make(map[string]*models.ContentItem),
		Calls: make(map[string]int),
	}
	for _, item := range items {
		m.AddItem(item)
	}
	return m
}

// AddItem adds or replaces an item.
func (m *MockClient) AddItem(item *models.ContentItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	codename := item.System.Codename
	if _, ok := m.items[codename]; !ok {
		m.order = append(m.order, codename)
	}
	m.items[codename] = item
}

// RemoveItem removes an item, as if it was deleted or unpublished.
func (m *MockClient) RemoveItem(codename string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, codename)
	for i, c := range m.order {
		if c == codename {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// FetchItem returns the item and every item reachable through its links.
func (m *MockClient) FetchItem(ctx context.Context, codename string) (*models.DeliveryItemResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls[codename]++
	if m.Err != nil {
		return nil, m.Err
	}

	item, ok := m.items[codename]
	if !ok {
		return nil, fmt.Errorf("fetch item %s: %w", codename, ErrNotFound)
	}

	resp := &models.DeliveryItemResponse{
		Item:           item,
		ModularContent: make(map[string]*models.ContentItem),
	}

	queue := linkedCodenames(item)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == codename {
			continue
		}
		if _, done := resp.ModularContent[next]; done {
			continue
		}
		linked, ok := m.items[next]
		if !ok {
			continue
		}
		resp.ModularContent[next] = linked
		queue = append(queue, linkedCodenames(linked)...)
	}

	return resp, nil
}

// FetchAll returns all items in insertion order.
func (m *MockClient) FetchAll(ctx context.Context) ([]*models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	items := make([]*models.ContentItem, 0, len(m.order))
	for _, codename := range m.order {
		items = append(items, m.items[codename])
	}
	return items, nil
}

func linkedCodenames(item *models.ContentItem) []string {
	var out []string
	for _, el := range item.Elements {
		out = append(out, el.LinkedItems...)
	}
	return out
}
