package delivery

import (
	"context"

	"github.com/kilupskalvis/contentsync/internal/models"
)

// ClientInterface defines the contract for fetching content from the CMS.
// This interface enables mocking for testing the core package.
type ClientInterface interface {
	// FetchItem returns the item with the given codename plus all of its
	// linked items. Returns an error matching ErrNotFound if the item does
	// not exist.
	FetchItem(ctx context.Context, codename string) (*models.DeliveryItemResponse, error)

	// FetchAll returns every content item followed by every linked item.
	FetchAll(ctx context.Context) ([]*models.ContentItem, error)
}

// Verify implementations at compile time
var (
	_ ClientInterface = (*HTTPClient)(nil)
	_ ClientInterface = (*RetryClient)(nil)
	_ ClientInterface = (*MockClient)(nil)
)
