package weaviate

import (
	"context"
	"fmt"
	"sort"

	"github.com/kilupskalvis/contentsync/internal/models"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	weaviatemodels "github.com/weaviate/weaviate/entities/models"
)

const (
	batchSize = 100
	pageSize  = 100
	// maxFacetHits stays within Weaviate's default QUERY_MAXIMUM_RESULTS
	maxFacetHits = 10000
)

// recordFields are the properties fetched to restore a record
var recordFields = []string{
	propObjectID, propItemID, propCodename, propName, propLanguage,
	propItemType, propCollection, propSlug, propParents, propChildren,
	propContentJSON,
}

// Upsert writes records in batches. Objects with the same object ID are
// replaced because their UUIDs are derived from it.
func (c *Client) Upsert(ctx context.Context, items []*models.SearchableItem) ([]string, error) {
	ids := make([]string, 0, len(items))

	for start := 0; start < len(items); start += batchSize {
		end := min(start+batchSize, len(items))
		chunk := items[start:end]

		objs := make([]*weaviatemodels.Object, 0, len(chunk))
		for _, item := range chunk {
			obj, err := toObject(c.className, item, c.snippets)
			if err != nil {
				return nil, err
			}
			objs = append(objs, obj)
		}

		resp, err := c.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("batch upsert to %s: %w", c.className, err)
		}

		var failures []string
		for _, r := range resp {
			if r.Result == nil || r.Result.Errors == nil {
				continue
			}
			for _, e := range r.Result.Errors.Error {
				failures = append(failures, fmt.Sprintf("%s: %s", r.ID, e.Message))
			}
		}
		if err := errorMessages(failures); err != nil {
			return nil, fmt.Errorf("batch upsert to %s: %w", c.className, err)
		}

		ids = append(ids, models.ObjectIDs(chunk)...)
		c.logger.Debug("upserted batch", "class", c.className, "count", len(chunk))
	}

	return ids, nil
}

// Delete removes records by object ID with a batch delete filter
func (c *Client) Delete(ctx context.Context, objectIDs []string) ([]string, error) {
	for start := 0; start < len(objectIDs); start += batchSize {
		end := min(start+batchSize, len(objectIDs))

		where := filters.Where().
			WithPath([]string{propObjectID}).
			WithOperator(filters.ContainsAny).
			WithValueText(objectIDs[start:end]...)

		_, err := c.client.Batch().ObjectsBatchDeleter().
			WithClassName(c.className).
			WithOutput("minimal").
			WithWhere(where).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("batch delete from %s: %w", c.className, err)
		}
	}
	return objectIDs, nil
}

// FindByBlockCodename returns the records holding a block for codename
func (c *Client) FindByBlockCodename(ctx context.Context, codename string) ([]*models.SearchableItem, error) {
	fields := make([]graphql.Field, 0, len(recordFields))
	for _, name := range recordFields {
		fields = append(fields, graphql.Field{Name: name})
	}

	where := filters.Where().
		WithPath([]string{propBlockCodenames}).
		WithOperator(filters.ContainsAny).
		WithValueText(codename)

	resp, err := c.client.GraphQL().Get().
		WithClassName(c.className).
		WithFields(fields...).
		WithWhere(where).
		WithLimit(maxFacetHits).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("query %s for %s: %w", c.className, codename, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("query %s for %s: %s", c.className, codename, resp.Errors[0].Message)
	}

	return parseGetResponse(resp.Data, c.className)
}

// parseGetResponse extracts records from a GraphQL Get response
func parseGetResponse(data map[string]weaviatemodels.JSONObject, className string) ([]*models.SearchableItem, error) {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected get response format")
	}

	rows, ok := get[className].([]interface{})
	if !ok {
		return []*models.SearchableItem{}, nil
	}

	items := make([]*models.SearchableItem, 0, len(rows))
	for _, row := range rows {
		props, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		item, err := fromProperties(props)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ObjectID < items[j].ObjectID })
	return items, nil
}

// ListObjectIDs returns the object IDs of all records, sorted
func (c *Client) ListObjectIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := c.eachObject(ctx, func(obj *weaviatemodels.Object) {
		props, _ := obj.Properties.(map[string]interface{})
		if id := stringProp(props, propObjectID); id != "" {
			ids = append(ids, id)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// eachObject pages through the class, with cursor pagination when the
// server supports it and offset pagination otherwise
func (c *Client) eachObject(ctx context.Context, fn func(*weaviatemodels.Object)) error {
	afterCursor := ""
	offset := 0

	for {
		getter := c.client.Data().ObjectsGetter().
			WithClassName(c.className).
			WithLimit(pageSize)

		if c.useCursor {
			if afterCursor != "" {
				getter = getter.WithAfter(afterCursor)
			}
		} else {
			getter = getter.WithOffset(offset)
		}

		objs, err := getter.Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch objects from %s: %w", c.className, err)
		}

		for _, obj := range objs {
			fn(obj)
		}

		if len(objs) < pageSize {
			return nil
		}
		afterCursor = objs[len(objs)-1].ID.String()
		offset += pageSize
	}
}
