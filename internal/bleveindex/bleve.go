// Package bleveindex implements index.Index on an embedded Bleve index.
//
// Records are kept whole in the index's internal key space next to the
// indexed fields, so a lookup never needs stored fields. An empty path
// gives a memory-only index.
package bleveindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/kilupskalvis/contentsync/internal/index"
	"github.com/kilupskalvis/contentsync/internal/models"
)

const (
	fieldObjectID       = "objectID"
	fieldCodename       = "codename"
	fieldName           = "name"
	fieldItemType       = "type"
	fieldLanguage       = "language"
	fieldBlockCodenames = "blockCodenames"
	fieldBlockNames     = "blockNames"
	fieldBlockContents  = "blockContents"

	recordPrefix = "record/"
	settingsKey  = "settings"

	pageSize     = 1000
	maxFacetHits = 10000
)

var _ index.Index = (*Index)(nil)

// ErrClosed is returned by operations on a closed index
var ErrClosed = errors.New("bleve index is closed")

// Index is an index.Index stored in Bleve
type Index struct {
	mu       sync.RWMutex
	path     string
	idx      bleve.Index
	settings *models.IndexSettings
	logger   *slog.Logger
}

// Open opens the index at path, creating it with default settings when it
// does not exist. An empty path creates a memory-only index.
func Open(path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ix := &Index{path: path, logger: logger}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			idx, err := bleve.Open(path)
			if err != nil {
				return nil, fmt.Errorf("open bleve index %s: %w", path, err)
			}
			ix.idx = idx
			settings, err := ix.storedSettings()
			if err != nil {
				idx.Close()
				return nil, err
			}
			ix.settings = settings
			return ix, nil
		}
	}

	settings := models.DefaultIndexSettings()
	idx, err := ix.create(settings)
	if err != nil {
		return nil, err
	}
	ix.idx = idx
	ix.settings = settings
	return ix, nil
}

// buildMapping derives a static mapping from settings. Identifier fields
// use the keyword analyzer; the rest are indexed only when searchable.
func buildMapping(settings *models.IndexSettings) *mapping.IndexMappingImpl {
	doc := bleve.NewDocumentStaticMapping()

	keyword := func() *mapping.FieldMapping {
		fm := bleve.NewKeywordFieldMapping()
		fm.Store = false
		fm.IncludeInAll = false
		return fm
	}
	text := func(searchable bool) *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Store = false
		fm.Index = searchable
		fm.IncludeInAll = searchable
		return fm
	}

	doc.AddFieldMappingsAt(fieldObjectID, keyword())
	doc.AddFieldMappingsAt(fieldCodename, keyword())
	doc.AddFieldMappingsAt(fieldItemType, keyword())
	doc.AddFieldMappingsAt(fieldLanguage, keyword())
	doc.AddFieldMappingsAt(fieldBlockCodenames, keyword())
	doc.AddFieldMappingsAt(fieldName, text(settings.IsSearchable(models.AttrName)))
	doc.AddFieldMappingsAt(fieldBlockNames, text(settings.IsSearchable(models.AttrBlockName)))
	doc.AddFieldMappingsAt(fieldBlockContents, text(settings.IsSearchable(models.AttrBlockContents)))

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// document flattens a record into the indexed fields
func document(item *models.SearchableItem) map[string]interface{} {
	names := make([]string, 0, len(item.Content))
	contents := make([]string, 0, len(item.Content))
	for _, block := range item.Content {
		names = append(names, block.Name)
		contents = append(contents, block.Contents)
	}
	return map[string]interface{}{
		fieldObjectID:       item.ObjectID,
		fieldCodename:       item.Codename,
		fieldName:           item.Name,
		fieldItemType:       item.Type,
		fieldLanguage:       item.Language,
		fieldBlockCodenames: item.BlockCodenames(),
		fieldBlockNames:     names,
		fieldBlockContents:  contents,
	}
}

func recordKey(objectID string) []byte {
	return []byte(recordPrefix + objectID)
}

func (ix *Index) create(settings *models.IndexSettings) (bleve.Index, error) {
	m := buildMapping(settings)
	var (
		idx bleve.Index
		err error
	)
	if ix.path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		idx, err = bleve.New(ix.path, m)
	}
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}

	data, err := json.Marshal(settings)
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	if err := idx.SetInternal([]byte(settingsKey), data); err != nil {
		idx.Close()
		return nil, fmt.Errorf("store settings: %w", err)
	}
	return idx, nil
}

func (ix *Index) storedSettings() (*models.IndexSettings, error) {
	data, err := ix.idx.GetInternal([]byte(settingsKey))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if data == nil {
		return models.DefaultIndexSettings(), nil
	}
	var settings models.IndexSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &settings, nil
}

// Settings returns the settings the index was built with
func (ix *Index) Settings() *models.IndexSettings {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.settings
}

// sameMapping reports whether a and b produce the same field mapping
func sameMapping(a, b *models.IndexSettings) bool {
	for _, attr := range []string{models.AttrName, models.AttrBlockName, models.AttrBlockContents} {
		if a.IsSearchable(attr) != b.IsSearchable(attr) {
			return false
		}
	}
	return true
}

// ApplySettings rebuilds the index when the searchable attributes change.
// Bleve mappings are fixed at creation, so records are read back out and
// indexed again under the new mapping.
func (ix *Index) ApplySettings(ctx context.Context, settings *models.IndexSettings) error {
	if settings == nil {
		settings = models.DefaultIndexSettings()
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.idx == nil {
		return ErrClosed
	}

	if sameMapping(ix.settings, settings) {
		data, err := json.Marshal(settings)
		if err != nil {
			return fmt.Errorf("marshal settings: %w", err)
		}
		if err := ix.idx.SetInternal([]byte(settingsKey), data); err != nil {
			return fmt.Errorf("store settings: %w", err)
		}
		ix.settings = settings
		return nil
	}

	ids, err := ix.listIDs(ctx)
	if err != nil {
		return err
	}
	items, err := ix.load(ids)
	if err != nil {
		return err
	}

	if err := ix.idx.Close(); err != nil {
		return fmt.Errorf("close bleve index: %w", err)
	}
	ix.idx = nil
	if ix.path != "" {
		if err := os.RemoveAll(ix.path); err != nil {
			return fmt.Errorf("remove bleve index: %w", err)
		}
	}

	idx, err := ix.create(settings)
	if err != nil {
		return err
	}
	ix.idx = idx
	ix.settings = settings

	if err := ix.write(ctx, items); err != nil {
		return fmt.Errorf("reindex %d records: %w", len(items), err)
	}
	ix.logger.Info("rebuilt bleve index", "records", len(items))
	return nil
}

func (ix *Index) write(ctx context.Context, items []*models.SearchableItem) error {
	for start := 0; start < len(items); start += pageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + pageSize
		if end > len(items) {
			end = len(items)
		}

		batch := ix.idx.NewBatch()
		for _, item := range items[start:end] {
			data, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("marshal %s: %w", item.ObjectID, err)
			}
			if err := batch.Index(item.ObjectID, document(item)); err != nil {
				return fmt.Errorf("index %s: %w", item.ObjectID, err)
			}
			batch.SetInternal(recordKey(item.ObjectID), data)
		}
		if err := ix.idx.Batch(batch); err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
	}
	return nil
}

// Upsert writes the records in batches. A failed batch leaves earlier
// batches written.
func (ix *Index) Upsert(ctx context.Context, items []*models.SearchableItem) ([]string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.idx == nil {
		return nil, ErrClosed
	}
	if err := ix.write(ctx, items); err != nil {
		return nil, err
	}
	return models.ObjectIDs(items), nil
}

// Delete removes the records. Unknown IDs are ignored.
func (ix *Index) Delete(ctx context.Context, objectIDs []string) ([]string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.idx == nil {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := ix.idx.NewBatch()
	for _, id := range objectIDs {
		batch.Delete(id)
		batch.DeleteInternal(recordKey(id))
	}
	if err := ix.idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("delete batch: %w", err)
	}
	return objectIDs, nil
}

// FindByBlockCodename returns the records holding a block with codename,
// ordered by object ID.
func (ix *Index) FindByBlockCodename(ctx context.Context, codename string) ([]*models.SearchableItem, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.idx == nil {
		return nil, ErrClosed
	}

	q := bleve.NewTermQuery(codename)
	q.SetField(fieldBlockCodenames)
	req := bleve.NewSearchRequestOptions(q, maxFacetHits, 0, false)
	req.SortBy([]string{"_id"})

	res, err := ix.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", codename, err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ix.load(ids)
}

// Get returns one record, or nil when it is absent
func (ix *Index) Get(objectID string) (*models.SearchableItem, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.idx == nil {
		return nil, ErrClosed
	}
	items, err := ix.load([]string{objectID})
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

func (ix *Index) load(ids []string) ([]*models.SearchableItem, error) {
	items := make([]*models.SearchableItem, 0, len(ids))
	for _, id := range ids {
		data, err := ix.idx.GetInternal(recordKey(id))
		if err != nil {
			return nil, fmt.Errorf("read record %s: %w", id, err)
		}
		if data == nil {
			continue
		}
		var item models.SearchableItem
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("unmarshal record %s: %w", id, err)
		}
		items = append(items, &item)
	}
	return items, nil
}

func (ix *Index) ListObjectIDs(ctx context.Context) ([]string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.idx == nil {
		return nil, ErrClosed
	}
	return ix.listIDs(ctx)
}

func (ix *Index) listIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	for from := 0; ; from += pageSize {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), pageSize, from, false)
		req.SortBy([]string{"_id"})

		res, err := ix.idx.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < pageSize {
			break
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the index. Closing twice is a no-op.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.idx == nil {
		return nil
	}
	err := ix.idx.Close()
	ix.idx = nil
	return err
}
