package core

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/contentsync/internal/models"
)

// ReindexOptions configures a full reindex
type ReindexOptions struct {
	// Prune deletes records whose object ID is not in the rebuilt set
	Prune bool
}

// FullReindex rebuilds every addressable item from the full content set and
// writes the records in one upsert. Running it twice on unchanged content
// writes identical records.
func (s *Syncer) FullReindex(ctx context.Context, opts ReindexOptions) (*SyncResult, error) {
	run := s.startRun(models.RunReindex, nil)

	result, err := s.fullReindex(ctx, opts)
	if err != nil {
		s.finishRun(run, nil, err)
		return nil, err
	}
	result.Run = run
	s.finishRun(run, result, nil)
	return result, nil
}

func (s *Syncer) fullReindex(ctx context.Context, opts ReindexOptions) (*SyncResult, error) {
	items, err := s.Delivery.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch content: %w", err)
	}

	structure := s.BuildAll(items)
	s.logger().Info("built searchable structure", "items", len(items), "records", len(structure))

	settings := s.Settings
	if settings == nil {
		settings = models.DefaultIndexSettings()
	}
	if err := s.Index.ApplySettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("apply index settings: %w", err)
	}

	result := &SyncResult{ObjectIDs: []string{}, Deleted: []string{}}
	if len(structure) > 0 {
		ids, err := s.Index.Upsert(ctx, structure)
		if err != nil {
			return nil, fmt.Errorf("upsert records: %w", err)
		}
		result.ObjectIDs = ids
	}

	if opts.Prune {
		deleted, err := s.prune(ctx, structure)
		if err != nil {
			return nil, err
		}
		result.Deleted = deleted
	}

	if s.Ledger != nil {
		if err := s.Ledger.Replace(structure); err != nil {
			return nil, fmt.Errorf("replace anchors: %w", err)
		}
	}
	return result, nil
}

// BuildAll builds the searchable structure of every addressable item in items.
func (s *Syncer) BuildAll(items []*models.ContentItem) []*models.SearchableItem {
	universe := models.NewUniverse(items)
	return s.Flattener.BuildSearchableStructure(s.Flattener.FilterAddressable(items), universe)
}

func (s *Syncer) prune(ctx context.Context, structure []*models.SearchableItem) ([]string, error) {
	existing, err := s.Index.ListObjectIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list index records: %w", err)
	}

	keep := make(map[string]bool, len(structure))
	for _, item := range structure {
		keep[item.ObjectID] = true
	}

	var stale []string
	for _, id := range existing {
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return []string{}, nil
	}

	deleted, err := s.Index.Delete(ctx, stale)
	if err != nil {
		return nil, fmt.Errorf("prune records: %w", err)
	}
	s.logger().Info("pruned stale records", "count", len(deleted))
	return deleted, nil
}
