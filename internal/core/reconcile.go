package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kilupskalvis/contentsync/internal/delivery"
	"github.com/kilupskalvis/contentsync/internal/index"
	"github.com/kilupskalvis/contentsync/internal/models"
)

// AnchorLedger remembers which index records fold or link which codenames.
// It lets embedded content that has no record of its own find the records
// that have to be rebuilt when it changes.
type AnchorLedger interface {
	Record(items []*models.SearchableItem) error
	Forget(objectIDs []string) error
	Replace(items []*models.SearchableItem) error
	AnchorsOf(codename string) ([]string, error)
}

// Delta is the index change derived from one affected codename
type Delta struct {
	Upserts []*models.SearchableItem
	// Deleted holds object IDs already removed from the index
	Deleted []string
}

// Reconciler converges the index with the CMS for single affected codenames
type Reconciler struct {
	Delivery  delivery.ClientInterface
	Index     index.Index
	Flattener *Flattener
	// Ledger is optional
	Ledger AnchorLedger
	Logger *slog.Logger
}

func (r *Reconciler) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Reconcile decides whether codename was added, changed or removed and
// returns the records to upsert. Deletions are applied to the index here.
func (r *Reconciler) Reconcile(ctx context.Context, codename string) (*Delta, error) {
	hits, err := r.Index.FindByBlockCodename(ctx, codename)
	if err != nil {
		return nil, fmt.Errorf("search index for %s: %w", codename, err)
	}

	resp, found, err := r.fetch(ctx, codename)
	if err != nil {
		return nil, err
	}

	log := r.logger().With("codename", codename, "hits", len(hits))

	if len(hits) == 0 {
		if !found {
			log.Debug("nothing to reconcile")
			return &Delta{}, nil
		}
		if r.Flattener.HasSlug(resp.Item) {
			log.Debug("new addressable item")
			return &Delta{Upserts: r.build(resp)}, nil
		}

		anchors, err := r.anchorsOf(codename)
		if err != nil {
			return nil, err
		}
		if len(anchors) == 0 {
			log.Debug("embedded item has no known anchor")
			return &Delta{}, nil
		}
		log.Debug("rebuilding anchors of embedded item", "anchors", anchors)
		return r.rebuild(ctx, anchors, map[string]*models.DeliveryItemResponse{codename: resp})
	}

	if !found {
		ids := models.ObjectIDs(hits)
		deleted, err := r.delete(ctx, ids)
		if err != nil {
			return nil, err
		}
		log.Debug("removed records of deleted item", "object_ids", deleted)
		return &Delta{Deleted: deleted}, nil
	}

	anchors := make([]string, 0, len(hits))
	for _, hit := range hits {
		anchors = append(anchors, hit.Codename)
	}
	return r.rebuild(ctx, models.SortedSet(anchors), map[string]*models.DeliveryItemResponse{codename: resp})
}

// fetch returns the item with its linked items. found is false when the
// item does not exist in the CMS.
func (r *Reconciler) fetch(ctx context.Context, codename string) (resp *models.DeliveryItemResponse, found bool, err error) {
	resp, err = r.Delivery.FetchItem(ctx, codename)
	if errors.Is(err, delivery.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return resp, true, nil
}

// build runs the new-content path: a single-item batch rooted at resp.Item.
func (r *Reconciler) build(resp *models.DeliveryItemResponse) []*models.SearchableItem {
	universe := models.NewUniverse(resp.Items())
	structure := r.Flattener.BuildSearchableStructure([]*models.ContentItem{resp.Item}, universe)

	if r.Ledger != nil {
		for _, item := range structure {
			parents, err := r.Ledger.AnchorsOf(item.Codename)
			if err != nil {
				r.logger().Warn("failed to read parents from ledger", "codename", item.Codename, "error", err)
				continue
			}
			item.Parents = withoutCodename(parents, item.Codename)
		}
	}
	return structure
}

// rebuild re-derives every anchor from scratch. Anchors that no longer
// exist or are no longer addressable are deleted.
func (r *Reconciler) rebuild(ctx context.Context, anchors []string, fetched map[string]*models.DeliveryItemResponse) (*Delta, error) {
	delta := &Delta{}
	var stale []string

	for _, anchor := range anchors {
		resp, ok := fetched[anchor]
		if !ok {
			var found bool
			var err error
			resp, found, err = r.fetch(ctx, anchor)
			if err != nil {
				return nil, err
			}
			if !found {
				stale = append(stale, anchor)
				continue
			}
		}
		if !r.Flattener.HasSlug(resp.Item) {
			stale = append(stale, anchor)
			continue
		}
		delta.Upserts = append(delta.Upserts, r.build(resp)...)
	}

	if len(stale) > 0 {
		deleted, err := r.delete(ctx, stale)
		if err != nil {
			return nil, err
		}
		delta.Deleted = deleted
	}
	return delta, nil
}

func (r *Reconciler) delete(ctx context.Context, objectIDs []string) ([]string, error) {
	deleted, err := r.Index.Delete(ctx, objectIDs)
	if err != nil {
		return nil, fmt.Errorf("delete records: %w", err)
	}
	if r.Ledger != nil {
		if err := r.Ledger.Forget(objectIDs); err != nil {
			return nil, fmt.Errorf("forget anchors: %w", err)
		}
	}
	return deleted, nil
}

func (r *Reconciler) anchorsOf(codename string) ([]string, error) {
	if r.Ledger == nil {
		return nil, nil
	}
	anchors, err := r.Ledger.AnchorsOf(codename)
	if err != nil {
		return nil, fmt.Errorf("look up anchors of %s: %w", codename, err)
	}
	return anchors, nil
}

func withoutCodename(codenames []string, codename string) []string {
	out := make([]string, 0, len(codenames))
	for _, c := range codenames {
		if c != codename {
			out = append(out, c)
		}
	}
	return models.SortedSet(out)
}
