package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kilupskalvis/contentsync/internal/delivery"
	"github.com/kilupskalvis/contentsync/internal/index"
	"github.com/kilupskalvis/contentsync/internal/models"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds concurrent reconciliations in one batch
const DefaultConcurrency = 4

// Journal stores finished sync runs
type Journal interface {
	Record(run *models.SyncRun) error
}

// Notifier is told about runs that changed the index
type Notifier interface {
	NotifyRun(run *models.SyncRun)
}

// Syncer runs full reindexes and webhook batches against one index
type Syncer struct {
	Delivery  delivery.ClientInterface
	Index     index.Index
	Flattener *Flattener
	// Settings applied before a full reindex. Nil means defaults.
	Settings    *models.IndexSettings
	Concurrency int

	// Optional collaborators
	Ledger   AnchorLedger
	Journal  Journal
	Notifier Notifier
	Logger   *slog.Logger
}

// SyncResult is the outcome of one run
type SyncResult struct {
	Run *models.SyncRun
	// ObjectIDs are the object IDs written to the index
	ObjectIDs []string
	// Deleted are the object IDs removed from the index
	Deleted []string
}

func (s *Syncer) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Syncer) reconciler() *Reconciler {
	return &Reconciler{
		Delivery:  s.Delivery,
		Index:     s.Index,
		Flattener: s.Flattener,
		Ledger:    s.Ledger,
		Logger:    s.Logger,
	}
}

// ProcessCodenames reconciles a batch of affected codenames. Codenames are
// reconciled concurrently; the resulting records are de-duplicated by
// codename, last wins, and written in a single upsert. Any failure fails
// the whole batch.
func (s *Syncer) ProcessCodenames(ctx context.Context, kind models.RunKind, codenames []string) (*SyncResult, error) {
	run := s.startRun(kind, codenames)

	result, err := s.processCodenames(ctx, codenames)
	if err != nil {
		s.finishRun(run, nil, err)
		return nil, err
	}
	result.Run = run
	s.finishRun(run, result, nil)
	return result, nil
}

func (s *Syncer) processCodenames(ctx context.Context, codenames []string) (*SyncResult, error) {
	rec := s.reconciler()
	deltas := make([]*Delta, len(codenames))

	limit := s.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, codename := range codenames {
		g.Go(func() error {
			delta, err := rec.Reconcile(gctx, codename)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", codename, err)
			}
			deltas[i] = delta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	upserts, deleted := mergeDeltas(deltas)

	result := &SyncResult{ObjectIDs: []string{}, Deleted: deleted}
	if len(upserts) == 0 {
		return result, nil
	}

	ids, err := s.Index.Upsert(ctx, upserts)
	if err != nil {
		return nil, fmt.Errorf("upsert records: %w", err)
	}
	result.ObjectIDs = ids

	if s.Ledger != nil {
		if err := s.Ledger.Record(upserts); err != nil {
			return nil, fmt.Errorf("record anchors: %w", err)
		}
	}
	return result, nil
}

// mergeDeltas de-duplicates upserts by codename keeping the last record and
// the position of the first. Deleted IDs that were written again are dropped.
func mergeDeltas(deltas []*Delta) ([]*models.SearchableItem, []string) {
	var order []string
	latest := make(map[string]*models.SearchableItem)
	var deleted []string

	for _, delta := range deltas {
		if delta == nil {
			continue
		}
		for _, item := range delta.Upserts {
			if _, ok := latest[item.Codename]; !ok {
				order = append(order, item.Codename)
			}
			latest[item.Codename] = item
		}
		deleted = append(deleted, delta.Deleted...)
	}

	upserts := make([]*models.SearchableItem, 0, len(order))
	written := make(map[string]bool, len(order))
	for _, codename := range order {
		item := latest[codename]
		upserts = append(upserts, item)
		written[item.ObjectID] = true
	}

	kept := deleted[:0]
	for _, id := range deleted {
		if !written[id] {
			kept = append(kept, id)
		}
	}
	return upserts, models.SortedSet(kept)
}

func (s *Syncer) startRun(kind models.RunKind, codenames []string) *models.SyncRun {
	return &models.SyncRun{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now().UTC(),
		Codenames: codenames,
	}
}

// finishRun journals the run and notifies listeners when records changed.
func (s *Syncer) finishRun(run *models.SyncRun, result *SyncResult, runErr error) {
	run.FinishedAt = time.Now().UTC()
	run.Upserted = []string{}
	run.Deleted = []string{}
	if result != nil {
		run.Upserted = result.ObjectIDs
		run.Deleted = result.Deleted
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	log := s.logger().With("run_id", run.ShortID(), "kind", run.Kind)
	if runErr != nil {
		log.Error("sync run failed", "error", runErr)
	} else {
		log.Info("sync run finished",
			"upserted", len(run.Upserted),
			"deleted", len(run.Deleted),
			"duration_ms", run.Duration().Milliseconds())
	}

	if s.Journal != nil {
		if err := s.Journal.Record(run); err != nil {
			log.Warn("failed to journal sync run", "error", err)
		}
	}
	if s.Notifier != nil && runErr == nil && (len(run.Upserted) > 0 || len(run.Deleted) > 0) {
		s.Notifier.NotifyRun(run)
	}
}
