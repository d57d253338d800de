package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/kilupskalvis/contentsync/internal/models"
	bolt "go.etcd.io/bbolt"
)

// embedSep separates the embedded codename from the anchor in embeds keys.
// Codenames never contain a NUL byte.
const embedSep = 0x00

func embedKey(codename, objectID string) []byte {
	key := make([]byte, 0, len(codename)+1+len(objectID))
	key = append(key, codename...)
	key = append(key, embedSep)
	return append(key, objectID...)
}

func embedPrefix(codename string) []byte {
	return append([]byte(codename), embedSep)
}

// Record stores the anchors of the given items, replacing earlier entries
// with the same object ID.
func (s *Store) Record(items []*models.SearchableItem) error {
	now := s.now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, item := range items {
			if err := putAnchor(tx, models.NewAnchor(item, now)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Forget removes the anchors with the given object IDs. Unknown IDs are ignored.
func (s *Store) Forget(objectIDs []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, id := range objectIDs {
			if err := deleteAnchor(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Replace drops every anchor and stores the anchors of items. It is used
// after a full reindex.
func (s *Store) Replace(items []*models.SearchableItem) error {
	now := s.now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketAnchors, bucketEmbeds} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return fmt.Errorf("clear bucket %s: %w", name, err)
				}
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}

		for _, item := range items {
			if err := putAnchor(tx, models.NewAnchor(item, now)); err != nil {
				return err
			}
		}

		kv := tx.Bucket(bucketKV)
		if kv == nil {
			return fmt.Errorf("kv bucket not found")
		}
		return kv.Put([]byte(KeyLastReindex), []byte(now.Format(time.RFC3339Nano)))
	})
}

// AnchorsOf returns the sorted object IDs of the anchors that fold in or
// link to codename.
func (s *Store) AnchorsOf(codename string) ([]string, error) {
	anchors := []string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEmbeds)
		if bucket == nil {
			return nil
		}
		prefix := embedPrefix(codename)
		c := bucket.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			anchors = append(anchors, string(k[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(anchors)
	return anchors, nil
}

// GetAnchor returns one anchor. Returns (nil, nil) if not found.
func (s *Store) GetAnchor(objectID string) (*models.Anchor, error) {
	var anchor *models.Anchor
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketAnchors)
		if bucket == nil {
			return nil
		}
		data := bucket.Get([]byte(objectID))
		if data == nil {
			return nil
		}
		anchor = &models.Anchor{}
		return json.Unmarshal(data, anchor)
	})
	return anchor, err
}

// Anchors returns all anchors sorted by object ID.
func (s *Store) Anchors() ([]*models.Anchor, error) {
	var anchors []*models.Anchor
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketAnchors)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var a models.Anchor
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("unmarshal anchor %s: %w", k, err)
			}
			anchors = append(anchors, &a)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(anchors, func(i, j int) bool { return anchors[i].ObjectID < anchors[j].ObjectID })
	return anchors, nil
}

func putAnchor(tx *bolt.Tx, anchor *models.Anchor) error {
	if err := deleteAnchor(tx, anchor.ObjectID); err != nil {
		return err
	}

	anchorsBucket := tx.Bucket(bucketAnchors)
	embedsBucket := tx.Bucket(bucketEmbeds)
	if anchorsBucket == nil || embedsBucket == nil {
		return fmt.Errorf("ledger buckets not found")
	}

	data, err := json.Marshal(anchor)
	if err != nil {
		return fmt.Errorf("marshal anchor: %w", err)
	}
	if err := anchorsBucket.Put([]byte(anchor.ObjectID), data); err != nil {
		return fmt.Errorf("put anchor %s: %w", anchor.ObjectID, err)
	}

	for _, codename := range anchor.Embedded() {
		if err := embedsBucket.Put(embedKey(codename, anchor.ObjectID), []byte{}); err != nil {
			return fmt.Errorf("put embed %s: %w", codename, err)
		}
	}
	return nil
}

// deleteAnchor removes an anchor and its reverse entries.
func deleteAnchor(tx *bolt.Tx, objectID string) error {
	anchorsBucket := tx.Bucket(bucketAnchors)
	embedsBucket := tx.Bucket(bucketEmbeds)
	if anchorsBucket == nil || embedsBucket == nil {
		return fmt.Errorf("ledger buckets not found")
	}

	data := anchorsBucket.Get([]byte(objectID))
	if data == nil {
		return nil
	}

	var old models.Anchor
	if err := json.Unmarshal(data, &old); err != nil {
		return fmt.Errorf("unmarshal anchor %s: %w", objectID, err)
	}
	for _, codename := range old.Embedded() {
		if err := embedsBucket.Delete(embedKey(codename, objectID)); err != nil {
			return fmt.Errorf("delete embed %s: %w", codename, err)
		}
	}
	return anchorsBucket.Delete([]byte(objectID))
}
