package core

import (
	"github.com/kilupskalvis/contentsync/internal/models"
)

// BuildSearchableStructure builds one SearchableItem per addressable item, in
// input order, then fills Parents as the inverse of Children across the batch.
func (f *Flattener) BuildSearchableStructure(itemsWithSlug []*models.ContentItem, universe models.Universe) []*models.SearchableItem {
	structure := make([]*models.SearchableItem, 0, len(itemsWithSlug))

	for _, item := range itemsWithSlug {
		if item == nil {
			continue
		}

		var children []string
		content := f.Flatten(item, nil, universe, &children)

		structure = append(structure, &models.SearchableItem{
			ObjectID:   item.System.Codename,
			ID:         item.System.ID,
			Codename:   item.System.Codename,
			Name:       item.System.Name,
			Language:   item.System.Language,
			Type:       item.System.Type,
			Collection: item.System.Collection,
			Slug:       f.Slug(item),
			Children:   models.SortedSet(children),
			Content:    content,
		})
	}

	invertParents(structure)
	return structure
}

// invertParents sets X.Parents to the codenames of every other item in the
// batch whose Children contain X.
func invertParents(structure []*models.SearchableItem) {
	parents := make(map[string][]string, len(structure))
	for _, item := range structure {
		for _, child := range item.Children {
			if child == item.Codename {
				continue
			}
			parents[child] = append(parents[child], item.Codename)
		}
	}

	for _, item := range structure {
		item.Parents = models.SortedSet(parents[item.Codename])
	}
}
