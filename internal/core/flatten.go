// Package core implements the content-to-search-index pipeline: flattening
// CMS content trees into search records and reconciling the index with
// upstream changes.
package core

import (
	"regexp"
	"strings"

	"github.com/kilupskalvis/contentsync/internal/models"
)

// DefaultSlugElement is the element codename that marks addressable items
const DefaultSlugElement = "slug"

// markupPattern matches tags, including an unterminated trailing tag.
// Entities are left as they are.
var markupPattern = regexp.MustCompile(`<[^>]*>?`)

// Flattener extracts searchable text from content items and their linked items
type Flattener struct {
	// SlugElement is the codename of the element that makes an item
	// independently addressable.
	SlugElement string
}

// NewFlattener creates a Flattener for the given slug element codename
func NewFlattener(slugElement string) *Flattener {
	if slugElement == "" {
		slugElement = DefaultSlugElement
	}
	return &Flattener{SlugElement: slugElement}
}

// HasSlug reports whether the item is independently addressable
func (f *Flattener) HasSlug(item *models.ContentItem) bool {
	return item.HasElement(f.SlugElement)
}

// Slug returns the slug value of an item
func (f *Flattener) Slug(item *models.ContentItem) string {
	if el := item.Element(f.SlugElement); el != nil {
		return el.Text
	}
	return ""
}

// FilterAddressable returns the items carrying the slug element, in order
func (f *Flattener) FilterAddressable(items []*models.ContentItem) []*models.ContentItem {
	var out []*models.ContentItem
	for _, item := range items {
		if item != nil && f.HasSlug(item) {
			out = append(out, item)
		}
	}
	return out
}

// StripMarkup removes every <...> tag from s
func StripMarkup(s string) string {
	return markupPattern.ReplaceAllString(s, "")
}

// Flatten extracts the text of item into a primary block and recursively
// flattens linked items without a slug into descendant blocks. The result is
// [primary, ...descendants]. Every resolved linked codename, folded or not, is
// appended to children. ancestors is the chain of codenames above item,
// nearest first, and becomes the primary block's Parents.
func (f *Flattener) Flatten(item *models.ContentItem, ancestors []string, universe models.Universe, children *[]string) []models.ContentBlock {
	if item == nil {
		return nil
	}

	primary := models.ContentBlock{
		ID:         item.System.ID,
		Codename:   item.System.Codename,
		Name:       item.System.Name,
		Type:       item.System.Type,
		Language:   item.System.Language,
		Collection: item.System.Collection,
		Parents:    append([]string{}, ancestors...),
	}

	var fragments []string
	var linked []models.ContentBlock

	for _, el := range item.Elements {
		switch el.Type {
		case models.ElementText:
			if el.Text != "" {
				fragments = append(fragments, el.Text)
			}
		case models.ElementRichText:
			if text := StripMarkup(el.Text); text != "" {
				fragments = append(fragments, text)
			}
			linked = append(linked, f.flattenLinked(item, el.LinkedItems, ancestors, universe, children)...)
		case models.ElementModularContent:
			linked = append(linked, f.flattenLinked(item, el.LinkedItems, ancestors, universe, children)...)
		}
	}

	primary.Contents = strings.ReplaceAll(strings.Join(fragments, " "), `"`, "")

	return append([]models.ContentBlock{primary}, linked...)
}

// flattenLinked resolves linked codenames of parent. Items with a slug are
// recorded as children but not folded in; unresolvable codenames are skipped.
func (f *Flattener) flattenLinked(parent *models.ContentItem, codenames []string, ancestors []string, universe models.Universe, children *[]string) []models.ContentBlock {
	if len(codenames) == 0 {
		return nil
	}

	chain := append([]string{parent.System.Codename}, ancestors...)

	var blocks []models.ContentBlock
	for _, codename := range codenames {
		linkedItem, ok := universe.Lookup(codename)
		if !ok || linkedItem == nil {
			continue
		}
		if children != nil {
			*children = append(*children, linkedItem.System.Codename)
		}
		if f.HasSlug(linkedItem) {
			continue
		}
		if onPath(chain, linkedItem.System.Codename) {
			// cyclic reference
			continue
		}
		blocks = append(blocks, f.Flatten(linkedItem, chain, universe, children)...)
	}
	return blocks
}

func onPath(chain []string, codename string) bool {
	for _, c := range chain {
		if c == codename {
			return true
		}
	}
	return false
}
