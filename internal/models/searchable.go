package models

import "sort"

// ContentBlock is one flattened unit of text belonging to a single content item
type ContentBlock struct {
	ID         string   `json:"id"`
	Codename   string   `json:"codename"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Language   string   `json:"language"`
	Collection string   `json:"collection"`
	Parents    []string `json:"parents"`
	Contents   string   `json:"contents"`
}

// SearchableItem is the record written to the search index. It represents
// one addressable content item plus all embedded content folded into it.
type SearchableItem struct {
	ObjectID   string         `json:"objectID"`
	ID         string         `json:"id"`
	Codename   string         `json:"codename"`
	Name       string         `json:"name"`
	Language   string         `json:"language"`
	Type       string         `json:"type"`
	Collection string         `json:"collection"`
	Slug       string         `json:"slug"`
	Parents    []string       `json:"parents"`
	Children   []string       `json:"children"`
	Content    []ContentBlock `json:"content"`
}

// BlockCodenames returns the sorted, de-duplicated codenames of all blocks
func (s *SearchableItem) BlockCodenames() []string {
	codenames := make([]string, 0, len(s.Content))
	for _, b := range s.Content {
		codenames = append(codenames, b.Codename)
	}
	return SortedSet(codenames)
}

// ObjectIDs returns the object IDs of the given items in order
func ObjectIDs(items []*SearchableItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ObjectID)
	}
	return ids
}

// SortedSet returns a sorted copy of s without duplicates. Never returns nil.
func SortedSet(s []string) []string {
	seen := make(map[string]bool, len(s))
	out := make([]string, 0, len(s))
	for _, v := range s {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
