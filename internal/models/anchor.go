package models

import "time"

// Anchor is a ledger entry for one index record: the codenames it folds in
// as blocks and the codenames it links to.
type Anchor struct {
	ObjectID  string    `json:"object_id"`
	Codename  string    `json:"codename"`
	Children  []string  `json:"children"`
	Blocks    []string  `json:"blocks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Embedded returns every codename this anchor depends on, excluding itself
func (a *Anchor) Embedded() []string {
	all := make([]string, 0, len(a.Children)+len(a.Blocks))
	for _, c := range append(append([]string{}, a.Children...), a.Blocks...) {
		if c != a.Codename && c != a.ObjectID {
			all = append(all, c)
		}
	}
	return SortedSet(all)
}

// NewAnchor builds the ledger entry of a searchable item
func NewAnchor(item *SearchableItem, now time.Time) *Anchor {
	return &Anchor{
		ObjectID:  item.ObjectID,
		Codename:  item.Codename,
		Children:  SortedSet(item.Children),
		Blocks:    item.BlockCodenames(),
		UpdatedAt: now,
	}
}
