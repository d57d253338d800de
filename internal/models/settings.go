package models

// Attribute paths of a SearchableItem record
const (
	AttrBlockContents = "content.contents"
	AttrBlockName     = "content.name"
	AttrBlockCodename = "content.codename"
	AttrName          = "name"
)

// DefaultSnippetLength bounds snippet text, in words
const DefaultSnippetLength = 80

// IndexSettings describes how the search index treats SearchableItem records
type IndexSettings struct {
	SearchableAttributes  []string `json:"searchableAttributes" toml:"searchable_attributes"`
	AttributesForFaceting []string `json:"attributesForFaceting" toml:"attributes_for_faceting"`
	SnippetAttribute      string   `json:"snippetAttribute" toml:"snippet_attribute"`
	SnippetLength         int      `json:"snippetLength" toml:"snippet_length"`
}

// DefaultIndexSettings returns the settings applied before a full reindex
func DefaultIndexSettings() *IndexSettings {
	return &IndexSettings{
		SearchableAttributes:  []string{AttrBlockContents, AttrBlockName, AttrName},
		AttributesForFaceting: []string{AttrBlockCodename},
		SnippetAttribute:      AttrBlockContents,
		SnippetLength:         DefaultSnippetLength,
	}
}

// IsSearchable reports whether attr is one of the searchable attributes
func (s *IndexSettings) IsSearchable(attr string) bool {
	for _, a := range s.SearchableAttributes {
		if a == attr {
			return true
		}
	}
	return false
}

// IsFacet reports whether attr is one of the facet attributes
func (s *IndexSettings) IsFacet(attr string) bool {
	for _, a := range s.AttributesForFaceting {
		if a == attr {
			return true
		}
	}
	return false
}
