package weaviate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/kilupskalvis/contentsync/internal/models"
	weaviatemodels "github.com/weaviate/weaviate/entities/models"
)

// Property names of the searchable item class. "id" is reserved by Weaviate.
const (
	propObjectID       = "objectID"
	propItemID         = "itemId"
	propCodename       = "codename"
	propName           = "name"
	propLanguage       = "language"
	propItemType       = "itemType"
	propCollection     = "collection"
	propSlug           = "slug"
	propParents        = "parents"
	propChildren       = "children"
	propBlockCodenames = "blockCodenames"
	propBlockNames     = "blockNames"
	propBlockContents  = "blockContents"
	propSnippets       = "snippets"
	propContentJSON    = "contentJSON"
)

// objectNamespace seeds the name-based UUIDs of records
var objectNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/kilupskalvis/contentsync/searchable-item"))

// ObjectUUID returns the Weaviate object ID of a record
func ObjectUUID(objectID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(objectNamespace, []byte(objectID)).String())
}

// Snippet returns the first n words of text, marking truncation with an ellipsis
func Snippet(text string, n int) string {
	words := strings.Fields(text)
	if n <= 0 || len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + " …"
}

// toProperties converts a record to Weaviate object properties
func toProperties(item *models.SearchableItem, snippetLength int) (map[string]interface{}, error) {
	content, err := json.Marshal(item.Content)
	if err != nil {
		return nil, fmt.Errorf("marshal content of %s: %w", item.ObjectID, err)
	}

	props := map[string]interface{}{
		propObjectID:    item.ObjectID,
		propItemID:      item.ID,
		propCodename:    item.Codename,
		propName:        item.Name,
		propLanguage:    item.Language,
		propItemType:    item.Type,
		propCollection:  item.Collection,
		propSlug:        item.Slug,
		propContentJSON: string(content),
	}

	var names, contents, snippets []string
	for _, block := range item.Content {
		names = append(names, block.Name)
		contents = append(contents, block.Contents)
		snippets = append(snippets, Snippet(block.Contents, snippetLength))
	}

	// empty arrays are left out; Weaviate cannot infer their type
	setList(props, propParents, item.Parents)
	setList(props, propChildren, item.Children)
	setList(props, propBlockCodenames, item.BlockCodenames())
	setList(props, propBlockNames, names)
	setList(props, propBlockContents, contents)
	setList(props, propSnippets, snippets)

	return props, nil
}

func setList(props map[string]interface{}, key string, values []string) {
	if len(values) > 0 {
		props[key] = values
	}
}

// toObject converts a record to a Weaviate object of className
func toObject(className string, item *models.SearchableItem, snippetLength int) (*weaviatemodels.Object, error) {
	props, err := toProperties(item, snippetLength)
	if err != nil {
		return nil, err
	}
	return &weaviatemodels.Object{
		Class:      className,
		ID:         ObjectUUID(item.ObjectID),
		Properties: props,
	}, nil
}

// fromProperties restores a record from Weaviate object properties
func fromProperties(props map[string]interface{}) (*models.SearchableItem, error) {
	item := &models.SearchableItem{
		ObjectID:   stringProp(props, propObjectID),
		ID:         stringProp(props, propItemID),
		Codename:   stringProp(props, propCodename),
		Name:       stringProp(props, propName),
		Language:   stringProp(props, propLanguage),
		Type:       stringProp(props, propItemType),
		Collection: stringProp(props, propCollection),
		Slug:       stringProp(props, propSlug),
		Parents:    listProp(props, propParents),
		Children:   listProp(props, propChildren),
		Content:    []models.ContentBlock{},
	}
	if item.ObjectID == "" {
		return nil, fmt.Errorf("object has no %s property", propObjectID)
	}

	if raw := stringProp(props, propContentJSON); raw != "" {
		if err := json.Unmarshal([]byte(raw), &item.Content); err != nil {
			return nil, fmt.Errorf("unmarshal content of %s: %w", item.ObjectID, err)
		}
	}
	return item, nil
}

func stringProp(props map[string]interface{}, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func listProp(props map[string]interface{}, key string) []string {
	out := []string{}
	switch v := props[key].(type) {
	case []string:
		out = append(out, v...)
	case []interface{}:
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
