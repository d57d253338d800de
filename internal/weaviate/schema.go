package weaviate

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/contentsync/internal/models"
	weaviatemodels "github.com/weaviate/weaviate/entities/models"
)

const (
	dataTypeText      = "text"
	dataTypeTextArray = "text[]"

	tokenizationField = "field"
	tokenizationWord  = "word"
)

func boolPtr(b bool) *bool { return &b }

func property(name, dataType, tokenization string, filterable, searchable bool, description string) *weaviatemodels.Property {
	return &weaviatemodels.Property{
		Name:            name,
		DataType:        []string{dataType},
		Description:     description,
		Tokenization:    tokenization,
		IndexFilterable: boolPtr(filterable),
		IndexSearchable: boolPtr(searchable),
	}
}

// classProperties derives the class properties from index settings.
// objectID and blockCodenames stay filterable whatever the settings say:
// deletes and facet lookups depend on them.
func classProperties(settings *models.IndexSettings) []*weaviatemodels.Property {
	return []*weaviatemodels.Property{
		property(propObjectID, dataTypeText, tokenizationField, true, false, "Record identifier, the item codename"),
		property(propItemID, dataTypeText, tokenizationField, true, false, "CMS item ID"),
		property(propCodename, dataTypeText, tokenizationField, true, false, "CMS item codename"),
		property(propName, dataTypeText, tokenizationWord, true, settings.IsSearchable(models.AttrName), "Item name"),
		property(propLanguage, dataTypeText, tokenizationField, true, false, ""),
		property(propItemType, dataTypeText, tokenizationField, true, false, "Content type codename"),
		property(propCollection, dataTypeText, tokenizationField, true, false, ""),
		property(propSlug, dataTypeText, tokenizationField, true, false, ""),
		property(propParents, dataTypeTextArray, tokenizationField, true, false, "Codenames of records linking to this one"),
		property(propChildren, dataTypeTextArray, tokenizationField, true, false, "Codenames linked from this record"),
		property(propBlockCodenames, dataTypeTextArray, tokenizationField, true, false, "Codenames of every content block"),
		property(propBlockNames, dataTypeTextArray, tokenizationWord, false, settings.IsSearchable(models.AttrBlockName), "Content block names"),
		property(propBlockContents, dataTypeTextArray, tokenizationWord, false, settings.IsSearchable(models.AttrBlockContents), "Content block text"),
		property(propSnippets, dataTypeTextArray, tokenizationWord, false, false, "Content block text truncated for display"),
		property(propContentJSON, dataTypeText, tokenizationField, false, false, "Content blocks as JSON"),
	}
}

// classDefinition builds the class created on first ApplySettings
func classDefinition(className string, settings *models.IndexSettings) *weaviatemodels.Class {
	return &weaviatemodels.Class{
		Class:       className,
		Description: "Searchable CMS content items",
		Vectorizer:  "none",
		Properties:  classProperties(settings),
	}
}

// missingProperties returns the wanted properties absent from existing
func missingProperties(existing *weaviatemodels.Class, wanted []*weaviatemodels.Property) []*weaviatemodels.Property {
	have := make(map[string]bool)
	if existing != nil {
		for _, p := range existing.Properties {
			have[p.Name] = true
		}
	}
	var missing []*weaviatemodels.Property
	for _, p := range wanted {
		if !have[p.Name] {
			missing = append(missing, p)
		}
	}
	return missing
}

// ApplySettings creates the class, or adds the properties it lacks.
// Index flags of existing properties cannot change in place.
func (c *Client) ApplySettings(ctx context.Context, settings *models.IndexSettings) error {
	if settings == nil {
		settings = models.DefaultIndexSettings()
	}
	if settings.SnippetLength > 0 {
		c.snippets = settings.SnippetLength
	}

	exists, err := c.client.Schema().ClassExistenceChecker().WithClassName(c.className).Do(ctx)
	if err != nil {
		return fmt.Errorf("check class %s: %w", c.className, err)
	}

	if !exists {
		if err := c.client.Schema().ClassCreator().WithClass(classDefinition(c.className, settings)).Do(ctx); err != nil {
			return fmt.Errorf("create class %s: %w", c.className, err)
		}
		c.logger.Info("created weaviate class", "class", c.className)
		return nil
	}

	existing, err := c.client.Schema().ClassGetter().WithClassName(c.className).Do(ctx)
	if err != nil {
		return fmt.Errorf("get class %s: %w", c.className, err)
	}

	for _, prop := range missingProperties(existing, classProperties(settings)) {
		err := c.client.Schema().PropertyCreator().
			WithClassName(c.className).
			WithProperty(prop).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("add property %s.%s: %w", c.className, prop.Name, err)
		}
		c.logger.Info("added weaviate property", "class", c.className, "property", prop.Name)
	}
	return nil
}
