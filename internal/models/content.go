// Package models defines the core data structures used throughout contentsync
// including CMS content items, search records and sync runs.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ElementType is the Delivery API type tag of a content element
type ElementType string

const (
	ElementText           ElementType = "text"
	ElementRichText       ElementType = "rich_text"
	ElementModularContent ElementType = "modular_content"
	ElementURLSlug        ElementType = "url_slug"
	ElementNumber         ElementType = "number"
	ElementDateTime       ElementType = "date_time"
	ElementMultipleChoice ElementType = "multiple_choice"
	ElementAsset          ElementType = "asset"
	ElementTaxonomy       ElementType = "taxonomy"
	ElementCustom         ElementType = "custom"
)

// System holds the system attributes of a content item
type System struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Codename     string `json:"codename"`
	Language     string `json:"language"`
	Type         string `json:"type"`
	Collection   string `json:"collection"`
	LastModified string `json:"last_modified,omitempty"`
	WorkflowStep string `json:"workflow_step,omitempty"`
}

// Element is a single typed element of a content item.
// Text carries the value of text-like elements; LinkedItems carries the value
// of modular_content elements and the inline components of rich_text elements.
type Element struct {
	Codename    string
	Name        string
	Type        ElementType
	Text        string
	LinkedItems []string
	Value       json.RawMessage
}

// Elements is the ordered element list of a content item. The Delivery API
// returns elements as a JSON object; the key order is preserved.
type Elements []Element

// ContentItem is a content item as returned by the Delivery API
type ContentItem struct {
	System   System   `json:"system"`
	Elements Elements `json:"elements"`
}

// Element returns the element with the given codename, or nil
func (c *ContentItem) Element(codename string) *Element {
	if c == nil {
		return nil
	}
	for i := range c.Elements {
		if c.Elements[i].Codename == codename {
			return &c.Elements[i]
		}
	}
	return nil
}

// HasElement reports whether the item carries an element with the given codename
func (c *ContentItem) HasElement(codename string) bool {
	return c.Element(codename) != nil
}

// Codename returns the item codename (empty for a nil item)
func (c *ContentItem) Codename() string {
	if c == nil {
		return ""
	}
	return c.System.Codename
}

type rawElement struct {
	Type           string          `json:"type"`
	Name           string          `json:"name"`
	Value          json.RawMessage `json:"value"`
	ModularContent json.RawMessage `json:"modular_content,omitempty"`
}

// parseElement decodes one element. Anything malformed decodes to an empty
// element of the given codename; this never fails.
func parseElement(codename string, data []byte) Element {
	el := Element{Codename: codename}

	var raw rawElement
	if err := json.Unmarshal(data, &raw); err != nil {
		return el
	}
	el.Name = raw.Name
	el.Type = ElementType(raw.Type)
	if len(raw.Value) > 0 {
		var compact bytes.Buffer
		if json.Compact(&compact, raw.Value) == nil {
			el.Value = compact.Bytes()
		}
	}

	var text string
	if json.Unmarshal(raw.Value, &text) == nil {
		el.Text = text
	}

	switch el.Type {
	case ElementModularContent:
		el.LinkedItems = decodeCodenames(raw.Value)
	case ElementRichText:
		el.LinkedItems = decodeCodenames(raw.ModularContent)
	}

	return el
}

func decodeCodenames(data json.RawMessage) []string {
	if len(data) == 0 {
		return nil
	}
	var codenames []string
	if err := json.Unmarshal(data, &codenames); err != nil {
		return nil
	}
	return codenames
}

// UnmarshalJSON decodes the elements object keeping the key order.
func (e *Elements) UnmarshalJSON(data []byte) error {
	*e = nil
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		// Not an object: tolerate as "no elements".
		return nil
	}

	var out Elements
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected element key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		out = append(out, parseElement(key, raw))
	}

	*e = out
	return nil
}

// MarshalJSON encodes the elements back to a Delivery API style object.
func (e Elements) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, el := range e {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(el.Codename)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		raw := rawElement{Type: string(el.Type), Name: el.Name, Value: el.Value}
		if len(raw.Value) == 0 {
			switch el.Type {
			case ElementModularContent:
				raw.Value, _ = json.Marshal(nonNil(el.LinkedItems))
			default:
				raw.Value, _ = json.Marshal(el.Text)
			}
		}
		if el.Type == ElementRichText {
			raw.ModularContent, _ = json.Marshal(nonNil(el.LinkedItems))
		}
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// DeliveryItemResponse is the Delivery API response for a single item
type DeliveryItemResponse struct {
	Item           *ContentItem            `json:"item"`
	ModularContent map[string]*ContentItem `json:"modular_content"`
}

// Items returns the item followed by its linked items ordered by codename
func (r *DeliveryItemResponse) Items() []*ContentItem {
	if r == nil {
		return nil
	}
	var items []*ContentItem
	if r.Item != nil {
		items = append(items, r.Item)
	}
	return append(items, linkedItems(r.ModularContent)...)
}

// DeliveryFeedResponse is one page of the Delivery API items feed
type DeliveryFeedResponse struct {
	Items          []*ContentItem          `json:"items"`
	ModularContent map[string]*ContentItem `json:"modular_content"`
}

func linkedItems(m map[string]*ContentItem) []*ContentItem {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	items := make([]*ContentItem, 0, len(keys))
	for _, k := range keys {
		if m[k] != nil {
			items = append(items, m[k])
		}
	}
	return items
}

// LinkedItems returns the feed page's linked items ordered by codename
func (r *DeliveryFeedResponse) LinkedItems() []*ContentItem {
	return linkedItems(r.ModularContent)
}

// Universe resolves content items by codename
type Universe map[string]*ContentItem

// NewUniverse indexes items by codename. The first occurrence of a codename wins.
func NewUniverse(items []*ContentItem) Universe {
	u := make(Universe, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		if _, ok := u[item.System.Codename]; ok {
			continue
		}
		u[item.System.Codename] = item
	}
	return u
}

// Lookup returns the item with the given codename
func (u Universe) Lookup(codename string) (*ContentItem, bool) {
	item, ok := u[codename]
	return item, ok
}
