package stac

import (
	"encoding/json"
	"sort"
)

// Collection represents a STAC Collection with support for foreign members.
type Collection struct {
	Type        string            `json:"type,omitempty"`
	Version     string            `json:"stac_version"`
	Extensions  []string          `json:"stac_extensions,omitempty"`
	ID          string            `json:"id"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description"`
	Keywords    []string          `json:"keywords,omitempty"`
	License     string            `json:"license"`
	Providers   []*Provider       `json:"providers,omitempty"`
	Extent      *Extent           `json:"extent"`
	Summaries   map[string]any    `json:"summaries,omitempty"`
	Links       []*Link           `json:"links"`
	Assets      map[string]*Asset `json:"assets,omitempty"`

	// AdditionalFields holds foreign members not defined in the STAC spec,
	// including "item_assets".
	AdditionalFields map[string]any `json:"-"`
}

// Extent represents the spatial and temporal extent of a STAC Collection.
type Extent struct {
	Spatial  *SpatialExtent  `json:"spatial,omitempty"`
	Temporal *TemporalExtent `json:"temporal,omitempty"`
}

// SpatialExtent represents the spatial extent of a STAC Collection.
type SpatialExtent struct {
	Bbox [][]float64 `json:"bbox"`
}

// TemporalExtent represents the temporal extent of a STAC Collection.
type TemporalExtent struct {
	Interval [][]any `json:"interval"`
}

// Provider represents a STAC Collection provider.
type Provider struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	URL         string   `json:"url,omitempty"`
}

var knownCollectionFields = map[string]bool{
	"type": true, "stac_version": true, "stac_extensions": true,
	"id": true, "title": true, "description": true, "keywords": true,
	"license": true, "providers": true, "extent": true, "summaries": true,
	"links": true, "assets": true,
}

// UnmarshalJSON implements custom unmarshaling to capture foreign members.
func (col *Collection) UnmarshalJSON(data []byte) error {
	type collectionAlias Collection
	var aux collectionAlias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	extra, err := decodeForeign(data, knownCollectionFields)
	if err != nil {
		return err
	}
	*col = Collection(aux)
	col.AdditionalFields = extra
	return nil
}

// MarshalJSON implements custom marshaling to include foreign members.
func (col Collection) MarshalJSON() ([]byte, error) {
	type collectionAlias Collection
	return encodeForeign(collectionAlias(col), col.AdditionalFields)
}

// ClassObjects returns the classification class objects declared in the
// collection's "item_assets" definitions.
func (col *Collection) ClassObjects() []map[string]any {
	itemAssets, ok := col.AdditionalFields["item_assets"].(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(itemAssets))
	for k := range itemAssets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var classes []map[string]any
	for _, k := range keys {
		if def, ok := itemAssets[k].(map[string]any); ok {
			classes = append(classes, ClassObjects(def)...)
		}
	}
	return classes
}
