package stac

import (
	"encoding/json"
	"sort"
)

// Item represents a STAC Item (GeoJSON Feature) with support for foreign members.
type Item struct {
	Type       string            `json:"type,omitempty"`
	Version    string            `json:"stac_version"`
	Extensions []string          `json:"stac_extensions,omitempty"`
	ID         string            `json:"id"`
	Geometry   any               `json:"geometry"`
	Bbox       []float64         `json:"bbox,omitempty"`
	Properties map[string]any    `json:"properties"`
	Links      []*Link           `json:"links"`
	Assets     map[string]*Asset `json:"assets"`
	Collection string            `json:"collection,omitempty"`

	// AdditionalFields holds foreign members not defined in the STAC spec.
	AdditionalFields map[string]any `json:"-"`
}

var knownItemFields = map[string]bool{
	"type": true, "stac_version": true, "stac_extensions": true,
	"id": true, "geometry": true, "bbox": true, "properties": true,
	"links": true, "assets": true, "collection": true,
}

// UnmarshalJSON implements custom unmarshaling to capture foreign members.
func (item *Item) UnmarshalJSON(data []byte) error {
	type itemAlias Item
	var aux itemAlias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	extra, err := decodeForeign(data, knownItemFields)
	if err != nil {
		return err
	}
	*item = Item(aux)
	item.AdditionalFields = extra
	return nil
}

// MarshalJSON implements custom marshaling to include foreign members.
func (item Item) MarshalJSON() ([]byte, error) {
	type itemAlias Item
	return encodeForeign(itemAlias(item), item.AdditionalFields)
}

// AssetKeys returns the item's asset keys in sorted order.
func (item *Item) AssetKeys() []string {
	keys := make([]string, 0, len(item.Assets))
	for k := range item.Assets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ClassObjects returns every classification extension class object found in
// the item properties and its assets. The returned maps alias the item, so
// writes to them modify the item.
func (item *Item) ClassObjects() []map[string]any {
	classes := ClassObjects(item.Properties)
	for _, key := range item.AssetKeys() {
		if asset := item.Assets[key]; asset != nil {
			classes = append(classes, ClassObjects(asset.AdditionalFields)...)
		}
	}
	return classes
}
