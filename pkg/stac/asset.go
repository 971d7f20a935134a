package stac

import "encoding/json"

// Asset represents a STAC Asset with support for additional fields.
type Asset struct {
	Type        string   `json:"type,omitempty"`
	Href        string   `json:"href"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Created     string   `json:"created,omitempty"`
	Roles       []string `json:"roles,omitempty"`

	// AdditionalFields holds foreign members from extensions (e.g., "raster:bands").
	AdditionalFields map[string]any `json:"-"`
}

var knownAssetFields = map[string]bool{
	"type": true, "href": true, "title": true, "description": true,
	"created": true, "roles": true,
}

// UnmarshalJSON implements custom unmarshaling to capture foreign members.
func (asset *Asset) UnmarshalJSON(data []byte) error {
	type assetAlias Asset
	var aux assetAlias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	extra, err := decodeForeign(data, knownAssetFields)
	if err != nil {
		return err
	}
	*asset = Asset(aux)
	asset.AdditionalFields = extra
	return nil
}

// MarshalJSON implements custom marshaling to include foreign members.
func (asset Asset) MarshalJSON() ([]byte, error) {
	type assetAlias Asset
	return encodeForeign(assetAlias(asset), asset.AdditionalFields)
}

// HasRole reports whether the asset declares role.
func (asset *Asset) HasRole(role string) bool {
	for _, r := range asset.Roles {
		if r == role {
			return true
		}
	}
	return false
}
