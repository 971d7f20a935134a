package stac

// ItemCollection represents a GeoJSON FeatureCollection of STAC Items.
type ItemCollection struct {
	Type     string         `json:"type"`
	Features []*Item        `json:"features"`
	Links    []*Link        `json:"links,omitempty"`
	Context  map[string]any `json:"context,omitempty"`

	NumberMatched  *int `json:"numberMatched,omitempty"`
	NumberReturned *int `json:"numberReturned,omitempty"`
}

// NewItemCollection wraps items in a FeatureCollection.
func NewItemCollection(items []*Item) *ItemCollection {
	if items == nil {
		items = []*Item{}
	}
	return &ItemCollection{Type: "FeatureCollection", Features: items}
}

// NextLink returns the rel="next" link if present.
func (c *ItemCollection) NextLink() *Link {
	if c == nil {
		return nil
	}
	return FindLink(c.Links, "next")
}
