package stac

import (
	"encoding/json"
	"strings"
)

// Link represents a STAC Link. Method, Body and Merge come from the STAC API
// paging extension and describe how to follow a link that needs a POST.
type Link struct {
	Href   string         `json:"href"`
	Rel    string         `json:"rel"`
	Type   string         `json:"type,omitempty"`
	Title  string         `json:"title,omitempty"`
	Method string         `json:"method,omitempty"`
	Body   map[string]any `json:"body,omitempty"`
	Merge  bool           `json:"merge,omitempty"`

	// AdditionalFields holds any other foreign members.
	AdditionalFields map[string]any `json:"-"`
}

var knownLinkFields = map[string]bool{
	"href": true, "rel": true, "type": true, "title": true,
	"method": true, "body": true, "merge": true,
}

// UnmarshalJSON implements custom unmarshaling to capture foreign members.
func (link *Link) UnmarshalJSON(data []byte) error {
	type linkAlias Link
	var aux linkAlias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	extra, err := decodeForeign(data, knownLinkFields)
	if err != nil {
		return err
	}
	*link = Link(aux)
	link.AdditionalFields = extra
	return nil
}

// MarshalJSON implements custom marshaling to include foreign members.
func (link Link) MarshalJSON() ([]byte, error) {
	type linkAlias Link
	return encodeForeign(linkAlias(link), link.AdditionalFields)
}

// FindLink returns the first link whose rel matches (case-insensitively), or nil.
func FindLink(links []*Link, rel string) *Link {
	for _, l := range links {
		if l != nil && strings.EqualFold(l.Rel, rel) {
			return l
		}
	}
	return nil
}
