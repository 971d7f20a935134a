package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/robert-malhotra/go-stac-ingest/pkg/stac"
)

// DefaultDropAssets are the dynamic assets of Planetary Computer items. They
// point at tiler endpoints of the source and are meaningless elsewhere.
var DefaultDropAssets = []string{"rendered_preview", "tilejson"}

// RepairOptions controls Repair.
type RepairOptions struct {
	// Collection is written into every item's "collection" field.
	Collection string
	// DropAssets lists asset keys to delete. Nil means DefaultDropAssets;
	// use an empty non-nil slice to keep every asset.
	DropAssets []string
	// KeepBBox disables filling a missing bbox from the geometry.
	KeepBBox bool
}

// Changes reports what Repair modified.
type Changes struct {
	Collection    bool
	DroppedAssets []string
	ClassNames    int
	BBox          bool
}

// Any reports whether anything changed.
func (c Changes) Any() bool {
	return c.Collection || len(c.DroppedAssets) > 0 || c.ClassNames > 0 || c.BBox
}

// Repair prepares a source item for ingestion into another collection. It is
// idempotent: a second call with the same options reports no changes.
func Repair(item *stac.Item, opts RepairOptions) Changes {
	var ch Changes
	if item == nil {
		return ch
	}

	if opts.Collection != "" && item.Collection != opts.Collection {
		item.Collection = opts.Collection
		ch.Collection = true
	}

	drop := opts.DropAssets
	if drop == nil {
		drop = DefaultDropAssets
	}
	for _, key := range drop {
		if _, ok := item.Assets[key]; ok {
			delete(item.Assets, key)
			ch.DroppedAssets = append(ch.DroppedAssets, key)
		}
	}

	ch.ClassNames = FillClassificationNames(item)

	if !opts.KeepBBox && len(item.Bbox) == 0 {
		if bbox, ok := geometryBBox(item.Geometry); ok {
			item.Bbox = bbox
			ch.BBox = true
		}
	}
	return ch
}

// FillClassificationNames gives every classification class object of the
// item that has no name one derived from its description or value, and
// returns how many names were filled. Existing names are never touched.
func FillClassificationNames(item *stac.Item) int {
	if item == nil {
		return 0
	}
	return fillClassNames(item.ClassObjects())
}

// FillCollectionClassNames does the same for the class objects declared in
// the collection's item_assets.
func FillCollectionClassNames(col *stac.Collection) int {
	if col == nil {
		return 0
	}
	return fillClassNames(col.ClassObjects())
}

func fillClassNames(classes []map[string]any) int {
	filled := 0
	for i, class := range classes {
		if hasName(class) {
			continue
		}
		class["name"] = className(class, i)
		filled++
	}
	return filled
}

func hasName(class map[string]any) bool {
	v, ok := class["name"]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

var nonNameChars = regexp.MustCompile(`[^0-9A-Za-z_-]+`)

// className derives a name matching ^[0-9A-Za-z-_]+$.
func className(class map[string]any, index int) string {
	if desc, ok := class["description"].(string); ok {
		name := strings.Trim(nonNameChars.ReplaceAllString(strings.ToLower(desc), "_"), "_")
		if name != "" {
			return name
		}
	}
	if v, ok := class["value"]; ok && v != nil {
		if s := formatValue(v); s != "" {
			return "class_" + s
		}
	}
	return "class_" + strconv.Itoa(index)
}

func formatValue(v any) string {
	switch n := v.(type) {
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return strconv.FormatInt(int64(n), 10)
		}
		return nonNameChars.ReplaceAllString(strconv.FormatFloat(n, 'f', -1, 64), "_")
	case json.Number:
		return nonNameChars.ReplaceAllString(n.String(), "_")
	case int:
		return strconv.Itoa(n)
	case string:
		return strings.Trim(nonNameChars.ReplaceAllString(n, "_"), "_")
	default:
		return strings.Trim(nonNameChars.ReplaceAllString(fmt.Sprint(n), "_"), "_")
	}
}

// geometryBBox computes the 2D bounding box of a GeoJSON geometry value.
func geometryBBox(geometry any) ([]float64, bool) {
	if geometry == nil {
		return nil, false
	}
	data, err := json.Marshal(geometry)
	if err != nil {
		return nil, false
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil || g == nil {
		return nil, false
	}
	geom := g.Geometry()
	if geom == nil {
		return nil, false
	}
	b := geom.Bound()
	bbox := []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	if b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || slices.ContainsFunc(bbox, math.IsNaN) {
		return nil, false
	}
	return bbox, true
}
