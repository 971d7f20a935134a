package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-stac-ingest/pkg/stac"
)

const landCoverItem = `{
  "type": "Feature",
  "stac_version": "1.0.0",
  "id": "10S-2017",
  "collection": "io-lulc-9-class",
  "geometry": {"type": "Polygon", "coordinates": [[[-124.0, 40.0], [-118.0, 40.0], [-118.0, 48.0], [-124.0, 48.0], [-124.0, 40.0]]]},
  "properties": {"datetime": "2017-01-01T00:00:00Z"},
  "links": [],
  "assets": {
    "data": {
      "href": "https://ai4edataeuwest.blob.core.windows.net/io-lulc/10S_2017.tif",
      "type": "image/tiff; application=geotiff",
      "file:values": [{"values": [1], "summary": "Water"}],
      "classification:classes": [
        {"value": 0, "description": "No Data", "nodata": true},
        {"value": 1, "name": "water", "description": "Water"},
        {"value": 2, "name": "", "description": "Trees / Forest"},
        {"value": 11}
      ]
    },
    "rendered_preview": {"href": "https://planetarycomputer.microsoft.com/api/data/v1/item/preview.png", "roles": ["overview"]},
    "tilejson": {"href": "https://planetarycomputer.microsoft.com/api/data/v1/item/tilejson.json", "roles": ["tiles"]}
  }
}`

func decodeItem(t *testing.T, raw string) *stac.Item {
	t.Helper()
	var item stac.Item
	require.NoError(t, json.Unmarshal([]byte(raw), &item))
	return &item
}

func TestRepair(t *testing.T) {
	item := decodeItem(t, landCoverItem)

	ch := Repair(item, RepairOptions{Collection: "io-lulc-9-class-test-42"})
	assert.True(t, ch.Any())
	assert.True(t, ch.Collection)
	assert.ElementsMatch(t, []string{"rendered_preview", "tilejson"}, ch.DroppedAssets)
	assert.Equal(t, 3, ch.ClassNames)
	assert.True(t, ch.BBox)

	assert.Equal(t, "io-lulc-9-class-test-42", item.Collection)
	assert.Equal(t, []string{"data"}, item.AssetKeys())
	assert.Equal(t, []float64{-124, 40, -118, 48}, item.Bbox)

	classes := item.ClassObjects()
	require.Len(t, classes, 4)
	assert.Equal(t, "no_data", classes[0]["name"])
	assert.Equal(t, "water", classes[1]["name"])
	assert.Equal(t, "trees_forest", classes[2]["name"])
	assert.Equal(t, "class_11", classes[3]["name"])

	// Unrelated foreign members survive.
	assert.Contains(t, item.Assets["data"].AdditionalFields, "file:values")
}

func TestRepairIdempotent(t *testing.T) {
	item := decodeItem(t, landCoverItem)
	opts := RepairOptions{Collection: "dest"}

	Repair(item, opts)
	first, err := json.Marshal(item)
	require.NoError(t, err)

	ch := Repair(item, opts)
	assert.False(t, ch.Any(), "%+v", ch)
	second, err := json.Marshal(item)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestRepairKeepsExistingBBoxAndAssets(t *testing.T) {
	item := decodeItem(t, landCoverItem)
	item.Bbox = []float64{0, 0, 1, 1}

	ch := Repair(item, RepairOptions{DropAssets: []string{}, KeepBBox: true})
	assert.False(t, ch.Collection)
	assert.Empty(t, ch.DroppedAssets)
	assert.False(t, ch.BBox)
	assert.Equal(t, "io-lulc-9-class", item.Collection)
	assert.Len(t, item.Assets, 3)
	assert.Equal(t, []float64{0, 0, 1, 1}, item.Bbox)
}

func TestRepairWithoutGeometry(t *testing.T) {
	item := &stac.Item{ID: "no-geom", Properties: map[string]any{}}
	ch := Repair(item, RepairOptions{})
	assert.False(t, ch.Any())
	assert.Nil(t, item.Bbox)

	assert.False(t, Repair(nil, RepairOptions{}).Any())
}

func TestFillClassificationNamesOnlyFillsExistingClasses(t *testing.T) {
	item := decodeItem(t, `{
	  "id": "plain",
	  "geometry": null,
	  "properties": {"datetime": "2020-01-01T00:00:00Z", "eo:cloud_cover": 3},
	  "assets": {"B01": {"href": "b01.tif", "raster:bands": [{"nodata": 0}]}}
	}`)

	assert.Zero(t, FillClassificationNames(item))
	assert.NotContains(t, item.Properties, "name")
	assert.NotContains(t, item.Assets["B01"].AdditionalFields, stac.ClassificationClasses)
}

func TestFillClassificationNamesNested(t *testing.T) {
	item := decodeItem(t, `{
	  "id": "qa",
	  "geometry": null,
	  "properties": {
	    "classification:classes": [{"value": 3, "description": "Cloud shadow"}]
	  },
	  "assets": {
	    "qa_pixel": {
	      "href": "qa.tif",
	      "classification:bitfields": [
	        {"offset": 0, "length": 1, "classes": [{"value": 0, "name": "not_fill"}, {"value": 1, "description": "Fill!"}]}
	      ],
	      "raster:bands": [
	        {"classification:classes": [{"value": 2.5}]}
	      ]
	    }
	  }
	}`)

	assert.Equal(t, 3, FillClassificationNames(item))
	assert.Zero(t, FillClassificationNames(item))

	classes := item.ClassObjects()
	names := make([]any, len(classes))
	for i, c := range classes {
		names[i] = c["name"]
	}
	assert.Equal(t, []any{"cloud_shadow", "not_fill", "fill", "class_2_5"}, names)
}

func TestFillCollectionClassNames(t *testing.T) {
	var col stac.Collection
	require.NoError(t, json.Unmarshal([]byte(`{
	  "id": "io-lulc",
	  "description": "land cover",
	  "license": "CC-BY-4.0",
	  "extent": {"spatial": {"bbox": [[-180, -90, 180, 90]]}, "temporal": {"interval": [[null, null]]}},
	  "links": [],
	  "item_assets": {
	    "data": {"classification:classes": [{"value": 5, "description": "Crops"}, {"value": 7, "name": "built"}]}
	  }
	}`), &col))

	assert.Equal(t, 1, FillCollectionClassNames(&col))
	classes := col.ClassObjects()
	require.Len(t, classes, 2)
	assert.Equal(t, "crops", classes[0]["name"])
	assert.Equal(t, "built", classes[1]["name"])

	assert.Zero(t, FillCollectionClassNames(nil))
}

func TestClassName(t *testing.T) {
	tests := []struct {
		class map[string]any
		want  string
	}{
		{map[string]any{"description": "Bare Ground", "value": 8.0}, "bare_ground"},
		{map[string]any{"description": "  --  ", "value": 8.0}, "--"},
		{map[string]any{"description": "???", "value": 8.0}, "class_8"},
		{map[string]any{"value": "snow/ice"}, "class_snow_ice"},
		{map[string]any{}, "class_4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, className(tt.class, 4), "%v", tt.class)
	}
}
