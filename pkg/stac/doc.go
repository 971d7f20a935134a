// Package stac provides types for working with SpatioTemporal Asset Catalog (STAC) data.
//
// Item, Collection, Asset and Link keep "foreign members" (fields not defined by
// the core STAC specification, such as extension fields like "raster:bands" or
// "msft:storage_account") in an AdditionalFields map, so a document can be read
// from one catalog and written to another without losing metadata.
//
// Example usage:
//
//	var item stac.Item
//	json.Unmarshal(data, &item)
//
//	for _, class := range item.ClassObjects() {
//	    fmt.Println(class["value"], class["name"])
//	}
package stac
