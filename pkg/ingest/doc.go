// Package ingest copies STAC items from a source catalog into a GeoCatalog
// collection.
//
// A run is strictly sequential: derive and create the destination collection,
// attach its thumbnail, stream matching items from the source search, repair
// their metadata, submit them in fixed-size batches, wait for the ingestion
// operations and finally count what landed in the collection.
package ingest
