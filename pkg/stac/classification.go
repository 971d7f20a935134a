package stac

// Field names of the classification extension
// (https://stac-extensions.github.io/classification/).
const (
	ClassificationClasses   = "classification:classes"
	ClassificationBitfields = "classification:bitfields"
	RasterBands             = "raster:bands"
)

// ClassObjects walks fields and returns every classification class object:
// entries of "classification:classes", the "classes" of every entry of
// "classification:bitfields", and the same keys inside each "raster:bands"
// entry. The returned maps alias fields.
func ClassObjects(fields map[string]any) []map[string]any {
	if len(fields) == 0 {
		return nil
	}

	var out []map[string]any
	out = append(out, objects(fields[ClassificationClasses])...)
	for _, bitfield := range objects(fields[ClassificationBitfields]) {
		out = append(out, objects(bitfield["classes"])...)
	}
	for _, band := range objects(fields[RasterBands]) {
		out = append(out, ClassObjects(band)...)
	}
	return out
}

func objects(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if m, ok := entry.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
