package extract

// Catalog of known log columns, grouped the way source sinks emit them.
// The extractor projects only the intersection of this catalog with the live
// table schema; everything else in the table is ignored.
var (
	coreColumns = []string{
		"insert_id",
		"timestamp",
		"receive_timestamp",
		"severity",
		"log_name",
	}

	payloadColumns = []string{
		"text_payload",
		"json_payload",
		"proto_payload",
	}

	contextColumns = []string{
		"http_request",
		"resource",
		"operation",
		"source_location",
		"labels",
		"trace",
		"span_id",
		"trace_sampled",
	}
)

// SelectColumns intersects the column catalog with the live schema,
// preserving catalog order. Missing optional columns simply drop out of the
// projection and stay nil on the record.
func SelectColumns(available []string) []string {
	present := make(map[string]struct{}, len(available))
	for _, column := range available {
		present[column] = struct{}{}
	}

	catalog := make([]string, 0, len(coreColumns)+len(payloadColumns)+len(contextColumns))
	catalog = append(catalog, coreColumns...)
	catalog = append(catalog, payloadColumns...)
	catalog = append(catalog, contextColumns...)

	selected := make([]string, 0, len(catalog))

	for _, column := range catalog {
		if _, ok := present[column]; ok {
			selected = append(selected, column)
		}
	}

	return selected
}

// HasColumn reports whether the projection carries a column.
func HasColumn(columns []string, name string) bool {
	for _, column := range columns {
		if column == name {
			return true
		}
	}

	return false
}
