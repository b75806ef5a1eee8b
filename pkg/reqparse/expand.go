package reqparse

import "net/url"

// ParseExpand reads repeated `expand[]=a.b.c` query parameters into a list
// of dotted reference paths, e.g. ["customer", "invoice.subscription"].
// Unknown or malformed entries are passed through uninterpreted; resolving
// them is the hydrator's job (pkg/hydrate), not the parser's.
func ParseExpand(query url.Values) []string {
	var paths []string
	paths = append(paths, query["expand[]"]...)
	paths = append(paths, query["expand"]...)
	return paths
}
