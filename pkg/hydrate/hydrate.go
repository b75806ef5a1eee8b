// Package hydrate implements a reference-expansion hydrator: given a
// record and a list of dotted expand paths, it replaces string ids along
// each path with the referenced record, looked up by id prefix, without
// mutating the stored original.
package hydrate

import (
	"strings"

	"github.com/EnaiaInc/paper-tiger/pkg/store"
)

// Hydrator resolves ids to records via a prefix-to-store table: the
// prefix before the first underscore in an id picks which registered
// store to look the rest of the id up in.
type Hydrator struct {
	prefixTable map[string]string // prefix -> table name, e.g. "cus" -> "customers"
	registry    *store.Registry
}

// New builds a Hydrator from a prefix table (see pkg/resources.PrefixTable)
// and the store registry it indexes into.
func New(prefixTable map[string]string, registry *store.Registry) *Hydrator {
	return &Hydrator{prefixTable: prefixTable, registry: registry}
}

// Hydrate returns obj's JSON representation with every id along each of
// paths replaced by the referenced record, where resolvable. Unresolvable
// steps (unknown prefix, missing record, non-string/non-map field) are
// left as-is; the original store is never mutated.
func (h *Hydrator) Hydrate(obj *store.Object, paths []string) map[string]interface{} {
	result := obj.ToJSON()
	for _, path := range paths {
		if path == "" {
			continue
		}
		h.expand(result, strings.Split(path, "."))
	}
	return result
}

// expand descends node along segments, replacing a resolvable string id
// with its record and recursing into the remainder of the path.
func (h *Hydrator) expand(node map[string]interface{}, segments []string) {
	if len(segments) == 0 {
		return
	}
	key := segments[0]
	val, ok := node[key]
	if !ok {
		return
	}

	switch v := val.(type) {
	case string:
		resolved, ok := h.resolve(v)
		if !ok {
			return
		}
		node[key] = resolved
		if len(segments) > 1 {
			h.expand(resolved, segments[1:])
		}
	case map[string]interface{}:
		// Already expanded (by an earlier path, or applying hydrate
		// twice) — descend without re-fetching, keeping the operation
		// idempotent.
		if len(segments) > 1 {
			h.expand(v, segments[1:])
		}
	default:
		return
	}
}

// resolve looks up idStr by its prefix, returning its JSON form.
func (h *Hydrator) resolve(idStr string) (map[string]interface{}, bool) {
	prefix, _, found := strings.Cut(idStr, "_")
	if !found {
		return nil, false
	}
	tableName, ok := h.prefixTable[prefix]
	if !ok {
		return nil, false
	}
	s := h.registry.Get(tableName)
	if s == nil {
		return nil, false
	}
	obj, ok := s.Get(idStr)
	if !ok {
		return nil, false
	}
	return obj.ToJSON(), true
}
