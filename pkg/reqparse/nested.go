// Package reqparse implements request-shape adapters: bracketed
// nested-form unflattening (the wire format real payment APIs use for
// `application/x-www-form-urlencoded` bodies, e.g.
// `card[number]=4242...&metadata[order_id]=6735`) and `expand[]` path
// parsing.
package reqparse

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxDepth bounds how many levels a single key may have, counting the base
// name and each bracket as one level, guarding against pathological input
// like `a[b][c][d][e][f][g][h][i][j][k]=1` (11 levels).
const MaxDepth = 10

// MaxParams bounds the number of top-level form keys accepted in one
// request body.
const MaxParams = 1000

// MaxIndex bounds the highest array index a single bracket segment may
// address, guarding against a single key like `items[999999]` forcing
// allocation of a near-million-element backing slice.
const MaxIndex = 1000

// ErrTooDeep is returned when a key nests more brackets than MaxDepth.
var ErrTooDeep = fmt.Errorf("reqparse: key nests more than %d levels", MaxDepth)

// ErrTooManyParams is returned when a form body carries more than
// MaxParams top-level keys.
var ErrTooManyParams = fmt.Errorf("reqparse: more than %d form parameters", MaxParams)

// ErrIndexTooLarge is returned when a bracketed array index exceeds MaxIndex.
var ErrIndexTooLarge = fmt.Errorf("reqparse: array index exceeds %d", MaxIndex)

// Values is the minimal shape reqparse needs from a parsed form body:
// multiple values per key, in url.Values order.
type Values map[string][]string

// ParseNested expands a flat, bracket-keyed form body (as produced by
// url.ParseQuery/ParseForm) into a nested map[string]interface{} tree.
//
// Key grammar: `name`, `name[sub]`, `name[]` (array append), or
// `name[0]`..`name[1000]` (indexed array slot). Arbitrary nesting of
// these is allowed up to MaxDepth, e.g. `items[0][price]`.
func ParseNested(values Values) (map[string]interface{}, error) {
	if len(values) > MaxParams {
		return nil, ErrTooManyParams
	}

	root := make(map[string]interface{})
	for key, vs := range values {
		if len(vs) == 0 {
			continue
		}
		path, err := splitPath(key)
		if err != nil {
			return nil, err
		}
		if len(path) > MaxDepth {
			return nil, ErrTooDeep
		}
		for _, v := range vs {
			if err := assign(root, path, v); err != nil {
				return nil, err
			}
		}
	}
	return Flatten(root).(map[string]interface{}), nil
}

// segment is one step of a bracketed key path: either a named field or an
// array slot (explicit index, or append when append is true).
type segment struct {
	name   string
	isIdx  bool
	index  int
	append bool
}

// splitPath turns "card[number]" into [{name:"card"}, {name:"number"}]
// and "items[0][price]" into [{name:"items"}, {isIdx:true,index:0}, {name:"price"}].
func splitPath(key string) ([]segment, error) {
	var segs []segment

	name, rest := splitFirst(key)
	segs = append(segs, segment{name: name})

	for rest != "" {
		if rest[0] != '[' {
			return nil, fmt.Errorf("reqparse: malformed key %q", key)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, fmt.Errorf("reqparse: unterminated bracket in key %q", key)
		}
		inner := rest[1:end]
		rest = rest[end+1:]

		switch {
		case inner == "":
			segs = append(segs, segment{append: true})
		default:
			if n, err := strconv.Atoi(inner); err == nil && n >= 0 {
				if n > MaxIndex {
					return nil, ErrIndexTooLarge
				}
				segs = append(segs, segment{isIdx: true, index: n})
			} else {
				segs = append(segs, segment{name: inner})
			}
		}
	}
	return segs, nil
}

func splitFirst(key string) (name, rest string) {
	if i := strings.IndexByte(key, '['); i >= 0 {
		return key[:i], key[i:]
	}
	return key, ""
}

// assign walks path into root, creating maps/slices as needed, and sets
// the final segment to value.
func assign(root map[string]interface{}, path []segment, value string) error {
	if len(path) == 0 {
		return fmt.Errorf("reqparse: empty key path")
	}

	// current always refers to "the container that owns the next segment's slot"
	var cur interface{} = root
	for i := 0; i < len(path)-1; i++ {
		cur = descend(cur, path[i], path[i+1])
	}
	return setLeaf(cur, path[len(path)-1], value)
}

// descend returns the child container addressed by seg within parent,
// creating it (as a map or slice, based on next's shape) if absent.
func descend(parent interface{}, seg segment, next segment) interface{} {
	wantSlice := next.isIdx || next.append

	switch p := parent.(type) {
	case map[string]interface{}:
		key := seg.name
		if seg.isIdx || seg.append {
			key = strconv.Itoa(seg.index) // shouldn't normally happen at map level
		}
		if existing, ok := p[key]; ok {
			return existing
		}
		var child interface{}
		if wantSlice {
			child = &[]interface{}{}
		} else {
			child = make(map[string]interface{})
		}
		p[key] = derefIfSlice(child)
		return child
	case *[]interface{}:
		idx := seg.index
		if seg.append {
			idx = len(*p)
		}
		for len(*p) <= idx {
			*p = append(*p, nil)
		}
		if (*p)[idx] != nil {
			return (*p)[idx]
		}
		var child interface{}
		if wantSlice {
			child = &[]interface{}{}
		} else {
			child = make(map[string]interface{})
		}
		(*p)[idx] = derefIfSlice(child)
		return child
	default:
		return make(map[string]interface{})
	}
}

func derefIfSlice(v interface{}) interface{} {
	if s, ok := v.(*[]interface{}); ok {
		return s
	}
	return v
}

func setLeaf(container interface{}, seg segment, value string) error {
	switch c := container.(type) {
	case map[string]interface{}:
		key := seg.name
		c[key] = value
		return nil
	case *[]interface{}:
		idx := seg.index
		if seg.append {
			idx = len(*c)
		}
		for len(*c) <= idx {
			*c = append(*c, nil)
		}
		(*c)[idx] = value
		return nil
	default:
		return fmt.Errorf("reqparse: cannot set leaf on %T", container)
	}
}

// Flatten walks a nested map produced by ParseNested and converts any
// *[]interface{} pointers left behind by descend/setLeaf into plain
// []interface{} slices, recursively, so the result is safe to
// json.Marshal directly.
func Flatten(v interface{}) interface{} {
	switch t := v.(type) {
	case *[]interface{}:
		out := make([]interface{}, len(*t))
		for i, e := range *t {
			out[i] = Flatten(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = Flatten(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = Flatten(e)
		}
		return out
	default:
		return v
	}
}
