package store

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// CompileFilter compiles a small expr-lang boolean expression (e.g.
// `customer == "cus_123"`) into a Filter evaluated against an Object's
// fields (plus "id") for each List call. This is how the resource
// dispatcher implements per-resource list filters such as
// `?customer=cus_123` without hand-rolling a predicate per resource.
func CompileFilter(source string) (Filter, error) {
	if source == "" {
		return nil, nil
	}

	program, err := expr.Compile(source, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("store: compiling filter %q: %w", source, err)
	}

	return func(obj *Object) bool {
		env := make(map[string]any, len(obj.Fields)+1)
		for k, v := range obj.Fields {
			env[k] = v
		}
		env["id"] = obj.ID

		out, err := vm.Run(program, env)
		if err != nil {
			return false
		}
		match, _ := out.(bool)
		return match
	}, nil
}

// EqualsFilter returns a Filter matching objects whose field is a string
// equal to value, without expression compilation. The server uses it for
// list-filter keys that are not bare identifiers and for the
// delivery-ledger lookup by webhook_id.
func EqualsFilter(field, value string) Filter {
	return func(obj *Object) bool {
		if field == "id" {
			return obj.ID == value
		}
		v, ok := obj.Fields[field]
		if !ok {
			return false
		}
		s, ok := v.(string)
		return ok && s == value
	}
}
