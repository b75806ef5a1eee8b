// Package resources implements a uniform resource-dispatch handler
// family: a single generic create/retrieve/update/delete/list
// implementation parameterized per resource type, backed by pkg/store
// and publishing every mutation to pkg/telemetry.
package resources

import "github.com/santhosh-tekuri/jsonschema/v5"

// DeleteAction controls what a resource's delete operation actually does
// to the stored record — most resources are removed outright, but a few
// (subscriptions) are state-transitioned instead.
type DeleteAction int

const (
	// DeleteRemoves physically deletes the record from the store.
	DeleteRemoves DeleteAction = iota
	// DeleteCancels sets Fields["status"] = "canceled" and re-inserts the
	// record instead of removing it, emitting an update event rather than
	// a delete event.
	DeleteCancels
)

// Definition describes one resource type to the generic dispatcher: its
// wire name, object tag, id prefix, and any fields that resist the normal
// update-overlay semantics.
type Definition struct {
	// Name is the plural route segment, e.g. "customers".
	Name string
	// Object is the "object" field value stamped on every record, e.g.
	// "customer".
	Object string
	// Prefix is the id prefix, e.g. "cus".
	Prefix string
	// Immutable lists additional field names (beyond id/object/created)
	// that an update must not overwrite, e.g. "subscription" on
	// subscription-items.
	Immutable []string
	// DeleteAction controls delete semantics (see DeleteAction).
	DeleteAction DeleteAction
	// Defaults, if non-nil, returns additional fields to seed on create
	// before the caller-provided params are merged in, e.g. a
	// subscription's initial "status": "active".
	Defaults func() map[string]interface{}
	// Schema, if non-nil, validates create/update params before merge.
	// Off by default; a resource opts in by compiling one with
	// CompileSchema and attaching it here.
	Schema *jsonschema.Schema
}

func (d Definition) isImmutable(field string) bool {
	switch field {
	case "id", "object", "created":
		return true
	}
	for _, f := range d.Immutable {
		if f == field {
			return true
		}
	}
	return false
}
