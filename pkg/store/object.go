package store

// Object is a tagged document: the uniform shape every mock resource is
// stored as. Fields holds resource-specific data (including references to
// other objects by id); system attributes are kept separate so callers
// never accidentally clobber id/object/created when merging updates.
type Object struct {
	ID       string
	Type     string // echoed as the "object" field, e.g. "customer"
	Created  int64
	Livemode bool
	Fields   map[string]any
}

// NewObject builds an Object with empty Fields.
func NewObject(id, objType string, created int64) *Object {
	return &Object{
		ID:      id,
		Type:    objType,
		Created: created,
		Fields:  make(map[string]any),
	}
}

// Clone returns a shallow copy of the Object with a freshly copied Fields
// map, so callers can mutate the copy (e.g. during hydration) without
// affecting the stored original.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	fields := make(map[string]any, len(o.Fields))
	for k, v := range o.Fields {
		fields[k] = v
	}
	return &Object{
		ID:       o.ID,
		Type:     o.Type,
		Created:  o.Created,
		Livemode: o.Livemode,
		Fields:   fields,
	}
}

// ToJSON flattens the Object into a root-level map suitable for JSON
// encoding: Fields are merged at the top, with id/object/created/livemode
// set (overriding anything of the same name in Fields).
func (o *Object) ToJSON() map[string]any {
	result := make(map[string]any, len(o.Fields)+4)
	for k, v := range o.Fields {
		result[k] = v
	}
	result["id"] = o.ID
	result["object"] = o.Type
	result["created"] = o.Created
	result["livemode"] = o.Livemode
	return result
}

// Get reads a field, returning (nil, false) if absent.
func (o *Object) Get(field string) (any, bool) {
	v, ok := o.Fields[field]
	return v, ok
}

// GetString reads a string-typed field, returning "" if absent or not a string.
func (o *Object) GetString(field string) string {
	if v, ok := o.Fields[field]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
