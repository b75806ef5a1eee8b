package resources

import (
	"github.com/EnaiaInc/paper-tiger/internal/id"
	"github.com/EnaiaInc/paper-tiger/pkg/apierror"
	"github.com/EnaiaInc/paper-tiger/pkg/clock"
	"github.com/EnaiaInc/paper-tiger/pkg/store"
	"github.com/EnaiaInc/paper-tiger/pkg/telemetry"
)

// Dispatcher is the generic create/retrieve/update/delete/list
// implementation for one resource type.
type Dispatcher struct {
	Def   Definition
	Store *store.Store
	Clock *clock.Clock
	Bus   *telemetry.Bus
}

// New creates a Dispatcher for def, backed by s and driven by clk. Events
// are published to bus, if non-nil.
func New(def Definition, s *store.Store, clk *clock.Clock, bus *telemetry.Bus) *Dispatcher {
	return &Dispatcher{Def: def, Store: s, Clock: clk, Bus: bus}
}

func (d *Dispatcher) publish(eventType string, obj *store.Object) {
	if d.Bus == nil {
		return
	}
	d.Bus.Publish(telemetry.Event{
		ID:      id.Prefixed("evt"),
		Type:    eventType,
		Created: d.Clock.Now(),
		Data:    obj.ToJSON(),
	})
}

// Create builds a new record from params, merging in resource defaults,
// generating an id if absent, and inserting it into the store.
func (d *Dispatcher) Create(params map[string]interface{}) (*store.Object, *apierror.Error) {
	if err := validateParams(d.Def.Schema, params); err != nil {
		return nil, apierror.New(apierror.InvalidRequest, err.Error())
	}

	now := d.Clock.Now()

	objID, _ := params["id"].(string)
	if objID == "" {
		objID = id.Prefixed(d.Def.Prefix)
	}

	obj := store.NewObject(objID, d.Def.Object, now)
	if d.Def.Defaults != nil {
		for k, v := range d.Def.Defaults() {
			obj.Fields[k] = v
		}
	}
	for k, v := range params {
		if k == "id" {
			continue
		}
		if v == nil {
			continue
		}
		obj.Fields[k] = v
	}

	if _, err := d.Store.Insert(obj); err != nil {
		return nil, apierror.New(apierror.InvalidRequest, err.Error())
	}

	d.publish(d.Def.Object+".created", obj)
	return obj, nil
}

// Retrieve fetches a record by id.
func (d *Dispatcher) Retrieve(objID string) (*store.Object, *apierror.Error) {
	obj, ok := d.Store.Get(objID)
	if !ok {
		return nil, apierror.NotFoundErr(d.Def.Object, objID)
	}
	return obj, nil
}

// Update overlays params onto the existing record for objID, skipping
// immutable fields and dropping any field whose value is explicitly nil
// (a JSON null).
func (d *Dispatcher) Update(objID string, params map[string]interface{}) (*store.Object, *apierror.Error) {
	if err := validateParams(d.Def.Schema, params); err != nil {
		return nil, apierror.New(apierror.InvalidRequest, err.Error())
	}

	existing, ok := d.Store.Get(objID)
	if !ok {
		return nil, apierror.NotFoundErr(d.Def.Object, objID)
	}

	updated := existing.Clone()
	for k, v := range params {
		if d.Def.isImmutable(k) {
			continue
		}
		if v == nil {
			delete(updated.Fields, k)
			continue
		}
		updated.Fields[k] = v
	}

	if _, err := d.Store.Update(updated); err != nil {
		return nil, apierror.New(apierror.Internal, err.Error())
	}

	d.publish(d.Def.Object+".updated", updated)
	return updated, nil
}

// DeleteResult is the `{deleted, id, object}` response body every delete
// operation produces, whether or not the record was physically removed.
type DeleteResult struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
	Object  string `json:"object"`
}

// Delete removes objID from the store, or — for resources configured with
// DeleteCancels — transitions it to a canceled status instead.
func (d *Dispatcher) Delete(objID string) (*DeleteResult, *apierror.Error) {
	existing, ok := d.Store.Get(objID)
	if !ok {
		return nil, apierror.NotFoundErr(d.Def.Object, objID)
	}

	if d.Def.DeleteAction == DeleteCancels {
		updated := existing.Clone()
		updated.Fields["status"] = "canceled"
		if _, err := d.Store.Update(updated); err != nil {
			return nil, apierror.New(apierror.Internal, err.Error())
		}
		d.publish(d.Def.Object+".updated", updated)
	} else {
		d.Store.Delete(objID)
		d.publish(d.Def.Object+".deleted", existing)
	}

	return &DeleteResult{Deleted: true, ID: objID, Object: d.Def.Object}, nil
}

// ListResponse is the `{object:"list", data, has_more, url}` envelope.
type ListResponse struct {
	Object  string           `json:"object"`
	URL     string           `json:"url"`
	HasMore bool             `json:"has_more"`
	Data    []map[string]any `json:"data"`
}

// List returns a cursor-paginated page of records, rendered to their
// wire JSON shape.
func (d *Dispatcher) List(opts store.ListOptions) *ListResponse {
	page := d.Store.List(opts)
	data := make([]map[string]any, len(page.Data))
	for i, obj := range page.Data {
		data[i] = obj.ToJSON()
	}
	return &ListResponse{
		Object:  "list",
		URL:     "/v1/" + d.Def.Name,
		HasMore: page.HasMore,
		Data:    data,
	}
}
