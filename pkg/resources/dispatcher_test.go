package resources

import (
	"testing"

	"github.com/EnaiaInc/paper-tiger/pkg/clock"
	"github.com/EnaiaInc/paper-tiger/pkg/store"
	"github.com/EnaiaInc/paper-tiger/pkg/telemetry"
)

func newDispatcher(def Definition) (*Dispatcher, *clock.Clock, []telemetry.Event) {
	clk := clock.New()
	clk.SetMode(clock.Manual, 1)
	s := store.New(def.Name)
	bus := telemetry.NewBus()

	var events []telemetry.Event
	bus.Subscribe(telemetry.SubscriberFunc(func(e telemetry.Event) { events = append(events, e) }))

	d := New(def, s, clk, bus)
	return d, clk, events
}

func TestCreate_GeneratesPrefixedID(t *testing.T) {
	d, _, _ := newDispatcher(Definition{Name: "customers", Object: "customer", Prefix: "cus"})

	obj, err := d.Create(map[string]interface{}{"email": "a@b.com"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if obj.ID[:4] != "cus_" {
		t.Errorf("ID = %q, want cus_ prefix", obj.ID)
	}
	if obj.Fields["email"] != "a@b.com" {
		t.Errorf("email = %v", obj.Fields["email"])
	}
}

func TestCreate_PublishesCreatedEvent(t *testing.T) {
	d, _, _ := newDispatcher(Definition{Name: "customers", Object: "customer", Prefix: "cus"})

	var got []telemetry.Event
	d.Bus.Subscribe(telemetry.SubscriberFunc(func(e telemetry.Event) { got = append(got, e) }))

	obj, _ := d.Create(map[string]interface{}{"email": "a@b.com"})
	if len(got) != 1 || got[0].Type != "customer.created" {
		t.Fatalf("got = %+v", got)
	}
	if got[0].Data["id"] != obj.ID {
		t.Errorf("event data id = %v, want %v", got[0].Data["id"], obj.ID)
	}
}

func TestRetrieve_NotFound(t *testing.T) {
	d, _, _ := newDispatcher(Definition{Name: "customers", Object: "customer", Prefix: "cus"})
	_, err := d.Retrieve("cus_missing")
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if err.Type != "invalid_request_error" {
		t.Errorf("err.Type = %s", err.Type)
	}
	if err.StatusCode() != 404 {
		t.Errorf("err.StatusCode() = %d, want 404", err.StatusCode())
	}
}

func TestUpdate_OverlaysAndSkipsImmutable(t *testing.T) {
	d, _, _ := newDispatcher(Definition{Name: "customers", Object: "customer", Prefix: "cus"})
	obj, _ := d.Create(map[string]interface{}{"email": "a@b.com"})
	createdAt := obj.Created

	updated, err := d.Update(obj.ID, map[string]interface{}{
		"email":   "alice@b.com",
		"created": int64(999999),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Fields["email"] != "alice@b.com" {
		t.Errorf("email = %v", updated.Fields["email"])
	}
	if updated.Created != createdAt {
		t.Errorf("created changed: %d -> %d", createdAt, updated.Created)
	}
}

func TestUpdate_NilValueDropsField(t *testing.T) {
	d, _, _ := newDispatcher(Definition{Name: "customers", Object: "customer", Prefix: "cus"})
	obj, _ := d.Create(map[string]interface{}{"email": "a@b.com", "name": "Alice"})

	updated, err := d.Update(obj.ID, map[string]interface{}{"name": nil})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, ok := updated.Fields["name"]; ok {
		t.Error("name should have been dropped")
	}
}

func TestDelete_RemovesByDefault(t *testing.T) {
	d, _, _ := newDispatcher(Definition{Name: "customers", Object: "customer", Prefix: "cus"})
	obj, _ := d.Create(map[string]interface{}{})

	result, err := d.Delete(obj.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !result.Deleted || result.ID != obj.ID {
		t.Errorf("result = %+v", result)
	}
	if _, ok := d.Store.Get(obj.ID); ok {
		t.Error("expected record to be physically removed")
	}
}

func TestDelete_CancelsInsteadOfRemoving(t *testing.T) {
	def := Definition{
		Name:         "subscriptions",
		Object:       "subscription",
		Prefix:       "sub",
		DeleteAction: DeleteCancels,
		Defaults:     func() map[string]interface{} { return map[string]interface{}{"status": "active"} },
	}
	d, _, _ := newDispatcher(def)
	obj, _ := d.Create(map[string]interface{}{})

	result, err := d.Delete(obj.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !result.Deleted {
		t.Error("wire response must still report deleted:true")
	}
	stored, ok := d.Store.Get(obj.ID)
	if !ok {
		t.Fatal("record should still exist")
	}
	if stored.Fields["status"] != "canceled" {
		t.Errorf("status = %v, want canceled", stored.Fields["status"])
	}
}

func TestList_RendersToJSON(t *testing.T) {
	d, _, _ := newDispatcher(Definition{Name: "customers", Object: "customer", Prefix: "cus"})
	d.Create(map[string]interface{}{"email": "a@b.com"})
	d.Create(map[string]interface{}{"email": "c@d.com"})

	resp := d.List(store.DefaultListOptions())
	if resp.Object != "list" || len(resp.Data) != 2 {
		t.Errorf("resp = %+v", resp)
	}
}
