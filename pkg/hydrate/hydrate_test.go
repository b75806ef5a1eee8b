package hydrate

import (
	"testing"

	"github.com/EnaiaInc/paper-tiger/pkg/store"
)

func setup() (*Hydrator, *store.Store, *store.Store) {
	customers := store.New("customers")
	charges := store.New("charges")
	registry := store.NewRegistry()
	registry.Register("customers", customers)
	registry.Register("charges", charges)

	h := New(map[string]string{"cus": "customers", "ch": "charges"}, registry)
	return h, customers, charges
}

func TestHydrate_ExpandsKnownPrefix(t *testing.T) {
	h, customers, charges := setup()
	cus := store.NewObject("cus_1", "customer", 1)
	cus.Fields["email"] = "a@b.com"
	customers.Insert(cus)

	ch := store.NewObject("ch_1", "charge", 2)
	ch.Fields["customer"] = "cus_1"
	charges.Insert(ch)

	got := h.Hydrate(ch, []string{"customer"})
	customerField, ok := got["customer"].(map[string]interface{})
	if !ok {
		t.Fatalf("customer = %T, want map", got["customer"])
	}
	if customerField["email"] != "a@b.com" {
		t.Errorf("email = %v", customerField["email"])
	}
}

func TestHydrate_UnknownPrefixLeftAsString(t *testing.T) {
	h, _, charges := setup()
	ch := store.NewObject("ch_1", "charge", 2)
	ch.Fields["customer"] = "zzz_unknown"
	charges.Insert(ch)

	got := h.Hydrate(ch, []string{"customer"})
	if got["customer"] != "zzz_unknown" {
		t.Errorf("customer = %v, want unchanged string", got["customer"])
	}
}

func TestHydrate_MissingRecordLeftAsString(t *testing.T) {
	h, _, charges := setup()
	ch := store.NewObject("ch_1", "charge", 2)
	ch.Fields["customer"] = "cus_missing"
	charges.Insert(ch)

	got := h.Hydrate(ch, []string{"customer"})
	if got["customer"] != "cus_missing" {
		t.Errorf("customer = %v, want unchanged string", got["customer"])
	}
}

func TestHydrate_Idempotent(t *testing.T) {
	h, customers, charges := setup()
	cus := store.NewObject("cus_1", "customer", 1)
	cus.Fields["email"] = "a@b.com"
	customers.Insert(cus)

	ch := store.NewObject("ch_1", "charge", 2)
	ch.Fields["customer"] = "cus_1"
	charges.Insert(ch)

	once := h.Hydrate(ch, []string{"customer"})

	// Simulate applying hydrate a second time to an already-expanded
	// record by feeding the expanded map back through expand() via a
	// synthetic object wrapping it.
	again := store.NewObject(ch.ID, ch.Type, ch.Created)
	again.Fields = map[string]any{"customer": once["customer"]}
	twice := h.Hydrate(again, []string{"customer"})

	onceEmail := once["customer"].(map[string]interface{})["email"]
	twiceEmail := twice["customer"].(map[string]interface{})["email"]
	if onceEmail != twiceEmail {
		t.Errorf("hydrate is not idempotent: %v != %v", onceEmail, twiceEmail)
	}
}

func TestHydrate_DoesNotMutateStore(t *testing.T) {
	h, customers, charges := setup()
	cus := store.NewObject("cus_1", "customer", 1)
	customers.Insert(cus)

	ch := store.NewObject("ch_1", "charge", 2)
	ch.Fields["customer"] = "cus_1"
	charges.Insert(ch)

	h.Hydrate(ch, []string{"customer"})

	stored, _ := charges.Get("ch_1")
	if _, isString := stored.Fields["customer"].(string); !isString {
		t.Error("hydration must not mutate the stored record's fields")
	}
}
