package telemetry

import "testing"

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	b := NewBus()
	var calls []string
	b.Subscribe(SubscriberFunc(func(e Event) { calls = append(calls, "first:"+e.Type) }))
	b.Subscribe(SubscriberFunc(func(e Event) { calls = append(calls, "second:"+e.Type) }))

	b.Publish(Event{Type: "customer.created"})

	want := []string{"first:customer.created", "second:customer.created"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestBus_PreservesEmissionOrderAcrossPublishes(t *testing.T) {
	b := NewBus()
	var seen []string
	b.Subscribe(SubscriberFunc(func(e Event) { seen = append(seen, e.Type) }))

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	b.Publish(Event{Type: "c"})

	want := []string{"a", "b", "c"}
	for i, w := range want {
		if seen[i] != w {
			t.Errorf("seen[%d] = %q, want %q", i, seen[i], w)
		}
	}
}
