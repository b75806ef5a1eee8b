package chaos

import (
	"testing"
	"time"
)

func TestEvaluatePayment_Disabled(t *testing.T) {
	c := New(Config{}, 1)
	out := c.EvaluatePayment("cus_1")
	if out.Declined {
		t.Error("disabled chaos must never decline")
	}
}

func TestEvaluatePayment_CustomerOverrideTakesPrecedence(t *testing.T) {
	cfg := Config{Payment: PaymentConfig{
		Enabled:           true,
		GlobalFailureRate: 0, // would never decline on its own
		CustomerOverrides: map[string]CustomerOverride{
			"cus_force": {ForceDecline: true, DeclineCode: "stolen_card"},
		},
	}}
	c := New(cfg, 1)
	out := c.EvaluatePayment("cus_force")
	if !out.Declined || out.DeclineCode != "stolen_card" {
		t.Errorf("out = %+v", out)
	}
}

func TestEvaluatePayment_GlobalFailureRateOne(t *testing.T) {
	cfg := Config{Payment: PaymentConfig{Enabled: true, GlobalFailureRate: 1.0}}
	c := New(cfg, 42)
	out := c.EvaluatePayment("cus_any")
	if !out.Declined || out.DeclineCode == "" {
		t.Errorf("out = %+v, want a decline with a code", out)
	}
}

func TestEvaluatePayment_GlobalFailureRateZero(t *testing.T) {
	cfg := Config{Payment: PaymentConfig{Enabled: true, GlobalFailureRate: 0}}
	c := New(cfg, 42)
	out := c.EvaluatePayment("cus_any")
	if out.Declined {
		t.Error("zero failure rate should never decline")
	}
}

func TestSnapshot_CountsAttemptsAndDeclines(t *testing.T) {
	cfg := Config{Payment: PaymentConfig{Enabled: true, GlobalFailureRate: 1.0}}
	c := New(cfg, 7)
	c.EvaluatePayment("cus_1")
	c.EvaluatePayment("cus_2")

	snap := c.Snapshot()
	if snap.PaymentAttempts != 2 || snap.PaymentDeclines != 2 {
		t.Errorf("snap = %+v", snap)
	}
}

func TestReset_ZeroesCounters(t *testing.T) {
	cfg := Config{Payment: PaymentConfig{Enabled: true, GlobalFailureRate: 1.0}}
	c := New(cfg, 7)
	c.EvaluatePayment("cus_1")
	c.Reset()

	snap := c.Snapshot()
	if snap.PaymentAttempts != 0 || len(snap.DeclinesByCode) != 0 {
		t.Errorf("snap after Reset = %+v", snap)
	}
}

func TestEventSubmit_ImmediateWhenBufferDisabled(t *testing.T) {
	c := New(Config{Event: EventConfig{Enabled: false}}, 1)

	var delivered [][]interface{}
	c.EventSubmit("evt_1", func(batch []interface{}) { delivered = append(delivered, batch) })

	if len(delivered) != 1 || len(delivered[0]) != 1 || delivered[0][0] != "evt_1" {
		t.Errorf("delivered = %+v", delivered)
	}
}

func TestEventSubmit_BuffersAndFlushesOnTimer(t *testing.T) {
	cfg := Config{Event: EventConfig{Enabled: true, BufferProbability: 1.0, FlushAfter: 0}}
	c := New(cfg, 1)

	done := make(chan []interface{}, 1)
	c.EventSubmit("evt_1", func(batch []interface{}) { done <- batch })
	c.EventSubmit("evt_2", func(batch []interface{}) { done <- batch })

	select {
	case batch := <-done:
		if len(batch) != 2 {
			t.Errorf("batch = %+v, want 2 buffered items", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("buffered events were never flushed")
	}
}

func TestEvaluateAPI_Disabled(t *testing.T) {
	c := New(Config{}, 1)
	if action := c.EvaluateAPI(); action != APIActionNone {
		t.Errorf("action = %v, want APIActionNone", action)
	}
}

func TestEvaluateAPI_ServerErrorBand(t *testing.T) {
	cfg := Config{API: APIConfig{Enabled: true, ServerErrorProbability: 1.0}}
	c := New(cfg, 1)
	if action := c.EvaluateAPI(); action != APIActionServerError {
		t.Errorf("action = %v, want APIActionServerError", action)
	}
}

func TestConfig_Validate_RejectsOutOfRangeProbability(t *testing.T) {
	cfg := Config{Payment: PaymentConfig{GlobalFailureRate: 1.5}}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject a failure rate > 1.0")
	}
}
