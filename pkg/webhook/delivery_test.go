package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/EnaiaInc/paper-tiger/pkg/clock"
	"github.com/EnaiaInc/paper-tiger/pkg/store"
	"github.com/EnaiaInc/paper-tiger/pkg/telemetry"
)

func TestSign_IsDeterministicAndVerifiable(t *testing.T) {
	sig1 := Sign("whsec_123", 1000, []byte(`{"a":1}`))
	sig2 := Sign("whsec_123", 1000, []byte(`{"a":1}`))
	if sig1 != sig2 {
		t.Error("signing the same input twice should be deterministic")
	}
	if Sign("whsec_other", 1000, []byte(`{"a":1}`)) == sig1 {
		t.Error("different secrets must produce different signatures")
	}
}

func TestEndpoint_MatchesAllowlist(t *testing.T) {
	ep := &Endpoint{ID: "we_1", Events: []string{"charge.succeeded"}}
	if !ep.Matches("charge.succeeded") {
		t.Error("expected match on listed event type")
	}
	if ep.Matches("charge.failed") {
		t.Error("expected no match on unlisted event type")
	}

	open := &Endpoint{ID: "we_2"}
	if !open.Matches("anything.at_all") {
		t.Error("empty Events allowlist should match every event type")
	}
}

func newTestPipeline(t *testing.T, handler http.HandlerFunc) (*Pipeline, *clock.Clock, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	clk := clock.New()
	clk.SetMode(clock.Manual, 1)
	p := NewPipeline(clk, nil, 2)
	p.Start()
	t.Cleanup(func() {
		p.Stop()
		srv.Close()
	})
	return p, clk, srv
}

func TestPipeline_DeliversAndRecordsSuccess(t *testing.T) {
	var receivedSig string
	var mu sync.Mutex
	p, clk, srv := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		receivedSig = r.Header.Get("stripe-signature")
		mu.Unlock()
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	})

	p.Endpoints().Register(&Endpoint{ID: "we_1", URL: srv.URL, Secret: "whsec_test"})
	p.Submit(telemetry.Event{ID: "evt_1", Type: "charge.succeeded", Created: clk.Now(), Data: map[string]interface{}{"id": "ch_1"}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := receivedSig
		mu.Unlock()
		if got != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if receivedSig == "" {
		t.Fatal("expected a stripe-signature header to have been sent")
	}
}

func TestPipeline_RetriesOnFailureAfterBackoff(t *testing.T) {
	var calls int32
	p, clk, srv := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
	})

	p.Endpoints().Register(&Endpoint{ID: "we_1", URL: srv.URL, Secret: "whsec_test"})
	p.Submit(telemetry.Event{ID: "evt_1", Type: "charge.failed", Created: clk.Now()})

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&calls) >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt32(&calls) < 1 {
		t.Fatal("expected at least the first attempt to fire")
	}

	clk.Advance(backoffSeconds[0] + 1)
	n := p.ProcessPending()
	if n != 1 {
		t.Fatalf("ProcessPending = %d, want 1 due retry", n)
	}

	deadline = time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&calls) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt32(&calls) < 2 {
		t.Fatal("expected a second attempt after advancing past the backoff delay")
	}
}

func TestPipeline_ProcessPendingIgnoresNotYetDue(t *testing.T) {
	p, clk, srv := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
	})
	_ = srv

	p.mu.Lock()
	p.pending = append(p.pending, pendingRetry{
		job:           job{deliveryID: "whdel_x", endpoint: &Endpoint{ID: "we_1", URL: srv.URL}, attempt: 2},
		nextAttemptAt: clk.Now() + 1000,
	})
	p.mu.Unlock()

	if n := p.ProcessPending(); n != 0 {
		t.Errorf("ProcessPending = %d, want 0 (retry not yet due)", n)
	}
}

func TestDeliveryRecord_MarshalsCleanly(t *testing.T) {
	p, clk, srv := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	})
	p.Endpoints().Register(&Endpoint{ID: "we_1", URL: srv.URL, Secret: "s"})
	p.Submit(telemetry.Event{ID: "evt_1", Type: "charge.succeeded", Created: clk.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && p.Deliveries().Count() == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	page := p.Deliveries().List(store.DefaultListOptions())
	if len(page.Data) == 0 {
		t.Fatal("expected a delivery record")
	}
	if _, err := json.Marshal(page.Data[0].ToJSON()); err != nil {
		t.Errorf("delivery record does not marshal cleanly: %v", err)
	}
}
