package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/EnaiaInc/paper-tiger/internal/id"
	"github.com/EnaiaInc/paper-tiger/pkg/chaos"
	"github.com/EnaiaInc/paper-tiger/pkg/clock"
	"github.com/EnaiaInc/paper-tiger/pkg/logging"
	"github.com/EnaiaInc/paper-tiger/pkg/store"
	"github.com/EnaiaInc/paper-tiger/pkg/telemetry"
)

// backoffSeconds is the retry delay schedule, indexed by attempt number
// (1-based). An endpoint is given up on after MaxAttempts.
var backoffSeconds = []int64{1, 2, 4, 8, 16, 32, 64, 128}

// MaxAttempts is the number of delivery attempts made before a delivery is
// marked exhausted.
const MaxAttempts = 8

// AttemptTimeout bounds a single HTTP delivery attempt.
const AttemptTimeout = 5 * time.Second

const deliveriesTable = "webhook_deliveries"

// Sign computes the HMAC-SHA256 signature over "<created>.<payload>", the
// same scheme real payment processors use for webhook signing.
func Sign(secret string, created int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", created, payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// job is one delivery attempt queued to a worker.
type job struct {
	deliveryID string
	endpoint   *Endpoint
	event      telemetry.Event
	attempt    int
}

// Pipeline delivers telemetry events to registered endpoints: signed,
// retried with exponential backoff, and recorded into a delivery ledger.
// Retries are scheduled against the virtual clock rather than real timers,
// so accelerated and manual clock modes drive retry pacing exactly the way
// they drive everything else in the server.
type Pipeline struct {
	clock      *clock.Clock
	deliveries *store.Store
	endpoints  *Registry
	chaos      *chaos.Coordinator
	client     *http.Client
	log        *slog.Logger

	queue   chan job
	workers int

	mu      sync.Mutex
	pending []pendingRetry

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

type pendingRetry struct {
	job           job
	nextAttemptAt int64
}

// NewPipeline creates a Pipeline with workers concurrent delivery workers.
// chaosCoord may be nil, in which case events are always delivered
// immediately and undisturbed.
func NewPipeline(clk *clock.Clock, chaosCoord *chaos.Coordinator, workers int) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	p := &Pipeline{
		clock:      clk,
		deliveries: store.New(deliveriesTable),
		endpoints:  NewRegistry(),
		chaos:      chaosCoord,
		client:     &http.Client{Timeout: AttemptTimeout},
		log:        logging.Nop(),
		queue:      make(chan job, 256),
		workers:    workers,
		stopCh:     make(chan struct{}),
	}
	return p
}

// Endpoints returns the pipeline's endpoint registry.
func (p *Pipeline) Endpoints() *Registry { return p.endpoints }

// Deliveries returns the delivery ledger store, for the
// GET /_config/webhooks/:id/deliveries introspection endpoint.
func (p *Pipeline) Deliveries() *store.Store { return p.deliveries }

// SetLogger overrides the pipeline's logger.
func (p *Pipeline) SetLogger(l *slog.Logger) { p.log = l }

// Start launches the worker pool and the background retry-poll loop. The
// poll loop ticks once per real second; in manual clock mode it still
// ticks (so a process_billing-style explicit call isn't required here) but
// ProcessPending is exposed directly for tests that want deterministic
// control instead.
func (p *Pipeline) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.wg.Add(1)
	go p.pollLoop()
}

// Stop shuts down the worker pool and poll loop, waiting for in-flight
// attempts to finish.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Pipeline) pollLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.ProcessPending()
		}
	}
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case j := <-p.queue:
			p.attempt(j)
		}
	}
}

// Submit fans event out to every matching registered endpoint, running each
// through the chaos coordinator's event-buffer/reorder/duplicate behavior
// before queuing the resulting attempt(s).
func (p *Pipeline) Submit(event telemetry.Event) {
	for _, ep := range p.endpoints.All() {
		if !ep.Matches(event.Type) {
			continue
		}
		ep := ep
		submit := func(batch []interface{}) {
			for _, item := range batch {
				evt := item.(telemetry.Event)
				p.enqueueFirstAttempt(ep, evt)
			}
		}
		if p.chaos != nil {
			p.chaos.EventSubmit(event, submit)
		} else {
			submit([]interface{}{event})
		}
	}
}

func (p *Pipeline) enqueueFirstAttempt(ep *Endpoint, event telemetry.Event) {
	deliveryID := id.Prefixed("whdel")
	rec := store.NewObject(deliveryID, "webhook_delivery", p.clock.Now())
	rec.Fields["webhook_id"] = ep.ID
	rec.Fields["event_id"] = event.ID
	rec.Fields["event_type"] = event.Type
	rec.Fields["attempt"] = 1
	rec.Fields["status"] = "pending"
	if _, err := p.deliveries.Insert(rec); err != nil {
		p.log.Error("webhook: failed to record delivery", "error", err)
		return
	}

	j := job{deliveryID: deliveryID, endpoint: ep, event: event, attempt: 1}
	select {
	case p.queue <- j:
	default:
		go func() { p.queue <- j }()
	}
}

// ProcessPending enqueues every scheduled retry whose next_attempt_at has
// elapsed against the virtual clock, returning how many it processed.
func (p *Pipeline) ProcessPending() int {
	now := p.clock.Now()

	p.mu.Lock()
	due := p.pending[:0:0]
	var remaining []pendingRetry
	for _, r := range p.pending {
		if r.nextAttemptAt <= now {
			due = append(due, r)
		} else {
			remaining = append(remaining, r)
		}
	}
	p.pending = remaining
	p.mu.Unlock()

	for _, r := range due {
		p.queue <- r.job
	}
	return len(due)
}

func (p *Pipeline) attempt(j job) {
	payload, _ := json.Marshal(map[string]interface{}{
		"id":      j.event.ID,
		"type":    j.event.Type,
		"created": j.event.Created,
		"data":    j.event.Data,
	})

	created := p.clock.Now()
	sig := Sign(j.endpoint.Secret, created, payload)

	req, err := http.NewRequest(http.MethodPost, j.endpoint.URL, bytes.NewReader(payload))
	if err != nil {
		p.recordFailure(j, 0, err.Error())
		p.scheduleRetry(j)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("stripe-signature", fmt.Sprintf("t=%d,v1=%s", created, sig))

	resp, err := p.client.Do(req)
	if err != nil {
		p.recordFailure(j, 0, err.Error())
		p.scheduleRetry(j)
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		p.recordSuccess(j, resp.StatusCode)
		return
	}

	p.recordFailure(j, resp.StatusCode, fmt.Sprintf("endpoint returned status %d", resp.StatusCode))
	p.scheduleRetry(j)
}

func (p *Pipeline) recordSuccess(j job, statusCode int) {
	p.updateDelivery(j.deliveryID, func(fields map[string]interface{}) {
		fields["status"] = "succeeded"
		fields["response_code"] = statusCode
		delete(fields, "error")
	})
}

func (p *Pipeline) recordFailure(j job, statusCode int, errMsg string) {
	p.updateDelivery(j.deliveryID, func(fields map[string]interface{}) {
		fields["status"] = "failed"
		fields["response_code"] = statusCode
		fields["error"] = errMsg
	})
}

func (p *Pipeline) scheduleRetry(j job) {
	if j.attempt >= MaxAttempts {
		p.updateDelivery(j.deliveryID, func(fields map[string]interface{}) {
			fields["status"] = "exhausted"
		})
		return
	}

	delay := backoffSeconds[len(backoffSeconds)-1]
	if j.attempt-1 < len(backoffSeconds) {
		delay = backoffSeconds[j.attempt-1]
	}
	next := p.clock.Now() + delay

	nextJob := j
	nextJob.attempt++

	nextID := id.Prefixed("whdel")
	rec := store.NewObject(nextID, "webhook_delivery", p.clock.Now())
	rec.Fields["webhook_id"] = j.endpoint.ID
	rec.Fields["event_id"] = j.event.ID
	rec.Fields["event_type"] = j.event.Type
	rec.Fields["attempt"] = nextJob.attempt
	rec.Fields["status"] = "pending"
	rec.Fields["next_attempt_at"] = next
	_, _ = p.deliveries.Insert(rec)

	nextJob.deliveryID = nextID

	p.mu.Lock()
	p.pending = append(p.pending, pendingRetry{job: nextJob, nextAttemptAt: next})
	p.mu.Unlock()
}

func (p *Pipeline) updateDelivery(deliveryID string, mutate func(map[string]interface{})) {
	obj, ok := p.deliveries.Get(deliveryID)
	if !ok {
		return
	}
	updated := obj.Clone()
	mutate(updated.Fields)
	_, _ = p.deliveries.Update(updated)
}
