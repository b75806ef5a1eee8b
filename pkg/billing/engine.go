// Package billing implements a periodic subscription billing state
// machine: eligible subscriptions are invoiced, charged through the chaos
// coordinator, and either advanced to their next period or walked through
// dunning, with every transition published to the telemetry bus exactly
// the way the resource dispatcher publishes its own create/update events.
package billing

import (
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/EnaiaInc/paper-tiger/internal/id"
	"github.com/EnaiaInc/paper-tiger/pkg/chaos"
	"github.com/EnaiaInc/paper-tiger/pkg/clock"
	"github.com/EnaiaInc/paper-tiger/pkg/logging"
	"github.com/EnaiaInc/paper-tiger/pkg/store"
	"github.com/EnaiaInc/paper-tiger/pkg/telemetry"
)

// Engine is the single billing worker: one writer that, on each poll,
// selects eligible subscriptions and drives them through invoicing and
// payment collection.
type Engine struct {
	clock    *clock.Clock
	registry *store.Registry
	chaos    *chaos.Coordinator
	bus      *telemetry.Bus
	log      *slog.Logger

	// PollEnabled gates the background poll loop entirely; ProcessBilling
	// remains callable directly regardless of this flag.
	PollEnabled bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewEngine wires an Engine to the shared stores, clock, chaos coordinator,
// and telemetry bus.
func NewEngine(clk *clock.Clock, registry *store.Registry, chaosCoord *chaos.Coordinator, bus *telemetry.Bus) *Engine {
	return &Engine{
		clock:       clk,
		registry:    registry,
		chaos:       chaosCoord,
		bus:         bus,
		log:         logging.Nop(),
		PollEnabled: true,
		stopCh:      make(chan struct{}),
	}
}

// SetLogger overrides the engine's logger.
func (e *Engine) SetLogger(l *slog.Logger) { e.log = l }

// Start launches the poll loop: every 1 second of wall time, if the clock
// is not in manual mode and polling is enabled, it runs one billing pass.
// In manual mode the loop still ticks but is a no-op — tests drive billing
// by calling ProcessBilling directly after advancing the clock.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.pollLoop()
}

// Stop shuts the poll loop down, waiting for any in-flight pass to finish.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

func (e *Engine) pollLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			if !e.PollEnabled {
				continue
			}
			if mode, _ := e.clock.GetMode(); mode == clock.Manual {
				continue
			}
			e.ProcessBilling()
		}
	}
}

// RunSummary reports what one billing pass did, for admin introspection
// and for tests to assert on.
type RunSummary struct {
	Considered int
	Billed     int
	Skipped    int
}

func (e *Engine) store(name string) *store.Store {
	return e.registry.Get(name)
}

// ProcessBilling runs one billing pass: every subscription eligible by the
// rule `status == "active" && current_period_end <= now` is driven
// through the invoice/payment state machine once.
func (e *Engine) ProcessBilling() RunSummary {
	subs := e.store("subscriptions")
	if subs == nil {
		return RunSummary{}
	}

	now := e.clock.Now()
	page := subs.List(store.ListOptions{Limit: 1000, HasLimit: true})

	summary := RunSummary{}
	for _, sub := range page.Data {
		if sub.GetString("status") != "active" {
			continue
		}
		periodEnd, _ := asInt64(sub.Fields["current_period_end"])
		if periodEnd > now {
			continue
		}
		summary.Considered++

		if cancelAtEnd, _ := sub.Fields["cancel_at_period_end"].(bool); cancelAtEnd {
			e.cancelAtPeriodEnd(sub)
			summary.Skipped++
			continue
		}

		if e.billOne(sub) {
			summary.Billed++
		} else {
			summary.Skipped++
		}
	}
	return summary
}

// cancelAtPeriodEnd transitions a subscription flagged cancel_at_period_end
// to canceled once its current period has elapsed, instead of billing it
// again.
func (e *Engine) cancelAtPeriodEnd(sub *store.Object) {
	updated := sub.Clone()
	updated.Fields["status"] = "canceled"
	if subs := e.store("subscriptions"); subs != nil {
		_, _ = subs.Update(updated)
	}
	e.publish("subscription.updated", updated.ToJSON())
}

// billOne drives a single eligible subscription through one billing
// cycle. It returns false if the subscription had to be skipped (e.g. an
// unresolvable price/plan reference).
func (e *Engine) billOne(sub *store.Object) bool {
	amount, currency, interval, intervalCount, ok := e.deriveAmount(sub)
	if !ok {
		e.log.Warn("billing: skipping subscription with no resolvable price or plan", "subscription", sub.ID)
		return false
	}

	invoice, invoiceItem, isNew := e.selectOrCreateInvoice(sub, amount, currency)
	if isNew {
		e.publish("invoice.created", invoice.ToJSON())
		_ = invoiceItem
	}

	customerID := sub.GetString("customer")
	outcome := e.chaos.EvaluatePayment(customerID)
	if !outcome.Declined {
		e.onPaymentSucceeded(sub, invoice, amount, currency, interval, intervalCount)
	} else {
		e.onPaymentFailed(sub, invoice, outcome.DeclineCode)
	}
	return true
}

// deriveAmount resolves the amount/currency/interval to bill for sub,
// preferring the first subscription-item's price, falling back to the
// subscription's attached plan.
func (e *Engine) deriveAmount(sub *store.Object) (amount int64, currency, interval string, intervalCount int64, ok bool) {
	items := e.store("subscription_items")
	prices := e.store("prices")
	plans := e.store("plans")

	if items != nil {
		page := items.List(store.ListOptions{
			Limit:    100,
			HasLimit: true,
			Filter: func(o *store.Object) bool {
				return o.GetString("subscription") == sub.ID
			},
		})
		if len(page.Data) > 0 {
			first := earliestByCreated(page.Data)
			priceID := first.GetString("price")
			if prices != nil {
				if price, found := prices.Get(priceID); found {
					amt, _ := asInt64(price.Fields["unit_amount"])
					cur := price.GetString("currency")
					if cur == "" {
						cur = "usd"
					}
					ivl := price.GetString("interval")
					cnt, _ := asInt64(price.Fields["interval_count"])
					if cnt == 0 {
						cnt = 1
					}
					return amt, cur, ivl, cnt, true
				}
			}
		}
	}

	planID := sub.GetString("plan")
	if planID != "" && plans != nil {
		if plan, found := plans.Get(planID); found {
			amt, _ := asInt64(plan.Fields["amount"])
			cur := plan.GetString("currency")
			if cur == "" {
				cur = "usd"
			}
			ivl := plan.GetString("interval")
			cnt, _ := asInt64(plan.Fields["interval_count"])
			if cnt == 0 {
				cnt = 1
			}
			return amt, cur, ivl, cnt, true
		}
	}

	return 0, "", "", 0, false
}

// selectOrCreateInvoice reuses an open invoice for this subscription, or
// creates a new draft invoice plus its matching invoiceitem line.
func (e *Engine) selectOrCreateInvoice(sub *store.Object, amount int64, currency string) (invoice, invoiceItem *store.Object, isNew bool) {
	invoices := e.store("invoices")
	page := invoices.List(store.ListOptions{
		Limit:    100,
		HasLimit: true,
		Filter: func(o *store.Object) bool {
			return o.GetString("subscription") == sub.ID && o.GetString("status") == "open"
		},
	})
	if len(page.Data) > 0 {
		return page.Data[0], nil, false
	}

	now := e.clock.Now()
	inv := store.NewObject(id.Prefixed("in"), "invoice", now)
	inv.Fields["subscription"] = sub.ID
	inv.Fields["customer"] = sub.GetString("customer")
	inv.Fields["status"] = "draft"
	inv.Fields["amount_due"] = amount
	inv.Fields["amount_paid"] = int64(0)
	inv.Fields["amount_remaining"] = amount
	inv.Fields["currency"] = currency
	inv.Fields["billing_reason"] = "subscription_cycle"
	inv.Fields["period_start"] = sub.Fields["current_period_start"]
	inv.Fields["period_end"] = sub.Fields["current_period_end"]
	inv.Fields["auto_advance"] = true
	inv.Fields["collection_method"] = "charge_automatically"
	inv.Fields["attempt_count"] = int64(0)
	_, _ = invoices.Insert(inv)

	ii := store.NewObject(id.Prefixed("ii"), "invoiceitem", now)
	ii.Fields["invoice"] = inv.ID
	ii.Fields["subscription"] = sub.ID
	ii.Fields["customer"] = sub.GetString("customer")
	ii.Fields["amount"] = amount
	ii.Fields["currency"] = currency
	if items := e.store("invoiceitems"); items != nil {
		_, _ = items.Insert(ii)
	}

	return inv, ii, true
}

func (e *Engine) onPaymentSucceeded(sub, invoice *store.Object, amount int64, currency, interval string, intervalCount int64) {
	now := e.clock.Now()

	pi := store.NewObject(id.Prefixed("pi"), "payment_intent", now)
	pi.Fields["status"] = "succeeded"
	pi.Fields["amount"] = amount
	pi.Fields["currency"] = currency
	pi.Fields["customer"] = sub.GetString("customer")
	pi.Fields["invoice"] = invoice.ID
	if pis := e.store("payment_intents"); pis != nil {
		_, _ = pis.Insert(pi)
	}
	e.publish("payment_intent.created", pi.ToJSON())

	chargeID := id.Prefixed("ch")

	txn := e.newChargeBalanceTransaction(amount, currency)
	txn.Fields["source"] = chargeID
	if txns := e.store("balance_transactions"); txns != nil {
		_, _ = txns.Insert(txn)
	}

	ch := store.NewObject(chargeID, "charge", now)
	ch.Fields["status"] = "succeeded"
	ch.Fields["captured"] = true
	ch.Fields["paid"] = true
	ch.Fields["amount"] = amount
	ch.Fields["currency"] = currency
	ch.Fields["customer"] = sub.GetString("customer")
	ch.Fields["invoice"] = invoice.ID
	ch.Fields["payment_intent"] = pi.ID
	ch.Fields["balance_transaction"] = txn.ID
	if charges := e.store("charges"); charges != nil {
		_, _ = charges.Insert(ch)
	}

	pi = pi.Clone()
	pi.Fields["status"] = "succeeded"
	pi.Fields["latest_charge"] = ch.ID
	if pis := e.store("payment_intents"); pis != nil {
		_, _ = pis.Update(pi)
	}
	e.publish("payment_intent.succeeded", pi.ToJSON())
	e.publish("charge.succeeded", ch.ToJSON())

	updatedInvoice := invoice.Clone()
	updatedInvoice.Fields["status"] = "paid"
	updatedInvoice.Fields["amount_paid"] = amount
	updatedInvoice.Fields["amount_remaining"] = int64(0)
	updatedInvoice.Fields["paid"] = true
	if invoices := e.store("invoices"); invoices != nil {
		_, _ = invoices.Update(updatedInvoice)
	}
	e.publish("invoice.finalized", updatedInvoice.ToJSON())
	e.publish("invoice.paid", updatedInvoice.ToJSON())
	e.publish("invoice.payment_succeeded", updatedInvoice.ToJSON())

	updatedSub := sub.Clone()
	oldEnd, _ := asInt64(sub.Fields["current_period_end"])
	updatedSub.Fields["current_period_start"] = oldEnd
	updatedSub.Fields["current_period_end"] = addInterval(oldEnd, interval, intervalCount)
	updatedSub.Fields["attempt_count"] = int64(0)
	delete(updatedSub.Fields, "next_payment_attempt")
	if subs := e.store("subscriptions"); subs != nil {
		_, _ = subs.Update(updatedSub)
	}
	e.publish("subscription.updated", updatedSub.ToJSON())
}

func (e *Engine) onPaymentFailed(sub, invoice *store.Object, declineCode string) {
	now := e.clock.Now()

	pi := store.NewObject(id.Prefixed("pi"), "payment_intent", now)
	pi.Fields["status"] = "requires_payment_method"
	pi.Fields["customer"] = sub.GetString("customer")
	pi.Fields["invoice"] = invoice.ID
	pi.Fields["last_payment_error"] = map[string]interface{}{
		"code":    declineCode,
		"message": declineMessage(declineCode),
		"type":    "card_error",
	}
	if pis := e.store("payment_intents"); pis != nil {
		_, _ = pis.Insert(pi)
	}
	e.publish("payment_intent.created", pi.ToJSON())
	e.publish("payment_intent.payment_failed", pi.ToJSON())

	ch := store.NewObject(id.Prefixed("ch"), "charge", now)
	ch.Fields["status"] = "failed"
	ch.Fields["paid"] = false
	ch.Fields["captured"] = false
	ch.Fields["customer"] = sub.GetString("customer")
	ch.Fields["invoice"] = invoice.ID
	ch.Fields["payment_intent"] = pi.ID
	ch.Fields["failure_code"] = declineCode
	ch.Fields["failure_message"] = declineMessage(declineCode)
	if charges := e.store("charges"); charges != nil {
		_, _ = charges.Insert(ch)
	}
	e.publish("charge.failed", ch.ToJSON())

	updatedInvoice := invoice.Clone()
	attemptCount, _ := asInt64(updatedInvoice.Fields["attempt_count"])
	attemptCount++
	updatedInvoice.Fields["status"] = "open"
	updatedInvoice.Fields["attempt_count"] = attemptCount
	updatedInvoice.Fields["next_payment_attempt"] = now + retryDelaySeconds(attemptCount)
	if invoices := e.store("invoices"); invoices != nil {
		_, _ = invoices.Update(updatedInvoice)
	}
	e.publish("invoice.payment_failed", updatedInvoice.ToJSON())

	if attemptCount >= 4 {
		updatedSub := sub.Clone()
		updatedSub.Fields["status"] = "past_due"
		if subs := e.store("subscriptions"); subs != nil {
			_, _ = subs.Update(updatedSub)
		}
		e.publish("subscription.updated", updatedSub.ToJSON())
	}
}

// newChargeBalanceTransaction builds the balance-transaction record for a
// successful charge.
func (e *Engine) newChargeBalanceTransaction(amount int64, currency string) *store.Object {
	now := e.clock.Now()
	fee := int64(math.Round(float64(amount)*0.029)) + 30
	txn := store.NewObject(id.Prefixed("txn"), "balance_transaction", now)
	txn.Fields["amount"] = amount
	txn.Fields["fee"] = fee
	txn.Fields["net"] = amount - fee
	txn.Fields["currency"] = currency
	txn.Fields["status"] = "pending"
	txn.Fields["available_on"] = now + 172_800
	txn.Fields["type"] = "charge"
	return txn
}

// RefundBalanceTransaction builds the balance-transaction record for a
// refund. It is exported so the refunds resource endpoint (pkg/server)
// can reuse the same fee-proration formula the billing engine uses for
// charges.
func RefundBalanceTransaction(now, refundAmount, originalAmount, originalFee int64, currency, refundID string) *store.Object {
	fee := int64(0)
	if originalAmount != 0 {
		fee = -int64(math.Round(float64(originalFee) * float64(refundAmount) / float64(originalAmount)))
	}
	txn := store.NewObject(id.Prefixed("txn"), "balance_transaction", now)
	txn.Fields["amount"] = -refundAmount
	txn.Fields["fee"] = fee
	txn.Fields["net"] = -refundAmount - fee
	txn.Fields["currency"] = currency
	txn.Fields["status"] = "available"
	txn.Fields["available_on"] = now
	txn.Fields["type"] = "refund"
	txn.Fields["source"] = refundID
	return txn
}

func (e *Engine) publish(eventType string, data map[string]interface{}) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(telemetry.Event{
		ID:      id.Prefixed("evt"),
		Type:    eventType,
		Created: e.clock.Now(),
		Data:    data,
	})
}

func earliestByCreated(objs []*store.Object) *store.Object {
	best := objs[0]
	for _, o := range objs[1:] {
		if o.Created < best.Created {
			best = o
		}
	}
	return best
}

// asInt64 coerces a resource field to an int64. Fields created through a
// form-encoded request (e.g. a price's unit_amount) arrive and are stored
// as strings, since reqparse.ParseNested never infers numeric types, so
// numeric-looking strings are coerced the same as JSON-decoded numbers.
func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return int64(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}
