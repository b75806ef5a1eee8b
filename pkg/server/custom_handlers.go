// Custom endpoints supplementing the generic resource dispatcher: refund
// creation against a charge, payment-method attach/detach, and
// checkout-session completion. These read like ordinary resource
// mutations but carry cross-resource invariants the uniform create/update
// template can't express, so they're written out by hand as a bespoke
// escape hatch from the generic dispatch path.
package server

import (
	"net/http"
	"strconv"

	"github.com/EnaiaInc/paper-tiger/internal/id"
	"github.com/EnaiaInc/paper-tiger/pkg/apierror"
	"github.com/EnaiaInc/paper-tiger/pkg/billing"
	"github.com/EnaiaInc/paper-tiger/pkg/store"
)

// createRefundHandler implements POST /v1/refunds: validate the target
// charge is succeeded, cap the refund amount at what remains refundable,
// flip the charge to refunded/partially_refunded, and emit the
// balance-transaction + charge.refunded event.
func (s *Server) createRefundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, perr := parseParams(r)
		if perr != nil {
			apierror.WriteTo(w, perr)
			return
		}

		chargeID, _ := params["charge"].(string)
		if chargeID == "" {
			apierror.WriteTo(w, apierror.New(apierror.InvalidRequest, "missing required param: charge").WithParam("charge"))
			return
		}

		charges := s.registry.Get("charges")
		charge, ok := charges.Get(chargeID)
		if !ok {
			apierror.WriteTo(w, apierror.NotFoundErr("charge", chargeID))
			return
		}
		if charge.GetString("status") != "succeeded" {
			apierror.WriteTo(w, apierror.New(apierror.InvalidRequest, "only succeeded charges can be refunded").WithParam("charge"))
			return
		}

		originalAmount, _ := asInt64Param(charge.Fields["amount"])
		alreadyRefunded, _ := asInt64Param(charge.Fields["amount_refunded"])
		remaining := originalAmount - alreadyRefunded

		refundAmount := remaining
		if raw, ok := params["amount"]; ok {
			if amt, ok := asInt64Param(raw); ok {
				refundAmount = amt
			}
		}
		if refundAmount <= 0 || refundAmount > remaining {
			apierror.WriteTo(w, apierror.New(apierror.InvalidRequest, "refund amount exceeds the charge's remaining refundable amount").WithParam("amount"))
			return
		}

		now := s.clockNow()
		refundID := id.Prefixed("re")
		refund := store.NewObject(refundID, "refund", now)
		refund.Fields["charge"] = chargeID
		refund.Fields["amount"] = refundAmount
		refund.Fields["currency"] = charge.Fields["currency"]
		refund.Fields["status"] = "succeeded"
		if _, err := s.registry.Get("refunds").Insert(refund); err != nil {
			apierror.WriteTo(w, apierror.New(apierror.Internal, err.Error()))
			return
		}

		originalFee := int64(0)
		if bts := s.registry.Get("balance_transactions"); bts != nil {
			if btID, ok := charge.Fields["balance_transaction"].(string); ok {
				if bt, found := bts.Get(btID); found {
					originalFee, _ = asInt64Param(bt.Fields["fee"])
				}
			}
			txn := billing.RefundBalanceTransaction(now, refundAmount, originalAmount, originalFee, refund.GetString("currency"), refundID)
			_, _ = bts.Insert(txn)
		}

		updatedCharge := charge.Clone()
		newRefunded := alreadyRefunded + refundAmount
		updatedCharge.Fields["amount_refunded"] = newRefunded
		if newRefunded >= originalAmount {
			updatedCharge.Fields["status"] = "refunded"
			updatedCharge.Fields["refunded"] = true
		} else {
			updatedCharge.Fields["status"] = "partially_refunded"
		}
		_, _ = charges.Update(updatedCharge)
		s.publishEvent("charge.refunded", updatedCharge.ToJSON())

		writeJSON(w, http.StatusOK, refund.ToJSON())
	}
}

// attachPaymentMethodHandler implements POST /v1/payment_methods/:id/attach:
// sets the payment method's customer field, an ordinary state transition
// through the generic dispatcher's update path.
func (s *Server) attachPaymentMethodHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, perr := parseParams(r)
		if perr != nil {
			apierror.WriteTo(w, perr)
			return
		}
		customer, _ := params["customer"].(string)
		if customer == "" {
			apierror.WriteTo(w, apierror.New(apierror.InvalidRequest, "missing required param: customer").WithParam("customer"))
			return
		}
		d := s.dispatchers["payment_methods"]
		obj, aerr := d.Update(r.PathValue("id"), map[string]interface{}{"customer": customer})
		if aerr != nil {
			apierror.WriteTo(w, aerr)
			return
		}
		writeJSON(w, http.StatusOK, obj.ToJSON())
	}
}

// detachPaymentMethodHandler implements POST /v1/payment_methods/:id/detach:
// clears the customer field.
func (s *Server) detachPaymentMethodHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := s.dispatchers["payment_methods"]
		obj, aerr := d.Update(r.PathValue("id"), map[string]interface{}{"customer": nil})
		if aerr != nil {
			apierror.WriteTo(w, aerr)
			return
		}
		writeJSON(w, http.StatusOK, obj.ToJSON())
	}
}

// completeCheckoutSessionHandler implements
// POST /v1/checkout/sessions/:id/complete: transitions a checkout session
// to "complete", creating the referenced customer and/or subscription if
// they don't already exist, mirroring real-vendor checkout completion.
func (s *Server) completeCheckoutSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := s.registry.Get("checkout_sessions")
		session, ok := sessions.Get(r.PathValue("id"))
		if !ok {
			apierror.WriteTo(w, apierror.NotFoundErr("checkout.session", r.PathValue("id")))
			return
		}
		if session.GetString("status") == "complete" {
			writeJSON(w, http.StatusOK, session.ToJSON())
			return
		}

		now := s.clockNow()

		customerID, _ := session.Fields["customer"].(string)
		if customerID == "" {
			customerID = id.Prefixed("cus")
			cus := store.NewObject(customerID, "customer", now)
			if email, ok := session.Fields["customer_email"].(string); ok {
				cus.Fields["email"] = email
			}
			if customers := s.registry.Get("customers"); customers != nil {
				_, _ = customers.Insert(cus)
				s.publishEvent("customer.created", cus.ToJSON())
			}
		}

		var subscriptionID string
		if session.GetString("mode") == "subscription" {
			subscriptionID, _ = session.Fields["subscription"].(string)
			if subscriptionID == "" {
				subscriptionID = id.Prefixed("sub")
				sub := store.NewObject(subscriptionID, "subscription", now)
				sub.Fields["customer"] = customerID
				sub.Fields["status"] = "active"
				sub.Fields["cancel_at_period_end"] = false
				sub.Fields["current_period_start"] = now
				sub.Fields["current_period_end"] = now + 2_592_000
				if subs := s.registry.Get("subscriptions"); subs != nil {
					_, _ = subs.Insert(sub)
					s.publishEvent("customer.subscription.created", sub.ToJSON())
				}
			}
		}

		updated := session.Clone()
		updated.Fields["status"] = "complete"
		updated.Fields["customer"] = customerID
		if subscriptionID != "" {
			updated.Fields["subscription"] = subscriptionID
		}
		_, _ = sessions.Update(updated)
		s.publishEvent("checkout.session.completed", updated.ToJSON())

		writeJSON(w, http.StatusOK, updated.ToJSON())
	}
}

func (s *Server) publishEvent(eventType string, data map[string]interface{}) {
	s.bus.Publish(telemetryEvent(s.clockNow(), eventType, data))
}

// asInt64Param coerces a parsed request param to an int64. JSON bodies
// decode numbers as float64; form bodies (reqparse.ParseNested) decode
// every scalar as a string, so numeric-looking strings are parsed too.
func asInt64Param(v interface{}) (int64, bool) {
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
