package server

import (
	"net/http"

	"github.com/EnaiaInc/paper-tiger/pkg/apierror"
	"github.com/EnaiaInc/paper-tiger/pkg/store"
	"github.com/EnaiaInc/paper-tiger/pkg/webhook"
)

// registerAdminRoutes wires the non-emulated /_config/* control surface:
// webhook registration, store flush, clock advance, plus a delivery-ledger
// introspection route. Every route is wrapped in adminGuard, which
// requires a valid admin token only when one has been configured (see
// pkg/auth.AdminIssuer).
func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /_config/webhooks/{id}", s.adminGuard(s.registerWebhookHandler()))
	mux.HandleFunc("DELETE /_config/data", s.adminGuard(s.flushDataHandler()))
	mux.HandleFunc("POST /_config/time/advance", s.adminGuard(s.advanceTimeHandler()))
	mux.HandleFunc("GET /_config/webhooks/{id}/deliveries", s.adminGuard(s.listDeliveriesHandler()))
}

// adminGuard requires a valid admin bearer token when the server was
// configured with an admin secret; otherwise it's a no-op, matching the
// teacher's "missing secret = feature disabled" convention already used
// by pkg/auth.AdminIssuer.
func (s *Server) adminGuard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.admin != nil {
			if err := s.admin.Verify(r); err != nil {
				apierror.WriteTo(w, apierror.New(apierror.Authentication, err.Error()))
				return
			}
		}
		next(w, r)
	}
}

// registerWebhookHandler implements POST /_config/webhooks/:id
// {url, secret, events?}.
func (s *Server) registerWebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, perr := parseParams(r)
		if perr != nil {
			apierror.WriteTo(w, perr)
			return
		}
		url, _ := params["url"].(string)
		secret, _ := params["secret"].(string)
		if url == "" || secret == "" {
			apierror.WriteTo(w, apierror.New(apierror.InvalidRequest, "url and secret are required"))
			return
		}
		ep := &webhook.Endpoint{
			ID:     r.PathValue("id"),
			URL:    url,
			Secret: secret,
			Events: stringSlice(params["events"]),
		}
		s.webhooks.Endpoints().Register(ep)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id": ep.ID, "url": ep.URL, "events": ep.Events,
		})
	}
}

// flushDataHandler implements DELETE /_config/data: clears every
// registered resource store.
func (s *Server) flushDataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.registry.ClearAll()
		writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true})
	}
}

// advanceTimeHandler implements POST /_config/time/advance
// {seconds|days|hours|minutes}.
func (s *Server) advanceTimeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, perr := parseParams(r)
		if perr != nil {
			apierror.WriteTo(w, perr)
			return
		}

		var delta int64
		for unit, secondsPer := range map[string]int64{
			"seconds": 1, "minutes": 60, "hours": 3600, "days": 86400,
		} {
			if raw, ok := params[unit]; ok {
				if n, ok := asInt64Param(raw); ok {
					delta += n * secondsPer
				}
			}
		}
		if delta == 0 {
			apierror.WriteTo(w, apierror.New(apierror.InvalidRequest, "advance requires at least one of seconds/minutes/hours/days"))
			return
		}

		now := s.clock.Advance(delta)
		writeJSON(w, http.StatusOK, map[string]interface{}{"now": now})
	}
}

// listDeliveriesHandler implements
// GET /_config/webhooks/:id/deliveries, a delivery-ledger introspection
// route for debugging webhook retries.
func (s *Server) listDeliveriesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		webhookID := r.PathValue("id")
		page := s.webhooks.Deliveries().List(store.ListOptions{
			Limit:    100,
			HasLimit: true,
			Filter:   store.EqualsFilter("webhook_id", webhookID),
		})
		data := make([]map[string]any, len(page.Data))
		for i, obj := range page.Data {
			data[i] = obj.ToJSON()
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"object": "list", "data": data, "has_more": page.HasMore,
		})
	}
}
