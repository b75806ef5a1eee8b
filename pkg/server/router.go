package server

import (
	"net/http"

	"github.com/EnaiaInc/paper-tiger/pkg/auth"
)

// Handler builds the full request-handling chain: the per-resource router
// table wrapped in a fixed middleware order (method/path match, auth
// filter, CORS filter, idempotency filter, nested-form parser, resource
// dispatch) plus the admin surface under /_config.
//
// CORS is applied outermost rather than strictly second, so that it can
// add its headers to every response — including ones the auth filter
// rejects — and so an OPTIONS preflight (which browsers send without an
// Authorization header) short-circuits before ever reaching auth. Two more
// layers differ from the listed order: chaos API fault injection runs
// between CORS and auth, and method/path matching happens in the mux,
// innermost. See DESIGN.md.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerResourceRoutes(mux)
	s.registerAdminRoutes(mux)

	// The nested-form parser (step 5) and resource dispatch (step 6) are
	// folded into each resourceXHandler via parseParams, rather than
	// living as a separate middleware layer, since only the create/update
	// handlers need parsed params and the parser's error needs to surface
	// as that specific handler's 400 response.
	chain := s.idempotencyMiddleware(mux)
	chain = s.authMiddleware(chain)
	chain = s.chaosAPIMiddleware(chain)
	return auth.CORS(chain)
}

// customCreateRoutes names resources whose POST /v1/{name} create route is
// replaced by domain-specific logic (see custom_handlers.go) instead of
// the generic dispatcher Create. Every other operation
// (retrieve/update/delete/list) for these resources still goes through
// the generic dispatcher.
var customCreateRoutes = map[string]bool{
	"refunds": true,
}

// customRoutedResources are wired entirely by hand in registerResourceRoutes
// because their wire path doesn't match the plural-name convention every
// other resource uses (checkout_sessions lives at /v1/checkout/sessions,
// mirroring the real vendor API).
var customRoutedResources = map[string]bool{
	"checkout_sessions": true,
}

func (s *Server) registerResourceRoutes(mux *http.ServeMux) {
	for name, d := range s.dispatchers {
		if customRoutedResources[name] {
			continue
		}
		d := d
		if !customCreateRoutes[name] {
			mux.HandleFunc("POST /v1/"+name, s.resourceCreateHandler(d))
		}
		mux.HandleFunc("GET /v1/"+name+"/{id}", s.resourceRetrieveHandler(d))
		mux.HandleFunc("POST /v1/"+name+"/{id}", s.resourceUpdateHandler(d))
		mux.HandleFunc("DELETE /v1/"+name+"/{id}", s.resourceDeleteHandler(d))
		mux.HandleFunc("GET /v1/"+name, s.resourceListHandler(d))
	}

	mux.HandleFunc("POST /v1/refunds", s.createRefundHandler())
	mux.HandleFunc("POST /v1/payment_methods/{id}/attach", s.attachPaymentMethodHandler())
	mux.HandleFunc("POST /v1/payment_methods/{id}/detach", s.detachPaymentMethodHandler())

	cs := s.dispatchers["checkout_sessions"]
	mux.HandleFunc("POST /v1/checkout/sessions", s.resourceCreateHandler(cs))
	mux.HandleFunc("GET /v1/checkout/sessions/{id}", s.resourceRetrieveHandler(cs))
	mux.HandleFunc("GET /v1/checkout/sessions", s.resourceListHandler(cs))
	mux.HandleFunc("POST /v1/checkout/sessions/{id}/complete", s.completeCheckoutSessionHandler())
}
