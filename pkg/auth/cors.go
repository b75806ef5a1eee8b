// Package auth implements the auth and CORS filters: Bearer/Basic
// API-key checking (lenient or strict mode) and a fixed-header CORS
// responder, both middleware wrapping an http.Handler.
package auth

import (
	"net/http"
	"strconv"
	"strings"
)

// corsAllowMethods and corsAllowHeaders are fixed: the API always answers
// with the same method/header list regardless of what was requested.
var (
	corsAllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsAllowHeaders = []string{"Content-Type", "Authorization", "Idempotency-Key"}
)

// CORSMaxAge is the Access-Control-Max-Age value, in seconds.
const CORSMaxAge = 86400

// CORS wraps handler with permissive, fixed-shape CORS headers and
// short-circuits OPTIONS preflight requests with a 200.
func CORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(corsAllowMethods, ", "))
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(corsAllowHeaders, ", "))
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(CORSMaxAge))

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
