package server

import (
	"bytes"
	"context"
	"net/http"

	"github.com/EnaiaInc/paper-tiger/pkg/apierror"
	"github.com/EnaiaInc/paper-tiger/pkg/auth"
	"github.com/EnaiaInc/paper-tiger/pkg/chaos"
	"github.com/EnaiaInc/paper-tiger/pkg/idempotency"
)

type ctxKey int

const authResultKey ctxKey = iota

// authMode resolves the server's configured auth strictness.
func (s *Server) authMode() auth.Mode {
	if s.cfg.Auth.Mode == "strict" {
		return auth.Strict
	}
	return auth.Lenient
}

// authMiddleware extracts and validates the API key, rejecting the
// request with 401 on failure, otherwise stashing the Result on the
// request context for downstream handlers (e.g. chaos customer overrides
// keyed by livemode).
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, err := auth.Extract(r, s.authMode())
		if err != nil {
			apierror.WriteTo(w, apierror.New(apierror.Authentication, err.Error()))
			return
		}
		ctx := context.WithValue(r.Context(), authResultKey, result)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authFromContext(r *http.Request) auth.Result {
	res, _ := r.Context().Value(authResultKey).(auth.Result)
	return res
}

// idempotencyMiddleware de-duplicates POST requests that carry an
// Idempotency-Key header through pkg/idempotency. Non-POST requests pass
// straight through.
func (s *Server) idempotencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		idemKey := r.Header.Get("Idempotency-Key")
		if idemKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := authFromContext(r).APIKey
		state, rec, err := s.idempotency.Begin(apiKey, idemKey)
		switch {
		case err == idempotency.ErrConflict:
			w.Header().Set("Retry-After", "1")
			apierror.WriteTo(w, apierror.New(apierror.IdempotencyConflict, "a request with this Idempotency-Key is already in progress"))
			return
		case state == idempotency.Complete:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Cached", "true")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.Body)
			return
		}

		rw := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		if rw.status >= 200 && rw.status < 300 {
			s.idempotency.Complete(apiKey, idemKey, rw.status, rw.body.Bytes())
		} else {
			s.idempotency.Forget(apiKey, idemKey)
		}
	})
}

// recordingWriter buffers the response so the idempotency middleware can
// decide, after the handler runs, whether to cache it.
type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// chaosAPIMiddleware applies API-level fault injection (the
// timeout/rate-limit/server-error bands from pkg/chaos.EvaluateAPI)
// ahead of the rest of the chain, short-circuiting the request when the
// coordinator's verdict calls for it.
func (s *Server) chaosAPIMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch s.chaos.EvaluateAPI() {
		case chaos.APIActionTimeout:
			<-r.Context().Done()
			return
		case chaos.APIActionRateLimited:
			apierror.WriteTo(w, apierror.New(apierror.RateLimited, "too many requests"))
			return
		case chaos.APIActionServerError:
			apierror.WriteTo(w, apierror.New(apierror.ServerError, "an internal error occurred"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
