package server

import (
	"encoding/json"
	"net/http"

	"github.com/EnaiaInc/paper-tiger/pkg/apierror"
	"github.com/EnaiaInc/paper-tiger/pkg/reqparse"
	"github.com/EnaiaInc/paper-tiger/pkg/resources"
	"github.com/EnaiaInc/paper-tiger/pkg/store"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// hydrated applies expand[] to obj's wire JSON, if any expand paths were
// requested on the query string or in the parsed params.
func (s *Server) hydrated(obj *store.Object, r *http.Request, params map[string]interface{}) map[string]interface{} {
	paths := reqparse.ParseExpand(r.URL.Query())
	if raw, ok := params["expand"]; ok {
		paths = append(paths, stringSlice(raw)...)
	}
	if len(paths) == 0 {
		return obj.ToJSON()
	}
	return s.hydrator.Hydrate(obj, paths)
}

func stringSlice(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	case string:
		return []string{t}
	default:
		return nil
	}
}

// resourceCreateHandler implements POST /v1/{resource}.
func (s *Server) resourceCreateHandler(d *resources.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, perr := parseParams(r)
		if perr != nil {
			apierror.WriteTo(w, perr)
			return
		}
		obj, perr := d.Create(params)
		if perr != nil {
			apierror.WriteTo(w, perr)
			return
		}
		writeJSON(w, http.StatusOK, s.hydrated(obj, r, params))
	}
}

// resourceRetrieveHandler implements GET /v1/{resource}/{id}.
func (s *Server) resourceRetrieveHandler(d *resources.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		obj, perr := d.Retrieve(r.PathValue("id"))
		if perr != nil {
			apierror.WriteTo(w, perr)
			return
		}
		writeJSON(w, http.StatusOK, s.hydrated(obj, r, nil))
	}
}

// resourceUpdateHandler implements POST /v1/{resource}/{id}.
func (s *Server) resourceUpdateHandler(d *resources.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, perr := parseParams(r)
		if perr != nil {
			apierror.WriteTo(w, perr)
			return
		}
		obj, perr := d.Update(r.PathValue("id"), params)
		if perr != nil {
			apierror.WriteTo(w, perr)
			return
		}
		writeJSON(w, http.StatusOK, s.hydrated(obj, r, params))
	}
}

// resourceDeleteHandler implements DELETE /v1/{resource}/{id}.
func (s *Server) resourceDeleteHandler(d *resources.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, perr := d.Delete(r.PathValue("id"))
		if perr != nil {
			apierror.WriteTo(w, perr)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// resourceListHandler implements GET /v1/{resource}.
func (s *Server) resourceListHandler(d *resources.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, perr := listOptionsFromQuery(r)
		if perr != nil {
			apierror.WriteTo(w, perr)
			return
		}
		writeJSON(w, http.StatusOK, d.List(opts))
	}
}
