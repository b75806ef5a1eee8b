package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/EnaiaInc/paper-tiger/pkg/apierror"
	"github.com/EnaiaInc/paper-tiger/pkg/reqparse"
	"github.com/EnaiaInc/paper-tiger/pkg/store"
)

// reservedListParams are query keys the cursor-pagination machinery
// consumes directly rather than treating as a per-resource equality
// filter.
var reservedListParams = map[string]bool{
	"limit":          true,
	"starting_after": true,
	"ending_before":  true,
	"expand":         true,
	"expand[]":       true,
}

const maxBodyBytes = 1 << 20 // 1 MiB

// parseParams reads r's body: JSON bodies decode directly; everything
// else is treated as bracket-encoded form data and run through
// reqparse.ParseNested.
func parseParams(r *http.Request) (map[string]interface{}, *apierror.Error) {
	if r.Body == nil {
		return map[string]interface{}{}, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, apierror.New(apierror.InvalidRequest, "failed to read request body")
	}
	if len(body) == 0 {
		return map[string]interface{}{}, nil
	}

	if isJSON(r) {
		var params map[string]interface{}
		if err := json.Unmarshal(body, &params); err != nil {
			return nil, apierror.New(apierror.InvalidRequest, "invalid JSON body: "+err.Error())
		}
		return params, nil
	}

	values, err := parseFormBody(body)
	if err != nil {
		return nil, apierror.New(apierror.InvalidRequest, err.Error())
	}
	params, err := reqparse.ParseNested(reqparse.Values(values))
	if err != nil {
		return nil, apierror.New(apierror.InvalidRequest, err.Error())
	}
	coerceNumericFields(params)
	return params, nil
}

// numericFormFields names the well-known monetary/count fields that must
// come out of form parsing as numbers, not strings, so create/update
// responses echo them the same way regardless of whether the request
// body was JSON or bracket-encoded form data.
var numericFormFields = map[string]bool{
	"amount":           true,
	"amount_refunded":  true,
	"amount_due":       true,
	"amount_paid":      true,
	"amount_remaining": true,
	"unit_amount":      true,
	"quantity":         true,
	"interval_count":   true,
	"fee":              true,
	"seconds":          true,
	"minutes":          true,
	"hours":            true,
	"days":             true,
}

// coerceNumericFields walks a parsed form body in place, converting the
// string value of any numericFormFields key into an int64. Everything
// reqparse.ParseNested produces is either a string, a map, or a slice, so
// no other scalar kind needs handling.
func coerceNumericFields(v interface{}) {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			if s, ok := val.(string); ok && numericFormFields[k] {
				if n, err := strconv.ParseInt(s, 10, 64); err == nil {
					t[k] = n
					continue
				}
			}
			coerceNumericFields(val)
		}
	case []interface{}:
		for _, val := range t {
			coerceNumericFields(val)
		}
	}
}

func isJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return len(ct) >= 16 && ct[:16] == "application/json"
}

func parseFormBody(body []byte) (map[string][]string, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}
	return map[string][]string(values), nil
}

// listOptionsFromQuery translates limit/starting_after/ending_before query
// parameters into store.ListOptions, and turns any other query parameter
// into a per-resource list filter (e.g. `?customer=cus_1` on
// GET /v1/invoices).
func listOptionsFromQuery(r *http.Request) (store.ListOptions, *apierror.Error) {
	q := r.URL.Query()
	opts := store.ListOptions{
		StartingAfter: q.Get("starting_after"),
		EndingBefore:  q.Get("ending_before"),
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			opts.Limit = n
			opts.HasLimit = true
		}
	}
	filter, err := filterFromQuery(q)
	if err != nil {
		return opts, apierror.New(apierror.InvalidRequest, "invalid list filter: "+err.Error())
	}
	opts.Filter = filter
	return opts, nil
}

// identRe matches field names safe to splice into an expr-lang expression
// as a bare identifier.
var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// filterFromQuery compiles every non-reserved query parameter into a
// single expr-lang equality expression (e.g. `customer == "cus_1" &&
// status == "open"`) via store.CompileFilter, the same mechanism
// pkg/store exposes for config-driven list filters. A request with no
// such parameters returns a nil Filter, leaving List's unfiltered path
// untouched. Keys that aren't safe bare identifiers fall back to
// store.EqualsFilter, ANDed in alongside the compiled expression.
func filterFromQuery(q url.Values) (store.Filter, error) {
	keys := make([]string, 0, len(q))
	for key := range q {
		if reservedListParams[key] || len(q[key]) == 0 || q[key][0] == "" {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	var exprParts []string
	var fallback []store.Filter
	for _, key := range keys {
		value := q.Get(key)
		if identRe.MatchString(key) {
			exprParts = append(exprParts, fmt.Sprintf("%s == %q", key, value))
		} else {
			fallback = append(fallback, store.EqualsFilter(key, value))
		}
	}

	var compiled store.Filter
	if len(exprParts) > 0 {
		f, err := store.CompileFilter(strings.Join(exprParts, " && "))
		if err != nil {
			return nil, err
		}
		compiled = f
	}

	if compiled == nil && len(fallback) == 0 {
		return nil, nil
	}
	return func(obj *store.Object) bool {
		if compiled != nil && !compiled(obj) {
			return false
		}
		for _, f := range fallback {
			if !f(obj) {
				return false
			}
		}
		return true
	}, nil
}
