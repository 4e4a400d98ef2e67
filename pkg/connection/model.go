package connection

import (
	"fmt"

	"github.com/leanstore/leanstore.go/pkg/constants"
)

// Intent names what a Request asks the store to do.
type Intent string

const (
	IntentCreate               Intent = "create"
	IntentUpdate               Intent = "update"
	IntentDelete               Intent = "delete"
	IntentGet                  Intent = "get"
	IntentQuery                Intent = "query"
	IntentBatch                Intent = "batch"
	IntentSearch               Intent = "search"
	IntentInbox                Intent = "inbox"
	IntentSignUp               Intent = "signup"
	IntentLogIn                Intent = "login"
	IntentBecome               Intent = "become"
	IntentUpdatePassword       Intent = "updatePassword"
	IntentRequestPasswordReset Intent = "requestPasswordReset"
	IntentRequestEmailVerify   Intent = "requestEmailVerify"
	IntentServerDate           Intent = "date"
)

// Options are per-request authentication overrides.
type Options struct {
	UseMasterKey bool
	SessionToken string
}

// Request is a transport-neutral description of one call to the store.
type Request struct {
	// ID correlates the request with log lines. Transports fill it in when empty.
	ID        string
	Intent    Intent
	ClassName string
	ObjectID  string
	// Body is the JSON body of writes.
	Body map[string]any
	// Params become the query string: where, order, limit, skip, keys, include, count, ...
	Params map[string]any
	// Requests holds the sub-requests of a batch.
	Requests []*Request
	Options  Options
}

// Response is a decoded store reply.
type Response struct {
	StatusCode int
	Body       any
}

// Object returns the body as a single record.
func (r *Response) Object() (map[string]any, error) {
	if r == nil || r.Body == nil {
		return map[string]any{}, nil
	}
	m, ok := r.Body.(map[string]any)
	if !ok {
		return nil, Errorf(constants.InvalidJSON, "expected an object body, got %T", r.Body)
	}
	return m, nil
}

// Results returns the "results" rows of a query reply.
func (r *Response) Results() ([]map[string]any, error) {
	m, err := r.Object()
	if err != nil {
		return nil, err
	}
	raw, ok := m["results"]
	if !ok || raw == nil {
		return []map[string]any{}, nil
	}
	rows, ok := raw.([]any)
	if !ok {
		return nil, Errorf(constants.InvalidJSON, "expected results array, got %T", raw)
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		rm, ok := row.(map[string]any)
		if !ok {
			return nil, Errorf(constants.InvalidJSON, "expected result object, got %T", row)
		}
		out = append(out, rm)
	}
	return out, nil
}

// Count returns the "count" of a count reply.
func (r *Response) Count() (int, error) {
	m, err := r.Object()
	if err != nil {
		return 0, err
	}
	switch n := m["count"].(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	}
	return 0, Errorf(constants.InvalidJSON, "expected numeric count, got %T", m["count"])
}

// BatchResult is the outcome of one sub-request of a batch.
type BatchResult struct {
	Success map[string]any
	Error   *Error
}

// BatchResults splits a batch reply into per-request outcomes, in request order.
func (r *Response) BatchResults() ([]BatchResult, error) {
	items, ok := r.Body.([]any)
	if !ok {
		return nil, Errorf(constants.InvalidJSON, "expected batch array, got %T", r.Body)
	}
	out := make([]BatchResult, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, Errorf(constants.InvalidJSON, "expected batch item object, got %T", item)
		}
		if e, ok := m["error"].(map[string]any); ok {
			out[i].Error = decodeErrorObject(e)
			continue
		}
		success, _ := m["success"].(map[string]any)
		if success == nil {
			success = map[string]any{}
		}
		out[i].Success = success
	}
	return out, nil
}

func decodeErrorObject(m map[string]any) *Error {
	code := constants.OtherCause
	if c, ok := m["code"].(float64); ok {
		code = constants.ErrorCode(int(c))
	}
	msg, _ := m["error"].(string)
	if msg == "" {
		msg = fmt.Sprintf("error code %d", code)
	}
	return &Error{Code: code, Message: msg}
}
