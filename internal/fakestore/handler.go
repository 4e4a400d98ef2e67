package fakestore

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
)

// Handler serves a Store over the REST API spoken by the HTTP transport.
type Handler struct {
	store  *Store
	router *mux.Router
}

// endpoint is the handler of one route. Batch sub-requests are resolved by matching
// their path against the router and reusing the endpoint found.
type endpoint struct {
	h         *Handler
	intent    connection.Intent
	className string
}

// NewHandler routes the REST API to s.
func NewHandler(s *Store) *Handler {
	h := &Handler{store: s, router: mux.NewRouter()}
	v := "/" + constants.APIVersion

	h.route(http.MethodGet, v+"/date", connection.IntentServerDate, "")
	h.route(http.MethodPost, v+"/batch", connection.IntentBatch, "")
	h.route(http.MethodGet, v+"/search/select", connection.IntentSearch, "")
	h.route(http.MethodGet, v+"/subscribe/statuses", connection.IntentInbox, "")
	h.route(http.MethodPost, v+"/login", connection.IntentLogIn, "")
	h.route(http.MethodPost, v+"/requestPasswordReset", connection.IntentRequestPasswordReset, "")
	h.route(http.MethodPost, v+"/requestEmailVerify", connection.IntentRequestEmailVerify, "")
	h.route(http.MethodGet, v+"/users/me", connection.IntentBecome, "")
	h.route(http.MethodPut, v+"/users/{objectId}/updatePassword", connection.IntentUpdatePassword, "")

	collections := []struct{ path, className string }{
		{v + "/users", constants.ClassUser},
		{v + "/roles", constants.ClassRole},
		{v + "/installations", constants.ClassInstallation},
		{v + "/classes/{className}", ""},
	}
	for _, c := range collections {
		h.route(http.MethodPost, c.path, connection.IntentCreate, c.className)
		h.route(http.MethodGet, c.path, connection.IntentQuery, c.className)
		h.route(http.MethodGet, c.path+"/{objectId}", connection.IntentGet, c.className)
		h.route(http.MethodPut, c.path+"/{objectId}", connection.IntentUpdate, c.className)
		h.route(http.MethodDelete, c.path+"/{objectId}", connection.IntentDelete, c.className)
	}

	h.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, connection.Errorf(constants.CommandUnavailable, "no route for %s %s", r.Method, r.URL.Path))
	})
	return h
}

func (h *Handler) route(method, path string, intent connection.Intent, className string) {
	h.router.Methods(method).Path(path).Handler(&endpoint{h: h, intent: intent, className: className})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (e *endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := e.request(r, mux.Vars(r), body)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := e.h.store.Send(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res.StatusCode, res.Body)
}

// request builds the transport-neutral request for r.
func (e *endpoint) request(r *http.Request, vars map[string]string, body map[string]any) (*connection.Request, error) {
	opts, err := e.h.authenticate(r.Header)
	if err != nil {
		return nil, err
	}
	params, err := connection.DecodeParams(r.URL.Query())
	if err != nil {
		return nil, err
	}

	req := &connection.Request{
		ID:        r.Header.Get(connection.HeaderRequestID),
		Intent:    e.intent,
		ClassName: e.className,
		ObjectID:  vars["objectId"],
		Params:    params,
		Options:   opts,
	}
	if req.ClassName == "" {
		req.ClassName = vars["className"]
	}
	if e.intent != connection.IntentBatch {
		req.Body = body
		return req, nil
	}

	items, _ := body["requests"].([]any)
	for _, item := range items {
		sub, err := e.h.resolve(r, item)
		if err != nil {
			return nil, err
		}
		req.Requests = append(req.Requests, sub)
	}
	return req, nil
}

// resolve turns one {"method", "path", "body"} batch item into a request.
func (h *Handler) resolve(parent *http.Request, item any) (*connection.Request, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return nil, connection.Errorf(constants.InvalidJSON, "invalid batch item %v", item)
	}
	method, _ := m["method"].(string)
	path, _ := m["path"].(string)
	u, err := url.Parse(path)
	if err != nil {
		return nil, connection.Wrap(constants.InvalidJSON, err)
	}
	r, err := http.NewRequestWithContext(parent.Context(), strings.ToUpper(method), u.String(), http.NoBody)
	if err != nil {
		return nil, connection.Wrap(constants.InvalidJSON, err)
	}
	r.Header = parent.Header.Clone()

	var match mux.RouteMatch
	if !h.router.Match(r, &match) {
		return nil, connection.Errorf(constants.CommandUnavailable, "no route for batch item %s %s", method, path)
	}
	e, ok := match.Handler.(*endpoint)
	if !ok || e.intent == connection.IntentBatch {
		return nil, connection.Errorf(constants.InvalidQuery, "unsupported batch item %s %s", method, path)
	}
	body, _ := m["body"].(map[string]any)
	return e.request(r, match.Vars, body)
}

// authenticate checks the application headers and derives the request options.
func (h *Handler) authenticate(header http.Header) (connection.Options, error) {
	unauthorized := func(msg string) error {
		return &connection.Error{Code: constants.OperationForbidden, Message: msg, StatusCode: http.StatusUnauthorized}
	}
	if h.store.AppID != "" && header.Get(connection.HeaderAppID) != h.store.AppID {
		return connection.Options{}, unauthorized("unknown application id")
	}
	opts := connection.Options{SessionToken: header.Get(connection.HeaderSession)}
	if key, ok := strings.CutSuffix(header.Get(connection.HeaderAppKey), connection.MasterKeySuffix); ok {
		if h.store.MasterKey == "" || key != h.store.MasterKey {
			return connection.Options{}, unauthorized("invalid master key")
		}
		opts.UseMasterKey = true
	}
	return opts, nil
}

func readBody(r *http.Request) (map[string]any, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, connection.Wrap(constants.ConnectionFailed, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, connection.Wrap(constants.InvalidJSON, err)
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", connection.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		panic(fmt.Sprintf("fakestore: encode reply: %v", err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	e := connection.AsError(err)
	writeJSON(w, httpStatus(e), map[string]any{"code": int(e.Code), "error": e.Message})
}

func httpStatus(e *connection.Error) int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Code {
	case constants.ObjectNotFound, constants.CommandUnavailable:
		return http.StatusNotFound
	case constants.OperationForbidden:
		return http.StatusForbidden
	case constants.RequestLimitExceeded:
		return http.StatusTooManyRequests
	case constants.InternalServerError, constants.ConnectionFailed:
		return http.StatusInternalServerError
	case constants.Timeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
