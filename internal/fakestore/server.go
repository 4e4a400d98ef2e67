// Package fakestore provides an in-memory store speaking the same request model as
// the REST transport, for testing purposes.
//
// A Store implements connection.Connection directly, so engine tests can run without
// a network, and Handler exposes the same store over HTTP (routed with gorilla/mux) so
// the HTTP transport can be exercised end to end against httptest.
//
// To flexibly inject failures, you can configure stub responses
// that match specific intents and requests, along with failure configurations
// that specify how it fails (e.g., delays, errors, requests held until released).
package fakestore

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/leanstore/leanstore.go/internal/codec"
	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/models"
)

// cryptoRandInt64 generates a cryptographically secure random int64 in [0, max)
func cryptoRandInt64(rMax int64) int64 {
	if rMax <= 0 {
		return 0
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(rMax))
	return n.Int64()
}

// cryptoRandFloat64 generates a cryptographically secure random float64 in [0.0, 1.0)
func cryptoRandFloat64() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(1<<53))
	return float64(n.Int64()) / float64(1<<53)
}

// FailureType represents the type of failure to inject during request processing
type FailureType string

const (
	// FailureNone indicates no failure injection
	FailureNone FailureType = "none"
	// FailureRequestDelay delays before processing the request
	FailureRequestDelay FailureType = "request_delay"
	// FailureRandomDelay applies random delay up to MaxDelay, or one second
	FailureRandomDelay FailureType = "random_delay"
	// FailureError fails the request with FailureConfig.Error without touching the data
	FailureError FailureType = "error"
	// FailureTransport fails the request as if the network was down
	FailureTransport FailureType = "transport"
	// FailureHold blocks the request until FailureConfig.Gate is closed or the context ends
	FailureHold FailureType = "hold"
)

// RequestMatcher defines criteria for matching incoming requests.
// It can match by intent and optionally by the request contents.
type RequestMatcher struct {
	// Intent is the request intent to match
	Intent connection.Intent
	// ClassName restricts the match to one class when set
	ClassName string
	// Matcher is an optional function to match based on the request.
	// If nil, only the intent and class are used for matching.
	Matcher func(req *connection.Request) bool
}

func (m RequestMatcher) match(req *connection.Request) bool {
	if m.Intent != "" && m.Intent != req.Intent {
		return false
	}
	if m.ClassName != "" && m.ClassName != req.ClassName {
		return false
	}
	return m.Matcher == nil || m.Matcher(req)
}

// StubResponse defines a pre-configured response for matching requests.
// It can return either a successful result or an error, and optionally
// inject failures during processing.
type StubResponse struct {
	// Matcher determines which requests this stub should handle
	Matcher RequestMatcher
	// Result is the successful response body to return (mutually exclusive with Error)
	Result any
	// Error is the error to return (mutually exclusive with Result)
	Error *connection.Error
	// Failures defines failure injection configurations for this response
	Failures []FailureConfig
	// Passthrough lets the request reach the store after the failures were applied
	Passthrough bool
}

// FailureConfig defines how and when to inject a specific failure type
type FailureConfig struct {
	// Type specifies the type of failure to inject
	Type FailureType
	// Probability of triggering this failure (0.0 to 1.0)
	Probability float64
	// MinDelay is the minimum delay for delay-based failures
	MinDelay time.Duration
	// MaxDelay is the maximum delay for delay-based failures
	MaxDelay time.Duration
	// Error is returned by FailureError
	Error *connection.Error
	// Gate releases requests held by FailureHold when closed
	Gate <-chan struct{}
}

// Session is a logged-in user session.
type Session struct {
	// Token is the session token handed to the client
	Token string
	// UserID is the objectId of the session's user
	UserID string
	// ExpiresAt is when the session expires (nil means no expiration)
	ExpiresAt *time.Time
}

// Store is an in-memory store. It is safe for concurrent use.
type Store struct {
	mu             sync.Mutex
	classes        map[string]*class
	relations      map[string][]models.Pointer
	sessions       map[string]*Session
	searches       map[string]int
	stubResponses  []StubResponse
	globalFailures []FailureConfig
	calls          []*connection.Request
	lastTime       time.Time
	nextMessageID  int

	// MasterKey, when set, is required for requests made with UseMasterKey.
	MasterKey string
	// AppID, when set, is required from HTTP clients.
	AppID string
}

var _ connection.Connection = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		classes:   make(map[string]*class),
		relations: make(map[string][]models.Pointer),
		sessions:  make(map[string]*Session),
		searches:  make(map[string]int),
	}
}

func (s *Store) Connect(ctx context.Context) error { return nil }
func (s *Store) Close(ctx context.Context) error   { return nil }

func (s *Store) GetUnmarshaler() codec.Unmarshaler {
	return models.JSONUnmarshaler{}
}

// AddStubResponse adds a stub response configuration to the store.
// Stub responses are matched in the order they were added.
func (s *Store) AddStubResponse(stub StubResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubResponses = append(s.stubResponses, stub)
}

// ClearStubResponses removes every stub response.
func (s *Store) ClearStubResponses() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubResponses = nil
}

// SetGlobalFailures sets failure configurations that apply to all requests.
// These are checked before stub-specific failures.
func (s *Store) SetGlobalFailures(failures []FailureConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalFailures = failures
}

// Calls returns the requests received so far. Batches count once; their sub-requests
// are only reachable through Requests.
func (s *Store) Calls() []*connection.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*connection.Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of requests with the given intent, or all requests
// when intent is empty.
func (s *Store) CallCount(intent connection.Intent) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if intent == "" || c.Intent == intent {
			n++
		}
	}
	return n
}

// ResetCalls forgets the recorded requests.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Send implements connection.Connection.
func (s *Store) Send(ctx context.Context, req *connection.Request) (*connection.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	globalFailures := s.globalFailures
	var matchedStub *StubResponse
	for i := range s.stubResponses {
		if s.stubResponses[i].Matcher.match(req) {
			matchedStub = &s.stubResponses[i]
			break
		}
	}
	s.mu.Unlock()

	for _, failure := range globalFailures {
		if shouldTriggerFailure(failure.Probability) {
			if err := applyFailure(ctx, failure); err != nil {
				return nil, err
			}
		}
	}

	// If we have a stub, use it regardless of the intent
	if matchedStub != nil {
		for _, failure := range matchedStub.Failures {
			if shouldTriggerFailure(failure.Probability) {
				if err := applyFailure(ctx, failure); err != nil {
					return nil, err
				}
			}
		}
		if matchedStub.Error != nil {
			return nil, matchedStub.Error
		}
		if !matchedStub.Passthrough {
			body, err := models.Normalize(matchedStub.Result)
			if err != nil {
				return nil, connection.Wrap(constants.InvalidJSON, err)
			}
			return &connection.Response{StatusCode: 200, Body: body}, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, connection.Wrap(constants.Timeout, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Options.UseMasterKey && s.MasterKey == "" {
		return nil, connection.NewError(constants.OperationForbidden, "master key is not configured")
	}

	body, status, err := s.handle(req)
	if err != nil {
		return nil, err
	}
	normalized, nerr := models.Normalize(body)
	if nerr != nil {
		return nil, connection.Wrap(constants.InvalidJSON, nerr)
	}
	return &connection.Response{StatusCode: status, Body: normalized}, nil
}

func applyFailure(ctx context.Context, failure FailureConfig) error {
	switch failure.Type {
	case FailureRequestDelay:
		return sleep(ctx, randomDuration(failure.MinDelay, failure.MaxDelay))

	case FailureRandomDelay:
		dMax := failure.MaxDelay
		if dMax <= 0 {
			dMax = time.Second
		}
		return sleep(ctx, time.Duration(cryptoRandInt64(int64(dMax))))

	case FailureError:
		if failure.Error != nil {
			return failure.Error
		}
		return connection.NewError(constants.InternalServerError, "failure injection")

	case FailureTransport:
		return connection.NewError(constants.ConnectionFailed, "connection refused")

	case FailureHold:
		select {
		case <-failure.Gate:
		case <-ctx.Done():
			return connection.Wrap(constants.Timeout, ctx.Err())
		}
	}

	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return connection.Wrap(constants.Timeout, ctx.Err())
	}
}

func shouldTriggerFailure(probability float64) bool {
	if probability <= 0 {
		return false
	}
	if probability >= 1 {
		return true
	}
	return cryptoRandFloat64() < probability
}

func randomDuration(dMin, dMax time.Duration) time.Duration {
	if dMin >= dMax {
		return dMin
	}
	return dMin + time.Duration(cryptoRandInt64(int64(dMax-dMin)))
}

// MatchIntent creates a RequestMatcher that matches only by intent
func MatchIntent(intent connection.Intent) RequestMatcher {
	return RequestMatcher{
		Intent: intent,
	}
}

// MatchIntentWithRequest creates a RequestMatcher that matches by intent
// and request contents using a custom matcher function
func MatchIntentWithRequest(intent connection.Intent, matcher func(req *connection.Request) bool) RequestMatcher {
	return RequestMatcher{
		Intent:  intent,
		Matcher: matcher,
	}
}

// SimpleStubResponse creates a basic stub response for an intent without failure injection
func SimpleStubResponse(intent connection.Intent, response any) StubResponse {
	return StubResponse{
		Matcher: MatchIntent(intent),
		Result:  response,
	}
}

// ErrorStubResponse creates a stub response that returns a store error
func ErrorStubResponse(intent connection.Intent, code constants.ErrorCode, message string) StubResponse {
	return StubResponse{
		Matcher: MatchIntent(intent),
		Error:   connection.NewError(code, message),
	}
}

// HoldStubResponse creates a stub that blocks matching requests until gate is closed
// and then lets them reach the store.
func HoldStubResponse(matcher RequestMatcher, gate <-chan struct{}) StubResponse {
	return StubResponse{
		Matcher:     matcher,
		Failures:    []FailureConfig{{Type: FailureHold, Probability: 1, Gate: gate}},
		Passthrough: true,
	}
}
