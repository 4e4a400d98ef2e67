// Package testenv creates clients for examples and tests.
//
// Clients talk to an in-process fake store. Setting LEANSTORE_TEST_TRANSPORT to
// "http" puts the store behind a local HTTP server instead, so the same examples
// also exercise the REST transport.
package testenv

import (
	"context"
	"fmt"
	"net/http/httptest"

	"github.com/leanstore/leanstore.go"
	"github.com/leanstore/leanstore.go/internal/fakestore"
	"github.com/leanstore/leanstore.go/pkg/connection"
)

const (
	// EnvTransport selects how clients reach the fake store: "http" or "memory".
	EnvTransport = "LEANSTORE_TEST_TRANSPORT"

	appID     = "testenv"
	appKey    = "testenv-key"
	masterKey = "testenv-master"
)

// Env is a client together with the store it talks to.
type Env struct {
	Client *leanstore.Client
	Store  *fakestore.Store

	server *httptest.Server
}

// Close closes the client and the HTTP server, if any.
func (e *Env) Close() {
	_ = e.Client.Close(context.Background())
	if e.server != nil {
		e.server.Close()
	}
}

// MustNew is New that panics on error.
func MustNew(opts ...leanstore.Option) *Env {
	env, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("testenv: %v", err))
	}
	return env
}

// New creates an empty store and a client of it.
func New(opts ...leanstore.Option) (*Env, error) {
	store := fakestore.New()
	store.MasterKey = masterKey

	switch transport := leanstore.GetEnvOrDefault(EnvTransport, "memory"); transport {
	case "memory":
		return &Env{Client: leanstore.New(store, opts...), Store: store}, nil
	case "http":
		store.AppID = appID
		srv := httptest.NewServer(fakestore.NewHandler(store))
		c, err := leanstore.FromEndpointURLString(context.Background(), srv.URL, func(cfg *connection.Config) {
			cfg.WithApp(appID, appKey).WithMasterKey(masterKey)
		}, opts...)
		if err != nil {
			srv.Close()
			return nil, err
		}
		return &Env{Client: c, Store: store, server: srv}, nil
	default:
		return nil, fmt.Errorf("invalid %s %q", EnvTransport, transport)
	}
}
