package leanstore

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/leanstore/leanstore.go/pkg/connection"
	lshttp "github.com/leanstore/leanstore.go/pkg/connection/http"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/logger"
	"github.com/leanstore/leanstore.go/pkg/promise"
)

// Client binds the object model to one store connection.
//
// Objects, queries and relations created from a Client send their requests through
// its connection, decode rows through its Registry and run promise continuations on
// its Loop.
type Client struct {
	conn         connection.Connection
	registry     *Registry
	loop         *promise.Loop
	log          logger.Logger
	sessions     SessionStore
	useMasterKey bool

	mu      sync.Mutex
	current *User
}

// Option configures a Client.
type Option func(*Client)

// WithRegistry sets the class registry used to construct and decode objects.
func WithRegistry(r *Registry) Option {
	return func(c *Client) { c.registry = r }
}

// WithLogger sets the client's logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithLoop sets the Loop promise continuations run on.
func WithLoop(l *promise.Loop) Option {
	return func(c *Client) { c.loop = l }
}

// WithSessionStore sets where the current user's session token is kept.
func WithSessionStore(s SessionStore) Option {
	return func(c *Client) { c.sessions = s }
}

// WithMasterKey makes every request use the master key unless a request
// option says otherwise.
func WithMasterKey() Option {
	return func(c *Client) { c.useMasterKey = true }
}

// New creates a Client sending its requests through conn.
func New(conn connection.Connection, opts ...Option) *Client {
	c := &Client{conn: conn}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	if c.loop == nil {
		c.loop = promise.DefaultLoop()
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	if c.sessions == nil {
		c.sessions = &MemorySessionStore{}
	}
	return c
}

// FromEndpointURLString connects to the REST endpoint at endpoint, for example
// "https://api.example.com". conf, when not nil, fills in the application
// credentials and other connection settings before connecting.
func FromEndpointURLString(ctx context.Context, endpoint string, conf func(*connection.Config), opts ...Option) (*Client, error) {
	u, err := url.ParseRequestURI(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := connection.NewConfig(u)
	if conf != nil {
		conf(cfg)
	}
	c := New(lshttp.New(cfg), opts...)
	if err := c.conn.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Connection returns the underlying connection.
func (c *Client) Connection() connection.Connection { return c.conn }

// Registry returns the class registry.
func (c *Client) Registry() *Registry { return c.registry }

// Loop returns the Loop promise continuations run on.
func (c *Client) Loop() *promise.Loop { return c.loop }

// Close closes the underlying connection.
func (c *Client) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// Extend registers spec for className in the client's registry and returns a
// constructor of new objects of that class.
func (c *Client) Extend(className string, spec ClassSpec) func() *Object {
	c.registry.Extend(className, spec)
	return func() *Object { return c.Object(className) }
}

// RequestOptions override how one request authenticates.
type RequestOptions struct {
	// UseMasterKey sends the request with the master key.
	UseMasterKey *bool
	// SessionToken authenticates the request as this session instead of the
	// current user's.
	SessionToken string
}

func (c *Client) options(ro RequestOptions) connection.Options {
	opts := connection.Options{UseMasterKey: c.useMasterKey, SessionToken: ro.SessionToken}
	if ro.UseMasterKey != nil {
		opts.UseMasterKey = *ro.UseMasterKey
	}
	if opts.SessionToken == "" && !opts.UseMasterKey {
		if token, ok := c.sessions.CurrentSessionToken(); ok {
			opts.SessionToken = token
		}
	}
	return opts
}

// send dispatches req on the client's loop, filling in its authentication options.
func (c *Client) send(ctx context.Context, req *connection.Request, ro RequestOptions) *promise.Promise[*connection.Response] {
	req.Options = c.options(ro)
	c.log.Debug("dispatching request",
		"intent", string(req.Intent), "class", req.ClassName, "id", req.ObjectID)
	return connection.Dispatch(c.loop, c.conn, ctx, req)
}

// ServerDate returns the store's current time.
func (c *Client) ServerDate(ctx context.Context) *promise.Promise[time.Time] {
	res := c.send(ctx, &connection.Request{Intent: connection.IntentServerDate}, RequestOptions{})
	return promise.Then(res, func(r *connection.Response) (time.Time, error) {
		d, ok := c.decode(r.Body).(time.Time)
		if !ok {
			return time.Time{}, connection.Errorf(constants.InvalidJSON, "unexpected server date %v", r.Body)
		}
		return d, nil
	}, nil)
}

func resolvedOn[T any](loop *promise.Loop, v T) *promise.Promise[T] {
	p := promise.NewOn[T](loop)
	p.Resolve(v)
	return p
}

func rejectedOn[T any](loop *promise.Loop, err error) *promise.Promise[T] {
	p := promise.NewOn[T](loop)
	p.Reject(connection.AsError(err))
	return p
}
