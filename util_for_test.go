package leanstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leanstore/leanstore.go/internal/fakestore"
	"github.com/leanstore/leanstore.go/pkg/promise"
)

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// newTestClient returns a client backed by a fresh in-memory store. Every test
// client gets its own loop so continuations of parallel tests do not queue
// behind each other.
func newTestClient(t *testing.T, opts ...Option) (*Client, *fakestore.Store) {
	t.Helper()
	store := fakestore.New()
	c := New(store, append([]Option{WithLoop(promise.NewLoop())}, opts...)...)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, store
}

func await[T any](t *testing.T, p *promise.Promise[T]) T {
	t.Helper()
	v, err := p.Await(testCtx(t))
	require.NoError(t, err)
	return v
}

func awaitErr[T any](t *testing.T, p *promise.Promise[T]) error {
	t.Helper()
	_, err := p.Await(testCtx(t))
	require.Error(t, err)
	return err
}

// saved creates an object of className with attrs and saves it.
func saved(t *testing.T, c *Client, className string, attrs map[string]any) *Object {
	t.Helper()
	o := c.Object(className)
	require.NoError(t, o.SetAll(attrs))
	return await(t, o.Save(testCtx(t)))
}

// recorder collects the events fired on objects.
type recorder struct {
	mu     sync.Mutex
	events []string
	args   [][]any
}

func (r *recorder) on(o *Object, name string) {
	o.On(name, func(_ *Object, args ...any) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, name)
		r.args = append(r.args, args)
	})
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}
