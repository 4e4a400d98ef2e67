package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leanstore/leanstore.go/internal/fakestore"
)

func runCLI(t *testing.T, store *fakestore.Store, args ...string) (string, error) {
	t.Helper()
	srv := httptest.NewServer(fakestore.NewHandler(store))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--server", srv.URL, "--app-id", "app", "--app-key", "key"}, args...))
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func seed(store *fakestore.Store) map[string]string {
	ids := map[string]string{}
	for i, title := range []string{"alpha", "beta", "gamma"} {
		ids[title] = store.Put("Post", map[string]any{"title": title, "views": i * 10})
	}
	return ids
}

func TestFind(t *testing.T) {
	store := fakestore.New()
	seed(store)

	out, err := runCLI(t, store, "find", "Post", "--where", `{"views":{"$gte":10}}`, "--order", "-views", "--keys", "title")
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "gamma", rows[0]["title"])
	assert.Equal(t, "beta", rows[1]["title"])
	assert.NotContains(t, rows[0], "views")
	assert.NotEmpty(t, rows[0]["objectId"])
}

func TestGetAndCount(t *testing.T) {
	store := fakestore.New()
	ids := seed(store)

	out, err := runCLI(t, store, "get", "Post", ids["beta"])
	require.NoError(t, err)
	var row map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &row))
	assert.Equal(t, "beta", row["title"])

	out, err = runCLI(t, store, "count", "Post", "--where", `{"views":{"$lt":15}}`)
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(out))

	_, err = runCLI(t, store, "get", "Post", "missing")
	assert.Error(t, err)
}

func TestDate(t *testing.T) {
	out, err := runCLI(t, fakestore.New(), "date")
	require.NoError(t, err)
	d, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), d, time.Minute)
}

func TestInvalidWhere(t *testing.T) {
	_, err := runCLI(t, fakestore.New(), "find", "Post", "--where", "{not json")
	assert.ErrorContains(t, err, "--where")
}
