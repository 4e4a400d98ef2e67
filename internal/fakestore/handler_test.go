package fakestore_test

import (
	"context"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/leanstore/leanstore.go/internal/fakestore"
	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	lshttp "github.com/leanstore/leanstore.go/pkg/connection/http"
)

type HandlerTestSuite struct {
	suite.Suite
	store  *fakestore.Store
	server *httptest.Server
	conn   *lshttp.HTTPConnection
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func (s *HandlerTestSuite) SetupTest() {
	s.store = fakestore.New()
	s.store.AppID = "app"
	s.store.MasterKey = "master"
	s.server = httptest.NewServer(fakestore.NewHandler(s.store))

	s.conn = lshttp.New(s.config("master"))
	s.Require().NoError(s.conn.Connect(context.Background()))
}

func (s *HandlerTestSuite) config(masterKey string) *connection.Config {
	u, err := url.Parse(s.server.URL)
	s.Require().NoError(err)
	return connection.NewConfig(u).WithApp("app", "key").WithMasterKey(masterKey)
}

func (s *HandlerTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *HandlerTestSuite) TestCreateAndQuery() {
	ctx := context.Background()
	res, err := s.conn.Send(ctx, &connection.Request{
		Intent:    connection.IntentCreate,
		ClassName: "Post",
		Body:      map[string]any{"title": "hello"},
	})
	s.Require().NoError(err)
	created, err := res.Object()
	s.Require().NoError(err)
	s.NotEmpty(created[constants.KeyObjectID])

	res, err = s.conn.Send(ctx, &connection.Request{
		Intent:    connection.IntentQuery,
		ClassName: "Post",
		Params:    map[string]any{"where": map[string]any{"title": "hello"}, "count": 1},
	})
	s.Require().NoError(err)
	n, err := res.Count()
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *HandlerTestSuite) TestBatchOverHTTP() {
	id := s.store.Put("Post", map[string]any{"title": "a"})

	res, err := s.conn.Send(context.Background(), &connection.Request{
		Intent: connection.IntentBatch,
		Requests: []*connection.Request{
			{Intent: connection.IntentUpdate, ClassName: "Post", ObjectID: id, Body: map[string]any{"title": "b"}},
			{Intent: connection.IntentDelete, ClassName: "Post", ObjectID: id, Params: map[string]any{
				"where": map[string]any{"title": "zzz"},
			}},
		},
	})
	s.Require().NoError(err)
	results, err := res.BatchResults()
	s.Require().NoError(err)
	s.Require().Len(results, 2)
	s.Nil(results[0].Error)
	s.Require().NotNil(results[1].Error)
	s.Equal(constants.ConditionNotMet, results[1].Error.Code)

	rec, ok := s.store.Get("Post", id)
	s.Require().True(ok)
	s.Equal("b", rec["title"])
}

func (s *HandlerTestSuite) TestNotFoundOverHTTP() {
	_, err := s.conn.Send(context.Background(), &connection.Request{
		Intent: connection.IntentGet, ClassName: "Post", ObjectID: "missing",
	})
	s.Require().Error(err)
	s.ErrorIs(err, constants.ErrNotFound)
}

func (s *HandlerTestSuite) TestMasterKeyRequiredForMasterRequests() {
	conn := lshttp.New(s.config("wrong"))

	_, err := conn.Send(context.Background(), &connection.Request{
		Intent:    connection.IntentQuery,
		ClassName: "Post",
		Options:   connection.Options{UseMasterKey: true},
	})
	s.Require().Error(err)
	var e *connection.Error
	s.Require().ErrorAs(err, &e)
	s.Equal(constants.OperationForbidden, e.Code)
}

func (s *HandlerTestSuite) TestUserFlowOverHTTP() {
	ctx := context.Background()
	res, err := s.conn.Send(ctx, &connection.Request{
		Intent: connection.IntentSignUp,
		Body:   map[string]any{"username": "alice", "password": "pw"},
	})
	s.Require().NoError(err)
	signed, err := res.Object()
	s.Require().NoError(err)
	token, _ := signed["sessionToken"].(string)
	s.Require().NotEmpty(token)

	res, err = s.conn.Send(ctx, &connection.Request{
		Intent:  connection.IntentBecome,
		Options: connection.Options{SessionToken: token},
	})
	s.Require().NoError(err)
	me, err := res.Object()
	s.Require().NoError(err)
	s.Equal("alice", me["username"])
}
