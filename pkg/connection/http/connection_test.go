package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
)

type RoundTripFunc func(req *http.Request) *http.Response

func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

// NewTestClient returns *http.Client with Transport replaced to avoid making real calls
func NewTestClient(fn RoundTripFunc) *http.Client {
	return &http.Client{
		Transport: fn,
	}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		// Must be set to non-nil value or it panics
		Header: http.Header{"Content-Type": []string{"application/json"}},
	}
}

type HTTPTestSuite struct {
	suite.Suite
	name string
	conf *connection.Config
}

func TestHttpTestSuite(t *testing.T) {
	ts := new(HTTPTestSuite)
	ts.name = "HTTP Test Suite"

	suite.Run(t, ts)
}

// SetupTest is called before each test
func (s *HTTPTestSuite) SetupTest() {
	u, err := url.Parse("http://test.leanstore")
	s.Require().NoError(err)
	s.conf = connection.NewConfig(u).WithApp("app-id", "app-key").WithMasterKey("master")
}

func (s *HTTPTestSuite) TestMockClientEngine_MakeRequest() {
	ctx := context.TODO()

	httpClient := NewTestClient(func(req *http.Request) *http.Response {
		s.Assert().Equal("http://test.leanstore/1.1/classes/Post/p1", req.URL.String())
		return jsonResponse(http.StatusNotFound, `{"code":101,"error":"Object not found."}`)
	})

	httpEngine := New(s.conf)
	httpEngine.SetHTTPClient(httpClient)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://test.leanstore/1.1/classes/Post/p1", http.NoBody)
	_, _, err := httpEngine.MakeRequest(req)
	s.Require().Error(err, "should return error for status code 404")

	var lcErr *connection.Error
	s.Require().True(errors.As(err, &lcErr))
	s.Assert().Equal(constants.ObjectNotFound, lcErr.Code)
	s.Assert().Equal("Object not found.", lcErr.Message)
	s.Assert().Equal(http.StatusNotFound, lcErr.StatusCode)
	s.Assert().ErrorIs(err, constants.ErrNotFound)
}

func (s *HTTPTestSuite) TestSend_createMapsRouteAndHeaders() {
	httpClient := NewTestClient(func(req *http.Request) *http.Response {
		s.Assert().Equal(http.MethodPost, req.Method)
		s.Assert().Equal("/1.1/classes/Post", req.URL.Path)
		s.Assert().Equal("true", req.URL.Query().Get("fetchWhenSave"))
		s.Assert().Equal("app-id", req.Header.Get(connection.HeaderAppID))
		s.Assert().Equal("app-key", req.Header.Get(connection.HeaderAppKey))
		s.Assert().Equal("r:token", req.Header.Get(connection.HeaderSession))
		s.Assert().NotEmpty(req.Header.Get(connection.HeaderRequestID))

		body, err := io.ReadAll(req.Body)
		s.Require().NoError(err)
		s.Assert().JSONEq(`{"title":"hello","likes":{"__op":"Increment","amount":1}}`, string(body))

		return jsonResponse(http.StatusCreated, `{"objectId":"p1","createdAt":"2024-01-01T00:00:00.000Z"}`)
	})

	httpEngine := New(s.conf).SetHTTPClient(httpClient)
	res, err := httpEngine.Send(context.Background(), &connection.Request{
		Intent:    connection.IntentCreate,
		ClassName: "Post",
		Body: map[string]any{
			"title": "hello",
			"likes": map[string]any{"__op": "Increment", "amount": 1},
		},
		Params:  map[string]any{"fetchWhenSave": true},
		Options: connection.Options{SessionToken: "r:token"},
	})
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusCreated, res.StatusCode)

	obj, err := res.Object()
	s.Require().NoError(err)
	s.Assert().Equal("p1", obj["objectId"])
}

func (s *HTTPTestSuite) TestSend_masterKeyAndQuery() {
	httpClient := NewTestClient(func(req *http.Request) *http.Response {
		s.Assert().Equal(http.MethodGet, req.Method)
		s.Assert().Equal("/1.1/users", req.URL.Path)
		s.Assert().Equal("master,master", req.Header.Get(connection.HeaderAppKey))
		s.Assert().JSONEq(`{"age":{"$gt":18}}`, req.URL.Query().Get("where"))
		s.Assert().Equal("2", req.URL.Query().Get("limit"))
		return jsonResponse(http.StatusOK, `{"results":[{"objectId":"u1","age":20}]}`)
	})

	httpEngine := New(s.conf).SetHTTPClient(httpClient)
	res, err := httpEngine.Send(context.Background(), &connection.Request{
		Intent:    connection.IntentQuery,
		ClassName: constants.ClassUser,
		Params: map[string]any{
			"where": map[string]any{"age": map[string]any{"$gt": 18}},
			"limit": 2,
		},
		Options: connection.Options{UseMasterKey: true},
	})
	s.Require().NoError(err)

	rows, err := res.Results()
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Assert().Equal(float64(20), rows[0]["age"])
}

func (s *HTTPTestSuite) TestSend_batchBody() {
	httpClient := NewTestClient(func(req *http.Request) *http.Response {
		s.Assert().Equal("/1.1/batch", req.URL.Path)
		body, err := io.ReadAll(req.Body)
		s.Require().NoError(err)
		s.Assert().JSONEq(`{"requests":[
			{"method":"POST","path":"/1.1/classes/Post","body":{"title":"a"}},
			{"method":"DELETE","path":"/1.1/classes/Post/p2"}
		]}`, string(body))
		return jsonResponse(http.StatusOK, `[{"success":{"objectId":"p1"}},{"error":{"code":101,"error":"missing"}}]`)
	})

	httpEngine := New(s.conf).SetHTTPClient(httpClient)
	res, err := httpEngine.Send(context.Background(), &connection.Request{
		Intent: connection.IntentBatch,
		Requests: []*connection.Request{
			{Intent: connection.IntentCreate, ClassName: "Post", Body: map[string]any{"title": "a"}},
			{Intent: connection.IntentDelete, ClassName: "Post", ObjectID: "p2"},
		},
	})
	s.Require().NoError(err)

	results, err := res.BatchResults()
	s.Require().NoError(err)
	s.Require().Len(results, 2)
	s.Assert().Equal("p1", results[0].Success["objectId"])
	s.Require().NotNil(results[1].Error)
	s.Assert().Equal(constants.ObjectNotFound, results[1].Error.Code)
}

func (s *HTTPTestSuite) TestSend_conditionNotMet() {
	httpClient := NewTestClient(func(req *http.Request) *http.Response {
		return jsonResponse(http.StatusBadRequest, `{"code":305,"error":"No effect on updating/deleting a document."}`)
	})

	httpEngine := New(s.conf).SetHTTPClient(httpClient)
	_, err := httpEngine.Send(context.Background(), &connection.Request{
		Intent: connection.IntentUpdate, ClassName: "Post", ObjectID: "p1",
		Body:   map[string]any{"title": "b"},
		Params: map[string]any{"where": map[string]any{"title": "a"}},
	})
	s.Assert().ErrorIs(err, constants.ErrConditionNotMet)
}

func (s *HTTPTestSuite) TestSend_serverErrorWithoutBody() {
	httpClient := NewTestClient(func(req *http.Request) *http.Response {
		return jsonResponse(http.StatusBadGateway, ``)
	})

	httpEngine := New(s.conf).SetHTTPClient(httpClient)
	_, err := httpEngine.Send(context.Background(), &connection.Request{
		Intent: connection.IntentGet, ClassName: "Post", ObjectID: "p1",
	})
	s.Assert().ErrorIs(err, constants.ErrTransport)
}

func (s *HTTPTestSuite) TestSend_routeValidation() {
	httpEngine := New(s.conf)
	_, err := httpEngine.Send(context.Background(), &connection.Request{Intent: connection.IntentDelete, ClassName: "Post"})
	s.Assert().ErrorIs(err, constants.ErrValidation)

	_, err = httpEngine.Send(context.Background(), &connection.Request{Intent: "explode"})
	s.Assert().ErrorIs(err, constants.ErrUnknownIntent)
}

func (s *HTTPTestSuite) TestConnect_requiresAppID() {
	u, _ := url.Parse("http://test.leanstore")
	httpEngine := New(connection.NewConfig(u))
	s.Assert().ErrorIs(httpEngine.Connect(context.Background()), constants.ErrNoAppID)
}
