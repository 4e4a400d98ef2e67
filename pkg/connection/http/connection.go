package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/buger/jsonparser"
	"github.com/leanstore/leanstore.go/internal/rand"
	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
)

// HTTPConnection talks to the store's REST API.
type HTTPConnection struct {
	connection.BaseConnection

	httpClient *http.Client
}

var _ connection.Connection = (*HTTPConnection)(nil)

func New(p *connection.Config) *HTTPConnection {
	con := HTTPConnection{
		BaseConnection: connection.NewBaseConnection(p),
		httpClient:     p.HTTPClient,
	}

	if con.httpClient == nil {
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = constants.DefaultHTTPTimeout
		}
		con.httpClient = &http.Client{
			Timeout: timeout, // Set a default timeout to avoid hanging requests
		}
	}

	return &con
}

// Connect checks the configuration and that the store answers.
func (h *HTTPConnection) Connect(ctx context.Context) error {
	if err := h.PreConnectionChecks(); err != nil {
		return err
	}
	_, err := h.Send(ctx, &connection.Request{Intent: connection.IntentServerDate})
	return err
}

func (h *HTTPConnection) Close(ctx context.Context) error {
	h.httpClient.CloseIdleConnections()
	return nil
}

func (h *HTTPConnection) SetTimeout(timeout time.Duration) *HTTPConnection {
	h.httpClient.Timeout = timeout
	return h
}

func (h *HTTPConnection) SetHTTPClient(client *http.Client) *HTTPConnection {
	h.httpClient = client
	return h
}

func (h *HTTPConnection) Send(ctx context.Context, request *connection.Request) (*connection.Response, error) {
	if h.BaseURL == "" {
		return nil, constants.ErrNoBaseURL
	}
	if request.ID == "" {
		request.ID = rand.NewRequestID(constants.RequestIDLength)
	}

	route, err := connection.RouteFor(request)
	if err != nil {
		return nil, err
	}

	var body io.Reader = http.NoBody
	if route.Body != nil {
		reqBody, err := h.Marshaler.Marshal(route.Body)
		if err != nil {
			return nil, connection.Wrap(constants.InvalidJSON, err)
		}
		body = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, route.Method, h.BaseURL+route.URI(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", connection.ContentTypeJSON)
	if route.Body != nil {
		req.Header.Set("Content-Type", connection.ContentTypeJSON)
	}
	req.Header.Set(connection.HeaderRequestID, request.ID)
	req.Header.Set(connection.HeaderAppID, h.AppID)
	if request.Options.UseMasterKey && h.MasterKey != "" {
		req.Header.Set(connection.HeaderAppKey, h.MasterKey+connection.MasterKeySuffix)
	} else {
		req.Header.Set(connection.HeaderAppKey, h.AppKey)
	}
	if request.Options.SessionToken != "" {
		req.Header.Set(connection.HeaderSession, request.Options.SessionToken)
	}

	h.Logger.Debug("sending request",
		"id", request.ID, "intent", string(request.Intent), "method", route.Method, "path", route.Path)

	status, respData, err := h.MakeRequest(req)
	if err != nil {
		h.Logger.Debug("request failed", "id", request.ID, "error", err)
		return nil, err
	}

	res := &connection.Response{StatusCode: status}
	if len(bytes.TrimSpace(respData)) == 0 {
		return res, nil
	}
	if err := h.Unmarshaler.Unmarshal(respData, &res.Body); err != nil {
		return nil, connection.Wrap(constants.InvalidJSON, err)
	}
	return res, nil
}

// MakeRequest performs req and returns the status and body of a 2xx reply.
// Any other reply is decoded into a *connection.Error.
func (h *HTTPConnection) MakeRequest(req *http.Request) (int, []byte, error) {
	resp, err := h.httpClient.Do(req)
	if err != nil {
		code := constants.ConnectionFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = constants.Timeout
		}
		return 0, nil, &connection.Error{
			Code:    code,
			Message: fmt.Sprintf("error making HTTP request: %v", err),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, connection.Wrap(constants.ConnectionFailed, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, respBytes, nil
	}

	return resp.StatusCode, nil, decodeError(resp.StatusCode, respBytes)
}

// decodeError extracts {"code": n, "error": "message"} from an error reply.
func decodeError(status int, body []byte) *connection.Error {
	e := &connection.Error{StatusCode: status, Code: statusCode(status)}

	if code, err := jsonparser.GetInt(body, "code"); err == nil {
		e.Code = constants.ErrorCode(code)
	}
	if msg, err := jsonparser.GetString(body, "error"); err == nil {
		e.Message = msg
	} else {
		e.Message = string(bytes.TrimSpace(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func statusCode(status int) constants.ErrorCode {
	switch {
	case status == http.StatusNotFound:
		return constants.ObjectNotFound
	case status == http.StatusTooManyRequests:
		return constants.RequestLimitExceeded
	case status >= http.StatusInternalServerError:
		return constants.InternalServerError
	default:
		return constants.OtherCause
	}
}
