package connection

import (
	"context"
	"fmt"

	"github.com/leanstore/leanstore.go/pkg/promise"
)

// Send performs req on c and decodes the reply body into Result.
func Send[Result any](c Connection, ctx context.Context, req *Request) (*Result, error) {
	rawRes, err := c.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	var r Result
	if rawRes == nil || rawRes.Body == nil {
		return &r, nil
	}
	if v, ok := rawRes.Body.(Result); ok {
		return &v, nil
	}

	data, err := marshalBody(rawRes.Body)
	if err != nil {
		return nil, fmt.Errorf("Send: error marshaling result: %w", err)
	}
	if err := c.GetUnmarshaler().Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("Send: error unmarshaling result: %w", err)
	}
	return &r, nil
}

// Dispatch performs req on its own goroutine and returns a promise of the reply whose
// continuations run on loop. Failures are always rejected as *Error.
func Dispatch(loop *promise.Loop, c Connection, ctx context.Context, req *Request) *promise.Promise[*Response] {
	return promise.GoOn(loop, ctx, func(ctx context.Context) (*Response, error) {
		res, err := c.Send(ctx, req)
		if err != nil {
			return nil, AsError(err)
		}
		return res, nil
	})
}
