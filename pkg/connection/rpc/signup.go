package rpc

import (
	"context"

	"github.com/leanstore/leanstore.go/pkg/connection"
)

// SignUp creates a user from attrs and returns the stored fields, including the
// session token.
func SignUp(c connection.Connection, ctx context.Context, attrs map[string]any) (map[string]any, error) {
	res, err := connection.Send[map[string]any](c, ctx, &connection.Request{
		Intent: connection.IntentSignUp,
		Body:   attrs,
	})
	if err != nil {
		return nil, err
	}

	return *res, nil
}
