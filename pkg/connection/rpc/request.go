package rpc

import (
	"context"

	"github.com/leanstore/leanstore.go/pkg/connection"
)

// RequestPasswordReset asks the store to mail a reset link to email.
func RequestPasswordReset(c connection.Connection, ctx context.Context, email string) error {
	if _, err := connection.Send[any](c, ctx, &connection.Request{
		Intent: connection.IntentRequestPasswordReset,
		Body:   map[string]any{"email": email},
	}); err != nil {
		return err
	}

	return nil
}

// RequestEmailVerify asks the store to mail a verification link to email.
func RequestEmailVerify(c connection.Connection, ctx context.Context, email string) error {
	if _, err := connection.Send[any](c, ctx, &connection.Request{
		Intent: connection.IntentRequestEmailVerify,
		Body:   map[string]any{"email": email},
	}); err != nil {
		return err
	}

	return nil
}
