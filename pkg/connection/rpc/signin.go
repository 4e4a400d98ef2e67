package rpc

import (
	"context"

	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
)

// LogIn exchanges credentials for the user's fields and session token.
// credentials holds username or mobilePhoneNumber, and password.
func LogIn(c connection.Connection, ctx context.Context, credentials map[string]any) (map[string]any, error) {
	res, err := connection.Send[map[string]any](c, ctx, &connection.Request{
		Intent: connection.IntentLogIn,
		Body:   credentials,
	})
	if err != nil {
		return nil, err
	}
	if token, _ := (*res)["sessionToken"].(string); token == "" {
		return nil, connection.NewError(constants.InvalidSessionToken, "login reply carries no session token")
	}

	return *res, nil
}
