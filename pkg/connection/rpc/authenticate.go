package rpc

import (
	"context"

	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
)

// Become returns the user owning token.
func Become(c connection.Connection, ctx context.Context, token string) (map[string]any, error) {
	if token == "" {
		return nil, connection.NewError(constants.SessionMissing, "empty session token")
	}
	res, err := connection.Send[map[string]any](c, ctx, &connection.Request{
		Intent:  connection.IntentBecome,
		Options: connection.Options{SessionToken: token},
	})
	if err != nil {
		return nil, err
	}

	return *res, nil
}

// UpdatePassword changes the password of the user userID authenticated by token.
func UpdatePassword(c connection.Connection, ctx context.Context, userID, token, oldPassword, newPassword string) (map[string]any, error) {
	res, err := connection.Send[map[string]any](c, ctx, &connection.Request{
		Intent:   connection.IntentUpdatePassword,
		ObjectID: userID,
		Body: map[string]any{
			"old_password": oldPassword,
			"new_password": newPassword,
		},
		Options: connection.Options{SessionToken: token},
	})
	if err != nil {
		return nil, err
	}

	return *res, nil
}
