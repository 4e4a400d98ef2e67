package fakestore

import (
	"net/http"
	"strings"

	"github.com/leanstore/leanstore.go/internal/rand"
	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
)

const sessionTokenLength = 25

// signUp creates a user and logs it in.
func (s *Store) signUp(req *connection.Request) (any, int, error) {
	body, err := normalizeBody(req.Body)
	if err != nil {
		return nil, 0, err
	}
	username, _ := body["username"].(string)
	password, _ := body["password"].(string)
	switch {
	case username == "":
		return nil, 0, connection.NewError(constants.UsernameMissing, "username is required")
	case password == "":
		return nil, 0, connection.NewError(constants.PasswordMissing, "password is required")
	}
	email, _ := body["email"].(string)
	for _, rec := range s.class(constants.ClassUser).all() {
		if rec["username"] == username {
			return nil, 0, connection.Errorf(constants.UsernameTaken, "username %q has already been taken", username)
		}
		if email != "" && strings.EqualFold(stringOf(rec["email"]), email) {
			return nil, 0, connection.Errorf(constants.EmailTaken, "email %q has already been taken", email)
		}
	}

	id := rand.NewObjectID()
	rec := map[string]any{}
	edges, err := s.applyBody(constants.ClassUser, id, rec, body)
	if err != nil {
		return nil, 0, err
	}
	ts := s.timestamp()
	rec[constants.KeyObjectID] = id
	rec[constants.KeyCreatedAt] = ts
	rec[constants.KeyUpdatedAt] = ts
	rec["emailVerified"] = false
	s.insert(constants.ClassUser, rec)
	s.commitEdges(edges)

	token := s.newSession(id)
	return map[string]any{
		constants.KeyObjectID:  id,
		constants.KeyCreatedAt: ts,
		"sessionToken":         token,
	}, http.StatusCreated, nil
}

// logIn accepts a username or a mobile phone number with the password.
func (s *Store) logIn(req *connection.Request) (any, int, error) {
	body, err := normalizeBody(req.Body)
	if err != nil {
		return nil, 0, err
	}
	username, _ := body["username"].(string)
	phone, _ := body["mobilePhoneNumber"].(string)
	password, _ := body["password"].(string)
	switch {
	case username == "" && phone == "":
		return nil, 0, connection.NewError(constants.UsernameMissing, "username or mobile phone number is required")
	case password == "":
		return nil, 0, connection.NewError(constants.PasswordMissing, "password is required")
	}

	for _, rec := range s.class(constants.ClassUser).all() {
		if (username != "" && rec["username"] == username) || (phone != "" && rec["mobilePhoneNumber"] == phone) {
			if rec["password"] != password {
				break
			}
			return s.sessionReply(rec, s.newSession(rec[constants.KeyObjectID].(string))), http.StatusOK, nil
		}
	}
	return nil, 0, connection.NewError(constants.UsernamePasswordMismatch, "the username and password mismatch")
}

// become returns the user a session token belongs to.
func (s *Store) become(req *connection.Request) (any, int, error) {
	token := req.Options.SessionToken
	sess, ok := s.sessions[token]
	if !ok {
		return nil, 0, connection.NewError(constants.InvalidSessionToken, "invalid session token")
	}
	if sess.ExpiresAt != nil && s.now().After(*sess.ExpiresAt) {
		delete(s.sessions, token)
		return nil, 0, connection.NewError(constants.InvalidSessionToken, "session token expired")
	}
	rec, ok := s.lookup(constants.ClassUser, sess.UserID)
	if !ok {
		return nil, 0, connection.NewError(constants.InvalidSessionToken, "invalid session token")
	}
	return s.sessionReply(rec, token), http.StatusOK, nil
}

// updatePassword replaces the password of the session's user and rotates the token.
func (s *Store) updatePassword(req *connection.Request) (any, int, error) {
	sess, ok := s.sessions[req.Options.SessionToken]
	if !ok || sess.UserID != req.ObjectID {
		return nil, 0, connection.NewError(constants.SessionMissing, "cannot update the password of another user")
	}
	rec, ok := s.lookup(constants.ClassUser, req.ObjectID)
	if !ok {
		return nil, 0, notFound(constants.ClassUser, req.ObjectID)
	}
	body, err := normalizeBody(req.Body)
	if err != nil {
		return nil, 0, err
	}
	oldPassword, _ := body["old_password"].(string)
	newPassword, _ := body["new_password"].(string)
	if rec["password"] != oldPassword {
		return nil, 0, connection.NewError(constants.UsernamePasswordMismatch, "the old password is incorrect")
	}
	if newPassword == "" {
		return nil, 0, connection.NewError(constants.PasswordMissing, "new password is required")
	}

	next := copyRecord(rec)
	next["password"] = newPassword
	next[constants.KeyUpdatedAt] = s.timestamp()
	s.insert(constants.ClassUser, next)
	delete(s.sessions, req.Options.SessionToken)
	return s.sessionReply(next, s.newSession(req.ObjectID)), http.StatusOK, nil
}

// requestEmail accepts password reset and verification requests for known emails.
func (s *Store) requestEmail(req *connection.Request) (any, int, error) {
	body, err := normalizeBody(req.Body)
	if err != nil {
		return nil, 0, err
	}
	email, _ := body["email"].(string)
	if email == "" {
		return nil, 0, connection.NewError(constants.EmailMissing, "email is required")
	}
	for _, rec := range s.class(constants.ClassUser).all() {
		if strings.EqualFold(stringOf(rec["email"]), email) {
			return map[string]any{}, http.StatusOK, nil
		}
	}
	return nil, 0, connection.Errorf(constants.EmailNotFound, "no user found with email %q", email)
}

func (s *Store) newSession(userID string) string {
	token := rand.NewRequestID(sessionTokenLength)
	s.sessions[token] = &Session{Token: token, UserID: userID}
	return token
}

func (s *Store) sessionReply(rec map[string]any, token string) map[string]any {
	out := s.output(constants.ClassUser, rec, nil, nil)
	out["sessionToken"] = token
	return out
}

// AddSession registers a session for an existing user, for tests that need a
// logged-in user without going through LogIn.
func (s *Store) AddSession(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = &sess
}
