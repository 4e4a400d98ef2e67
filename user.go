package leanstore

import (
	"context"

	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/connection/rpc"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/op"
	"github.com/leanstore/leanstore.go/pkg/promise"
)

// User is an object of the user class with the account operations.
type User struct {
	*Object
}

// NewUser creates an unsaved user.
func (c *Client) NewUser() *User {
	return &User{c.Object(constants.ClassUser)}
}

// AsUser views o as a user.
func AsUser(o *Object) (*User, error) {
	if o == nil || o.kind != KindUser {
		return nil, connection.NewError(constants.IncorrectType, "object is not a user")
	}
	return &User{o}, nil
}

func (u *User) Username() string {
	s, _ := u.Get("username").(string)
	return s
}

func (u *User) SetUsername(name string) error { return u.Set("username", name) }
func (u *User) SetPassword(pw string) error   { return u.Set("password", pw) }

func (u *User) Email() string {
	s, _ := u.Get("email").(string)
	return s
}

func (u *User) SetEmail(email string) error { return u.Set("email", email) }

func (u *User) MobilePhoneNumber() string {
	s, _ := u.Get("mobilePhoneNumber").(string)
	return s
}

func (u *User) SetMobilePhoneNumber(phone string) error { return u.Set("mobilePhoneNumber", phone) }

// SessionToken returns the session token obtained by signing up or logging in.
func (u *User) SessionToken() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sessionToken
}

// Authenticated reports whether u holds a session and is the current user.
func (u *User) Authenticated() bool {
	cur := u.client.CurrentUser()
	return u.SessionToken() != "" && cur != nil && cur.ID() == u.ID()
}

// SignUp creates the user in the store and makes it the current user. The
// username and password must be set.
func (u *User) SignUp(ctx context.Context, opts ...CallOption) *promise.Promise[*User] {
	loop := u.client.loop
	if u.Username() == "" {
		return rejectedOn[*User](loop, connection.NewError(constants.UsernameMissing, "cannot sign up user with an empty name"))
	}
	if pw, _ := u.Get("password").(string); pw == "" {
		return rejectedOn[*User](loop, connection.NewError(constants.PasswordMissing, "cannot sign up user with an empty password"))
	}
	if !u.IsNew() {
		return rejectedOn[*User](loop, connection.NewError(constants.ValidationError, "user is already signed up"))
	}
	return promise.Then(u.Save(ctx, opts...), func(*Object) (*User, error) {
		return u, u.client.setCurrent(u)
	}, nil)
}

// LogIn logs in with the username, or the mobile phone number when there is
// no username, and the password set on u. u becomes the current user.
func (u *User) LogIn(ctx context.Context) *promise.Promise[*User] {
	creds := map[string]any{}
	if name := u.Username(); name != "" {
		creds["username"] = name
	} else if phone := u.MobilePhoneNumber(); phone != "" {
		creds["mobilePhoneNumber"] = phone
	}
	creds["password"], _ = u.Get("password").(string)
	c := u.client
	return promise.GoOn(c.loop, ctx, func(ctx context.Context) (*User, error) {
		c.log.Debug("logging in", "username", creds["username"], "mobilePhoneNumber", creds["mobilePhoneNumber"])
		reply, err := rpc.LogIn(c.conn, ctx, creds)
		if err != nil {
			return nil, err
		}
		return u, c.adoptUser(u.Object, reply)
	})
}

// LogIn logs in with a username and password.
func (c *Client) LogIn(ctx context.Context, username, password string) *promise.Promise[*User] {
	u := c.NewUser()
	u.queue("username", op.NewSet(username)) //nolint:errcheck // a Set on a fresh object cannot fail
	u.queue("password", op.NewSet(password)) //nolint:errcheck
	return u.LogIn(ctx)
}

// LogInWithMobilePhone logs in with a mobile phone number and password.
func (c *Client) LogInWithMobilePhone(ctx context.Context, phone, password string) *promise.Promise[*User] {
	u := c.NewUser()
	u.queue("mobilePhoneNumber", op.NewSet(phone)) //nolint:errcheck // a Set on a fresh object cannot fail
	u.queue("password", op.NewSet(password))       //nolint:errcheck
	return u.LogIn(ctx)
}

// Become makes the owner of token the current user.
func (c *Client) Become(ctx context.Context, token string) *promise.Promise[*User] {
	return promise.GoOn(c.loop, ctx, func(ctx context.Context) (*User, error) {
		reply, err := rpc.Become(c.conn, ctx, token)
		if err != nil {
			return nil, err
		}
		u := c.NewUser()
		if err := c.adoptUser(u.Object, reply); err != nil {
			return nil, err
		}
		return u, nil
	})
}

// adoptUser applies a login reply to o, drops the local password and makes o
// the current user.
func (c *Client) adoptUser(o *Object, reply map[string]any) error {
	o.mu.Lock()
	delete(o.pending, "password")
	delete(o.pending, "username")
	delete(o.pending, "mobilePhoneNumber")
	o.mu.Unlock()
	if err := o.applyFetched(reply, false); err != nil {
		return err
	}
	o.forgetPassword()
	c.registry.remember(o)
	return c.setCurrent(&User{o})
}

func (c *Client) setCurrent(u *User) error {
	c.mu.Lock()
	c.current = u
	c.mu.Unlock()
	return c.sessions.StoreSession(u.ID(), u.SessionToken())
}

// CurrentUser returns the logged in user, or nil.
func (c *Client) CurrentUser() *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// LogOut forgets the current user and its session.
func (c *Client) LogOut() error {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	return c.sessions.ClearSession()
}

// UpdatePassword changes the password of u, which must hold a session. The
// store issues a new session token.
func (u *User) UpdatePassword(ctx context.Context, oldPassword, newPassword string) *promise.Promise[*User] {
	c := u.client
	id, token := u.ID(), u.SessionToken()
	if id == "" || token == "" {
		return rejectedOn[*User](c.loop, connection.NewError(constants.SessionMissing, "user is not logged in"))
	}
	return promise.GoOn(c.loop, ctx, func(ctx context.Context) (*User, error) {
		reply, err := rpc.UpdatePassword(c.conn, ctx, id, token, oldPassword, newPassword)
		if err != nil {
			return nil, err
		}
		if err := u.applyFetched(reply, false); err != nil {
			return nil, err
		}
		u.forgetPassword()
		if cur := c.CurrentUser(); cur != nil && cur.ID() == id {
			return u, c.setCurrent(u)
		}
		return u, nil
	})
}

// RequestPasswordReset mails a password reset link to email.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) *promise.Promise[struct{}] {
	return promise.GoOn(c.loop, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, rpc.RequestPasswordReset(c.conn, ctx, email)
	})
}

// RequestEmailVerify mails an address verification link to email.
func (c *Client) RequestEmailVerify(ctx context.Context, email string) *promise.Promise[struct{}] {
	return promise.GoOn(c.loop, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, rpc.RequestEmailVerify(c.conn, ctx, email)
	})
}

// FollowerQuery returns a query over the followers of the user userID.
func (c *Client) FollowerQuery(userID string) *Query {
	return c.Query(constants.ClassFollower).
		EqualTo("user", c.CreateWithoutData(constants.ClassUser, userID)).
		Include("follower")
}

// FolloweeQuery returns a query over the users the user userID follows.
func (c *Client) FolloweeQuery(userID string) *Query {
	return c.Query(constants.ClassFollowee).
		EqualTo("user", c.CreateWithoutData(constants.ClassUser, userID)).
		Include("followee")
}
