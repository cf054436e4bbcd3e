package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// ErrNoSession is returned by session routes before Signup, Login or Google succeeded.
var ErrNoSession = errors.New("zerobase: no session token; sign in first")

// Auth manages the project's end users. A successful Signup, Login or Google
// call stores the session token on the Client.
type Auth struct{ c *Client }

// OTPSetup is the provisioned TOTP secret of the signed-in user.
type OTPSetup struct {
	Secret    string `json:"secret"`
	QRCodeURL string `json:"qrCodeUrl"`
}

func (a *Auth) signIn(ctx context.Context, path string, in any) (AuthResult, error) {
	var out AuthResult
	if err := a.c.doJSON(ctx, http.MethodPost, path, a.c.projectQuery(nil), in, &out); err != nil {
		return AuthResult{}, err
	}
	a.c.SetSession(out.Token)
	return out, nil
}

// Signup registers an email/password user.
func (a *Auth) Signup(ctx context.Context, email, password, name string) (AuthResult, error) {
	return a.signIn(ctx, "/auth/signup", map[string]string{"email": email, "password": password, "name": name})
}

// Login authenticates an email/password user.
func (a *Auth) Login(ctx context.Context, email, password string) (AuthResult, error) {
	return a.signIn(ctx, "/auth/login", map[string]string{"email": email, "password": password})
}

// Google signs in with a Google ID token.
func (a *Auth) Google(ctx context.Context, credential string) (AuthResult, error) {
	return a.signIn(ctx, "/auth/google", map[string]string{"credential": credential})
}

// Logout forgets the stored session token.
func (a *Auth) Logout() { a.c.SetSession("") }

// Users lists the project's users without credential columns.
func (a *Auth) Users(ctx context.Context) ([]Document, error) {
	var out []Document
	err := a.c.doJSON(ctx, http.MethodGet, "/auth/users", a.c.projectQuery(nil), nil, &out)
	return out, err
}

// DeleteUser removes a user.
func (a *Auth) DeleteUser(ctx context.Context, userID int64) error {
	return a.c.doJSON(ctx, http.MethodDelete, "/auth/users/"+fmt.Sprint(userID), a.c.projectQuery(nil), nil, nil)
}

// withSession sends a request authenticated by the stored session token.
func (a *Auth) withSession(ctx context.Context, method, path string, in, out any) error {
	token := a.c.Session()
	if token == "" {
		return ErrNoSession
	}
	t := a.c.transport
	t.header = func(h http.Header) { h.Set("Authorization", "Bearer "+token) }
	return t.doJSON(ctx, method, path, url.Values(nil), in, out)
}

// Me returns the signed-in user.
func (a *Auth) Me(ctx context.Context) (Document, error) {
	var out Document
	err := a.withSession(ctx, http.MethodGet, "/account/me", nil, &out)
	return out, err
}

// SetupOTP provisions a TOTP secret for the signed-in user.
func (a *Auth) SetupOTP(ctx context.Context) (OTPSetup, error) {
	var out OTPSetup
	err := a.withSession(ctx, http.MethodPost, "/auth/otp/setup", nil, &out)
	return out, err
}

// VerifyOTP checks a TOTP code against the signed-in user's secret.
func (a *Auth) VerifyOTP(ctx context.Context, code string) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	err := a.withSession(ctx, http.MethodPost, "/auth/otp/verify", map[string]string{"code": code}, &out)
	return out.Valid, err
}

// SetExpiry sets the signed-in user's session lifetime, e.g. "30d" or "12h".
func (a *Auth) SetExpiry(ctx context.Context, expiry string) error {
	return a.withSession(ctx, http.MethodPut, "/auth/expiry", map[string]string{"expiry": expiry}, nil)
}
