package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/DoyleJ11/cah-client/internal/game"
)

const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
	discriminatorHdr   = "x-request-discriminator"
)

type LogInRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type SignUpRequest struct {
	Email                string `json:"email"`
	Nickname             string `json:"nickname"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"passwordConfirmation"`
}

type ResetPasswordRequest struct {
	Token                   string `json:"token"`
	NewPassword             string `json:"newPassword"`
	NewPasswordConfirmation string `json:"newPasswordConfirmation"`
}

// AuthClient talks to the auth service. Session tokens live in the cookie jar.
type AuthClient struct {
	client
	now func() time.Time
}

func NewAuthClient(baseURL string, hc *http.Client) (*AuthClient, error) {
	c, err := newClient(baseURL, hc)
	if err != nil {
		return nil, err
	}
	return &AuthClient{client: c, now: time.Now}, nil
}

func (a *AuthClient) Login(ctx context.Context, in LogInRequest) error {
	return a.call(ctx, request{
		method: http.MethodPost,
		path:   "/login",
		in:     in,
		msgs: statusMessages{
			http.StatusUnauthorized:        serverMessage,
			http.StatusForbidden:           serverMessage,
			http.StatusConflict:            "You are already logged in",
			http.StatusInternalServerError: "Something went wrong. Please try again later.",
		},
	}, nil)
}

func (a *AuthClient) Logout(ctx context.Context) error {
	err := a.call(ctx, request{method: http.MethodDelete, path: "/logout"}, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return &APIError{Status: apiErr.Status, Message: "You are not logged in"}
		}
		return err
	}
	a.clearCookies()
	return nil
}

func (a *AuthClient) SignUp(ctx context.Context, in SignUpRequest) error {
	return a.call(ctx, request{
		method: http.MethodPost,
		path:   "/signup",
		in:     in,
		msgs:   statusMessages{http.StatusConflict: "A user with those details already exists"},
	}, nil)
}

// CurrentUser returns nil without error when nobody is signed in.
func (a *AuthClient) CurrentUser(ctx context.Context) (*game.User, error) {
	var u game.User
	err := a.call(ctx, request{method: http.MethodGet, path: "/me"}, &u)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (a *AuthClient) Confirm(ctx context.Context, token string) error {
	return a.call(ctx, request{
		method: http.MethodPost,
		path:   "/confirm",
		in:     map[string]string{"token": token},
		msgs: statusMessages{
			http.StatusBadRequest: serverMessage,
			http.StatusNotFound:   "Could not find the user to confirm, please try requesting a new link.",
		},
	}, nil)
}

func (a *AuthClient) ResendConfirmation(ctx context.Context, email string) error {
	return a.call(ctx, request{
		method: http.MethodPost,
		path:   "/resend_confirmation",
		in:     map[string]string{"email": email},
		header: http.Header{discriminatorHdr: {email}},
		msgs: statusMessages{
			http.StatusBadRequest:          serverMessage,
			http.StatusTooManyRequests:     "You have requested a new confirmation email too recently. Please try again later.",
			http.StatusInternalServerError: serverMessage,
		},
	}, nil)
}

func (a *AuthClient) ForgotPassword(ctx context.Context, email string) error {
	return a.call(ctx, request{
		method: http.MethodPost,
		path:   "/forgot_password",
		in:     map[string]string{"email": email},
		header: http.Header{discriminatorHdr: {email}},
		msgs: statusMessages{
			http.StatusTooManyRequests:     "You have requested a new password too recently. Please try again later.",
			http.StatusInternalServerError: serverMessage,
		},
	}, nil)
}

func (a *AuthClient) ResetPassword(ctx context.Context, in ResetPasswordRequest) error {
	return a.call(ctx, request{
		method: http.MethodPost,
		path:   "/reset_password",
		in:     in,
		msgs: statusMessages{
			http.StatusBadRequest:          serverMessage,
			http.StatusNotFound:            "Could not find the user to reset password for, please try requesting a new link.",
			http.StatusInternalServerError: serverMessage,
		},
	}, nil)
}

// RefreshAccessToken returns the access token from the jar, refreshing it first
// when it is missing or expired. A failed refresh is not an error: the result
// is then whatever the jar holds, possibly "".
func (a *AuthClient) RefreshAccessToken(ctx context.Context) (string, error) {
	token := a.cookie(accessTokenCookie)
	if token != "" && !a.expired(token) {
		return token, nil
	}
	_ = a.call(ctx, request{method: http.MethodPost, path: "/refresh", in: map[string]string{"type": "access"}}, nil)
	return a.cookie(accessTokenCookie), nil
}

// RefreshWebsocketToken asks for a single-use credential for the game server socket.
func (a *AuthClient) RefreshWebsocketToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := a.call(ctx, request{method: http.MethodPost, path: "/refresh", in: map[string]string{"type": "websocket"}}, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", &APIError{Status: http.StatusUnauthorized, Message: "No websocket token issued"}
	}
	return out.Token, nil
}

// WebsocketToken lets the auth client serve as the connection manager's token source.
func (a *AuthClient) WebsocketToken(ctx context.Context) (string, error) {
	return a.RefreshWebsocketToken(ctx)
}

func (a *AuthClient) expired(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	return claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(a.now())
}

func (a *AuthClient) cookie(name string) string {
	if a.http.Jar == nil {
		return ""
	}
	for _, c := range a.http.Jar.Cookies(a.base) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (a *AuthClient) clearCookies() {
	if a.http.Jar == nil {
		return
	}
	a.http.Jar.SetCookies(a.base, []*http.Cookie{
		{Name: accessTokenCookie, Path: "/", MaxAge: -1},
		{Name: refreshTokenCookie, Path: "/", MaxAge: -1},
	})
}
