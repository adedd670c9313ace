package rest

import (
	"context"
	"net/http"
)

// GameServerClient covers the game server's plain HTTP endpoints.
type GameServerClient struct {
	client
}

func NewGameServerClient(baseURL string, hc *http.Client) (*GameServerClient, error) {
	c, err := newClient(baseURL, hc)
	if err != nil {
		return nil, err
	}
	return &GameServerClient{client: c}, nil
}

// CSRFToken fetches the token the socket handshake must present in X-CSRF-TOKEN.
func (g *GameServerClient) CSRFToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := g.call(ctx, request{method: http.MethodGet, path: "/csrf"}, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}
