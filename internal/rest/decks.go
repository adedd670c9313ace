package rest

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/cah-client/internal/game"
)

const deckFetchConcurrency = 4

type DeckClient struct {
	client
}

func NewDeckClient(baseURL string, hc *http.Client) (*DeckClient, error) {
	c, err := newClient(baseURL, hc)
	if err != nil {
		return nil, err
	}
	return &DeckClient{client: c}, nil
}

func (d *DeckClient) Decks(ctx context.Context) ([]game.Deck, error) {
	var decks []game.Deck
	if err := d.call(ctx, request{method: http.MethodGet, path: "/decks"}, &decks); err != nil {
		return nil, err
	}
	return decks, nil
}

func (d *DeckClient) Deck(ctx context.Context, id string) (game.DeckWithCards, error) {
	var out game.DeckWithCards
	err := d.call(ctx, request{method: http.MethodGet, path: "/decks/" + url.PathEscape(id)}, &out)
	return out, err
}

// DecksWithCards fetches the given decks concurrently, preserving the order of ids.
func (d *DeckClient) DecksWithCards(ctx context.Context, ids []string) ([]game.DeckWithCards, error) {
	out := make([]game.DeckWithCards, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(deckFetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			deck, err := d.Deck(ctx, id)
			if err != nil {
				return err
			}
			out[i] = deck
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
