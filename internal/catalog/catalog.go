package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/cah-client/internal/game"
	"github.com/DoyleJ11/cah-client/internal/rest"
)

var ErrNoDecks = errors.New("deck service unreachable and no cached decks")

// Source is the remote deck service.
type Source interface {
	Decks(ctx context.Context) ([]game.Deck, error)
	DecksWithCards(ctx context.Context, ids []string) ([]game.DeckWithCards, error)
}

// Repository keeps the last deck list seen from the service.
type Repository interface {
	Save(ctx context.Context, decks []game.Deck) error
	All(ctx context.Context) ([]game.Deck, error)
	Close() error
}

type Service struct {
	src  Source
	repo Repository
	log  *zap.Logger
}

func NewService(src Source, repo Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{src: src, repo: repo, log: log.Named("catalog")}
}

// Decks returns the service's deck list and caches it. When the service cannot
// be reached the cached list is returned instead.
func (s *Service) Decks(ctx context.Context) ([]game.Deck, error) {
	decks, err := s.src.Decks(ctx)
	if err == nil {
		if err := s.repo.Save(ctx, decks); err != nil {
			s.log.Warn("caching decks failed", zap.Error(err))
		}
		return decks, nil
	}
	if !errors.Is(err, rest.ErrUnavailable) {
		return nil, err
	}

	cached, cerr := s.repo.All(ctx)
	if cerr != nil {
		return nil, fmt.Errorf("%w: %w", err, cerr)
	}
	if len(cached) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoDecks, err)
	}
	s.log.Info("serving cached decks", zap.Int("count", len(cached)), zap.Error(err))
	return cached, nil
}

func (s *Service) DecksWithCards(ctx context.Context, ids []string) ([]game.DeckWithCards, error) {
	return s.src.DecksWithCards(ctx, ids)
}

func (s *Service) Close() error {
	return s.repo.Close()
}
