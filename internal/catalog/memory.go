package catalog

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/DoyleJ11/cah-client/internal/game"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	decks map[string]game.Deck
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{decks: make(map[string]game.Deck)}
}

func (m *MemoryRepository) Save(_ context.Context, decks []game.Deck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range decks {
		m.decks[d.ID] = d
	}
	return nil
}

// All returns the cached decks ordered by name.
func (m *MemoryRepository) All(_ context.Context) ([]game.Deck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]game.Deck, 0, len(m.decks))
	for _, d := range m.decks {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b game.Deck) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *MemoryRepository) Close() error { return nil }
