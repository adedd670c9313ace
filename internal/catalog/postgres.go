package catalog

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/cah-client/internal/game"
)

type deckRow struct {
	ID          string    `gorm:"primaryKey;size:64"`
	Name        string    `gorm:"size:255;not null;index"`
	Description string    `gorm:"not null;default:''"`
	Weight      int       `gorm:"not null;default:0"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (deckRow) TableName() string { return "cached_decks" }

func toRow(d game.Deck) deckRow {
	return deckRow{ID: d.ID, Name: d.Name, Description: d.Description, Weight: d.Weight}
}

func (r deckRow) deck() game.Deck {
	return game.Deck{ID: r.ID, Name: r.Name, Description: r.Description, Weight: r.Weight}
}

// PostgresRepository caches decks in a Postgres table through GORM.
type PostgresRepository struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*PostgresRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open deck cache: %w", err)
	}
	if err := db.AutoMigrate(&deckRow{}); err != nil {
		return nil, fmt.Errorf("migrate deck cache: %w", err)
	}
	return &PostgresRepository{db: db}, nil
}

func (p *PostgresRepository) Save(ctx context.Context, decks []game.Deck) error {
	if len(decks) == 0 {
		return nil
	}
	rows := make([]deckRow, len(decks))
	for i, d := range decks {
		rows[i] = toRow(d)
	}
	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
}

func (p *PostgresRepository) All(ctx context.Context) ([]game.Deck, error) {
	var rows []deckRow
	if err := p.db.WithContext(ctx).Order("name, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]game.Deck, len(rows))
	for i, r := range rows {
		out[i] = r.deck()
	}
	return out, nil
}

func (p *PostgresRepository) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
