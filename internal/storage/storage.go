// Package storage keeps saved games and the high-score table in SQLite.
package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/Scrimzay/artillery/internal/world"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNoSavedGame = errors.New("no saved game")

// SavedGame is one persisted board. Config is duplicated out of the
// snapshot so saves can be filtered without decoding the blob.
type SavedGame struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	Phase     string    `json:"phase"`
	Round     int       `json:"round"`
	Turn      int       `json:"turn"`
	Seed      int64     `json:"seed"`
	Players   int       `json:"players"`

	Config   datatypes.JSONType[world.Config] `json:"config"`
	Snapshot []byte                           `json:"-"`
}

type HighScore struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	GameID    string    `gorm:"index" json:"gameId"`
	Name      string    `gorm:"index" json:"name"`
	Score     int64     `gorm:"index" json:"score"`
	Computer  bool      `json:"computer"`
}

type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// Open opens (and migrates) the database at path. An empty path gives a
// private in-memory database.
func Open(path string, log zerolog.Logger) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %q: %w", path, err)
	}
	if err := db.AutoMigrate(&SavedGame{}, &HighScore{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	log = log.With().Str("component", "storage").Logger()
	if path == "" {
		log.Info().Msg("using in-memory SQLite DB")
	} else {
		log.Info().Str("path", path).Msg("using local SQLite DB")
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveGame stores an uncompressed snapshot.
func (s *Store) SaveGame(snap *world.Snapshot) (SavedGame, error) {
	blob, err := snap.Encode()
	if err != nil {
		return SavedGame{}, fmt.Errorf("encoding snapshot: %w", err)
	}
	g := SavedGame{
		ID:       uuid.NewString(),
		Phase:    snap.Phase.String(),
		Round:    snap.CurrentRound,
		Turn:     snap.Turn,
		Seed:     snap.Seed,
		Players:  len(snap.Players),
		Config:   datatypes.NewJSONType(snap.Config),
		Snapshot: blob,
	}
	if err := s.db.Create(&g).Error; err != nil {
		return SavedGame{}, fmt.Errorf("saving game: %w", err)
	}
	s.log.Info().Str("game", g.ID).Int("round", g.Round).Msg("game saved")
	return g, nil
}

// LatestGame returns the most recent save and its decoded snapshot.
func (s *Store) LatestGame() (SavedGame, *world.Snapshot, error) {
	var g SavedGame
	err := s.db.Order("created_at DESC").First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SavedGame{}, nil, ErrNoSavedGame
	}
	if err != nil {
		return SavedGame{}, nil, fmt.Errorf("loading latest game: %w", err)
	}
	snap, err := world.DecodeSnapshot(g.Snapshot)
	if err != nil {
		return SavedGame{}, nil, fmt.Errorf("decoding game %s: %w", g.ID, err)
	}
	return g, snap, nil
}

// RecordScores adds every player's final score under gameID.
func (s *Store) RecordScores(gameID string, players []world.Player) error {
	if len(players) == 0 {
		return nil
	}
	rows := make([]HighScore, 0, len(players))
	for _, p := range players {
		rows = append(rows, HighScore{GameID: gameID, Name: p.Name, Score: p.Score, Computer: p.IsAI()})
	}
	if err := s.db.Create(&rows).Error; err != nil {
		return fmt.Errorf("recording scores: %w", err)
	}
	return nil
}

// TopScores returns the n best scores, oldest first among ties.
func (s *Store) TopScores(n int) ([]HighScore, error) {
	var out []HighScore
	err := s.db.Order("score DESC").Order("created_at ASC").Order("id ASC").Limit(n).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing top scores: %w", err)
	}
	return out, nil
}
