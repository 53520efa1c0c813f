// Package world is the game engine: the board, the players on it and the
// rules that move a game from shot to shot and round to round.
package world

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/Scrimzay/artillery/internal/ai"
	"github.com/Scrimzay/artillery/internal/terrain"
	"github.com/rs/zerolog"
)

var (
	ErrNotStarted    = errors.New("world: game not started")
	ErrGameOver      = errors.New("world: game over")
	ErrUnknownPlayer = errors.New("world: unknown player")
	ErrUnknownWeapon = errors.New("world: unknown weapon")
	ErrInvalidBoard  = errors.New("world: board size minus one must be a power of two")
)

type Phase uint8

const (
	NotStarted Phase = iota
	RoundInProgress
	RoundEnded
	GameOver
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not_started"

	case RoundInProgress:
		return "round_in_progress"

	case RoundEnded:
		return "round_ended"

	case GameOver:
		return "game_over"

	default:
		return "unknown"
	}
}

// Config holds the rules of one game. Every peer must play with the same
// Config; it travels inside snapshots.
type Config struct {
	BoardSize      int                `mapstructure:"boardSize" msgpack:"boardSize" json:"boardSize"`
	MinElevation   float64            `mapstructure:"minElevation" msgpack:"minElevation" json:"minElevation"`
	MaxElevation   float64            `mapstructure:"maxElevation" msgpack:"maxElevation" json:"maxElevation"`
	Bedrock        float64            `mapstructure:"bedrock" msgpack:"bedrock" json:"bedrock"`
	TotalRounds    int                `mapstructure:"totalRounds" msgpack:"totalRounds" json:"totalRounds"` // 0 plays to elimination
	HitPoints      int                `mapstructure:"hitPoints" msgpack:"hitPoints" json:"hitPoints"`
	StartingCredit int64              `mapstructure:"startingCredit" msgpack:"startingCredit" json:"startingCredit"`
	CarryCredit    bool               `mapstructure:"carryCredit" msgpack:"carryCredit" json:"carryCredit"`
	CarryScore     bool               `mapstructure:"carryScore" msgpack:"carryScore" json:"carryScore"`
	KillBonus      int64              `mapstructure:"killBonus" msgpack:"killBonus" json:"killBonus"`
	RoundBonus     int64              `mapstructure:"roundBonus" msgpack:"roundBonus" json:"roundBonus"`
	PadRadius      int                `mapstructure:"padRadius" msgpack:"padRadius" json:"padRadius"`
	TankMargin     int                `mapstructure:"tankMargin" msgpack:"tankMargin" json:"tankMargin"`
	TankSpacing    float64            `mapstructure:"tankSpacing" msgpack:"tankSpacing" json:"tankSpacing"`
	BarrelLength   float64            `mapstructure:"barrelLength" msgpack:"barrelLength" json:"barrelLength"`
	TurretHeight   float64            `mapstructure:"turretHeight" msgpack:"turretHeight" json:"turretHeight"`
	TimeStep       float64            `mapstructure:"timeStep" msgpack:"timeStep" json:"timeStep"`
	Seed           int64              `mapstructure:"seed" msgpack:"seed" json:"seed"` // 0 picks one at start
	Flow           terrain.FlowParams `mapstructure:"flow" msgpack:"flow" json:"flow"`
}

func DefaultConfig() Config {
	return Config{
		BoardSize:      1025,
		MinElevation:   50,
		MaxElevation:   200,
		Bedrock:        0,
		TotalRounds:    3,
		HitPoints:      100,
		StartingCredit: 1000,
		CarryCredit:    true,
		CarryScore:     true,
		KillBonus:      100,
		RoundBonus:     250,
		PadRadius:      6,
		TankMargin:     32,
		TankSpacing:    64,
		BarrelLength:   3,
		TurretHeight:   2,
		TimeStep:       0.05,
		Flow:           terrain.DefaultFlowParams,
	}
}

// Board is the complete simulation state.
type Board struct {
	Size          int                  `msgpack:"size"`
	Surface       *terrain.HeightField `msgpack:"surface"`
	Bedrock       *terrain.HeightField `msgpack:"bedrock"`
	Colors        *terrain.HeightField `msgpack:"colors"`
	Players       []*Player            `msgpack:"players"`
	CurrentPlayer int                  `msgpack:"currentPlayer"`
	CurrentRound  int                  `msgpack:"currentRound"`
	TotalRounds   int                  `msgpack:"totalRounds"`
	Turn          int                  `msgpack:"turn"`
	Phase         Phase                `msgpack:"phase"`
	Seed          int64                `msgpack:"seed"`
}

// Engine owns a Board. Mutating methods take Mu; status readers share it.
type Engine struct {
	Mu sync.RWMutex

	board   Board
	cfg     Config
	weapons *Catalog
	log     zerolog.Logger
	rng     *rand.Rand // AI and placement draws outside the round seed
}

// Dependencies are the collaborators an Engine needs.
type Dependencies struct {
	Weapons *Catalog
	Logger  zerolog.Logger
}

func New(cfg Config, deps Dependencies) (*Engine, error) {
	if cfg.BoardSize < 2 || (cfg.BoardSize-1)&(cfg.BoardSize-2) != 0 {
		return nil, ErrInvalidBoard
	}
	weapons := deps.Weapons
	if weapons == nil {
		var err error
		if weapons, err = DefaultCatalog(); err != nil {
			return nil, err
		}
	}
	if cfg.TimeStep <= 0 {
		cfg.TimeStep = DefaultConfig().TimeStep
	}

	return &Engine{
		board:   Board{Size: cfg.BoardSize, TotalRounds: cfg.TotalRounds},
		cfg:     cfg,
		weapons: weapons,
		log:     deps.Logger.With().Str("component", "world").Logger(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (e *Engine) Config() Config {
	e.Mu.RLock()
	defer e.Mu.RUnlock()
	return e.cfg
}

func (e *Engine) Weapons() *Catalog {
	return e.weapons
}

// StartGame seats the players and sets up the first round.
func (e *Engine) StartGame(specs []PlayerSpec) error {
	e.Mu.Lock()
	defer e.Mu.Unlock()

	if len(specs) == 0 {
		return ErrUnknownPlayer
	}

	seed := e.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e.rng = rand.New(rand.NewSource(seed ^ 0x5eed))

	names := RandomNames(e.rng, len(specs))
	players := make([]*Player, len(specs))
	for i, s := range specs {
		p := &Player{ID: i, Name: s.Name}
		if p.Name == "" {
			p.Name = names[i]
		}
		if s.AI {
			strategy := s.Strategy
			if strategy == "" {
				strategy = ai.Heuristic
			}
			p.AI = ai.NewBrain(strategy)
		}
		players[i] = p
	}

	e.board = Board{
		Size:        e.cfg.BoardSize,
		Players:     players,
		TotalRounds: e.cfg.TotalRounds,
		Seed:        seed,
	}
	e.setupRound()
	e.log.Info().Int64("seed", seed).Int("players", len(players)).Msg("game started")
	return nil
}

// Phase is safe to call from any goroutine.
func (e *Engine) Phase() Phase {
	e.Mu.RLock()
	defer e.Mu.RUnlock()
	return e.board.Phase
}

func (e *Engine) CurrentPlayer() (Player, bool) {
	e.Mu.RLock()
	defer e.Mu.RUnlock()
	if e.board.Phase == NotStarted || len(e.board.Players) == 0 {
		return Player{}, false
	}
	return *e.board.Players[e.board.CurrentPlayer], true
}

// Players returns copies of every player.
func (e *Engine) Players() []Player {
	e.Mu.RLock()
	defer e.Mu.RUnlock()
	out := make([]Player, len(e.board.Players))
	for i, p := range e.board.Players {
		out[i] = *p
	}
	return out
}

// Elevation reads the current surface.
func (e *Engine) Elevation(x, z float64) (float64, bool) {
	e.Mu.RLock()
	defer e.Mu.RUnlock()
	return e.board.Surface.Elevation(x, z)
}

// Status is a JSON-friendly summary of the game.
type Status struct {
	Phase         string   `json:"phase"`
	Round         int      `json:"round"`
	TotalRounds   int      `json:"totalRounds"`
	Turn          int      `json:"turn"`
	CurrentPlayer int      `json:"currentPlayer"`
	Players       []Player `json:"players"`
	Seed          int64    `json:"seed"`
}

func (e *Engine) Status() Status {
	e.Mu.RLock()
	defer e.Mu.RUnlock()
	s := Status{
		Phase:         e.board.Phase.String(),
		Round:         e.board.CurrentRound,
		TotalRounds:   e.board.TotalRounds,
		Turn:          e.board.Turn,
		CurrentPlayer: e.board.CurrentPlayer,
		Seed:          e.board.Seed,
	}
	for _, p := range e.board.Players {
		s.Players = append(s.Players, *p)
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
