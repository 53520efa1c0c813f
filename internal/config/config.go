package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Scrimzay/artillery/internal/ai"
	"github.com/Scrimzay/artillery/internal/world"
	"github.com/spf13/viper"
)

const FileName = "artillery.cfg.json"

// Mode selects how this process takes part in a game.
type Mode string

const (
	ModeHost  Mode = "host"
	ModeJoin  Mode = "join"
	ModeLocal Mode = "local"
)

type GameConfig struct {
	world.Config `mapstructure:",squash"`
	Players      []world.PlayerSpec `mapstructure:"players"`
	Strategy     ai.Strategy        `mapstructure:"-"`
}

type NetworkConfig struct {
	Mode           Mode          `mapstructure:"mode"`
	Port           string        `mapstructure:"port"`
	LeaderURL      string        `mapstructure:"leaderUrl"`
	BarrierTimeout time.Duration `mapstructure:"barrierTimeout"`
	PeerRate       float64       `mapstructure:"peerRate"`
	Compress       bool          `mapstructure:"compress"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// Load sets defaults, reads artillery.cfg.json from configDir when it
// exists, and lets ARTILLERY_* variables (and PORT) override either.
func Load(configDir string) error {
	def := world.DefaultConfig()

	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("game.boardSize", def.BoardSize)
	viper.SetDefault("game.minElevation", def.MinElevation)
	viper.SetDefault("game.maxElevation", def.MaxElevation)
	viper.SetDefault("game.totalRounds", def.TotalRounds)
	viper.SetDefault("game.hitPoints", def.HitPoints)
	viper.SetDefault("game.startingCredit", def.StartingCredit)
	viper.SetDefault("game.carryCredit", def.CarryCredit)
	viper.SetDefault("game.carryScore", def.CarryScore)
	viper.SetDefault("game.padRadius", def.PadRadius)
	viper.SetDefault("game.tankMargin", def.TankMargin)
	viper.SetDefault("game.seed", 0)
	viper.SetDefault("game.players", []map[string]any{
		{"name": "", "ai": false},
		{"name": "", "ai": true},
	})

	viper.SetDefault("ai.strategy", string(ai.Heuristic))

	viper.SetDefault("network.mode", string(ModeLocal))
	viper.SetDefault("network.port", "8000")
	viper.SetDefault("network.leaderUrl", "ws://localhost:8000/ws")
	viper.SetDefault("network.barrierTimeout", "30s")
	viper.SetDefault("network.peerRate", 20)
	viper.SetDefault("network.compress", true)

	viper.SetDefault("storage.path", "./artillery.db")

	viper.SetEnvPrefix("artillery")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.BindEnv("network.port", "PORT", "ARTILLERY_NETWORK_PORT"); err != nil {
		return err
	}

	viper.SetConfigName(FileName)
	viper.SetConfigType("json")
	viper.AddConfigPath(configDir)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

type settings struct {
	Game    GameConfig    `mapstructure:"game"`
	Network NetworkConfig `mapstructure:"network"`
}

// load decodes the merged settings. viper.Unmarshal walks every leaf, so
// defaults, file and environment mix below the section level too.
func load() (settings, error) {
	s := settings{Game: GameConfig{Config: world.DefaultConfig()}}
	if err := viper.Unmarshal(&s); err != nil {
		return settings{}, err
	}
	return s, nil
}

// Game is the rule set plus the seats to fill. Computer seats with no
// strategy of their own take ai.strategy.
func Game() (GameConfig, error) {
	s, err := load()
	if err != nil {
		return GameConfig{}, fmt.Errorf("parsing game config: %w", err)
	}
	out := s.Game
	strategy, err := ai.ParseStrategy(viper.GetString("ai.strategy"))
	if err != nil {
		return GameConfig{}, err
	}
	out.Strategy = strategy
	for i := range out.Players {
		p := &out.Players[i]
		if p.AI && p.Strategy == "" {
			p.Strategy = strategy
		}
	}
	return out, nil
}

func Network() (NetworkConfig, error) {
	s, err := load()
	if err != nil {
		return NetworkConfig{}, fmt.Errorf("parsing network config: %w", err)
	}
	out := s.Network
	switch out.Mode {
	case ModeHost, ModeJoin, ModeLocal:

	default:
		return NetworkConfig{}, fmt.Errorf("unknown network mode %q", out.Mode)
	}
	return out, nil
}

func Storage() StorageConfig {
	return StorageConfig{Path: viper.GetString("storage.path")}
}

func LogLevel() string {
	return viper.GetString("logLevel")
}

func LogsDir() string {
	return viper.GetString("logsDir")
}
