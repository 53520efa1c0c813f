package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Scrimzay/artillery/internal/ai"
	"github.com/Scrimzay/artillery/internal/world"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(t.TempDir()))

	assert.Equal(t, "info", LogLevel())
	assert.Equal(t, "./logs", LogsDir())

	game, err := Game()
	require.NoError(t, err)
	assert.Equal(t, world.DefaultConfig(), game.Config)
	assert.Equal(t, ai.Heuristic, game.Strategy)
	require.Len(t, game.Players, 2)
	assert.False(t, game.Players[0].AI)
	assert.True(t, game.Players[1].AI)
	assert.Equal(t, ai.Heuristic, game.Players[1].Strategy)

	net, err := Network()
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, net.Mode)
	assert.Equal(t, "8000", net.Port)
	assert.Equal(t, 30*time.Second, net.BarrierTimeout)
	assert.Equal(t, 20.0, net.PeerRate)
	assert.True(t, net.Compress)

	assert.Equal(t, "./artillery.db", Storage().Path)
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)
	dir := writeConfig(t, `{
		"logLevel": "debug",
		"game": {
			"boardSize": 257,
			"totalRounds": 0,
			"seed": 12,
			"flow": { "drainRate": 5 },
			"players": [
				{ "name": "ada" },
				{ "name": "hal", "ai": true, "strategy": "simplex" },
				{ "ai": true }
			]
		},
		"ai": { "strategy": "simplex" },
		"network": { "mode": "host", "barrierTimeout": "5s" }
	}`)
	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", LogLevel())

	game, err := Game()
	require.NoError(t, err)
	assert.Equal(t, 257, game.BoardSize)
	assert.Zero(t, game.TotalRounds)
	assert.Equal(t, int64(12), game.Seed)
	assert.Equal(t, 5.0, game.Flow.DrainRate)
	assert.Equal(t, world.DefaultConfig().Flow.FillRate, game.Flow.FillRate)
	assert.Equal(t, world.DefaultConfig().HitPoints, game.HitPoints)
	require.Len(t, game.Players, 3)
	assert.Equal(t, "ada", game.Players[0].Name)
	assert.Equal(t, ai.Simplex, game.Players[1].Strategy)
	assert.Equal(t, ai.Simplex, game.Players[2].Strategy)

	net, err := Network()
	require.NoError(t, err)
	assert.Equal(t, ModeHost, net.Mode)
	assert.Equal(t, 5*time.Second, net.BarrierTimeout)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("PORT", "9100")
	t.Setenv("ARTILLERY_NETWORK_MODE", "join")
	t.Setenv("ARTILLERY_STORAGE_PATH", "/tmp/scores.db")
	require.NoError(t, Load(t.TempDir()))

	net, err := Network()
	require.NoError(t, err)
	assert.Equal(t, "9100", net.Port)
	assert.Equal(t, ModeJoin, net.Mode)
	assert.Equal(t, "/tmp/scores.db", Storage().Path)
}

func TestLoad_Rejects(t *testing.T) {
	t.Run("malformed file", func(t *testing.T) {
		t.Cleanup(viper.Reset)
		err := Load(writeConfig(t, `{ "logLevel": `))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})

	t.Run("unknown mode", func(t *testing.T) {
		t.Cleanup(viper.Reset)
		require.NoError(t, Load(writeConfig(t, `{ "network": { "mode": "mesh" } }`)))
		_, err := Network()
		assert.Error(t, err)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		t.Cleanup(viper.Reset)
		require.NoError(t, Load(writeConfig(t, `{ "ai": { "strategy": "psychic" } }`)))
		_, err := Game()
		assert.Error(t, err)
	})
}
