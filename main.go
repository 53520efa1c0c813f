package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Scrimzay/artillery/internal/config"
	"github.com/Scrimzay/artillery/internal/logging"
	"github.com/Scrimzay/artillery/internal/netsync"
	"github.com/Scrimzay/artillery/internal/server"
	"github.com/Scrimzay/artillery/internal/storage"
	"github.com/Scrimzay/artillery/internal/world"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	start := time.Now()
	if err := config.Load("."); err != nil {
		stderr := zerolog.New(os.Stderr)
		stderr.Fatal().Err(err).Msg("loading config")
	}

	log, closeLog, err := logging.Setup(config.LogLevel(), os.Stdout,
		logging.LogFilePath(config.LogsDir(), "artillery", start))
	if err != nil {
		stderr := zerolog.New(os.Stderr)
		stderr.Fatal().Err(err).Msg("setting up logging")
	}
	defer closeLog()

	if err := run(log); err != nil {
		log.Error().Err(err).Msg("exiting")
		closeLog()
		os.Exit(1)
	}
}

func run(log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	game, err := config.Game()
	if err != nil {
		return err
	}
	netCfg, err := config.Network()
	if err != nil {
		return err
	}

	engine, err := world.New(game.Config, world.Dependencies{Logger: log})
	if err != nil {
		return err
	}

	var store *storage.Store
	if path := config.Storage().Path; path != "" {
		if store, err = storage.Open(path, log); err != nil {
			log.Warn().Err(err).Msg("storage disabled")
			store = nil
		} else {
			defer store.Close()
		}
	}

	log.Info().Str("mode", string(netCfg.Mode)).Msg("=== STARTING ARTILLERY ===")
	switch netCfg.Mode {
	case config.ModeLocal:
		return playLocal(ctx, engine, game, store, log)

	case config.ModeJoin:
		return join(ctx, engine, netCfg, log)

	default:
		return host(ctx, engine, game, netCfg, store, log)
	}
}

// recordScores files every player's score once the game ends.
func recordScores(store *storage.Store, log zerolog.Logger) func(world.Status) {
	return func(status world.Status) {
		if store == nil {
			return
		}
		if err := store.RecordScores(uuid.NewString(), status.Players); err != nil {
			log.Warn().Err(err).Msg("recording scores")
		}
	}
}

// playLocal runs a game between computer players in-process.
func playLocal(ctx context.Context, engine *world.Engine, game config.GameConfig, store *storage.Store, log zerolog.Logger) error {
	seats := game.Players
	for i := range seats {
		seats[i].AI = true
		if seats[i].Strategy == "" {
			seats[i].Strategy = game.Strategy
		}
	}
	if err := engine.StartGame(seats); err != nil {
		return err
	}

	for engine.Phase() != world.GameOver {
		if ctx.Err() != nil {
			return nil
		}
		if _, ok := engine.PlanAITurn(); !ok {
			return errors.New("current player has no brain")
		}
		res, err := engine.FireCurrent()
		if err != nil {
			return err
		}
		ev := log.Info().Int("player", res.PlayerID).Int("detonations", len(res.Detonations))
		if res.RoundWinner != nil {
			ev = ev.Str("roundWinner", *res.RoundWinner)
		}
		ev.Msg("shot")
	}

	status := engine.Status()
	for _, p := range status.Players {
		log.Info().Str("name", p.Name).Int64("score", p.Score).Msg("final score")
	}
	recordScores(store, log)(status)
	return nil
}

func host(ctx context.Context, engine *world.Engine, game config.GameConfig, netCfg config.NetworkConfig, store *storage.Store, log zerolog.Logger) error {
	hub := server.NewHub(netCfg.PeerRate, log)
	session, err := netsync.Host(netsync.Dependencies{
		Engine:     engine,
		Transport:  hub,
		Logger:     log,
		OnGameOver: recordScores(store, log),
	}, netsync.Options{
		Seats:          game.Players,
		Compress:       netCfg.Compress,
		BarrierTimeout: netCfg.BarrierTimeout,
	})
	if err != nil {
		return err
	}
	hub.Bind(session)
	go hub.Run(ctx)
	go session.Run(ctx)

	srv := &http.Server{
		Addr: ":" + netCfg.Port,
		Handler: server.SetupRouter(server.Dependencies{
			Engine:  engine,
			Hub:     hub,
			Session: session,
			Store:   store,
			Logger:  log,
		}),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("server shutdown")
		}
	}()

	log.Info().Str("port", netCfg.Port).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func join(ctx context.Context, engine *world.Engine, netCfg config.NetworkConfig, log zerolog.Logger) error {
	link, err := server.Dial(ctx, netCfg.LeaderURL, log)
	if err != nil {
		return err
	}
	defer link.Close()

	session, err := netsync.Join(netsync.Dependencies{
		Engine:    engine,
		Transport: link,
		Logger:    log,
		Autopilot: true,
		OnFire: func(res *world.FireResult) {
			log.Info().Int("player", res.PlayerID).Bool("newRound", res.NewRound).Msg("shot replayed")
		},
	})
	if err != nil {
		return err
	}
	link.Bind(session)

	err = session.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return nil

	case errors.Is(err, netsync.ErrLeaderLost) && engine.Phase() == world.GameOver:
		log.Info().Msg("leader closed the finished game")
		return nil
	}
	return err
}
