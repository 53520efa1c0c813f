package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Scrimzay/artillery/internal/netsync"
	"github.com/Scrimzay/artillery/internal/storage"
	"github.com/Scrimzay/artillery/internal/terrain"
	"github.com/Scrimzay/artillery/internal/world"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Session is the part of a sync session the HTTP surface drives.
type Session interface {
	Start() error
	Role() netsync.Role
	PlayerID() int
	Over() bool
}

// Dependencies are what the router serves. Store may be nil.
type Dependencies struct {
	Engine  *world.Engine
	Hub     *Hub
	Session Session
	Store   *storage.Store
	Logger  zerolog.Logger
}

func SetupRouter(deps Dependencies) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(deps.Logger))

	r.GET("/healthz", healthHandler(deps.Hub))
	r.GET("/ws", HandleWebSocket(deps.Hub))
	r.GET("/state", stateHandler(deps.Engine, deps.Session))
	r.GET("/scores", scoresHandler(deps.Store))
	r.POST("/save", saveHandler(deps.Engine, deps.Store))
	r.POST("/start", startHandler(deps.Session))

	return r
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

func healthHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "peers": len(hub.Peers())})
	}
}

type stateResponse struct {
	world.Status
	Role     string `json:"role"`
	PlayerID int    `json:"playerId"`
	Over     bool   `json:"over"`
}

func stateHandler(engine *world.Engine, session Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, stateResponse{
			Status:   engine.Status(),
			Role:     session.Role().String(),
			PlayerID: session.PlayerID(),
			Over:     session.Over(),
		})
	}
}

func scoresHandler(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage disabled"})
			return
		}
		n, err := strconv.Atoi(c.DefaultQuery("n", "10"))
		if err != nil || n <= 0 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be between 1 and 100"})
			return
		}
		scores, err := store.TopScores(n)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, scores)
	}
}

func saveHandler(engine *world.Engine, store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage disabled"})
			return
		}
		if engine.Phase() == world.NotStarted {
			c.JSON(http.StatusConflict, gin.H{"error": world.ErrNotStarted.Error()})
			return
		}
		snap, err := engine.Snapshot(terrain.EncodingCompressed)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		saved, err := store.SaveGame(snap)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, saved)
	}
}

func startHandler(session Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := session.Start(); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, netsync.ErrNotLeader) {
				status = http.StatusForbidden
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "starting"})
	}
}
