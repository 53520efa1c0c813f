package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Scrimzay/artillery/internal/netsync"
	"github.com/Scrimzay/artillery/internal/storage"
	"github.com/Scrimzay/artillery/internal/terrain"
	"github.com/Scrimzay/artillery/internal/world"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func testConfig() world.Config {
	cfg := world.DefaultConfig()
	cfg.BoardSize = 65
	cfg.TankMargin = 8
	cfg.TankSpacing = 12
	cfg.PadRadius = 2
	cfg.Seed = 5
	return cfg
}

func newEngine(t *testing.T) *world.Engine {
	t.Helper()
	return newEngineWith(t, testConfig())
}

func newEngineWith(t *testing.T, cfg world.Config) *world.Engine {
	t.Helper()
	e, err := world.New(cfg, world.Dependencies{Logger: zerolog.Nop()})
	require.NoError(t, err)
	return e
}

type leader struct {
	srv     *httptest.Server
	hub     *Hub
	session *netsync.Session
	engine  *world.Engine
	store   *storage.Store
}

func startLeader(t *testing.T, ctx context.Context) *leader {
	t.Helper()
	return startLeaderWith(t, ctx, testConfig(), true)
}

func startLeaderWith(t *testing.T, ctx context.Context, cfg world.Config, compress bool) *leader {
	t.Helper()
	l := &leader{hub: NewHub(0, zerolog.Nop()), engine: newEngineWith(t, cfg)}

	var err error
	l.session, err = netsync.Host(netsync.Dependencies{
		Engine:    l.engine,
		Transport: l.hub,
		Logger:    zerolog.Nop(),
	}, netsync.Options{
		Seats:     []world.PlayerSpec{{Name: "lead"}, {Name: "follow"}},
		LocalSeat: true,
		Compress:  compress,
	})
	require.NoError(t, err)
	l.hub.Bind(l.session)

	l.store, err = storage.Open("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { l.store.Close() })

	l.srv = httptest.NewServer(SetupRouter(Dependencies{
		Engine:  l.engine,
		Hub:     l.hub,
		Session: l.session,
		Store:   l.store,
		Logger:  zerolog.Nop(),
	}))
	t.Cleanup(l.srv.Close)

	go l.hub.Run(ctx)
	go l.session.Run(ctx)
	return l
}

func (l *leader) wsURL() string {
	return "ws" + strings.TrimPrefix(l.srv.URL, "http") + "/ws"
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func post(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func digest(e *world.Engine) string {
	d, err := e.Digest()
	if err != nil {
		return err.Error()
	}
	return d
}

func TestFollowerJoinsOverWebSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := startLeader(t, ctx)
	t.Cleanup(cancel)

	engine := newEngine(t)
	link, err := Dial(ctx, l.wsURL(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { link.Close() })
	follower, err := netsync.Join(netsync.Dependencies{Engine: engine, Transport: link, Logger: zerolog.Nop()})
	require.NoError(t, err)
	link.Bind(follower)
	go follower.Run(ctx)

	require.Eventually(t, func() bool { return follower.PlayerID() == 1 }, 5*time.Second, 10*time.Millisecond)

	var health struct {
		Status string `json:"status"`
		Peers  int    `json:"peers"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, l.srv.URL+"/healthz", &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Peers)

	assert.Equal(t, http.StatusConflict, post(t, l.srv.URL+"/save"))
	assert.Equal(t, http.StatusAccepted, post(t, l.srv.URL+"/start"))
	require.Eventually(t, func() bool {
		return l.session.UIEnabled() && digest(l.engine) == digest(engine)
	}, 5*time.Second, 10*time.Millisecond)

	var state struct {
		Phase    string `json:"phase"`
		Role     string `json:"role"`
		PlayerID int    `json:"playerId"`
		Players  []struct {
			Name string `json:"name"`
		} `json:"players"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, l.srv.URL+"/state", &state))
	assert.Equal(t, "round_in_progress", state.Phase)
	assert.Equal(t, "leader", state.Role)
	assert.Equal(t, 0, state.PlayerID)
	require.Len(t, state.Players, 2)
	assert.Equal(t, "follow", state.Players[1].Name)

	assert.Equal(t, http.StatusCreated, post(t, l.srv.URL+"/save"))
	saved, snap, err := l.store.LatestGame()
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Players)
	assert.Equal(t, testConfig().Seed, snap.Seed)
}

func TestFollowerSeesLeaderLeave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := startLeader(t, ctx)

	link, err := Dial(context.Background(), l.wsURL(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { link.Close() })
	follower, err := netsync.Join(netsync.Dependencies{Engine: newEngine(t), Transport: link, Logger: zerolog.Nop()})
	require.NoError(t, err)
	link.Bind(follower)

	done := make(chan error, 1)
	go func() { done <- follower.Run(context.Background()) }()
	require.Eventually(t, func() bool { return follower.PlayerID() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, netsync.ErrLeaderLost)

	case <-time.After(5 * time.Second):
		t.Fatal("follower never noticed the leader leaving")
	}
}

func TestScores(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := startLeader(t, ctx)
	t.Cleanup(cancel)

	require.NoError(t, l.store.RecordScores("g", []world.Player{
		{Name: "ada", Score: 10},
		{Name: "bob", Score: 30},
	}))

	var scores []storage.HighScore
	assert.Equal(t, http.StatusOK, getJSON(t, l.srv.URL+"/scores?n=1", &scores))
	require.Len(t, scores, 1)
	assert.Equal(t, "bob", scores[0].Name)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, l.srv.URL+"/scores?n=0", nil))
}

func TestStartIsLeaderOnly(t *testing.T) {
	follower, err := netsync.Join(netsync.Dependencies{Engine: newEngine(t), Transport: netsync.NewMemNetwork().Peer("f"), Logger: zerolog.Nop()})
	require.NoError(t, err)
	r := SetupRouter(Dependencies{Engine: newEngine(t), Hub: NewHub(0, zerolog.Nop()), Session: follower, Logger: zerolog.Nop()})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/start", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/save", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestFullBoardModelFitsFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size board")
	}
	cfg := world.DefaultConfig()
	cfg.Seed = 5
	e := newEngineWith(t, cfg)
	require.NoError(t, e.StartGame([]world.PlayerSpec{{Name: "a"}, {Name: "b"}}))

	for _, enc := range []terrain.Encoding{terrain.EncodingRaw, terrain.EncodingPacked, terrain.EncodingCompressed} {
		snap, err := e.Snapshot(enc)
		require.NoError(t, err)
		data, err := netsync.Encode(netsync.GameModel{Snapshot: snap})
		require.NoError(t, err)
		assert.Less(t, len(data), maxFrame, "encoding %d", enc)
	}
}

func TestFullBoardModelReachesFollower(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size board")
	}
	cfg := world.DefaultConfig()
	cfg.Seed = 5
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	l := startLeaderWith(t, ctx, cfg, false)

	engine := newEngineWith(t, cfg)
	link, err := Dial(ctx, l.wsURL(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { link.Close() })
	follower, err := netsync.Join(netsync.Dependencies{Engine: engine, Transport: link, Logger: zerolog.Nop()})
	require.NoError(t, err)
	link.Bind(follower)
	done := make(chan error, 1)
	go func() { done <- follower.Run(ctx) }()

	require.Eventually(t, func() bool { return follower.PlayerID() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, l.session.Start())
	require.Eventually(t, func() bool {
		return l.session.UIEnabled() && digest(l.engine) == digest(engine)
	}, 30*time.Second, 50*time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("follower stopped: %v", err)
	default:
	}
}

type frames struct {
	mu sync.Mutex
	n  int
}

func (f *frames) Receive(string, []byte) {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
}

func (f *frames) PeerChanged(string, bool) {}

func TestHubDropsFloodedFrames(t *testing.T) {
	hub := NewHub(1, zerolog.Nop())
	got := &frames{}
	hub.Bind(got)

	c := &client{id: "noisy", limiter: rate.NewLimiter(1, 2)}
	for range 5 {
		hub.deliver(c, []byte{1})
	}
	assert.Equal(t, 2, got.n)
}
