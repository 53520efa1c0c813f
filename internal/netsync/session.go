package netsync

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"github.com/Scrimzay/artillery/internal/terrain"
	"github.com/Scrimzay/artillery/internal/world"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
)

type Role uint8

const (
	Leader Role = iota + 1
	Follower
)

func (r Role) String() string {
	switch r {
	case Leader:
		return "leader"

	case Follower:
		return "follower"

	default:
		return "unknown"
	}
}

type stage uint8

const (
	stageLobby     stage = iota
	stageSyncing         // model sent, waiting for PlayerReady
	stageTurn            // waiting for the current player's shot
	stageFinishing       // shot sent, waiting for FinishedTurn
	stageOver
)

// local owns the seats this peer plays itself.
const local = ""

// Dependencies are the collaborators a Session drives.
type Dependencies struct {
	Engine    *world.Engine
	Transport Transport
	Logger    zerolog.Logger
	Meter     metric.Meter     // nil uses the global provider
	Now       func() time.Time // nil uses time.Now

	// Autopilot hands this peer's seat to its targeting computer, which
	// fires as soon as the turn comes round.
	Autopilot bool

	// Callbacks run on the session loop.
	OnFire     func(*world.FireResult)
	OnEnableUI func(playerID int, enabled bool)
	OnGameOver func(world.Status)
}

// Options configure a hosted game.
type Options struct {
	Seats []world.PlayerSpec
	// LocalSeat makes the leader play the first human seat itself.
	LocalSeat bool
	// Compress sends heightfields in the lossy packed form. The leader
	// adopts the packed values too so every peer holds the same board.
	// Otherwise they travel losslessly compressed.
	Compress       bool
	BarrierTimeout time.Duration // 0 waits forever
}

type eventKind uint8

const (
	evData eventKind = iota
	evPeer
	evStart
	evTurn
)

type event struct {
	kind      eventKind
	peer      string
	data      []byte
	connected bool
	turn      TurnInfo
}

// Session is one peer's end of the protocol. Transport callbacks only
// queue events; Pump or Run applies them to the engine on one goroutine.
type Session struct {
	role      Role
	engine    *world.Engine
	transport Transport
	log       zerolog.Logger
	metrics   *metrics
	now       func() time.Time
	deps      Dependencies
	opts      Options

	inbox queue[event]
	wake  chan struct{}

	stage   stage
	barrier *barrier
	err     error

	// leader
	peers     []string
	seatOf    map[string]int
	owner     map[int]string
	stale     map[string]bool
	resyncing map[string]bool
	digest    string

	// follower
	leader string

	playerID  atomic.Int64
	uiEnabled atomic.Bool
	over      atomic.Bool
}

func newSession(role Role, deps Dependencies) (*Session, error) {
	if deps.Engine == nil || deps.Transport == nil {
		return nil, errors.New("netsync: engine and transport are required")
	}
	m, err := newMetrics(deps.Meter)
	if err != nil {
		return nil, err
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	s := &Session{
		role:      role,
		engine:    deps.Engine,
		transport: deps.Transport,
		log:       deps.Logger.With().Str("component", "netsync").Str("role", role.String()).Logger(),
		metrics:   m,
		now:       now,
		deps:      deps,
		wake:      make(chan struct{}, 1),
		seatOf:    make(map[string]int),
		owner:     make(map[int]string),
		stale:     make(map[string]bool),
		resyncing: make(map[string]bool),
	}
	s.playerID.Store(AnyPlayer)
	return s, nil
}

// Host creates the leader of a new game.
func Host(deps Dependencies, opts Options) (*Session, error) {
	if len(opts.Seats) == 0 {
		return nil, world.ErrUnknownPlayer
	}
	s, err := newSession(Leader, deps)
	if err != nil {
		return nil, err
	}
	s.opts = opts
	if opts.LocalSeat {
		if seat := s.freeSeat(); seat != AnyPlayer {
			s.owner[seat] = local
			s.playerID.Store(int64(seat))
		}
	}
	s.log.Info().Int("seats", len(opts.Seats)).Int("localSeat", s.PlayerID()).Msg("hosting game")
	return s, nil
}

// Join creates a follower. It learns its seat and its leader from the
// first Assign it receives.
func Join(deps Dependencies) (*Session, error) {
	return newSession(Follower, deps)
}

func (s *Session) Role() Role { return s.role }

// PlayerID is the seat this peer plays, or AnyPlayer.
func (s *Session) PlayerID() int { return int(s.playerID.Load()) }

// UIEnabled reports whether this peer may aim and fire now.
func (s *Session) UIEnabled() bool { return s.uiEnabled.Load() }

func (s *Session) Over() bool { return s.over.Load() }

func (s *Session) Receive(peer string, data []byte) {
	s.push(event{kind: evData, peer: peer, data: data})
}

func (s *Session) PeerChanged(peer string, connected bool) {
	s.push(event{kind: evPeer, peer: peer, connected: connected})
}

// Start deals the first round. Only the leader starts games.
func (s *Session) Start() error {
	if s.role != Leader {
		return ErrNotLeader
	}
	s.push(event{kind: evStart})
	return nil
}

// SubmitTurn sends this peer's aim, or its shot when IsFire is set.
func (s *Session) SubmitTurn(t TurnInfo) {
	s.push(event{kind: evTurn, turn: t})
}

func (s *Session) push(e event) {
	s.inbox.Push(e)
	select {
	case s.wake <- struct{}{}:

	default:
	}
}

// Pump handles everything queued so far and returns how many events it
// took.
func (s *Session) Pump() int {
	n := 0
	for {
		events := s.inbox.Drain()
		if len(events) == 0 {
			break
		}
		for _, e := range events {
			s.handle(e)
			n++
		}
	}
	for s.barrier != nil && (s.barrier.done() || s.barrier.expired(s.now())) {
		s.release()
	}
	return n
}

// Run pumps until ctx ends or a follower loses its leader.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.Pump()
		if s.err != nil {
			return s.err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.wake:

		case <-ticker.C:
		}
	}
}

func (s *Session) handle(e event) {
	switch e.kind {
	case evPeer:
		if s.role == Leader {
			s.leaderPeer(e.peer, e.connected)
		} else {
			s.followerPeer(e.peer, e.connected)
		}

	case evStart:
		s.startGame()

	case evTurn:
		if s.role == Leader {
			s.onTurn(local, e.turn)
		} else {
			s.submit(e.turn)
		}

	case evData:
		msgs, err := Decode(e.data)
		if err != nil {
			s.log.Debug().Err(err).Str("peer", e.peer).Msg("dropping malformed message")
			s.metrics.count(s.metrics.dropped)
		}
		for _, m := range msgs {
			s.metrics.count(s.metrics.received, kindAttr(m.Kind()))
			if s.role == Leader {
				s.leaderHandle(e.peer, m)
			} else {
				s.followerHandle(e.peer, m)
			}
		}
	}
}

func (s *Session) broadcast(m Message) {
	data, err := Encode(m)
	if err != nil {
		s.log.Error().Err(err).Msg("encoding broadcast")
		return
	}
	if err := s.transport.Broadcast(data); err != nil {
		s.log.Warn().Err(err).Stringer("kind", m.Kind()).Msg("broadcast failed")
		return
	}
	s.metrics.count(s.metrics.sent, kindAttr(m.Kind()))
}

func (s *Session) sendTo(peer string, m Message) {
	data, err := Encode(m)
	if err != nil {
		s.log.Error().Err(err).Msg("encoding message")
		return
	}
	if err := s.transport.SendTo(peer, data); err != nil {
		s.log.Warn().Err(err).Str("peer", peer).Stringer("kind", m.Kind()).Msg("send failed")
		return
	}
	s.metrics.count(s.metrics.sent, kindAttr(m.Kind()))
}

func (s *Session) drop(peer string, m Message, why string) {
	s.log.Debug().Str("peer", peer).Stringer("kind", m.Kind()).Msg(why)
	s.metrics.count(s.metrics.dropped, kindAttr(m.Kind()))
}

// setUI records whose turn the UI is showing.
func (s *Session) setUI(playerID int, enabled bool) {
	mine := s.PlayerID()
	s.uiEnabled.Store(enabled && mine != AnyPlayer && (playerID == mine || playerID == AnyPlayer))
	if s.deps.OnEnableUI != nil {
		s.deps.OnEnableUI(playerID, enabled)
	}
	if s.deps.Autopilot && s.uiEnabled.Load() && playerID == mine {
		s.autofire(mine)
	}
}

// autofire queues a shot planned by the targeting computer.
func (s *Session) autofire(id int) {
	if err := s.engine.SetTargetingComputer(id, true); err != nil {
		s.log.Warn().Err(err).Msg("enabling targeting computer")
		return
	}
	if _, ok := s.engine.PlanAITurn(); !ok {
		return
	}
	s.SubmitTurn(s.turnInfo(id, true))
}

func (s *Session) finish() {
	if s.over.Swap(true) {
		return
	}
	s.stage = stageOver
	s.uiEnabled.Store(false)
	status := s.engine.Status()
	s.log.Info().Int("round", status.Round).Msg("game over")
	if s.deps.OnGameOver != nil {
		s.deps.OnGameOver(status)
	}
}

// ---- leader ----

func (s *Session) freeSeat() int {
	for i, spec := range s.opts.Seats {
		if _, taken := s.owner[i]; !taken && !spec.AI {
			return i
		}
	}
	return AnyPlayer
}

// waitingPeers is everyone a barrier should wait for.
func (s *Session) waitingPeers() []string {
	return slices.DeleteFunc(slices.Clone(s.peers), func(p string) bool { return s.stale[p] })
}

func (s *Session) leaderPeer(peer string, connected bool) {
	if connected {
		if slices.Contains(s.peers, peer) {
			return
		}
		s.peers = append(s.peers, peer)
		seat := AnyPlayer
		if s.stage == stageLobby {
			if seat = s.freeSeat(); seat != AnyPlayer {
				s.owner[seat] = peer
			}
		}
		s.seatOf[peer] = seat
		s.log.Info().Str("peer", peer).Int("seat", seat).Msg("peer joined")

		s.sendTo(peer, Assign{PlayerID: seat, TotalPlayers: len(s.opts.Seats)})
		if s.stage != stageLobby {
			s.sendModel(peer)
		}
		return
	}

	idx := slices.Index(s.peers, peer)
	if idx < 0 {
		return
	}
	s.peers = slices.Delete(s.peers, idx, idx+1)
	seat := s.seatOf[peer]
	delete(s.seatOf, peer)
	delete(s.stale, peer)
	delete(s.resyncing, peer)
	if seat != AnyPlayer {
		delete(s.owner, seat)
	}
	if s.barrier != nil {
		s.barrier.drop(peer)
	}
	s.log.Info().Str("peer", peer).Int("seat", seat).Msg("peer left")

	if seat == AnyPlayer || s.stage == stageLobby || s.stage == stageOver {
		return
	}
	if _, err := s.engine.Forfeit(seat); err != nil {
		s.log.Warn().Err(err).Int("seat", seat).Msg("forfeit failed")
		return
	}
	s.syncAll()
}

func (s *Session) startGame() {
	if s.stage != stageLobby {
		s.log.Warn().Msg("game already started")
		return
	}
	specs := slices.Clone(s.opts.Seats)
	for i := range specs {
		if _, taken := s.owner[i]; !taken && !specs[i].AI {
			specs[i].AI = true
			s.log.Info().Int("seat", i).Msg("unclaimed seat played by the computer")
		}
	}
	if err := s.engine.StartGame(specs); err != nil {
		s.log.Error().Err(err).Msg("starting game")
		return
	}
	s.syncAll()
}

// syncAll broadcasts the whole game and waits for every peer to load it.
func (s *Session) syncAll() {
	enc := terrain.EncodingCompressed
	if s.opts.Compress {
		enc = terrain.EncodingPacked
	}
	snap, err := s.engine.Snapshot(enc)
	if err != nil {
		s.log.Error().Err(err).Msg("taking snapshot")
		return
	}
	if s.opts.Compress {
		if err := s.engine.Restore(snap); err != nil {
			s.log.Error().Err(err).Msg("adopting packed snapshot")
			return
		}
	}
	s.broadcast(GameModel{Snapshot: snap})
	s.stage = stageSyncing
	s.barrier = newBarrier(KindPlayerReady, s.waitingPeers(), s.now(), s.opts.BarrierTimeout)
}

// sendModel brings one peer onto the leader's exact board.
func (s *Session) sendModel(peer string) {
	snap, err := s.engine.Snapshot(terrain.EncodingCompressed)
	if err != nil {
		s.log.Error().Err(err).Msg("taking snapshot")
		return
	}
	s.sendTo(peer, GameModel{Snapshot: snap})
}

func (s *Session) release() {
	b := s.barrier
	s.barrier = nil
	for _, p := range b.missing() {
		s.stale[p] = true
		s.log.Warn().Str("peer", p).Stringer("waitingFor", b.waitFor).Msg("peer missed the barrier")
	}

	if s.stage == stageFinishing {
		s.metrics.count(s.metrics.turns)
	}
	s.beginTurn()
}

func (s *Session) beginTurn() {
	if s.engine.Phase() == world.GameOver {
		s.broadcast(EnableUI{PlayerID: AnyPlayer, Enabled: false})
		s.finish()
		return
	}
	cur, ok := s.engine.CurrentPlayer()
	if !ok {
		return
	}
	s.stage = stageTurn
	owner, owned := s.owner[cur.ID]

	switch {
	case cur.IsAI():
		s.broadcast(EnableUI{PlayerID: cur.ID, Enabled: true})
		s.setUI(cur.ID, true)
		tank, _ := s.engine.PlanAITurn()
		s.fire(TurnInfo{
			PlayerID:      cur.ID,
			Tank:          tank,
			WeaponID:      cur.WeaponID,
			WeaponSizeID:  cur.WeaponSizeID,
			UsingComputer: cur.UseTargetingComputer,
			IsFire:        true,
		})

	case !owned:
		s.log.Info().Int("seat", cur.ID).Msg("seat has no peer, forfeiting")
		if _, err := s.engine.Forfeit(cur.ID); err != nil {
			s.log.Warn().Err(err).Msg("forfeit failed")
			return
		}
		s.syncAll()

	case owner != local && s.stale[owner]:
		s.log.Info().Int("seat", cur.ID).Str("peer", owner).Msg("skipping unresponsive peer")
		if _, err := s.engine.SkipTurn(); err != nil {
			s.log.Warn().Err(err).Msg("skip failed")
			return
		}
		s.syncAll()

	default:
		s.broadcast(EnableUI{PlayerID: cur.ID, Enabled: true})
		s.setUI(cur.ID, true)
	}
}

// onTurn takes aim or a shot from the peer that owns the current seat.
func (s *Session) onTurn(peer string, t TurnInfo) {
	if s.stage != stageTurn {
		s.drop(peer, t, "turn outside a turn")
		return
	}
	cur, ok := s.engine.CurrentPlayer()
	owner, owned := s.owner[cur.ID]
	if !ok || cur.IsAI() || t.PlayerID != cur.ID || !owned || owner != peer {
		s.drop(peer, t, "turn from a player who is not up")
		return
	}
	delete(s.stale, peer)

	if t.IsFire {
		s.fire(t)
		return
	}
	if err := s.engine.ApplyTank(t.PlayerID, t.Tank, t.WeaponID, t.WeaponSizeID, t.UsingComputer); err != nil {
		s.log.Warn().Err(err).Msg("applying aim")
		return
	}
	s.broadcast(s.turnInfo(t.PlayerID, false))
}

// turnInfo describes a player as this engine has them.
func (s *Session) turnInfo(id int, fire bool) TurnInfo {
	status := s.engine.Status()
	t := TurnInfo{Round: status.Round, PlayerID: id, IsFire: fire}
	if id >= 0 && id < len(status.Players) {
		p := status.Players[id]
		t.Tank, t.WeaponID, t.WeaponSizeID, t.UsingComputer = p.Tank, p.WeaponID, p.WeaponSizeID, p.UseTargetingComputer
	}
	return t
}

func (s *Session) fire(t TurnInfo) {
	if err := s.engine.ApplyTank(t.PlayerID, t.Tank, t.WeaponID, t.WeaponSizeID, t.UsingComputer); err != nil {
		s.log.Warn().Err(err).Msg("applying shot")
		return
	}
	s.broadcast(s.turnInfo(t.PlayerID, true))
	s.setUI(AnyPlayer, false)

	res, err := s.engine.FireCurrent()
	if err != nil {
		s.log.Error().Err(err).Msg("firing")
		return
	}
	if s.deps.OnFire != nil {
		s.deps.OnFire(res)
	}
	if s.digest, err = s.engine.Digest(); err != nil {
		s.log.Error().Err(err).Msg("digesting board")
	}
	s.stage = stageFinishing
	s.barrier = newBarrier(KindFinishedTurn, s.waitingPeers(), s.now(), s.opts.BarrierTimeout)
}

func (s *Session) leaderHandle(peer string, m Message) {
	switch m := m.(type) {
	case PlayerReady:
		delete(s.stale, peer)
		if s.barrier == nil {
			return
		}
		if s.barrier.waitFor == KindPlayerReady || s.resyncing[peer] {
			delete(s.resyncing, peer)
			s.barrier.arrive(peer)
		}

	case FinishedTurn:
		delete(s.stale, peer)
		if s.barrier == nil || s.barrier.waitFor != KindFinishedTurn || !s.barrier.waiting(peer) {
			s.drop(peer, m, "unexpected finished turn")
			return
		}
		if m.Digest != s.digest {
			s.log.Warn().Str("peer", peer).Msg("board digest differs, resending model")
			s.metrics.count(s.metrics.resyncs)
			s.resyncing[peer] = true
			s.sendModel(peer)
			return
		}
		s.barrier.arrive(peer)

	case TurnInfo:
		s.onTurn(peer, m)

	default:
		s.drop(peer, m, "leader ignores this kind")
	}
}

// ---- follower ----

func (s *Session) followerPeer(peer string, connected bool) {
	if connected || peer != s.leader {
		return
	}
	s.log.Warn().Str("leader", peer).Msg("leader disconnected")
	s.err = ErrLeaderLost
	s.finish()
}

func (s *Session) followerHandle(peer string, m Message) {
	if s.leader != "" && peer != s.leader {
		s.drop(peer, m, "message from a peer that is not the leader")
		return
	}
	switch m := m.(type) {
	case Assign:
		s.leader = peer
		s.playerID.Store(int64(m.PlayerID))
		s.log.Info().Str("leader", peer).Int("seat", m.PlayerID).Int("players", m.TotalPlayers).Msg("assigned seat")

	case GameModel:
		if m.Snapshot == nil {
			s.drop(peer, m, "empty game model")
			return
		}
		if err := s.engine.Restore(m.Snapshot); err != nil {
			s.log.Error().Err(err).Msg("restoring game model")
			return
		}
		s.leader = peer
		s.stage = stageSyncing
		s.sendTo(peer, PlayerReady{PlayerID: s.PlayerID()})
		if s.engine.Phase() == world.GameOver {
			s.finish()
		}

	case TurnInfo:
		if m.IsFire {
			s.replay(m)
			return
		}
		if err := s.engine.ApplyTank(m.PlayerID, m.Tank, m.WeaponID, m.WeaponSizeID, m.UsingComputer); err != nil {
			s.drop(peer, m, "aim for an unknown player")
		}

	case EnableUI:
		s.stage = stageTurn
		s.setUI(m.PlayerID, m.Enabled)
		if s.engine.Phase() == world.GameOver {
			s.finish()
		}

	default:
		s.drop(peer, m, "follower ignores this kind")
	}
}

// replay fires the leader's shot on this board and reports the result.
// A shot for a different turn is not fired; the digest then disagrees and
// the leader resends the model.
func (s *Session) replay(t TurnInfo) {
	s.setUI(AnyPlayer, false)
	cur, ok := s.engine.CurrentPlayer()
	status := s.engine.Status()
	if ok && s.engine.Phase() == world.RoundInProgress && status.Round == t.Round && cur.ID == t.PlayerID {
		if err := s.engine.ApplyTank(t.PlayerID, t.Tank, t.WeaponID, t.WeaponSizeID, t.UsingComputer); err == nil {
			if res, err := s.engine.FireCurrent(); err == nil && s.deps.OnFire != nil {
				s.deps.OnFire(res)
			}
		}
	} else {
		s.log.Warn().Int("round", t.Round).Int("player", t.PlayerID).Msg("shot is out of step with this board")
	}

	digest, err := s.engine.Digest()
	if err != nil {
		s.log.Error().Err(err).Msg("digesting board")
	}
	s.stage = stageFinishing
	s.sendTo(s.leader, FinishedTurn{PlayerID: s.PlayerID(), Digest: digest})
	if s.engine.Phase() == world.GameOver {
		s.finish()
	}
}

// submit forwards this follower's turn to the leader.
func (s *Session) submit(t TurnInfo) {
	if !s.UIEnabled() || t.PlayerID != s.PlayerID() || s.leader == "" {
		s.log.Debug().Int("player", t.PlayerID).Msg("not this peer's turn")
		return
	}
	if t.IsFire {
		s.uiEnabled.Store(false)
	}
	s.sendTo(s.leader, t)
}
