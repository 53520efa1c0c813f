package world

import (
	"math"
	"slices"

	"github.com/Scrimzay/artillery/internal/ballistics"
	"github.com/Scrimzay/artillery/internal/geom"
	"github.com/Scrimzay/artillery/internal/terrain"
)

// Outcome is what a shot or forfeit did to the round.
type Outcome struct {
	NewRound    bool    `msgpack:"newRound" json:"newRound"`
	RoundWinner *string `msgpack:"roundWinner" json:"roundWinner"`
	GameOver    bool    `msgpack:"gameOver" json:"gameOver"`
}

// FireResult records one shot from launch to the next player's turn.
type FireResult struct {
	PlayerID        int                  `msgpack:"playerID"`
	TimeStep        float64              `msgpack:"timeStep"`
	Trajectories    [][]geom.Vector3     `msgpack:"trajectories"`
	Detonations     []terrain.Crater     `msgpack:"detonations"`
	Old             *terrain.HeightField `msgpack:"old"`
	Final           *terrain.HeightField `msgpack:"final"`
	ExplosionRadius float64              `msgpack:"explosionRadius"`
	WeaponStyle     terrain.Style        `msgpack:"weaponStyle"`
	FluidPath       []geom.Vector3       `msgpack:"fluidPath"`
	FluidRemaining  []float64            `msgpack:"fluidRemaining"`
	Damage          map[int]int          `msgpack:"damage"` // hit points removed per player
	Outcome
}

func (e *Engine) playable() error {
	switch e.board.Phase {
	case RoundInProgress:
		return nil

	case GameOver:
		return ErrGameOver

	default:
		return ErrNotStarted
	}
}

func (e *Engine) muzzle(p *Player) (pos, vel geom.Vector3) {
	base := p.Tank.Position()
	base.Y += e.cfg.TurretHeight
	return ballistics.Muzzle(base, p.Tank.Azimuth, p.Tank.Altitude, p.Tank.Velocity, e.cfg.BarrelLength)
}

// Muzzle is where a player's next shell leaves the barrel and how fast.
func (e *Engine) Muzzle(id int) (pos, vel geom.Vector3, err error) {
	e.Mu.RLock()
	defer e.Mu.RUnlock()

	p, err := e.player(id)
	if err != nil {
		return pos, vel, err
	}
	pos, vel = e.muzzle(p)
	return pos, vel, nil
}

// Preview traces the current player's shot without firing it.
func (e *Engine) Preview() ([]geom.Vector3, error) {
	e.Mu.RLock()
	defer e.Mu.RUnlock()

	if err := e.playable(); err != nil {
		return nil, err
	}
	pos, vel := e.muzzle(e.board.Players[e.board.CurrentPlayer])
	return slices.Collect(ballistics.Trajectory(e.board.Surface, pos, vel, e.cfg.TimeStep)), nil
}

// FireCurrent fires the current player's tank as it is aimed.
func (e *Engine) FireCurrent() (*FireResult, error) {
	e.Mu.Lock()
	defer e.Mu.Unlock()

	if err := e.playable(); err != nil {
		return nil, err
	}
	pos, vel := e.muzzle(e.board.Players[e.board.CurrentPlayer])
	return e.fire(pos, vel), nil
}

// Fire launches the current player's weapon from pos with velocity vel,
// applies everything it does and passes the turn on.
func (e *Engine) Fire(pos, vel geom.Vector3) (*FireResult, error) {
	e.Mu.Lock()
	defer e.Mu.Unlock()

	if err := e.playable(); err != nil {
		return nil, err
	}
	return e.fire(pos, vel), nil
}

func (e *Engine) fire(pos, vel geom.Vector3) *FireResult {
	shooter := e.board.Players[e.board.CurrentPlayer]
	w, size := e.weapons.Lookup(shooter.WeaponID, shooter.WeaponSizeID)
	surface := e.board.Surface

	res := &FireResult{
		PlayerID:        shooter.ID,
		TimeStep:        e.cfg.TimeStep,
		Old:             surface.Clone(),
		ExplosionRadius: size.Radius,
		WeaponStyle:     w.Style,
		Damage:          make(map[int]int),
	}

	// the brain learns against where the target stood when the shell left
	brain := shooter.brain()
	var target *Player
	var targetPos geom.Vector3
	if brain != nil && brain.Target >= 0 && brain.Target < len(e.board.Players) {
		target = e.board.Players[brain.Target]
		targetPos = target.Tank.Position()
	}

	flights, first := e.flights(w, pos, vel)
	res.Trajectories = flights
	shooter.PrevTrajectory = slices.Concat(flights...)

	var impacts []geom.Vector3
	for _, path := range flights[first:] {
		hit := ballistics.Impact(surface, path)
		impacts = append(impacts, hit)
		if _, ok := surface.Elevation(hit.X, hit.Z); !ok || len(path) < 2 {
			continue
		}
		e.detonate(res, shooter, w, size, hit)
	}

	charge(shooter, size.Cost)
	e.settleTanks()

	if target != nil && len(impacts) > 0 {
		brain.Record(target.ID, shooter.Tank.Aim(), impacts[len(impacts)/2], targetPos)
	}

	res.Final = surface.Clone()
	res.Outcome = e.endTurn()
	return res
}

// flights traces every shell of a shot. Paths from index first on end in
// impacts; a MIRV bus before them ends where it splits.
func (e *Engine) flights(w Weapon, pos, vel geom.Vector3) (paths [][]geom.Vector3, first int) {
	ground := e.board.Surface
	dt := e.cfg.TimeStep

	if w.Style != terrain.StyleMIRV || w.Warheads <= 1 || vel.Y <= 0 {
		return [][]geom.Vector3{slices.Collect(ballistics.Trajectory(ground, pos, vel, dt))}, 0
	}

	tApex := ballistics.TimeToApex(vel)
	bus := slices.Collect(ballistics.TrajectoryFor(ground, pos, vel, dt, tApex))
	last := bus[len(bus)-1]
	if h, ok := ground.Elevation(last.X, last.Z); len(bus) > 1 && (!ok || last.Y <= h) {
		// came down or left the board before splitting
		return [][]geom.Vector3{bus}, 0
	}

	apex := ballistics.PositionAt(pos, vel, tApex)
	if _, ok := ground.Elevation(apex.X, apex.Z); !ok {
		return [][]geom.Vector3{bus}, 0
	}
	bus = append(bus, apex)
	paths = [][]geom.Vector3{bus}
	for _, hv := range ballistics.Split(ballistics.VelocityAt(vel, tApex), w.Warheads, w.Spread) {
		paths = append(paths, slices.Collect(ballistics.Trajectory(ground, apex, hv, dt)))
	}
	return paths, 1
}

func (e *Engine) detonate(res *FireResult, shooter *Player, w Weapon, size Size, at geom.Vector3) {
	if w.Damage > 0 && size.Radius > 0 {
		for _, p := range e.board.Players {
			if !p.Alive() {
				continue
			}
			d := p.Tank.Position().Dist(at)
			if d >= size.Radius {
				continue
			}
			e.hurt(res, shooter, p, int(math.Round(float64(w.Damage)*(1-d/size.Radius))))
		}
	}

	edit := terrain.StyleExplosive
	if w.Style == terrain.StyleGenerative {
		edit = terrain.StyleGenerative
	}
	c := terrain.Explode(e.board.Surface, e.board.Bedrock, e.board.Colors, at, size.Radius, edit)
	c.Style = w.Style
	c.Apply(e.board.Surface, e.board.Colors)
	res.Detonations = append(res.Detonations, c)

	if !w.Style.Drains() || size.FluidVolume <= 0 {
		return
	}
	path := terrain.SteepestDescentPath(e.board.Surface, int(math.Round(at.X)), int(math.Round(at.Z)), e.cfg.Flow.MaxPathLength)
	flow := terrain.Drain(e.board.Surface, path, size.FluidVolume, e.cfg.Flow)
	flow.Apply(e.board.Surface, e.board.Colors, w.Style)
	res.FluidPath = append(res.FluidPath, flow.Path...)
	res.FluidRemaining = append(res.FluidRemaining, flow.Remaining...)

	if w.Style == terrain.StyleNapalm && w.BurnDamage > 0 {
		for _, p := range e.board.Players {
			if p.Alive() && flow.Near(p.Tank.Lon, p.Tank.Lat, w.BurnRadius) {
				e.hurt(res, shooter, p, w.BurnDamage)
			}
		}
	}
}

// hurt removes hit points and credits the shooter for hits on others.
func (e *Engine) hurt(res *FireResult, shooter, victim *Player, dmg int) {
	dmg = min(dmg, victim.HitPoints)
	if dmg <= 0 {
		return
	}
	victim.HitPoints -= dmg
	res.Damage[victim.ID] += dmg
	if victim.ID == shooter.ID {
		return
	}
	shooter.Score += int64(dmg)
	if !victim.Alive() {
		shooter.Score += e.cfg.KillBonus
		e.log.Info().Str("shooter", shooter.Name).Str("victim", victim.Name).Msg("tank destroyed")
	}
}

// charge takes cost from credit first and the rest from score.
func charge(p *Player, cost int64) {
	if p.Credit >= cost {
		p.Credit -= cost
		return
	}
	p.Score -= cost - p.Credit
	p.Credit = 0
}

// endTurn ends the round when at most one tank is left, otherwise passes
// the turn to the next live player.
func (e *Engine) endTurn() Outcome {
	var out Outcome
	if e.livePlayers() > 1 {
		if !e.advance() || e.board.TotalRounds == 0 {
			return out
		}
		e.log.Info().Int("round", e.board.CurrentRound).Msg("round over, every seat has fired")
		return e.nextRound(out)
	}

	if w := e.lastStanding(); w != nil {
		name := w.Name
		out.RoundWinner = &name
		w.Score += e.cfg.RoundBonus
	}
	e.log.Info().Int("round", e.board.CurrentRound).Interface("winner", out.RoundWinner).Msg("round over")

	if e.board.TotalRounds == 0 {
		e.board.Phase = GameOver
		out.GameOver = true
		return out
	}
	return e.nextRound(out)
}

// nextRound closes the current round and either sets up the next one or
// ends the game once TotalRounds have been played.
func (e *Engine) nextRound(out Outcome) Outcome {
	e.board.Phase = RoundEnded
	e.board.CurrentRound++
	if e.board.CurrentRound >= e.board.TotalRounds {
		e.board.Phase = GameOver
		out.GameOver = true
		e.log.Info().Msg("game over")
		return out
	}
	e.setupRound()
	out.NewRound = true
	return out
}

// advance moves to the next live player and reports whether rotation
// wrapped past the last seat. A wrap counts a volley in Turn.
func (e *Engine) advance() bool {
	n := len(e.board.Players)
	wrapped := false
	for i := 1; i <= n; i++ {
		idx := e.board.CurrentPlayer + i
		if idx >= n && !wrapped {
			wrapped = true
			e.board.Turn++
		}
		if e.board.Players[idx%n].Alive() {
			e.board.CurrentPlayer = idx % n
			return wrapped
		}
	}
	return wrapped
}

// Forfeit knocks a player out of the round, typically after a disconnect.
func (e *Engine) Forfeit(id int) (Outcome, error) {
	e.Mu.Lock()
	defer e.Mu.Unlock()

	p, err := e.player(id)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.playable(); err != nil {
		return Outcome{}, err
	}
	if !p.Alive() {
		return Outcome{}, nil
	}

	p.HitPoints = 0
	e.log.Info().Str("player", p.Name).Msg("player forfeited")
	if e.livePlayers() <= 1 || e.board.CurrentPlayer == id {
		return e.endTurn(), nil
	}
	return Outcome{}, nil
}

// SkipTurn passes the turn without firing.
func (e *Engine) SkipTurn() (Outcome, error) {
	e.Mu.Lock()
	defer e.Mu.Unlock()

	if err := e.playable(); err != nil {
		return Outcome{}, err
	}
	return e.endTurn(), nil
}

// PlanAITurn aims the current player when a brain drives it and returns
// the new tank state. ok is false for players aiming by hand.
func (e *Engine) PlanAITurn() (tank Tank, ok bool) {
	e.Mu.Lock()
	defer e.Mu.Unlock()

	if e.playable() != nil {
		return Tank{}, false
	}
	p := e.board.Players[e.board.CurrentPlayer]
	brain := p.brain()
	if brain == nil {
		return Tank{}, false
	}
	target, found := e.nearestOpponent(p)
	if !found {
		return Tank{}, false
	}

	w, _ := e.weapons.Lookup(p.WeaponID, p.WeaponSizeID)
	e.setAimLocked(p, brain.NextAim(e.rng, target.ID, target.Tank.Position(), w.Bounds))
	return p.Tank, true
}
