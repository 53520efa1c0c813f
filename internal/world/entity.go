package world

import (
	"github.com/Scrimzay/artillery/internal/ai"
	"github.com/Scrimzay/artillery/internal/ballistics"
	"github.com/Scrimzay/artillery/internal/geom"
)

// Tank is where a player sits and how its turret is pointed. Lon and Lat
// are board cell coordinates, Elev the ground height under the tank.
type Tank struct {
	Lon      float64 `msgpack:"lon" json:"lon"`
	Lat      float64 `msgpack:"lat" json:"lat"`
	Elev     float64 `msgpack:"elev" json:"elev"`
	Azimuth  float64 `msgpack:"azimuth" json:"azimuth"`
	Altitude float64 `msgpack:"altitude" json:"altitude"`
	Velocity float64 `msgpack:"velocity" json:"velocity"`
}

func (t Tank) Position() geom.Vector3 {
	return geom.Vector3{X: t.Lon, Y: t.Elev, Z: t.Lat}
}

func (t Tank) Aim() ai.Aim {
	return ai.Aim{Azimuth: t.Azimuth, Altitude: t.Altitude, Velocity: t.Velocity}
}

type Player struct {
	ID                   int            `msgpack:"id" json:"id"`
	Name                 string         `msgpack:"name" json:"name"`
	Tank                 Tank           `msgpack:"tank" json:"tank"`
	Score                int64          `msgpack:"score" json:"score"`
	Credit               int64          `msgpack:"credit" json:"credit"`
	HitPoints            int            `msgpack:"hitPoints" json:"hitPoints"`
	WeaponID             int            `msgpack:"weaponID" json:"weaponID"`
	WeaponSizeID         int            `msgpack:"weaponSizeID" json:"weaponSizeID"`
	UseTargetingComputer bool           `msgpack:"useTargetingComputer" json:"useTargetingComputer"`
	PrevTrajectory       []geom.Vector3 `msgpack:"prevTrajectory" json:"-"`

	// AI is set for computer players. Computer drives the targeting
	// computer of a human player.
	AI       *ai.Brain `msgpack:"ai,omitempty" json:"-"`
	Computer *ai.Brain `msgpack:"computer,omitempty" json:"-"`
}

func (p *Player) Alive() bool {
	return p.HitPoints > 0
}

func (p *Player) IsAI() bool {
	return p.AI != nil
}

// brain is whoever aims for this player, if anyone.
func (p *Player) brain() *ai.Brain {
	if p.AI != nil {
		return p.AI
	}
	if p.UseTargetingComputer {
		return p.Computer
	}
	return nil
}

// PlayerSpec describes a seat at game start.
type PlayerSpec struct {
	Name     string      `mapstructure:"name" json:"name"`
	AI       bool        `mapstructure:"ai" json:"ai"`
	Strategy ai.Strategy `mapstructure:"strategy" json:"strategy"`
}

func (e *Engine) player(id int) (*Player, error) {
	if id < 0 || id >= len(e.board.Players) {
		return nil, ErrUnknownPlayer
	}
	return e.board.Players[id], nil
}

func (e *Engine) SetAzimuth(id int, azimuth float64) error {
	e.Mu.Lock()
	defer e.Mu.Unlock()

	p, err := e.player(id)
	if err != nil {
		return err
	}
	p.Tank.Azimuth = ballistics.WrapDegrees(azimuth)
	return nil
}

func (e *Engine) SetAltitude(id int, altitude float64) error {
	e.Mu.Lock()
	defer e.Mu.Unlock()

	p, err := e.player(id)
	if err != nil {
		return err
	}
	w, _ := e.weapons.Lookup(p.WeaponID, p.WeaponSizeID)
	p.Tank.Altitude = clamp(altitude, w.Bounds.MinAltitude, w.Bounds.MaxAltitude)
	return nil
}

func (e *Engine) SetVelocity(id int, velocity float64) error {
	e.Mu.Lock()
	defer e.Mu.Unlock()

	p, err := e.player(id)
	if err != nil {
		return err
	}
	w, _ := e.weapons.Lookup(p.WeaponID, p.WeaponSizeID)
	p.Tank.Velocity = clamp(velocity, w.Bounds.MinVelocity, w.Bounds.MaxVelocity)
	return nil
}

// SetWeapon switches weapon and re-clamps the aim to its bounds.
func (e *Engine) SetWeapon(id, weaponID, sizeID int) error {
	e.Mu.Lock()
	defer e.Mu.Unlock()

	p, err := e.player(id)
	if err != nil {
		return err
	}
	if !e.weapons.Valid(weaponID, sizeID) {
		return ErrUnknownWeapon
	}
	p.WeaponID, p.WeaponSizeID = weaponID, sizeID
	e.setAimLocked(p, p.Tank.Aim())
	return nil
}

func (e *Engine) SetTargetingComputer(id int, on bool) error {
	e.Mu.Lock()
	defer e.Mu.Unlock()

	p, err := e.player(id)
	if err != nil {
		return err
	}
	p.UseTargetingComputer = on
	if on && p.Computer == nil && p.AI == nil {
		p.Computer = ai.NewBrain(ai.Heuristic)
	}
	return nil
}

// ApplyTank copies a remote player's aim and weapon. Position and
// elevation stay as this board has them.
func (e *Engine) ApplyTank(id int, tank Tank, weaponID, sizeID int, usingComputer bool) error {
	e.Mu.Lock()
	defer e.Mu.Unlock()

	p, err := e.player(id)
	if err != nil {
		return err
	}
	if e.weapons.Valid(weaponID, sizeID) {
		p.WeaponID, p.WeaponSizeID = weaponID, sizeID
	}
	p.UseTargetingComputer = usingComputer
	e.setAimLocked(p, tank.Aim())
	return nil
}

func (e *Engine) setAimLocked(p *Player, a ai.Aim) {
	w, _ := e.weapons.Lookup(p.WeaponID, p.WeaponSizeID)
	a = w.Bounds.Clamp(a)
	p.Tank.Azimuth, p.Tank.Altitude, p.Tank.Velocity = a.Azimuth, a.Altitude, a.Velocity
}

// livePlayers counts players with hit points left.
func (e *Engine) livePlayers() int {
	n := 0
	for _, p := range e.board.Players {
		if p.Alive() {
			n++
		}
	}
	return n
}

func (e *Engine) lastStanding() *Player {
	for _, p := range e.board.Players {
		if p.Alive() {
			return p
		}
	}
	return nil
}

// nearestOpponent picks the closest living player other than p.
func (e *Engine) nearestOpponent(p *Player) (*Player, bool) {
	var best *Player
	for _, o := range e.board.Players {
		if o.ID == p.ID || !o.Alive() {
			continue
		}
		if best == nil || p.Tank.Position().FlatDist(o.Tank.Position()) < p.Tank.Position().FlatDist(best.Tank.Position()) {
			best = o
		}
	}
	return best, best != nil
}
