// Package netsync keeps every peer's engine in step. One peer leads: it
// owns turn order, fires shots and broadcasts results; followers replay
// them and report back so the leader can gate the next turn.
package netsync

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Scrimzay/artillery/internal/world"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrUnknownKind   = errors.New("netsync: unknown message kind")
	ErrDroppedFields = errors.New("netsync: dropped malformed fields")
	ErrNotLeader     = errors.New("netsync: only the leader can do that")
	ErrLeaderLost    = errors.New("netsync: lost connection to leader")
)

// AnyPlayer addresses whoever receives the message.
const AnyPlayer = -1

type Kind uint8

const (
	KindAssign Kind = iota + 1
	KindGameModel
	KindTurnInfo
	KindEnableUI
	KindPlayerReady
	KindFinishedTurn
)

func (k Kind) String() string {
	switch k {
	case KindAssign:
		return "assign"

	case KindGameModel:
		return "game_model"

	case KindTurnInfo:
		return "turn_info"

	case KindEnableUI:
		return "enable_ui"

	case KindPlayerReady:
		return "player_ready"

	case KindFinishedTurn:
		return "finished_turn"

	default:
		return "unknown"
	}
}

// Message is one of the concrete message types below.
type Message interface {
	Kind() Kind
}

// Assign tells a peer which seat it plays. PlayerID is AnyPlayer for
// spectators.
type Assign struct {
	PlayerID     int `msgpack:"playerID"`
	TotalPlayers int `msgpack:"totalPlayers"`
}

// GameModel carries the whole game.
type GameModel struct {
	Snapshot *world.Snapshot `msgpack:"snapshot"`
}

// TurnInfo is a player's aim and weapon. With IsFire set it is the shot
// itself.
type TurnInfo struct {
	Round         int        `msgpack:"round"`
	PlayerID      int        `msgpack:"playerID"`
	Tank          world.Tank `msgpack:"tank"`
	WeaponID      int        `msgpack:"weaponID"`
	WeaponSizeID  int        `msgpack:"weaponSizeID"`
	UsingComputer bool       `msgpack:"usingComputer"`
	IsFire        bool       `msgpack:"isFire"`
}

type EnableUI struct {
	PlayerID int  `msgpack:"playerID"`
	Enabled  bool `msgpack:"enabled"`
}

type PlayerReady struct {
	PlayerID int `msgpack:"playerID"`
}

// FinishedTurn reports that a peer applied a shot, with the digest of the
// board it ended up with.
type FinishedTurn struct {
	PlayerID int    `msgpack:"playerID"`
	Digest   string `msgpack:"digest"`
}

func (Assign) Kind() Kind       { return KindAssign }
func (GameModel) Kind() Kind    { return KindGameModel }
func (TurnInfo) Kind() Kind     { return KindTurnInfo }
func (EnableUI) Kind() Kind     { return KindEnableUI }
func (PlayerReady) Kind() Kind  { return KindPlayerReady }
func (FinishedTurn) Kind() Kind { return KindFinishedTurn }

// Envelope is the wire frame.
type Envelope struct {
	Kind Kind               `msgpack:"kind"`
	Body msgpack.RawMessage `msgpack:"body"`
}

func Encode(m Message) ([]byte, error) {
	body, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.Kind(), err)
	}
	return msgpack.Marshal(Envelope{Kind: m.Kind(), Body: body})
}

// Decode reads an envelope or a legacy message. Legacy messages may
// yield several typed messages; fields that fail to decode are skipped and
// reported with ErrDroppedFields next to whatever did decode.
func Decode(data []byte) ([]Message, error) {
	var fields map[string]msgpack.RawMessage
	if err := msgpack.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	if _, ok := fields["kind"]; !ok {
		return decodeLegacy(fields)
	}

	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	m, err := decodeBody(env.Kind, env.Body)
	if err != nil {
		return nil, err
	}
	return []Message{m}, nil
}

func decodeBody(kind Kind, body []byte) (Message, error) {
	var (
		m   Message
		err error
	)
	switch kind {
	case KindAssign:
		m, err = unmarshal[Assign](body)

	case KindGameModel:
		m, err = unmarshal[GameModel](body)

	case KindTurnInfo:
		m, err = unmarshal[TurnInfo](body)

	case KindEnableUI:
		m, err = unmarshal[EnableUI](body)

	case KindPlayerReady:
		m, err = unmarshal[PlayerReady](body)

	case KindFinishedTurn:
		m, err = unmarshal[FinishedTurn](body)

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", kind, err)
	}
	return m, nil
}

func unmarshal[T Message](body []byte) (T, error) {
	var v T
	err := msgpack.Unmarshal(body, &v)
	return v, err
}

// Legacy is the older all-optional message. Any combination of fields may
// be set; Decode splits it into typed messages.
type Legacy struct {
	FromLeader   *bool           `msgpack:"fromLeader,omitempty"`
	PlayerID     *int            `msgpack:"playerID,omitempty"`
	PlayerReady  *bool           `msgpack:"playerReady,omitempty"`
	TotalPlayers *int            `msgpack:"totalPlayers,omitempty"`
	GameModel    *world.Snapshot `msgpack:"gameModel,omitempty"`
	TurnInfo     *TurnInfo       `msgpack:"turnInfo,omitempty"`
	EnableUI     *bool           `msgpack:"enableUI,omitempty"`
	FinishedTurn *bool           `msgpack:"finishedTurn,omitempty"`
}

func decodeLegacy(fields map[string]msgpack.RawMessage) ([]Message, error) {
	var bad []string
	field := func(key string, v any) bool {
		raw, ok := fields[key]
		if !ok {
			return false
		}
		if err := msgpack.Unmarshal(raw, v); err != nil {
			bad = append(bad, key)
			return false
		}
		return true
	}

	var (
		fromLeader, ready, enable, finished bool
		playerID                            int
		snap                                world.Snapshot
		turn                                TurnInfo
	)
	hasID := field("playerID", &playerID)
	if !hasID {
		playerID = AnyPlayer
	}

	var out []Message
	if field("fromLeader", &fromLeader) && fromLeader && hasID {
		a := Assign{PlayerID: playerID}
		field("totalPlayers", &a.TotalPlayers)
		out = append(out, a)
	}
	if field("gameModel", &snap) {
		out = append(out, GameModel{Snapshot: &snap})
	}
	if field("turnInfo", &turn) {
		out = append(out, turn)
	}
	if field("enableUI", &enable) {
		out = append(out, EnableUI{PlayerID: playerID, Enabled: enable})
	}
	if field("playerReady", &ready) && ready {
		out = append(out, PlayerReady{PlayerID: playerID})
	}
	if field("finishedTurn", &finished) && finished {
		out = append(out, FinishedTurn{PlayerID: playerID})
	}

	if len(bad) > 0 {
		slices.Sort(bad)
		return out, fmt.Errorf("%w: %s", ErrDroppedFields, strings.Join(bad, ", "))
	}
	return out, nil
}
