package world

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/Scrimzay/artillery/internal/terrain"
	"github.com/vmihailenco/msgpack/v5"
	"lukechampine.com/blake3"
)

// Snapshot is the full game in transferable form. Fields travel raw, packed
// or compressed; packed fields come back within 1e-6 of their range.
type Snapshot struct {
	Config        Config       `msgpack:"config"`
	Size          int          `msgpack:"size"`
	Surface       terrain.Blob `msgpack:"surface"`
	Bedrock       terrain.Blob `msgpack:"bedrock"`
	Colors        terrain.Blob `msgpack:"colors"`
	Players       []*Player    `msgpack:"players"`
	CurrentPlayer int          `msgpack:"currentPlayer"`
	CurrentRound  int          `msgpack:"currentRound"`
	TotalRounds   int          `msgpack:"totalRounds"`
	Turn          int          `msgpack:"turn"`
	Phase         Phase        `msgpack:"phase"`
	Seed          int64        `msgpack:"seed"`
}

// Snapshot copies the game with its heightfields in the given encoding.
// The material layer is never packed; it falls back to lossless
// compression instead.
func (e *Engine) Snapshot(enc terrain.Encoding) (*Snapshot, error) {
	e.Mu.RLock()
	defer e.Mu.RUnlock()
	return e.snapshot(enc)
}

func (e *Engine) snapshot(enc terrain.Encoding) (*Snapshot, error) {
	s := &Snapshot{
		Config:        e.cfg,
		Size:          e.board.Size,
		CurrentPlayer: e.board.CurrentPlayer,
		CurrentRound:  e.board.CurrentRound,
		TotalRounds:   e.board.TotalRounds,
		Turn:          e.board.Turn,
		Phase:         e.board.Phase,
		Seed:          e.board.Seed,
	}
	if e.board.Phase != NotStarted {
		var err error
		if s.Surface, err = terrain.NewBlob(e.board.Surface, enc); err != nil {
			return nil, fmt.Errorf("surface: %w", err)
		}
		if s.Bedrock, err = terrain.NewBlob(e.board.Bedrock, enc); err != nil {
			return nil, fmt.Errorf("bedrock: %w", err)
		}
		// material indices must survive exactly
		colors := enc
		if colors == terrain.EncodingPacked {
			colors = terrain.EncodingCompressed
		}
		if s.Colors, err = terrain.NewBlob(e.board.Colors, colors); err != nil {
			return nil, fmt.Errorf("colors: %w", err)
		}
	}

	s.Players = make([]*Player, len(e.board.Players))
	for i, p := range e.board.Players {
		cp := *p
		cp.PrevTrajectory = append(cp.PrevTrajectory[:0:0], p.PrevTrajectory...)
		s.Players[i] = &cp
	}
	return s, nil
}

// Restore replaces the whole game with a snapshot.
func (e *Engine) Restore(s *Snapshot) error {
	e.Mu.Lock()
	defer e.Mu.Unlock()

	if s.Size < 2 || (s.Size-1)&(s.Size-2) != 0 {
		return ErrInvalidBoard
	}
	board := Board{
		Size:          s.Size,
		CurrentPlayer: s.CurrentPlayer,
		CurrentRound:  s.CurrentRound,
		TotalRounds:   s.TotalRounds,
		Turn:          s.Turn,
		Phase:         s.Phase,
		Seed:          s.Seed,
	}
	if s.Phase != NotStarted {
		var err error
		if board.Surface, err = s.Surface.Field(); err != nil {
			return fmt.Errorf("surface: %w", err)
		}
		if board.Bedrock, err = s.Bedrock.Field(); err != nil {
			return fmt.Errorf("bedrock: %w", err)
		}
		if board.Colors, err = s.Colors.Field(); err != nil {
			return fmt.Errorf("colors: %w", err)
		}
	}
	if len(s.Players) > 0 && (s.CurrentPlayer < 0 || s.CurrentPlayer >= len(s.Players)) {
		return ErrUnknownPlayer
	}
	if slices.Contains(s.Players, nil) {
		return fmt.Errorf("%w: empty seat in snapshot", ErrUnknownPlayer)
	}

	board.Players = make([]*Player, len(s.Players))
	for i, p := range s.Players {
		cp := *p
		cp.ID = i
		board.Players[i] = &cp
	}

	e.cfg = s.Config
	if e.cfg.TimeStep <= 0 {
		e.cfg.TimeStep = DefaultConfig().TimeStep
	}
	e.board = board
	return nil
}

// Digest is a BLAKE3 hash of the raw game state, hex encoded. Brains are
// left out since only the leader plans with them.
func (e *Engine) Digest() (string, error) {
	e.Mu.RLock()
	defer e.Mu.RUnlock()

	s, err := e.snapshot(terrain.EncodingRaw)
	if err != nil {
		return "", err
	}
	for _, p := range s.Players {
		p.AI, p.Computer = nil, nil
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("encoding digest state: %w", err)
	}
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// Encode serializes a snapshot for the wire or for storage.
func (s *Snapshot) Encode() ([]byte, error) {
	return msgpack.Marshal(s)
}

func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &s, nil
}
