// Package rules adapts a chess rules engine to the replay pipeline.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/freeeve/pgn/v3"

	"github.com/freeeve/gamestats/internal/graph"
)

// ErrRejected is returned when the engine refuses a move.
var ErrRejected = errors.New("move rejected")

// Engine applies moves to immutable positions of type P.
type Engine[P any] interface {
	Initial() P
	// Apply returns the position after san is played from pos. pos itself is
	// never modified.
	Apply(pos P, san string) (P, graph.Move, error)
	CanonicalID(pos P) string
}

// Position is a packed, comparable board state.
type Position = pgn.PackedPosition

// PGN implements Engine on top of github.com/freeeve/pgn.
type PGN struct{}

var _ Engine[Position] = PGN{}

// NewPGN returns the pgn-backed engine.
func NewPGN() PGN { return PGN{} }

func (PGN) Initial() Position {
	return pgn.NewStartingPosition().Pack()
}

func (PGN) Apply(pos Position, san string) (Position, graph.Move, error) {
	gs := pos.Unpack()
	if gs == nil {
		return Position{}, 0, fmt.Errorf("%w: cannot unpack position", ErrRejected)
	}
	mv, err := pgn.ParseSAN(gs, san)
	if err != nil {
		return Position{}, 0, fmt.Errorf("%w: parse %q: %v", ErrRejected, san, err)
	}
	if err := pgn.ApplyMove(gs, mv); err != nil {
		return Position{}, 0, fmt.Errorf("%w: apply %q: %v", ErrRejected, san, err)
	}
	return gs.Pack(), toMove(mv), nil
}

// ApplyUCI plays a move given in long algebraic form, e.g. "e2e4", if it is
// legal from pos.
func (PGN) ApplyUCI(pos Position, uci string) (Position, graph.Move, error) {
	want, err := graph.ParseUCI(uci)
	if err != nil {
		return Position{}, 0, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	gs := pos.Unpack()
	if gs == nil {
		return Position{}, 0, fmt.Errorf("%w: cannot unpack position", ErrRejected)
	}
	for _, mv := range pgn.GenerateLegalMoves(gs) {
		if toMove(mv) != want {
			continue
		}
		if err := pgn.ApplyMove(gs, mv); err != nil {
			return Position{}, 0, fmt.Errorf("%w: apply %q: %v", ErrRejected, uci, err)
		}
		return gs.Pack(), want, nil
	}
	return Position{}, 0, fmt.Errorf("%w: %q is not legal", ErrRejected, uci)
}

// CanonicalID renders pos as the first four FEN fields: placement, side to
// move, castling rights and en passant square. Move counters are dropped so
// transpositions share one id.
func (PGN) CanonicalID(pos Position) string {
	gs := pos.Unpack()
	if gs == nil {
		return ""
	}
	return CanonicalFEN(gs.ToFEN())
}

// ParseFEN converts a FEN (or its four-field prefix) into a Position.
func (PGN) ParseFEN(fen string) (Position, error) {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return Position{}, fmt.Errorf("fen %q: want at least 4 fields", fen)
	}
	if len(fields) == 4 {
		fields = append(fields, "0", "1")
	}
	gs, err := pgn.NewGame(strings.Join(fields, " "))
	if err != nil {
		return Position{}, fmt.Errorf("fen %q: %w", fen, err)
	}
	return gs.Pack(), nil
}

// CanonicalFEN keeps the first four fields of a FEN string.
func CanonicalFEN(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

func toMove(mv pgn.Mv) graph.Move {
	promo := graph.PromoNone
	switch mv.Promo {
	case pgn.PromoQueen:
		promo = graph.PromoQueen
	case pgn.PromoRook:
		promo = graph.PromoRook
	case pgn.PromoBishop:
		promo = graph.PromoBishop
	case pgn.PromoKnight:
		promo = graph.PromoKnight
	}
	return graph.NewMove(int(mv.From), int(mv.To), promo)
}
