// Package replay walks a game's moves through a rules engine and produces the
// sequence of canonical position ids it visits.
package replay

import (
	"errors"
	"fmt"

	"github.com/freeeve/gamestats/internal/graph"
	"github.com/freeeve/gamestats/internal/rules"
)

var (
	// ErrIllegalMove means the engine rejected a move token.
	ErrIllegalMove = errors.New("illegal move")
	// ErrNonProgressing means a move left the canonical position unchanged.
	ErrNonProgressing = errors.New("move did not change the position")
	// ErrEmptyGame means the game had no move tokens.
	ErrEmptyGame = errors.New("game has no moves")
)

// ParseError reports why a game was discarded.
type ParseError struct {
	Ply   int    // 0-based index of the offending token
	Token string // offending token
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ply %d (%s): %v", e.Ply, e.Token, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Game is a successfully replayed game. len(Positions) == len(Moves)+1 and
// Positions[0] is the initial position.
type Game struct {
	Positions []string
	Moves     []graph.Move
}

// Plies returns the number of moves played.
func (g Game) Plies() int { return len(g.Moves) }

// Replayer replays move tokens with an engine over position type P. It holds
// no mutable state, so one Replayer may serve many goroutines.
type Replayer[P any] struct {
	eng rules.Engine[P]
}

// New returns a Replayer for eng.
func New[P any](eng rules.Engine[P]) *Replayer[P] {
	return &Replayer[P]{eng: eng}
}

// Replay applies tokens in order from the initial position. Any rejected or
// non-progressing move discards the whole game: the result is then the zero
// Game and a *ParseError.
func (r *Replayer[P]) Replay(tokens []string) (Game, error) {
	if len(tokens) == 0 {
		return Game{}, &ParseError{Ply: 0, Err: ErrEmptyGame}
	}

	pos := r.eng.Initial()
	prev := r.eng.CanonicalID(pos)
	game := Game{
		Positions: make([]string, 1, len(tokens)+1),
		Moves:     make([]graph.Move, 0, len(tokens)),
	}
	game.Positions[0] = prev

	for ply, tok := range tokens {
		next, mv, err := r.eng.Apply(pos, tok)
		if err != nil {
			return Game{}, &ParseError{Ply: ply, Token: tok, Err: fmt.Errorf("%w: %w", ErrIllegalMove, err)}
		}
		id := r.eng.CanonicalID(next)
		if id == prev {
			return Game{}, &ParseError{Ply: ply, Token: tok, Err: ErrNonProgressing}
		}
		game.Positions = append(game.Positions, id)
		game.Moves = append(game.Moves, mv)
		pos, prev = next, id
	}
	return game, nil
}
