package replay

import (
	"errors"
	"testing"

	"github.com/freeeve/gamestats/internal/graph"
	"github.com/freeeve/gamestats/internal/rules"
	"github.com/freeeve/gamestats/internal/transcript"
)

// fakeEngine uses strings as positions. "pass" leaves the position unchanged
// and "bad" is rejected; any other token is appended.
type fakeEngine struct{}

func (fakeEngine) Initial() string { return "start" }

func (fakeEngine) Apply(pos, san string) (string, graph.Move, error) {
	switch san {
	case "bad":
		return "", 0, rules.ErrRejected
	case "pass":
		return pos, 0, nil
	}
	return pos + "/" + san, graph.NewMove(len(pos)%64, len(san)%64, graph.PromoNone), nil
}

func (fakeEngine) CanonicalID(pos string) string { return pos }

func TestReplay_Sequence(t *testing.T) {
	r := New[string](fakeEngine{})
	game, err := r.Replay([]string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	want := []string{"start", "start/a", "start/a/b", "start/a/b/c"}
	if len(game.Positions) != len(want) {
		t.Fatalf("got %d positions, want %d", len(game.Positions), len(want))
	}
	for i := range want {
		if game.Positions[i] != want[i] {
			t.Errorf("Positions[%d] = %q, want %q", i, game.Positions[i], want[i])
		}
	}
	if game.Plies() != 3 {
		t.Errorf("Plies() = %d, want 3", game.Plies())
	}
}

func TestReplay_Failures(t *testing.T) {
	tests := []struct {
		name    string
		tokens  []string
		wantErr error
		wantPly int
	}{
		{"illegal first", []string{"bad", "a"}, ErrIllegalMove, 0},
		{"illegal late", []string{"a", "b", "bad"}, ErrIllegalMove, 2},
		{"non progressing", []string{"a", "pass", "b"}, ErrNonProgressing, 1},
		{"non progressing tail", []string{"a", "b", "pass"}, ErrNonProgressing, 2},
		{"empty", nil, ErrEmptyGame, 0},
	}

	r := New[string](fakeEngine{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			game, err := r.Replay(tt.tokens)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error %T is not a *ParseError", err)
			}
			if pe.Ply != tt.wantPly {
				t.Errorf("Ply = %d, want %d", pe.Ply, tt.wantPly)
			}
			if len(game.Positions) != 0 || len(game.Moves) != 0 {
				t.Errorf("partial game returned: %v", game.Positions)
			}
		})
	}
}

func TestReplay_PGN(t *testing.T) {
	eng := rules.NewPGN()
	r := New[rules.Position](eng)

	moves, token := transcript.SplitResult("1. e4 e5 2. Nf3 1-0")
	tokens := transcript.MoveTokens(moves)
	if token != "1-0" {
		t.Fatalf("result token = %q", token)
	}

	game, err := r.Replay(tokens)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(game.Positions) != len(tokens)+1 {
		t.Fatalf("got %d positions for %d moves", len(game.Positions), len(tokens))
	}
	if game.Positions[0] != eng.CanonicalID(eng.Initial()) {
		t.Errorf("first position is not the initial position: %q", game.Positions[0])
	}

	wantUCI := []string{"e2e4", "e7e5", "g1f3"}
	for i, mv := range game.Moves {
		if mv.UCI() != wantUCI[i] {
			t.Errorf("move %d = %s, want %s", i, mv.UCI(), wantUCI[i])
		}
	}

	// Each step is reachable from the previous one by exactly one legal move.
	pos := eng.Initial()
	for i, tok := range tokens {
		next, _, err := eng.Apply(pos, tok)
		if err != nil {
			t.Fatalf("Apply(%s): %v", tok, err)
		}
		if eng.CanonicalID(next) != game.Positions[i+1] {
			t.Errorf("position %d mismatch", i+1)
		}
		pos = next
	}
}

func TestReplay_PGNIllegal(t *testing.T) {
	r := New[rules.Position](rules.NewPGN())
	_, err := r.Replay([]string{"e4", "e5", "Ke3"})
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("error = %v, want ErrIllegalMove", err)
	}
	if !errors.Is(err, rules.ErrRejected) {
		t.Errorf("engine error not wrapped: %v", err)
	}
}
