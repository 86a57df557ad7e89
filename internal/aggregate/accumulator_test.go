package aggregate

import (
	"errors"
	"reflect"
	"testing"

	"github.com/freeeve/gamestats/internal/graph"
)

func TestAddGame_WinAndDrawAtSamePosition(t *testing.T) {
	a := New()
	if err := a.AddGame([]string{"S", "X"}, nil, graph.WhiteWin); err != nil {
		t.Fatal(err)
	}
	if err := a.AddGame([]string{"S", "Y", "X"}, nil, graph.Draw); err != nil {
		t.Fatal(err)
	}

	x, ok := a.Position("X")
	if !ok {
		t.Fatal("position X missing")
	}
	if x.Wins != 1 || x.Draws != 1 || x.Losses != 0 {
		t.Errorf("X counts = %d/%d/%d, want 1/0/1", x.Wins, x.Losses, x.Draws)
	}
	if x.WinRate != 0.5 || x.DrawRate != 0.5 || x.LossRate != 0 {
		t.Errorf("X rates = %v/%v/%v, want 0.5/0/0.5", x.WinRate, x.LossRate, x.DrawRate)
	}
	if a.Games() != 2 {
		t.Errorf("Games() = %d, want 2", a.Games())
	}
}

func TestAddGame_Transitions(t *testing.T) {
	a := New()
	moves := []graph.Move{graph.NewMove(12, 28, 0), graph.NewMove(52, 36, 0)}
	for i := 0; i < 3; i++ {
		if err := a.AddGame([]string{"A", "B", "C"}, moves, graph.BlackWin); err != nil {
			t.Fatal(err)
		}
	}

	ab, ok := a.Transition(graph.TransitionKey{From: "A", To: "B"})
	if !ok || ab.Plays != 3 {
		t.Fatalf("A->B = %+v, want 3 plays", ab)
	}
	if ab.MoveUCI != "e2e4" {
		t.Errorf("A->B move = %q, want e2e4", ab.MoveUCI)
	}
	if _, ok := a.Transition(graph.TransitionKey{From: "A", To: "C"}); ok {
		t.Error("non-consecutive pair recorded as a transition")
	}
	if a.PositionCount() != 3 || a.TransitionCount() != 2 || a.Len() != 5 {
		t.Errorf("counts = %d positions, %d transitions, len %d",
			a.PositionCount(), a.TransitionCount(), a.Len())
	}

	c, _ := a.Position("C")
	if c.Losses != 3 || c.LossRate != 1 {
		t.Errorf("C = %+v, want 3 losses", c)
	}
}

func TestAddGame_SinglePosition(t *testing.T) {
	a := New()
	if err := a.AddGame([]string{"S"}, nil, graph.Draw); err != nil {
		t.Fatal(err)
	}
	if a.PositionCount() != 1 || a.TransitionCount() != 0 {
		t.Errorf("got %d positions, %d transitions", a.PositionCount(), a.TransitionCount())
	}
}

func TestAddGame_Rejects(t *testing.T) {
	a := New()
	if err := a.AddGame(nil, nil, graph.WhiteWin); !errors.Is(err, ErrEmptySequence) {
		t.Errorf("empty sequence error = %v", err)
	}
	if err := a.AddGame([]string{"A"}, nil, graph.OutcomeUnknown); err == nil {
		t.Error("unknown outcome accepted")
	}
	if err := a.AddGame([]string{"A", "B"}, []graph.Move{1, 2}, graph.Draw); err == nil {
		t.Error("mismatched move count accepted")
	}
	if !a.Empty() || a.Games() != 0 {
		t.Error("rejected games mutated the accumulator")
	}
}

func TestSnapshotRestore(t *testing.T) {
	a := New()
	_ = a.AddGame([]string{"A", "B"}, []graph.Move{graph.NewMove(12, 28, 0)}, graph.WhiteWin)
	_ = a.AddGame([]string{"A", "C"}, nil, graph.Draw)

	snap := a.Snapshot()
	b, err := Restore(snap)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !reflect.DeepEqual(b.Snapshot(), snap) {
		t.Errorf("restored snapshot differs:\n got %+v\nwant %+v", b.Snapshot(), snap)
	}

	only := snap.WithoutPositions()
	if len(only.Positions) != 0 || len(only.Transitions) != 2 {
		t.Errorf("WithoutPositions = %+v", only)
	}
}

func TestRestore_RejectsEmptyID(t *testing.T) {
	_, err := Restore(Snapshot{Positions: []graph.PositionRecord{{Wins: 1}}})
	if err == nil {
		t.Error("Restore accepted a position without id")
	}
}

func TestProgress_OutOfOrder(t *testing.T) {
	p := NewProgress("games.pgn:120")
	for _, i := range []int{2, 0, 4, 4, 1} {
		p.Mark(i)
	}
	if p.Through != 3 || !reflect.DeepEqual(p.Ahead, []int{4}) {
		t.Fatalf("progress = %+v, want through 3 ahead [4]", p)
	}
	for i, want := range []bool{true, true, true, false, true, false} {
		if got := p.Done(i); got != want {
			t.Errorf("Done(%d) = %v, want %v", i, got, want)
		}
	}

	c := p.Clone()
	p.Mark(3)
	if p.Through != 5 || len(p.Ahead) != 0 {
		t.Errorf("after filling the gap: %+v", p)
	}
	if c.Through != 3 || c.Done(3) {
		t.Errorf("clone changed with original: %+v", c)
	}

	var none *Progress
	if none.Done(0) || none.Clone() != nil {
		t.Error("nil progress reports work done")
	}
}

func TestWithoutPositions_KeepsProgress(t *testing.T) {
	snap := Snapshot{Games: 2, Progress: &Progress{Input: "x", Through: 2}}
	if got := snap.WithoutPositions().Progress; got == nil || got.Through != 2 {
		t.Errorf("progress dropped: %+v", got)
	}
	if !snap.Empty() {
		t.Error("snapshot without deltas not empty")
	}
}
