package aggregate

import (
	"fmt"
	"slices"

	"github.com/freeeve/gamestats/internal/graph"
)

// Snapshot is a serializable copy of an Accumulator.
type Snapshot struct {
	Games       int                      `json:"games"`
	Positions   []graph.PositionRecord   `json:"positions,omitempty"`
	Transitions []graph.TransitionRecord `json:"transitions,omitempty"`
	// Progress, when set, records which blocks of the input are either
	// committed or held in this snapshot.
	Progress *Progress `json:"progress,omitempty"`
}

// Snapshot copies the accumulator's contents.
func (a *Accumulator) Snapshot() Snapshot {
	return Snapshot{
		Games:       a.games,
		Positions:   a.Positions(),
		Transitions: a.Transitions(),
	}
}

// Restore rebuilds an Accumulator from a snapshot. Duplicate keys are summed.
// Progress is not part of the accumulator and is ignored.
func Restore(s Snapshot) (*Accumulator, error) {
	a := New()
	a.games = s.Games
	for _, p := range s.Positions {
		if p.ID == "" {
			return nil, fmt.Errorf("restore: position with empty id")
		}
		merged := p
		if prev, ok := a.positions[p.ID]; ok {
			merged = prev.Merge(p)
		} else {
			merged.RecomputeRates()
		}
		a.positions[p.ID] = &merged
	}
	for _, tr := range s.Transitions {
		merged := tr
		if prev, ok := a.transitions[tr.Key]; ok {
			merged = prev.Merge(tr)
		}
		a.transitions[tr.Key] = &merged
	}
	return a, nil
}

// WithoutPositions returns a snapshot holding only the transition deltas.
// Used once position rows are known to be committed.
func (s Snapshot) WithoutPositions() Snapshot {
	return Snapshot{Games: s.Games, Transitions: s.Transitions, Progress: s.Progress}
}

// Empty reports whether the snapshot holds no deltas.
func (s Snapshot) Empty() bool {
	return len(s.Positions) == 0 && len(s.Transitions) == 0
}

// Progress tracks which blocks of one input have been accounted for.
// Blocks finish out of order when several workers replay them, so the
// record is a contiguous prefix plus the finished blocks past it.
type Progress struct {
	Input   string `json:"input"`
	Through int    `json:"through"`         // blocks [0, Through) are done
	Ahead   []int  `json:"ahead,omitempty"` // done blocks past Through, sorted
}

// NewProgress starts tracking input from its first block.
func NewProgress(input string) *Progress {
	return &Progress{Input: input}
}

// Mark records block index as done.
func (p *Progress) Mark(index int) {
	if index < p.Through {
		return
	}
	if index > p.Through {
		i, found := slices.BinarySearch(p.Ahead, index)
		if !found {
			p.Ahead = slices.Insert(p.Ahead, i, index)
		}
		return
	}
	p.Through++
	for len(p.Ahead) > 0 && p.Ahead[0] == p.Through {
		p.Ahead = p.Ahead[1:]
		p.Through++
	}
}

// Done reports whether block index has been accounted for.
func (p *Progress) Done(index int) bool {
	if p == nil {
		return false
	}
	if index < p.Through {
		return true
	}
	_, found := slices.BinarySearch(p.Ahead, index)
	return found
}

// Clone returns a deep copy of p. Clone of nil is nil.
func (p *Progress) Clone() *Progress {
	if p == nil {
		return nil
	}
	c := *p
	c.Ahead = slices.Clone(p.Ahead)
	return &c
}
