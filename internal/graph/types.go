package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Outcome is the result of a finished game, seen from the side that moved
// first (White).
type Outcome uint8

const (
	OutcomeUnknown Outcome = iota
	WhiteWin
	BlackWin
	Draw
)

func (o Outcome) String() string {
	switch o {
	case WhiteWin:
		return "white_win"
	case BlackWin:
		return "black_win"
	case Draw:
		return "draw"
	default:
		return "unknown"
	}
}

// Valid reports whether o is one of the three decided outcomes.
func (o Outcome) Valid() bool {
	return o == WhiteWin || o == BlackWin || o == Draw
}

// Flags returns the win/loss/draw flags for o. Exactly one flag is set for a
// valid outcome and none for OutcomeUnknown.
func (o Outcome) Flags() (win, loss, draw bool) {
	return o == WhiteWin, o == BlackWin, o == Draw
}

// PositionRecord holds cumulative results for one canonical position.
// Counts are from White's perspective; rates are derived from counts.
type PositionRecord struct {
	ID       string  `json:"id"`
	Wins     uint64  `json:"wins"`
	Losses   uint64  `json:"losses"`
	Draws    uint64  `json:"draws"`
	WinRate  float64 `json:"win_rate"`
	LossRate float64 `json:"loss_rate"`
	DrawRate float64 `json:"draw_rate"`
}

// Total is the number of game observations at this position.
func (r *PositionRecord) Total() uint64 {
	return r.Wins + r.Losses + r.Draws
}

// Add counts one observation with the given outcome and refreshes the rates.
func (r *PositionRecord) Add(o Outcome) {
	switch o {
	case WhiteWin:
		r.Wins++
	case BlackWin:
		r.Losses++
	case Draw:
		r.Draws++
	}
	r.RecomputeRates()
}

// RecomputeRates derives the rates from the current counts.
func (r *PositionRecord) RecomputeRates() {
	total := r.Total()
	if total == 0 {
		r.WinRate, r.LossRate, r.DrawRate = 0, 0, 0
		return
	}
	t := float64(total)
	r.WinRate = float64(r.Wins) / t
	r.LossRate = float64(r.Losses) / t
	r.DrawRate = float64(r.Draws) / t
}

// Merge returns r with delta's counts added. Rates come from the merged totals.
func (r PositionRecord) Merge(delta PositionRecord) PositionRecord {
	out := PositionRecord{
		ID:     r.ID,
		Wins:   r.Wins + delta.Wins,
		Losses: r.Losses + delta.Losses,
		Draws:  r.Draws + delta.Draws,
	}
	if out.ID == "" {
		out.ID = delta.ID
	}
	out.RecomputeRates()
	return out
}

// TransitionKey identifies an observed move from one position to another.
type TransitionKey struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// String encodes the key as "<len(from)>:<from><to>". The length prefix keeps
// the encoding unambiguous whatever characters the ids contain.
func (k TransitionKey) String() string {
	return strconv.Itoa(len(k.From)) + ":" + k.From + k.To
}

// ParseTransitionKey decodes the output of TransitionKey.String.
func ParseTransitionKey(s string) (TransitionKey, error) {
	prefix, rest, ok := strings.Cut(s, ":")
	if !ok {
		return TransitionKey{}, fmt.Errorf("transition key %q: missing length prefix", s)
	}
	n, err := strconv.Atoi(prefix)
	if err != nil || n < 0 || n > len(rest) {
		return TransitionKey{}, fmt.Errorf("transition key %q: bad length prefix", s)
	}
	return TransitionKey{From: rest[:n], To: rest[n:]}, nil
}

// TransitionRecord counts how often a transition was played.
type TransitionRecord struct {
	Key     TransitionKey `json:"key"`
	Plays   uint64        `json:"plays"`
	MoveUCI string        `json:"move_uci,omitempty"`
}

// Merge returns r with delta's play count added. The move is taken from delta
// when it has one.
func (r TransitionRecord) Merge(delta TransitionRecord) TransitionRecord {
	out := TransitionRecord{
		Key:     r.Key,
		Plays:   r.Plays + delta.Plays,
		MoveUCI: r.MoveUCI,
	}
	if out.Key == (TransitionKey{}) {
		out.Key = delta.Key
	}
	if delta.MoveUCI != "" {
		out.MoveUCI = delta.MoveUCI
	}
	return out
}
