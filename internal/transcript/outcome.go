package transcript

import (
	"errors"
	"fmt"
	"strings"

	"github.com/freeeve/gamestats/internal/graph"
)

// Result tokens.
const (
	ResultWhiteWin = "1-0"
	ResultBlackWin = "0-1"
	ResultDraw     = "1/2-1/2"
	ResultOngoing  = "*"
)

// ErrUnknownOutcome is returned for a result token outside the three decided
// results. Unfinished games ("*") are rejected the same way.
var ErrUnknownOutcome = errors.New("unknown outcome token")

// ParseOutcome maps a result token to an outcome.
func ParseOutcome(token string) (graph.Outcome, error) {
	switch token {
	case ResultWhiteWin:
		return graph.WhiteWin, nil
	case ResultBlackWin:
		return graph.BlackWin, nil
	case ResultDraw:
		return graph.Draw, nil
	}
	return graph.OutcomeUnknown, fmt.Errorf("%w: %q", ErrUnknownOutcome, token)
}

// SplitResult separates the trailing result token from the movetext.
func SplitResult(movetext string) (moves, token string) {
	movetext = strings.TrimSpace(movetext)
	i := strings.LastIndexAny(movetext, " \t")
	if i < 0 {
		return "", movetext
	}
	return strings.TrimSpace(movetext[:i]), movetext[i+1:]
}

func isResultToken(tok string) bool {
	switch tok {
	case ResultWhiteWin, ResultBlackWin, ResultDraw, ResultOngoing:
		return true
	}
	return false
}
