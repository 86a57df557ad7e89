package httpapi

import "github.com/freeeve/gamestats/internal/graph"

// PositionResponse is the JSON-friendly response for a position query.
// Counts are from White's point of view.
type PositionResponse struct {
	Position string         `json:"position"` // canonical position id
	Games    uint64         `json:"games"`
	Wins     uint64         `json:"wins"`
	Losses   uint64         `json:"losses"`
	Draws    uint64         `json:"draws"`
	WinRate  float64        `json:"win_rate"`
	LossRate float64        `json:"loss_rate"`
	DrawRate float64        `json:"draw_rate"`
	Moves    []MoveResponse `json:"moves"`
}

type MoveResponse struct {
	UCI   string  `json:"uci,omitempty"` // UCI notation (e.g., "e2e4")
	Child string  `json:"child"`         // canonical id of the resulting position
	Count uint64  `json:"count"`
	Share float64 `json:"share"` // Count over the games through the parent
}

// ToPositionResponse converts a record and its outgoing transitions.
func ToPositionResponse(rec graph.PositionRecord, moves []graph.TransitionRecord) *PositionResponse {
	resp := &PositionResponse{
		Position: rec.ID,
		Games:    rec.Total(),
		Wins:     rec.Wins,
		Losses:   rec.Losses,
		Draws:    rec.Draws,
		WinRate:  rec.WinRate,
		LossRate: rec.LossRate,
		DrawRate: rec.DrawRate,
		Moves:    make([]MoveResponse, 0, len(moves)),
	}
	total := rec.Total()
	for _, m := range moves {
		mr := MoveResponse{
			UCI:   m.MoveUCI,
			Child: m.Key.To,
			Count: m.Plays,
		}
		if total > 0 {
			mr.Share = float64(m.Plays) / float64(total)
		}
		resp.Moves = append(resp.Moves, mr)
	}
	return resp
}
