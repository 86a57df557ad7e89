package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/freeeve/gamestats/internal/replay"
	"github.com/freeeve/gamestats/internal/rules"
	"github.com/freeeve/gamestats/internal/store"
)

const (
	defaultMoveLimit = 20
	maxMoveLimit     = 500
)

// Handler serves read-only statistics from a store.
type Handler struct {
	st  store.Reader
	eng rules.PGN
	rep *replay.Replayer[rules.Position]
	log zerolog.Logger
}

// NewRouter creates the HTTP router over st.
func NewRouter(log zerolog.Logger, st store.Reader) http.Handler {
	eng := rules.NewPGN()
	h := &Handler{
		st:  st,
		eng: eng,
		rep: replay.New[rules.Position](eng),
		log: log,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", http.HandlerFunc(h.health))
	mux.Handle("GET /readyz", http.HandlerFunc(h.ready))
	mux.Handle("GET /v1/position", http.HandlerFunc(h.position))
	mux.Handle("GET /v1/stats", http.HandlerFunc(h.stats))

	// pprof endpoints
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return RequestID(AccessLog(log, mux))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ready checks the store answers.
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.st.Summary(r.Context()); err != nil {
		h.log.Warn().Err(err).Msg("readiness check failed")
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	sum, err := h.st.Summary(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("summary")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// position looks up a position given fen=<FEN>, moves=<SAN,...> or
// uci=<UCI,...>. Move lists are played from the initial position.
func (h *Handler) position(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultMoveLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxMoveLimit {
			http.Error(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var id string
	switch {
	case q.Get("fen") != "":
		pos, err := h.eng.ParseFEN(q.Get("fen"))
		if err != nil {
			http.Error(w, "invalid FEN: "+err.Error(), http.StatusBadRequest)
			return
		}
		id = h.eng.CanonicalID(pos)
	case q.Has("uci"):
		pos := h.eng.Initial()
		for i, uci := range splitList(q.Get("uci")) {
			next, _, err := h.eng.ApplyUCI(pos, uci)
			if err != nil {
				http.Error(w, "invalid uci move "+strconv.Itoa(i)+": "+err.Error(), http.StatusBadRequest)
				return
			}
			pos = next
		}
		id = h.eng.CanonicalID(pos)
	case q.Has("moves"):
		tokens := splitList(q.Get("moves"))
		if len(tokens) == 0 {
			id = h.eng.CanonicalID(h.eng.Initial())
			break
		}
		game, err := h.rep.Replay(tokens)
		if err != nil {
			http.Error(w, "invalid moves: "+err.Error(), http.StatusBadRequest)
			return
		}
		id = game.Positions[len(game.Positions)-1]
	default:
		http.Error(w, "missing fen, moves or uci parameter", http.StatusBadRequest)
		return
	}

	rec, err := h.st.GetPosition(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "position not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("position", id).Msg("get position")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	moves, err := h.st.TransitionsFrom(r.Context(), id, limit)
	if err != nil {
		h.log.Error().Err(err).Str("position", id).Msg("transitions")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ToPositionResponse(rec, moves))
}

func splitList(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
