package store

import (
	"errors"
	"testing"

	"github.com/freeeve/gamestats/internal/graph"
)

func TestDecodeTransitionKey(t *testing.T) {
	key := graph.TransitionKey{From: "a b:c", To: "d"}
	got, err := DecodeTransitionKey(key.String(), key.From, key.To)
	if err != nil || got != key {
		t.Fatalf("DecodeTransitionKey = %+v, %v", got, err)
	}

	tests := []struct {
		name, raw, from, to string
	}{
		{"no prefix", "abd", "a", "bd"},
		{"prefix too long", "9:ab", "a", "b"},
		{"columns disagree", key.String(), "a b", ":cd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeTransitionKey(tt.raw, tt.from, tt.to); !errors.Is(err, ErrCorrupt) {
				t.Errorf("error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestChunk(t *testing.T) {
	got := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(got) != 3 || len(got[2]) != 1 {
		t.Errorf("Chunk = %v", got)
	}
	if Chunk([]int(nil), 2) != nil {
		t.Error("Chunk of nothing returned chunks")
	}
}
