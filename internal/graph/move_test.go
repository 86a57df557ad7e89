package graph

import (
	"testing"
)

func TestNewMove(t *testing.T) {
	tests := []struct {
		name  string
		from  int
		to    int
		promo byte
	}{
		{"e2e4", 12, 28, PromoNone},
		{"e7e8q", 52, 60, PromoQueen},
		{"a1h8", 0, 63, PromoNone},
		{"b7b8n", 49, 57, PromoKnight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMove(tt.from, tt.to, tt.promo)
			if m.From() != tt.from || m.To() != tt.to || m.Promo() != tt.promo {
				t.Errorf("NewMove(%d, %d, %d) = %x, decodes to (%d, %d, %d)",
					tt.from, tt.to, tt.promo, m, m.From(), m.To(), m.Promo())
			}
			if got := m.UCI(); got != tt.name {
				t.Errorf("UCI() = %s, want %s", got, tt.name)
			}
		})
	}
}

func TestNewMove_OutOfRange(t *testing.T) {
	if m := NewMove(-1, 10, PromoNone); !m.IsZero() {
		t.Errorf("NewMove(-1, ...) = %x, want 0", m)
	}
	if m := NewMove(10, 64, PromoNone); !m.IsZero() {
		t.Errorf("NewMove(..., 64) = %x, want 0", m)
	}
	if m := NewMove(10, 20, 9); !m.IsZero() {
		t.Errorf("NewMove with bad promo = %x, want 0", m)
	}
}

func TestParseUCI(t *testing.T) {
	tests := []struct {
		uci     string
		want    Move
		wantErr bool
	}{
		{"e2e4", NewMove(12, 28, PromoNone), false},
		{"e7e8q", NewMove(52, 60, PromoQueen), false},
		{"a7a8R", NewMove(48, 56, PromoRook), false},
		{"c7c8b", NewMove(50, 58, PromoBishop), false},
		{"xyz", 0, true},
		{"e2e", 0, true},
		{"i2e4", 0, true},
		{"e7e8k", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.uci, func(t *testing.T) {
			got, err := ParseUCI(tt.uci)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseUCI(%s) error = %v, wantErr %v", tt.uci, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseUCI(%s) = %x, want %x", tt.uci, got, tt.want)
			}
		})
	}
}
