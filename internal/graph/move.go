package graph

import "fmt"

// Move packs a move into a uint32:
//
//	bits 0-5:   from square (0-63, a1=0 ... h8=63)
//	bits 6-11:  to square
//	bits 12-14: promotion piece (0=none, 1=Q, 2=R, 3=B, 4=N)
type Move uint32

const (
	moveSquareMask = 0x3F
	moveToShift    = 6
	movePromoShift = 12
	movePromoMask  = 0x7
)

// Promotion pieces.
const (
	PromoNone   byte = 0
	PromoQueen  byte = 1
	PromoRook   byte = 2
	PromoBishop byte = 3
	PromoKnight byte = 4
)

var promoLetters = [...]byte{0, 'q', 'r', 'b', 'n'}

// NewMove builds a Move. Out-of-range squares or promotions yield the zero Move.
func NewMove(from, to int, promo byte) Move {
	if from < 0 || from > 63 || to < 0 || to > 63 || promo > PromoKnight {
		return 0
	}
	return Move(uint32(from) | uint32(to)<<moveToShift | uint32(promo)<<movePromoShift)
}

func (m Move) From() int    { return int(m & moveSquareMask) }
func (m Move) To() int      { return int(m>>moveToShift) & moveSquareMask }
func (m Move) Promo() byte  { return byte(m>>movePromoShift) & movePromoMask }
func (m Move) IsZero() bool { return m == 0 }

// UCI renders the move in long algebraic form, e.g. "e2e4" or "e7e8q".
func (m Move) UCI() string {
	b := []byte{
		'a' + byte(m.From()%8), '1' + byte(m.From()/8),
		'a' + byte(m.To()%8), '1' + byte(m.To()/8),
	}
	if p := m.Promo(); p > PromoNone && p <= PromoKnight {
		b = append(b, promoLetters[p])
	}
	return string(b)
}

// ParseUCI is the inverse of Move.UCI.
func ParseUCI(s string) (Move, error) {
	if len(s) != 4 && len(s) != 5 {
		return 0, fmt.Errorf("uci move %q: want 4 or 5 characters", s)
	}
	from, err := parseSquare(s[0:2])
	if err != nil {
		return 0, fmt.Errorf("uci move %q: %w", s, err)
	}
	to, err := parseSquare(s[2:4])
	if err != nil {
		return 0, fmt.Errorf("uci move %q: %w", s, err)
	}
	promo := PromoNone
	if len(s) == 5 {
		switch s[4] {
		case 'q', 'Q':
			promo = PromoQueen
		case 'r', 'R':
			promo = PromoRook
		case 'b', 'B':
			promo = PromoBishop
		case 'n', 'N':
			promo = PromoKnight
		default:
			return 0, fmt.Errorf("uci move %q: invalid promotion piece %c", s, s[4])
		}
	}
	return NewMove(from, to, promo), nil
}

func parseSquare(s string) (int, error) {
	file, rank := int(s[0])-'a', int(s[1])-'1'
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return 0, fmt.Errorf("invalid square %q", s)
	}
	return rank*8 + file, nil
}
