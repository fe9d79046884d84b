// Package board implements the 3x3 grid shared by both players of a session.
package board

import (
	"fmt"
	"strings"
)

// Size is the number of slots on the board.
const Size = 9

// Symbol is the content of one slot.
type Symbol byte

const (
	// Empty marks an unclaimed slot.
	Empty Symbol = ' '
	// X is played by the first player, who also moves first.
	X Symbol = 'X'
	// O is played by the second player.
	O Symbol = 'O'
)

// String returns the single-character rendering used on the wire.
func (s Symbol) String() string {
	return string(s)
}

// Valid reports whether s is one of Empty, X, or O.
func (s Symbol) Valid() bool {
	return s == Empty || s == X || s == O
}

// lines lists the eight winning triples: rows, columns, then diagonals.
var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Board is a fixed 9-slot grid indexed row-major from the top-left corner.
// The zero value is not usable; start from New.
type Board [Size]Symbol

// New returns an empty board.
func New() Board {
	var b Board
	for i := range b {
		b[i] = Empty
	}
	return b
}

// Parse decodes the 9-character form produced by String.
//
// Postcondition: Returns the decoded board or an error for a wrong length or unknown symbol.
func Parse(s string) (Board, error) {
	if len(s) != Size {
		return Board{}, fmt.Errorf("board must have %d slots, got %d", Size, len(s))
	}
	var b Board
	for i := 0; i < Size; i++ {
		sym := Symbol(s[i])
		if !sym.Valid() {
			return Board{}, fmt.Errorf("invalid symbol %q at slot %d", s[i], i)
		}
		b[i] = sym
	}
	return b, nil
}

// String returns the board as 9 characters, e.g. "XXX      ".
func (b Board) String() string {
	var sb strings.Builder
	sb.Grow(Size)
	for _, s := range b {
		sb.WriteByte(byte(s))
	}
	return sb.String()
}

// Cells returns one single-character string per slot.
func (b Board) Cells() []string {
	out := make([]string, Size)
	for i, s := range b {
		out[i] = s.String()
	}
	return out
}

// InRange reports whether pos addresses a slot.
func InRange(pos int) bool {
	return pos >= 0 && pos < Size
}

// IsEmpty reports whether the slot at pos is unclaimed.
//
// Precondition: InRange(pos).
func (b Board) IsEmpty(pos int) bool {
	return b[pos] == Empty
}

// Place returns a copy of b with sym written at pos.
//
// Precondition: InRange(pos); sym is X or O.
// Postcondition: Returns an error, and b unchanged, if the slot is already taken.
func (b Board) Place(pos int, sym Symbol) (Board, error) {
	if !InRange(pos) {
		return b, fmt.Errorf("position %d out of range", pos)
	}
	if b[pos] != Empty {
		return b, fmt.Errorf("position %d already taken", pos)
	}
	next := b
	next[pos] = sym
	return next, nil
}

// Winner returns the symbol owning a complete line, or Empty if there is none.
func (b Board) Winner() Symbol {
	for _, l := range lines {
		s := b[l[0]]
		if s != Empty && s == b[l[1]] && s == b[l[2]] {
			return s
		}
	}
	return Empty
}

// Full reports whether every slot is claimed.
func (b Board) Full() bool {
	return b.Filled() == Size
}

// Filled returns the number of claimed slots.
func (b Board) Filled() int {
	n := 0
	for _, s := range b {
		if s != Empty {
			n++
		}
	}
	return n
}
