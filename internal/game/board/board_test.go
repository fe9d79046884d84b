package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func mustParse(t *testing.T, s string) Board {
	t.Helper()
	b, err := Parse(s)
	require.NoError(t, err)
	return b
}

func TestNew_IsEmpty(t *testing.T) {
	b := New()
	assert.Equal(t, "         ", b.String())
	assert.Equal(t, 0, b.Filled())
	assert.Equal(t, Empty, b.Winner())
	assert.False(t, b.Full())
}

func TestWinner_AllLines(t *testing.T) {
	for _, l := range lines {
		for _, sym := range []Symbol{X, O} {
			b := New()
			for _, p := range l {
				b[p] = sym
			}
			assert.Equal(t, sym, b.Winner(), "line %v for %s", l, sym)
		}
	}
}

func TestWinner_TopRow(t *testing.T) {
	assert.Equal(t, X, mustParse(t, "XXX      ").Winner())
}

func TestWinner_Draw(t *testing.T) {
	b := mustParse(t, "XOXXOOOXX")
	assert.Equal(t, Empty, b.Winner())
	assert.True(t, b.Full())
}

func TestWinner_MixedLineIsNotAWin(t *testing.T) {
	assert.Equal(t, Empty, mustParse(t, "XXO      ").Winner())
}

func TestPlace(t *testing.T) {
	b := New()
	next, err := b.Place(4, X)
	require.NoError(t, err)
	assert.Equal(t, X, next[4])
	assert.Equal(t, Empty, b[4], "original board must not change")

	_, err = next.Place(4, O)
	assert.Error(t, err)

	_, err = next.Place(9, O)
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("XX")
	assert.Error(t, err)
	_, err = Parse("XXXZ     ")
	assert.Error(t, err)
}

func TestCells(t *testing.T) {
	assert.Equal(t, []string{"X", "O", " ", " ", " ", " ", " ", " ", " "}, mustParse(t, "XO       ").Cells())
}

// Property: String and Parse are inverses for any board.
func TestPropertyParseString(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var b Board
		for i := range b {
			b[i] = rapid.SampledFrom([]Symbol{Empty, X, O}).Draw(t, "slot")
		}
		got, err := Parse(b.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", b.String(), err)
		}
		if got != b {
			t.Fatalf("round trip %q -> %q", b.String(), got.String())
		}
	})
}

// Property: Place changes exactly one slot and never overwrites a claimed one.
func TestPropertyPlaceChangesOneSlot(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var b Board
		for i := range b {
			b[i] = rapid.SampledFrom([]Symbol{Empty, X, O}).Draw(t, "slot")
		}
		pos := rapid.IntRange(0, Size-1).Draw(t, "pos")
		next, err := b.Place(pos, X)
		if b[pos] != Empty {
			if err == nil || next != b {
				t.Fatalf("placing on taken slot %d mutated board", pos)
			}
			return
		}
		if err != nil {
			t.Fatalf("Place(%d): %v", pos, err)
		}
		changed := 0
		for i := range b {
			if b[i] != next[i] {
				changed++
			}
		}
		if changed != 1 {
			t.Fatalf("Place changed %d slots", changed)
		}
	})
}
