package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNextStreak(t *testing.T) {
	cases := []struct {
		name    string
		current int
		outcome Outcome
		want    int
	}{
		{"first win", 0, Win, 1},
		{"extend win streak", 2, Win, 3},
		{"win after losses", -4, Win, 1},
		{"first loss", 0, Loss, -1},
		{"loss after wins", 3, Loss, -1},
		{"extend loss streak", -2, Loss, -3},
		{"draw after losses", -2, Tie, 0},
		{"draw after wins", 5, Tie, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NextStreak(tc.current, tc.outcome))
		})
	}
}

func TestRecordApply_Win(t *testing.T) {
	r := Record{Rating: 1000}.Apply(Win, 16)
	assert.Equal(t, Record{Rating: 1016, Wins: 1, CurrentStreak: 1, BestStreak: 1}, r)
}

func TestRecordApply_Loss(t *testing.T) {
	r := Record{Rating: 1000}.Apply(Loss, -16)
	assert.Equal(t, Record{Rating: 984, Losses: 1, CurrentStreak: -1, BestStreak: 1}, r)
}

func TestRecordApply_DrawKeepsBest(t *testing.T) {
	r := Record{Rating: 1000, Wins: 3, CurrentStreak: 3, BestStreak: 3}.Apply(Tie, 0)
	assert.Equal(t, 0, r.CurrentStreak)
	assert.Equal(t, 3, r.BestStreak)
	assert.Equal(t, 1, r.Draws)
}

func TestOutcomesFor(t *testing.T) {
	p1, p2 := OutcomesFor(Player1Win, 1)
	assert.Equal(t, Win, p1)
	assert.Equal(t, Loss, p2)

	p1, p2 = OutcomesFor(Player2Win, 2)
	assert.Equal(t, Loss, p1)
	assert.Equal(t, Win, p2)

	p1, p2 = OutcomesFor(Draw, 0)
	assert.Equal(t, Tie, p1)
	assert.Equal(t, Tie, p2)

	p1, p2 = OutcomesFor(Abandoned, 2)
	assert.Equal(t, Loss, p1)
	assert.Equal(t, Win, p2)
}

// Property: BestStreak never decreases and always bounds |CurrentStreak|.
func TestPropertyBestStreakMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		outcomes := rapid.SliceOf(rapid.SampledFrom([]Outcome{Win, Loss, Tie})).Draw(t, "outcomes")
		r := Record{Rating: BaseRating}
		for _, o := range outcomes {
			next := r.Apply(o, 0)
			if next.BestStreak < r.BestStreak {
				t.Fatalf("best streak decreased from %d to %d", r.BestStreak, next.BestStreak)
			}
			if abs(next.CurrentStreak) > next.BestStreak {
				t.Fatalf("current streak %d exceeds best %d", next.CurrentStreak, next.BestStreak)
			}
			r = next
		}
		if r.Wins+r.Losses+r.Draws != len(outcomes) {
			t.Fatalf("counters %d/%d/%d do not sum to %d", r.Wins, r.Losses, r.Draws, len(outcomes))
		}
	})
}
