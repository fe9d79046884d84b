package rating

// Outcome is a single participant's side of a finished match.
type Outcome int

const (
	// Win is credited to the recorded winner, including forfeit winners.
	Win Outcome = iota + 1
	// Loss is charged to the other participant of a decided match.
	Loss
	// Tie is recorded for both participants of a drawn match.
	Tie
)

// String returns the lowercase outcome name.
func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Loss:
		return "loss"
	case Tie:
		return "draw"
	}
	return "unknown"
}

// NextStreak returns the streak after outcome o.
//
// A positive streak counts consecutive wins and a negative one consecutive losses.
// A win on a non-positive streak restarts at +1, a loss on a non-negative streak
// restarts at -1, and a draw always resets to 0.
func NextStreak(current int, o Outcome) int {
	switch o {
	case Win:
		if current > 0 {
			return current + 1
		}
		return 1
	case Loss:
		if current < 0 {
			return current - 1
		}
		return -1
	default:
		return 0
	}
}

// Record is the rating-owned portion of a player's state.
type Record struct {
	Rating        int
	Wins          int
	Losses        int
	Draws         int
	CurrentStreak int
	BestStreak    int
}

// Apply returns r updated for one finished match.
//
// Postcondition: exactly one of Wins, Losses, Draws is incremented; BestStreak never decreases.
func (r Record) Apply(o Outcome, delta int) Record {
	next := r
	next.Rating += delta
	switch o {
	case Win:
		next.Wins++
	case Loss:
		next.Losses++
	default:
		next.Draws++
	}
	next.CurrentStreak = NextStreak(r.CurrentStreak, o)
	if abs(next.CurrentStreak) > next.BestStreak {
		next.BestStreak = abs(next.CurrentStreak)
	}
	return next
}

// OutcomesFor maps a match result and recorded winner side onto per-participant outcomes.
// winner is 1 or 2 for a decided match and 0 for a draw. Abandoned matches still credit
// the recorded winner.
func OutcomesFor(result Result, winner int) (p1, p2 Outcome) {
	switch {
	case result == Player1Win, result == Abandoned && winner == 1:
		return Win, Loss
	case result == Player2Win, result == Abandoned && winner == 2:
		return Loss, Win
	default:
		return Tie, Tie
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
