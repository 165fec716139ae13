package predictor

import (
	"testing"

	"github.com/caidj0/RISC-V-Simulator/internal/wire"
)

func TestAlwaysConstants(t *testing.T) {
	at, nt := NewAlwaysTaken(), NewNeverTaken()
	if !at.Decide(0) || !at.Decide(1234) {
		t.Fatalf("always-taken must predict taken for any PC")
	}
	if nt.Decide(0) || nt.Decide(1234) {
		t.Fatalf("always-not-taken must predict not-taken for any PC")
	}
}

// feed drives one cycle of feedback through a predictor's own updatables
// plus its Feedback wire, then clears the feedback so it doesn't repeat.
func feed(fbWire *wire.Wire[Feedback], us []wire.Updatable, fb Feedback) {
	cur := fb
	fbWire.Connect(func() Feedback { return cur })
	wire.Step(us)
	cur = Feedback{}
	fbWire.Connect(func() Feedback { return cur })
}

func TestBimodalLearnsPerPCDirection(t *testing.T) {
	b := NewBimodal(2)
	us := b.Updatables()
	b.Feedback.Connect(func() Feedback { return Feedback{} })

	if b.Decide(4) {
		t.Fatalf("a fresh counter should start weakly-not-taken")
	}

	// Two taken outcomes should saturate pc=4's counter into taken territory.
	feed(&b.Feedback, us, Feedback{Valid: true, PC: 4, Taken: true})
	feed(&b.Feedback, us, Feedback{Valid: true, PC: 4, Taken: true})

	if !b.Decide(4) {
		t.Fatalf("counter should predict taken after two taken outcomes")
	}
	// A different index (pc=1, distinct low bits under a 2-bit mask) must
	// be untouched.
	if b.Decide(1) {
		t.Fatalf("feedback for pc=4 must not affect the counter for pc=1")
	}
}

func TestCorrelatingUsesSameHistoryForDecideAndUpdate(t *testing.T) {
	c := NewCorrelating(1, 2)
	us := c.Updatables()
	c.Feedback.Connect(func() Feedback { return Feedback{} })

	// History starts at 0 for every PC. Each taken outcome bumps the
	// counter at the pre-shift history, then shifts: 0 -> 0b01 -> 0b11 ->
	// 0b11. The third outcome is the first whose pre-shift history is 0b11,
	// so the counter at that slot (the one Decide now reads) goes 1 -> 2.
	feed(&c.Feedback, us, Feedback{Valid: true, PC: 0, Taken: true})
	feed(&c.Feedback, us, Feedback{Valid: true, PC: 0, Taken: true})
	feed(&c.Feedback, us, Feedback{Valid: true, PC: 0, Taken: true})

	if !c.Decide(0) {
		t.Fatalf("the history-selected counter should have saturated taken")
	}
}

func TestTournamentPrefersTheCorrectSubPredictor(t *testing.T) {
	// a always predicts taken, b always predicts not-taken; feed outcomes
	// that agree with b so the chooser should swing toward b.
	a := NewAlwaysTaken()
	b := NewNeverTaken()
	tour := NewTournament(a, b, 1)
	us := tour.Updatables()
	tour.Feedback.Connect(func() Feedback { return Feedback{} })

	if !tour.Decide(0) {
		t.Fatalf("a weakly-favor-a chooser should initially defer to a (taken)")
	}

	for i := 0; i < 2; i++ {
		feed(&tour.Feedback, us, Feedback{Valid: true, PC: 0, Taken: false})
	}

	if tour.Decide(0) {
		t.Fatalf("after outcomes favoring b, the chooser should defer to b (not-taken)")
	}
}

func TestTournamentChooserUnchangedWhenBothAgree(t *testing.T) {
	a := NewAlwaysTaken()
	b := NewAlwaysTaken()
	tour := NewTournament(a, b, 1)
	us := tour.Updatables()
	tour.Feedback.Connect(func() Feedback { return Feedback{} })

	before := tour.chooser[0].Value()
	feed(&tour.Feedback, us, Feedback{Valid: true, PC: 0, Taken: true})
	after := tour.chooser[0].Value()

	if before != after {
		t.Fatalf("chooser counter changed (%d -> %d) when both sub-predictors agreed", before, after)
	}
}

func TestNewBimodalPanicsOnBadWidth(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for an out-of-range bit width")
		}
	}()
	NewBimodal(0)
}
