// Package wire implements the synchronous dataflow substrate every other
// component in this simulator is built on: a Wire is a pure, recomputable
// function of current-cycle state, and a Register is a latched value with
// a next-cycle transition function. A cycle proceeds in two phases: pull,
// where every register computes its next value against the *current*
// value of every other register, then update, where every register
// atomically commits what it computed. This guarantees each cycle behaves
// as if every register transitions simultaneously, independent of the
// order components happen to be visited in.
//
// WHAT: current-value/next-value separation per register
// HOW: a pair of fields (cur, pending) and a closure recomputed on pull
// WHY: lets components read each other's current state while computing
// their own next state without caring about traversal order, the same
// guarantee real register-transfer-level hardware gives for free
package wire

// Wire is a combinational signal: reading it invokes f and returns whatever
// it currently computes. Wires may be reassigned at construction time to
// fan the output of one component into the input of another.
type Wire[T any] struct {
	f func() T
}

// NewWire builds a Wire around a pure, nullary producer.
func NewWire[T any](f func() T) Wire[T] {
	return Wire[T]{f: f}
}

// Connect rewires w to read from f. Used at construction time to stitch
// components together; never called mid-simulation.
func (w *Wire[T]) Connect(f func() T) {
	w.f = f
}

// Value reads the wire's current combinational output.
func (w Wire[T]) Value() T {
	if w.f == nil {
		var zero T
		return zero
	}
	return w.f()
}

// Updatable is any component with a two-phase lifecycle: pull stages the
// next state without touching anything visible, update commits it.
type Updatable interface {
	Pull()
	Update()
}

// Register holds a latched value, a staged next value, and the transition
// function that computes the next value from current (never next) state.
//
// Critical invariant: g must only observe the *current* value (cur) of any
// register it reads, including its own. Implementations that mutate cur
// in place before every register has pulled would let one register see
// another's next value, breaking the simultaneity guarantee; storing cur
// and pending separately, as this type does, rules that out structurally.
type Register[T any] struct {
	cur     T
	pending T
	g       func() T
}

// NewRegister builds a Register with the given transition function. The
// register reads as the zero value of T until the first Pull/Update.
func NewRegister[T any](g func() T) *Register[T] {
	return &Register[T]{g: g}
}

// Set seeds the register's current value directly, bypassing g. Used only
// at construction for registers whose reset value isn't the zero value.
func (r *Register[T]) Set(v T) {
	r.cur = v
	r.pending = v
}

// Value reads the register's current (latched) value.
func (r *Register[T]) Value() T {
	return r.cur
}

// Pull computes the next value against current state, without committing.
func (r *Register[T]) Pull() {
	r.pending = r.g()
}

// Update commits the value computed by the last Pull.
func (r *Register[T]) Update() {
	r.cur = r.pending
}

// PullAll runs Pull on every updatable, in order. Order doesn't affect
// correctness since pull may only read current values.
func PullAll(us []Updatable) {
	for _, u := range us {
		u.Pull()
	}
}

// UpdateAll runs Update on every updatable, in order.
func UpdateAll(us []Updatable) {
	for _, u := range us {
		u.Update()
	}
}

// Step runs one full pull-then-update cycle across every updatable.
func Step(us []Updatable) {
	PullAll(us)
	UpdateAll(us)
}
