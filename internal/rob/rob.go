// Package rob implements the reorder buffer: the circular queue that
// lets every other unit execute out of order while guaranteeing
// instructions retire strictly in program order, and that owns
// misprediction recovery. Grounded on original_source/ROB.hpp's
// ReorderBuffer<length>, restated against the regs-borrowing ownership
// model described in §3/§9 and against spec.md's explicit commit table
// (§4.4) where it differs from the original; see DESIGN.md for the two
// places this port deliberately corrects the original rather than
// reproducing it (branch misprediction's equality check, and jalr's
// flush-only-on-mismatch rule).
package rob

import (
	"github.com/caidj0/RISC-V-Simulator/internal/cdb"
	"github.com/caidj0/RISC-V-Simulator/internal/isa"
	"github.com/caidj0/RISC-V-Simulator/internal/regfile"
	"github.com/caidj0/RISC-V-Simulator/internal/wire"
)

// IssueRequest is the per-cycle input asserted by the CPU's issue logic:
// when Add is set, the entry at the current tail is populated from these
// fields and tail advances.
type IssueRequest struct {
	Add         bool
	PC          uint32
	Instruction uint32
	Branched    bool // predictor's decision at issue, for branch instructions
}

// item holds one ROB slot's five latched fields (§3).
type item struct {
	fullInstruction *wire.Register[uint32]
	ready           *wire.Register[bool]
	value           *wire.Register[uint32]
	pc              *wire.Register[uint32]
	branched        *wire.Register[bool]
}

// ROB is a circular buffer of `length` one-based slots, 1..length (index 0
// reserved as "no instruction"). head is the oldest uncommitted entry; tail is the
// next free slot. Empty iff head==tail; full iff advancing tail would
// reach head.
type ROB struct {
	length uint32
	head   *wire.Register[uint32]
	tail   *wire.Register[uint32]
	items  []item

	regs *regfile.RegisterFile

	CDB      wire.Wire[cdb.Packet]
	IssueReq wire.Wire[IssueRequest]
}

// New builds an empty ROB of the given length (must be >= 2, per §4.4).
// regs is a borrow-only reference used only to read committed register
// values for jalr target verification and store data at commit.
func New(length uint32, regs *regfile.RegisterFile) *ROB {
	if length < 2 {
		panic("rob: length must be at least 2")
	}
	r := &ROB{
		length: length,
		regs:   regs,
		items:  make([]item, length+1),
	}
	r.head = wire.NewRegister(r.nextHead)
	r.tail = wire.NewRegister(r.nextTail)
	r.head.Set(1)
	r.tail.Set(1)

	for i := uint32(1); i <= length; i++ {
		i := i
		it := &r.items[i]
		it.fullInstruction = wire.NewRegister(func() uint32 { return r.nextFullInstruction(i) })
		it.ready = wire.NewRegister(func() bool { return r.nextReady(i) })
		it.value = wire.NewRegister(func() uint32 { return r.nextValue(i) })
		it.pc = wire.NewRegister(func() uint32 { return r.nextPC(i) })
		it.branched = wire.NewRegister(func() bool { return r.nextBranched(i) })
	}
	return r
}

func (r *ROB) indexInc(i uint32) uint32 {
	if i == r.length {
		return 1
	}
	return i + 1
}

func (r *ROB) isEmpty() bool { return r.head.Value() == r.tail.Value() }

// Commit reports whether the head entry is ready to retire this cycle.
func (r *ROB) Commit() bool {
	if r.isEmpty() {
		return false
	}
	return r.items[r.head.Value()].ready.Value()
}

func (r *ROB) headItem() *item { return &r.items[r.head.Value()] }

// CommitIndex, CommitInstruction, CommitPC, CommitValue expose the head
// entry's fields for the cycle Commit() is true.
func (r *ROB) CommitIndex() uint32       { return r.head.Value() }
func (r *ROB) CommitInstruction() uint32 { return r.headItem().fullInstruction.Value() }
func (r *ROB) CommitPC() uint32          { return r.headItem().pc.Value() }
func (r *ROB) CommitValue() uint32       { return r.headItem().value.Value() }

func (r *ROB) headRs1() uint8 { return isa.Rs1(r.CommitInstruction()) }
func (r *ROB) headRs2() uint8 { return isa.Rs2(r.CommitInstruction()) }
func (r *ROB) headRd() uint8  { return isa.Rd(r.CommitInstruction()) }
func (r *ROB) headSubop() uint8 { return isa.Subop(r.CommitInstruction()) }

// branchMispredicted reports whether the head entry (which must be a
// branch) was mispredicted: its actual outcome, decoded from the branch's
// original subop and the ALU result value the CDB delivered, differs from
// the direction the predictor chose at issue (items[head].branched).
//
// original_source/ROB.hpp computes the equivalent comparison as
// `branched == should_branch`, which reports "mispredicted" exactly when
// the prediction was CORRECT, almost certainly a bug in the source this
// was distilled from. spec.md §4.4 is explicit ("Check branch outcome
// against `branched` at issue; on mismatch, flush") so this port compares
// for inequality, as the spec's own prose requires.
func (r *ROB) branchMispredicted() bool {
	instr := r.CommitInstruction()
	actual := isa.BranchTaken(instr, r.CommitValue())
	predicted := r.headItem().branched.Value()
	return actual != predicted
}

// jalrTarget computes rs1-value + imm, masked to even, per §4.4.
func (r *ROB) jalrTarget() uint32 {
	instr := r.CommitInstruction()
	base := r.regs.Value(r.headRs1())
	imm := isa.Imm(instr)
	return (base + imm) &^ 1
}

// jalrMismatch reports whether the head jalr's verified target disagrees
// with the PC the CPU speculatively fetched next (or whether there is no
// such speculatively-fetched entry at all, which this port also treats as
// a mismatch, per spec.md's "if ROB empty or mismatch, flush").
func (r *ROB) jalrMismatch() bool {
	next := r.indexInc(r.head.Value())
	if next == r.tail.Value() {
		return true
	}
	return r.jalrTarget() != r.items[next].pc.Value()
}

// Clear reports whether this cycle's commit triggers a pipeline flush:
// any jalr commit whose verified target disagrees with the speculatively
// fetched next instruction (or finds none in flight to compare against),
// or any mispredicted branch. This is the CPU-wide "clear" signal every
// other component (register file, reservation stations, execution units)
// observes during the same pull phase.
func (r *ROB) Clear() bool {
	if !r.Commit() {
		return false
	}
	instr := r.CommitInstruction()
	switch {
	case isa.IsJALR(instr):
		return r.jalrMismatch()
	case isa.IsBranch(instr):
		return r.branchMispredicted()
	default:
		return false
	}
}

// RegWrite reports the register-file write a non-store, non-branch commit
// performs: ALU ops, loads, lui, jal, and jalr all write their computed
// value to rd (x0 writes are harmless no-ops, handled by regfile itself).
func (r *ROB) RegWrite() (rd uint8, value uint32, ok bool) {
	if !r.Commit() {
		return 0, 0, false
	}
	instr := r.CommitInstruction()
	if isa.IsStore(instr) || isa.IsBranch(instr) {
		return 0, 0, false
	}
	return r.headRd(), r.CommitValue(), true
}

// StoreWrite reports the memory write a store commit performs. The data
// operand is read fresh from the register file at commit time rather than
// captured at issue: since commit is strictly in-order and rs2's producer
// (if any) must have been older than this store, it is guaranteed to have
// already committed by the time this store reaches the head, exactly the
// property original_source/ROB.hpp's `store()` relies on by reading
// `regs[items[head].rs2()]` directly instead of a captured operand.
func (r *ROB) StoreWrite() (subop uint8, address uint32, data uint32, ok bool) {
	if !r.Commit() {
		return 0, 0, 0, false
	}
	instr := r.CommitInstruction()
	if !isa.IsStore(instr) {
		return 0, 0, 0, false
	}
	return r.headSubop(), r.CommitValue(), r.regs.Value(r.headRs2()), true
}

// Relocate reports the PC recovery address a flush demands this cycle, if
// any: the opposite-of-predicted target for a mispredicted branch, or the
// verified target for a jalr whose speculated continuation didn't match.
func (r *ROB) Relocate() (target uint32, ok bool) {
	if !r.Commit() {
		return 0, false
	}
	instr := r.CommitInstruction()
	switch {
	case isa.IsJALR(instr):
		if r.jalrMismatch() {
			return r.jalrTarget(), true
		}
		return 0, false
	case isa.IsBranch(instr):
		if r.branchMispredicted() {
			pc := r.CommitPC()
			if r.headItem().branched.Value() {
				return pc + 4, true
			}
			return pc + isa.Imm(instr), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// CommitBranched returns the predictor's decision latched at issue for
// the head entry. Only meaningful when Commit() is true and the head
// instruction is a branch.
func (r *ROB) CommitBranched() bool { return r.headItem().branched.Value() }

// CommitActualTaken evaluates the head entry's real branch outcome from
// its original subop and its CDB-delivered ALU result. Only meaningful
// when Commit() is true and the head instruction is a branch.
func (r *ROB) CommitActualTaken() bool {
	return isa.BranchTaken(r.CommitInstruction(), r.CommitValue())
}

// NextIndex is the issue-time precondition check (§4.4): 0 if the ROB is
// full, else the index a new instruction issued this cycle would occupy.
func (r *ROB) NextIndex() uint32 {
	if r.indexInc(r.tail.Value()) == r.head.Value() {
		return 0
	}
	return r.tail.Value()
}

func (r *ROB) nextHead() uint32 {
	if r.Clear() {
		return 1
	}
	if r.Commit() {
		return r.indexInc(r.head.Value())
	}
	return r.head.Value()
}

func (r *ROB) nextTail() uint32 {
	if r.Clear() {
		return 1
	}
	req := r.IssueReq.Value()
	if req.Add {
		next := r.indexInc(r.tail.Value())
		if next == r.head.Value() {
			panic("rob: issue requested but the reorder buffer is full")
		}
		return next
	}
	return r.tail.Value()
}

func (r *ROB) needUpdate(i uint32) bool {
	return !r.Clear() && r.IssueReq.Value().Add && r.tail.Value() == i
}

func (r *ROB) nextFullInstruction(i uint32) uint32 {
	if r.needUpdate(i) {
		return r.IssueReq.Value().Instruction
	}
	return r.items[i].fullInstruction.Value()
}

func (r *ROB) nextReady(i uint32) bool {
	if r.needUpdate(i) {
		return isa.IsLUI(r.IssueReq.Value().Instruction)
	}
	if r.CDB.Value().Tag == i {
		return true
	}
	return r.items[i].ready.Value()
}

func (r *ROB) nextValue(i uint32) uint32 {
	if r.needUpdate(i) {
		req := r.IssueReq.Value()
		if isa.IsLUI(req.Instruction) {
			return isa.Imm(req.Instruction)
		}
		return 0
	}
	if r.CDB.Value().Tag == i {
		return r.CDB.Value().Data
	}
	return r.items[i].value.Value()
}

func (r *ROB) nextPC(i uint32) uint32 {
	if r.needUpdate(i) {
		return r.IssueReq.Value().PC
	}
	return r.items[i].pc.Value()
}

func (r *ROB) nextBranched(i uint32) bool {
	if r.needUpdate(i) {
		return r.IssueReq.Value().Branched
	}
	return r.items[i].branched.Value()
}

// Updatables returns every internal register so the CPU driver can fold
// them into its flat pull/update list.
func (r *ROB) Updatables() []wire.Updatable {
	us := []wire.Updatable{r.head, r.tail}
	for i := uint32(1); i <= r.length; i++ {
		it := &r.items[i]
		us = append(us, it.fullInstruction, it.ready, it.value, it.pc, it.branched)
	}
	return us
}

// ItemPC returns the PC latched for ROB slot i; i must be in [1, length].
func (r *ROB) ItemPC(i uint32) uint32 { return r.items[i].pc.Value() }

// ItemReady, ItemInstruction, ItemValue expose a slot's fields by index.
// The CPU's operand resolution reads ItemReady/ItemValue to pick up a
// producer's value once that producer has finished but not yet committed.
func (r *ROB) ItemReady(i uint32) bool         { return r.items[i].ready.Value() }
func (r *ROB) ItemInstruction(i uint32) uint32 { return r.items[i].fullInstruction.Value() }
func (r *ROB) ItemValue(i uint32) uint32       { return r.items[i].value.Value() }

// Head returns the current head index (for load-safety iteration, which
// must walk from head, inclusive, up to a load's own tag).
func (r *ROB) Head() uint32 { return r.head.Value() }

// Length reports the configured ROB capacity.
func (r *ROB) Length() uint32 { return r.length }

// IndexInc exposes the circular-increment helper for callers (e.g. the
// load-ordering hazard check) that need to walk the buffer.
func (r *ROB) IndexInc(i uint32) uint32 { return r.indexInc(i) }

// CanLoad implements the memory-ordering hazard check of §4.4: a load
// tagged `loadIndex` with resolved address `addr` may proceed only if no
// not-yet-retired store between the ROB head (inclusive) and loadIndex
// (exclusive) might alias it, either because the store's address isn't
// known yet, or because it overlaps within 4 bytes. The head entry is
// included because a store there has not yet written memory.
func (r *ROB) CanLoad(loadIndex uint32, addr uint32) bool {
	for i := r.head.Value(); i != loadIndex; i = r.indexInc(i) {
		instr := r.items[i].fullInstruction.Value()
		if !isa.IsStore(instr) {
			continue
		}
		if !r.items[i].ready.Value() {
			return false
		}
		storeAddr := r.items[i].value.Value()
		diff := int64(addr) - int64(storeAddr)
		if diff < 0 {
			diff = -diff
		}
		if diff < 4 {
			return false
		}
	}
	return true
}
