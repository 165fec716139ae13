// Package regfile implements the 32-entry architectural register file
// together with the rename map (a pending "producer tag" per register).
// Grounded on original_source/regs.hpp's Regs class: each register slot
// is itself two wire.Registers, one holding the architectural value and
// one holding the ROB index that will eventually produce it. Generalized
// to a configurable commit/issue wiring via the wire substrate instead of
// regs.hpp's direct member captures, and cross-checked against
// SupraX.go's OutOfOrderScheduler register-alias-table (rat/ratValid)
// which plays the same role for its own renaming scheme.
package regfile

import "github.com/caidj0/RISC-V-Simulator/internal/wire"

// IssueInput describes an issuing instruction's effect on the rename map:
// if Rd is nonzero, tag[Rd] becomes ReorderIndex.
type IssueInput struct {
	Rd           uint8
	ReorderIndex uint32
}

// CommitInput describes a commit's effect on the register file: if
// tag[Rd] still equals ReorderIndex, value[Rd] becomes Data and the tag
// clears. Rd is looked up by the register file itself from its own
// reorder entries; the commit bus only carries the tag and the data,
// exactly as original_source/bus.hpp's RegCommitBus does.
type CommitInput struct {
	ReorderIndex uint32
	Data         uint32
}

// RegisterFile holds 32 architectural registers with a rename tag apiece.
// x0 is hardwired to zero regardless of any input.
type RegisterFile struct {
	values  [32]*wire.Register[uint32]
	reorder [32]*wire.Register[uint32]

	// Inputs, wired up by the owning CPU at construction time.
	IssueBus   wire.Wire[IssueInput]
	CommitBus  wire.Wire[CommitInput]
	ClearInput wire.Wire[bool]
}

// New builds a register file with all values and tags zeroed. The caller
// must Connect IssueBus, CommitBus, and ClearInput before the first Pull.
func New() *RegisterFile {
	rf := &RegisterFile{}
	rf.values[0] = wire.NewRegister(func() uint32 { return 0 })
	rf.reorder[0] = wire.NewRegister(func() uint32 { return 0 })

	for i := uint8(1); i < 32; i++ {
		i := i
		rf.values[i] = wire.NewRegister(func() uint32 {
			cb := rf.CommitBus.Value()
			if rf.reorder[i].Value() == cb.ReorderIndex && cb.ReorderIndex != 0 {
				return cb.Data
			}
			return rf.values[i].Value()
		})
		rf.reorder[i] = wire.NewRegister(func() uint32 {
			if rf.ClearInput.Value() {
				return 0
			}

			ib := rf.IssueBus.Value()
			if uint8(i) == ib.Rd && ib.Rd != 0 {
				return ib.ReorderIndex
			}

			cb := rf.CommitBus.Value()
			if rf.reorder[i].Value() == cb.ReorderIndex && cb.ReorderIndex != 0 {
				return 0
			}

			return rf.reorder[i].Value()
		})
	}
	return rf
}

// Read returns (tag, value) for register i. tag==0 means value is live;
// otherwise the reader must consult the ROB entry named by tag (and the
// live CDB) for the in-flight value, per §4.3.
func (rf *RegisterFile) Read(i uint8) (tag uint32, value uint32) {
	return rf.reorder[i].Value(), rf.values[i].Value()
}

// Value returns only the architectural (committed) value of register i,
// ignoring any pending tag. Used by the ROB to verify a jalr target at
// commit, where only the committed value is ever architecturally valid.
func (rf *RegisterFile) Value(i uint8) uint32 {
	return rf.values[i].Value()
}

// Updatables returns every internal register so the CPU driver can fold
// them into its flat pull/update list.
func (rf *RegisterFile) Updatables() []wire.Updatable {
	us := make([]wire.Updatable, 0, 64)
	for i := range rf.values {
		us = append(us, rf.values[i])
	}
	for i := range rf.reorder {
		us = append(us, rf.reorder[i])
	}
	return us
}
