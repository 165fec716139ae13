package isa

// Decoded bundles every field projection for one instruction word so
// downstream components don't re-invoke the decoder per field. It is a
// pure snapshot, never mutated after construction.
type Decoded struct {
	Word    uint32
	Format  Format
	Op      uint8
	Subop   uint8
	Rs1     uint8
	Rs2     uint8
	Rd      uint8
	Imm     uint32
	Shamt   uint8
	Variant bool
}

// Decode projects every field of word at once.
func Decode(word uint32) Decoded {
	op := Op(word)
	return Decoded{
		Word:    word,
		Format:  OpType(op),
		Op:      op,
		Subop:   Subop(word),
		Rs1:     Rs1(word),
		Rs2:     Rs2(word),
		Rd:      Rd(word),
		Imm:     Imm(word),
		Shamt:   Shamt(word),
		Variant: VariantFlag(word),
	}
}

// IsJALR reports whether word decodes to a jalr instruction.
func IsJALR(word uint32) bool { return Op(word) == OpJALR }

// IsBranch reports whether word decodes to any B-type branch.
func IsBranch(word uint32) bool { return Op(word) == OpBranch }

// IsStore reports whether word decodes to any S-type store.
func IsStore(word uint32) bool { return Op(word) == OpStore }

// IsLoad reports whether word decodes to any I-type load.
func IsLoad(word uint32) bool { return Op(word) == OpLoad }

// IsLUI reports whether word decodes to lui.
func IsLUI(word uint32) bool { return Op(word) == OpLUI }

// BranchTaken evaluates the branch condition given the ALU-style result
// value computed for the branch's remapped subop (see cpu package: beq/bne
// use "sub"-style equality, blt/bge use "slt", bltu/bgeu use "sltu").
//
// value is the raw ALU output for the branch's comparison; the boolean
// conditions below mirror original_source/ROB.hpp's is_mispredicted table,
// restated here as "should this branch be taken" rather than "did the
// prediction mismatch" so the CPU driver and the ROB can share one
// definition of branch semantics.
func BranchTaken(word uint32, value uint32) bool {
	switch Subop(word) {
	case SubopBEQ:
		return value == 0
	case SubopBNE:
		return value != 0
	case SubopBLT:
		return value != 0
	case SubopBGE:
		return value == 0
	case SubopBLTU:
		return value != 0
	case SubopBGEU:
		return value == 0
	default:
		return false
	}
}
