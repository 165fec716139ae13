// Package isa implements the pure decode functions for the RV32I subset
// this simulator executes: opcode/format classification, sign-extended
// immediate extraction, and the variant-flag bit that distinguishes
// add/sub, srl/sra, beq/bne and friends. Every function here is a pure
// projection of a 32-bit instruction word (no state, no side effects),
// mirroring original_source/utils.cpp's get_op/get_rs1/get_imm family and
// the field-projection style SupraX.go's DecodeInstruction uses for its
// own (16-bit SuperH-ish) ISA.
package isa

// Format classifies an instruction word by its encoding shape.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatU
	FormatJ
	FormatI
	FormatB
	FormatS
	FormatR
)

// Opcodes recognized by this subset (low 7 bits of the instruction word).
const (
	OpLUI    = 0b0110111
	OpAUIPC  = 0b0010111
	OpJAL    = 0b1101111
	OpJALR   = 0b1100111
	OpLoad   = 0b0000011
	OpImm    = 0b0010011
	OpBranch = 0b1100011
	OpStore  = 0b0100011
	OpReg    = 0b0110011
)

// Subop values for the B-type comparisons (funct3).
const (
	SubopBEQ  = 0b000
	SubopBNE  = 0b001
	SubopBLT  = 0b100
	SubopBGE  = 0b101
	SubopBLTU = 0b110
	SubopBGEU = 0b111
)

// Subop values for loads/stores (funct3), shared width encoding.
const (
	SubopLB  = 0b000
	SubopLH  = 0b001
	SubopLW  = 0b010
	SubopLBU = 0b100
	SubopLHU = 0b101
)

// OpType returns the encoding format for a 7-bit opcode, Unknown for
// anything this subset doesn't recognize.
func OpType(op uint8) Format {
	switch op {
	case OpLUI, OpAUIPC:
		return FormatU
	case OpJAL:
		return FormatJ
	case OpJALR, OpLoad, OpImm:
		return FormatI
	case OpBranch:
		return FormatB
	case OpStore:
		return FormatS
	case OpReg:
		return FormatR
	default:
		return FormatUnknown
	}
}

// Op extracts the 7-bit opcode field.
func Op(word uint32) uint8 {
	return uint8(word & 0b1111111)
}

// FormatOf returns the encoding shape of a full instruction word.
func FormatOf(word uint32) Format {
	return OpType(Op(word))
}

// Subop extracts funct3, the 3-bit sub-operation selector.
func Subop(word uint32) uint8 {
	return uint8((word >> 12) & 0b111)
}

// Rs1 returns source register 1, or 0 for formats that don't use one.
func Rs1(word uint32) uint8 {
	switch OpType(Op(word)) {
	case FormatU, FormatJ:
		return 0
	default:
		return uint8((word >> 15) & 0b11111)
	}
}

// Rs2 returns source register 2, or 0 for formats that don't use one.
func Rs2(word uint32) uint8 {
	switch OpType(Op(word)) {
	case FormatB, FormatS, FormatR:
		return uint8((word >> 20) & 0b11111)
	default:
		return 0
	}
}

// Rd returns the destination register, or 0 for formats that don't write
// one (branches, stores).
func Rd(word uint32) uint8 {
	switch OpType(Op(word)) {
	case FormatB, FormatS:
		return 0
	default:
		return uint8((word >> 7) & 0b11111)
	}
}

// sext sign-extends the low `bits` bits of v, treating bit (bits-1) as the
// sign bit.
func sext(v uint32, bits uint) uint32 {
	shift := 32 - bits
	return uint32(int32(v<<shift) >> shift)
}

// Imm extracts and sign-extends the immediate for whatever format word
// encodes. U-type immediates are not sign-extended (the low 12 bits are
// always zero, so the 32-bit value is already correctly signed).
func Imm(word uint32) uint32 {
	switch OpType(Op(word)) {
	case FormatUnknown, FormatR:
		return 0
	case FormatU:
		return word & 0xFFFFF000
	case FormatJ:
		var ret uint32
		ret |= word & 0x000FF000
		ret |= (word & 0x00100000) >> 9
		ret |= (word & 0x7FE00000) >> 20
		ret |= (word & 0x80000000) >> 11
		return sext(ret, 21)
	case FormatB:
		var ret uint32
		ret |= (word & 0x00000080) << 4
		ret |= (word & 0x00000F00) >> 7
		ret |= (word & 0x7E000000) >> 20
		ret |= (word & 0x80000000) >> 19
		return sext(ret, 13)
	case FormatI:
		ret := (word & 0xFFF00000) >> 20
		return sext(ret, 12)
	case FormatS:
		var ret uint32
		ret |= (word & 0x00000F80) >> 7
		ret |= (word & 0xFE000000) >> 20
		return sext(ret, 12)
	default:
		return 0
	}
}

// Shamt returns the 5-bit shift amount embedded in I-type shift
// instructions (slli/srli/srai).
func Shamt(word uint32) uint8 {
	return uint8((word & 0x01F00000) >> 20)
}

// VariantFlag is the single bit that distinguishes add/sub, srl/sra and
// srli/srai, and marks the equality branches: bit 30 for R-type and
// I-type right shifts, and for branches whether subop selects beq/bne
// (000/001), the comparisons computed by subtraction.
func VariantFlag(word uint32) bool {
	op := Op(word)
	subop := Subop(word)
	switch {
	case op == OpBranch:
		return subop == SubopBEQ || subop == SubopBNE
	case op == OpImm && subop == 0b101:
		return word&0x40000000 != 0
	case op == OpReg:
		return word&0x40000000 != 0
	default:
		return false
	}
}

// HaltWord is the fixed 32-bit instruction that requests termination when
// it commits (the host convention: `addi a0, x0, 0xff`). It is compared
// only at ROB commit; nothing earlier in the pipeline treats it
// specially, so a program may carry this bit pattern as data with no
// effect until the instruction it decodes as would actually retire.
const HaltWord uint32 = 0x0ff00513
