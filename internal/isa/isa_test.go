package isa

import "testing"

func TestImmEncodings(t *testing.T) {
	cases := []struct {
		name string
		word uint32
		want uint32
	}{
		// lui x1, 0x12345 -> imm = 0x12345000
		{"lui", 0x123450b7, 0x12345000},
		// jal x0, 0 (self-loop, imm=0)
		{"jal-zero", 0x0000006f, 0},
		// addi x1, x0, -1 -> imm = -1
		{"addi-neg1", 0xfff00093, 0xFFFFFFFF},
		// beq x0, x0, -2 (tight backward loop) -> imm = -2
		{"beq-neg2", 0b1_111111_00000_00000_000_1111_1_1100011, 0xFFFFFFFE},
		// sw x1, -4(x2) -> imm = -4
		{"sw-neg4", 0xfe112e23, 0xFFFFFFFC},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Imm(c.word); got != c.want {
				t.Errorf("Imm(%#x) = %#x, want %#x", c.word, got, c.want)
			}
		})
	}
}

func TestVariantFlag(t *testing.T) {
	// sub x1, x2, x3: opcode OpReg, funct3=0, funct7=0100000
	sub := uint32(0b0100000_00011_00010_000_00001_0110011)
	if !VariantFlag(sub) {
		t.Errorf("sub should set the variant bit")
	}
	// add x1, x2, x3: same shape, funct7=0
	add := uint32(0b0000000_00011_00010_000_00001_0110011)
	if VariantFlag(add) {
		t.Errorf("add should not set the variant bit")
	}
}

func TestBranchTaken(t *testing.T) {
	beq := uint32(0b0000000_00000_00000_000_00000_1100011)
	if !BranchTaken(beq, 0) {
		t.Errorf("beq should be taken when the comparison value is 0")
	}
	if BranchTaken(beq, 1) {
		t.Errorf("beq should not be taken when the comparison value is nonzero")
	}
	bge := uint32(0b0000000_00000_00000_101_00000_1100011)
	if !BranchTaken(bge, 0) {
		t.Errorf("bge should be taken when slt reports 0 (not less than)")
	}
}

func TestFormatOf(t *testing.T) {
	if FormatOf(0x123450b7) != FormatU {
		t.Errorf("lui should decode as U-type")
	}
	if FormatOf(HaltWord) != FormatI {
		t.Errorf("the halt sentinel should decode as an I-type addi")
	}
}
