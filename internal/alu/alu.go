// Package alu implements the arithmetic/logic execution units. Each Unit
// is a single-cycle-latency (by default) functional unit that consumes a
// ready reservation-station entry, computes a result, and offers it onto
// the CDB one cycle later, holding that offer up for as many cycles as
// arbitration takes to actually carry it. Grounded on
// original_source/ALU.hpp's op table and SupraX.go's
// ExecuteALU/BarrelShift staged-shift technique, adapted from 64-bit to
// RV32I's 32-bit words.
//
// The unit itself is deliberately ignorant of instruction semantics: the
// CPU driver remaps every instruction it issues to an ALU station (plain
// arithmetic, branch comparisons, jal/jalr return-address adds, auipc and
// store-address adds; lui never reaches an ALU) onto this package's ten-entry opcode table before
// dispatch, exactly as original_source/ALU.hpp's alu() free function
// never looks past its own (subop, variant) pair.
package alu

import (
	"github.com/caidj0/RISC-V-Simulator/internal/cdb"
	"github.com/caidj0/RISC-V-Simulator/internal/wire"
)

// Opcode selects which of the ten RV32I ALU operations a Unit performs.
// These reuse the R/I-type funct3 encoding directly: 0=ADD/SUB, 1=SLL,
// 2=SLT, 3=SLTU, 4=XOR, 5=SRL/SRA, 6=OR, 7=AND, the same numbering
// original_source/ALU.hpp switches on.
type Opcode = uint8

const (
	OpAdd  Opcode = 0b000 // or Sub, selected by Variant
	OpSLL  Opcode = 0b001
	OpSLT  Opcode = 0b010
	OpSLTU Opcode = 0b011
	OpXOR  Opcode = 0b100
	OpSRL  Opcode = 0b101 // or Sra, selected by Variant
	OpOR   Opcode = 0b110
	OpAND  Opcode = 0b111
)

// Input is what a reservation station hands to an ALU unit once ready:
// the two resolved operands, the opcode, and the variant bit (sub vs
// add, sra vs srl) plus the destination tag the result will carry.
type Input struct {
	Tag     uint32
	Vj, Vk  uint32
	Op      Opcode
	Variant bool
}

// Compute evaluates one ALU operation. Shift amounts are masked to 5 bits
// (RV32's shamt width), matching SupraX.go's BarrelShift staged masking
// adapted down from a 6-bit (64-bit) shift amount to 5.
func Compute(in Input) uint32 {
	a, b := in.Vj, in.Vk
	shamt := b & 0x1F
	switch in.Op {
	case OpAdd:
		if in.Variant {
			return a - b
		}
		return a + b
	case OpSLL:
		return a << shamt
	case OpSLT:
		if int32(a) < int32(b) {
			return 1
		}
		return 0
	case OpSLTU:
		if a < b {
			return 1
		}
		return 0
	case OpXOR:
		return a ^ b
	case OpSRL:
		if in.Variant {
			return uint32(int32(a) >> shamt)
		}
		return a >> shamt
	case OpOR:
		return a | b
	case OpAND:
		return a & b
	default:
		panic("alu: unknown opcode")
	}
}

// Unit is one execution pipeline stage: it latches an accepted Input for
// Latency-1 extra cycles (Latency==1 means same-cycle compute, broadcast
// next cycle) before presenting the result on the CDB. Once the result is
// ready it stays this unit's CDB offer, cycle after cycle, until the
// arbitrated bus actually carries its tag; only then does it go idle.
// Grounded on original_source/ALU.hpp's single-cycle assumption,
// generalized to a configurable latency per §6/§11.
type Unit struct {
	latency uint32

	busy      *wire.Register[bool]
	remaining *wire.Register[uint32]
	tag       *wire.Register[uint32]
	result    *wire.Register[uint32]

	// Accept, when non-nil this cycle (Ok true), is the station offering
	// this unit a newly-ready instruction. The CPU driver is responsible
	// for only ever offering one station to one idle unit per cycle.
	Accept wire.Wire[AcceptInput]
	Clear  wire.Wire[bool]

	// CDB is the arbitrated bus this unit's own offer competes on. The
	// unit reads it only to tell whether arbitration picked its own tag;
	// it never consumes any other source's result.
	CDB wire.Wire[cdb.Packet]
}

// AcceptInput is the dispatch decision the CPU driver makes each cycle:
// Ok is false when no station is being dispatched to this unit.
type AcceptInput struct {
	Ok    bool
	Input Input
}

// NewUnit builds an idle ALU unit with the given latency in cycles (must
// be >= 1). The caller must Connect Accept, Clear, and CDB before the
// first Pull.
func NewUnit(latency uint32) *Unit {
	if latency < 1 {
		panic("alu: latency must be at least 1")
	}
	u := &Unit{latency: latency}
	u.busy = wire.NewRegister(u.nextBusy)
	u.remaining = wire.NewRegister(u.nextRemaining)
	u.tag = wire.NewRegister(u.nextTag)
	u.result = wire.NewRegister(u.nextResult)
	return u
}

// Idle reports whether this unit can accept a new instruction this cycle.
func (u *Unit) Idle() bool { return !u.busy.Value() }

func (u *Unit) done() bool { return u.busy.Value() && u.remaining.Value() == 1 }

// acknowledged reports whether this cycle's arbitrated CDB actually
// carried this unit's own result, per §4.6/§4.7: a finished unit stays
// the result's source on the CDB until the bus carries that tag.
func (u *Unit) acknowledged() bool {
	return u.done() && u.CDB.Value().Tag == u.tag.Value()
}

func (u *Unit) nextBusy() bool {
	if u.Clear.Value() {
		return false
	}
	if u.busy.Value() {
		if !u.done() {
			return true
		}
		return !u.acknowledged()
	}
	return u.Accept.Value().Ok
}

func (u *Unit) nextRemaining() uint32 {
	if u.Clear.Value() {
		return 0
	}
	if u.busy.Value() {
		if u.done() {
			return 1 // hold at the done sentinel until the CDB carries this tag
		}
		return u.remaining.Value() - 1
	}
	if u.Accept.Value().Ok {
		return u.latency
	}
	return 0
}

func (u *Unit) nextTag() uint32 {
	if u.Clear.Value() {
		return 0
	}
	if !u.busy.Value() && u.Accept.Value().Ok {
		return u.Accept.Value().Input.Tag
	}
	if u.done() && u.acknowledged() {
		return 0
	}
	return u.tag.Value()
}

func (u *Unit) nextResult() uint32 {
	if !u.busy.Value() && u.Accept.Value().Ok {
		return Compute(u.Accept.Value().Input)
	}
	return u.result.Value()
}

// CDBOut implements cdb.Source: a unit broadcasts its tag and result
// every cycle from when its countdown reaches the done sentinel
// (remaining == 1) until arbitration
// carries that tag (see acknowledged), and a zero tag otherwise.
func (u *Unit) CDBOut() cdb.Packet {
	if u.done() {
		return cdb.Packet{Tag: u.tag.Value(), Data: u.result.Value()}
	}
	return cdb.Packet{}
}

// Pull stages this unit's next state.
func (u *Unit) Pull() {
	u.busy.Pull()
	u.remaining.Pull()
	u.tag.Pull()
	u.result.Pull()
}

// Update commits this unit's staged state.
func (u *Unit) Update() {
	u.busy.Update()
	u.remaining.Update()
	u.tag.Update()
	u.result.Update()
}
