// Package rs implements reservation stations: per-unit slots that hold an
// issued instruction until both its operands are available, then offer it
// to an execution unit. One generic Station type serves both the ALU
// class and the memory class; the field layout is the same either way
// (tag, two operand-tags/values, subop, variant, immediate), exactly as
// original_source/rs.hpp's single ReservationStation<SpecBus> template
// serves both ALUBus and MemBus by parameterizing only the output type,
// not the waiting logic. Dispatch-to-unit decisions (which ready station
// actually executes this cycle, and the memory-ordering check for loads)
// live in the cpu package, which owns the ROB these stations need to
// consult.
package rs

import (
	"math/bits"

	"github.com/caidj0/RISC-V-Simulator/internal/cdb"
	"github.com/caidj0/RISC-V-Simulator/internal/wire"
)

// MaxStations bounds pool size: free-slot allocation uses a 32-bit bitmap
// scan (see Pool.FreeSlot), a bitmap-scan technique grounded on SupraX.go's
// instruction-window free-slot search, adapted here from a fixed
// 32-instruction window to a configurable pool no larger than 32.
const MaxStations = 32

// Entry is one reservation station's payload: original_source/bus.hpp's
// RSBus. Tag is the ROB index this entry will produce (0 = free). Qj/Qk
// are producer tags for the two operands (0 = value already resolved into
// Vj/Vk). For ALU-class entries Vj/Vk are the two operands; mem-class
// entries hold only loads, so Vj is the base register value (address =
// Vj+Imm once resolved) and Vk is unused. Stores go to ALU-class stations.
type Entry struct {
	Tag     uint32
	Qj, Qk  uint32
	Vj, Vk  uint32
	Subop   uint8
	Variant bool
	Imm     uint32
}

// Ready reports whether both operands have resolved: tag must be
// occupied and neither operand may still be waiting on a producer.
func (e Entry) Ready() bool { return e.Tag != 0 && e.Qj == 0 && e.Qk == 0 }

// Busy reports whether the entry holds a live (not-yet-retired) instruction.
func (e Entry) Busy() bool { return e.Tag != 0 }

// Station is one operand-waiting slot. Its next-state function (§4.5):
//  1. Clear wins outright: the station empties.
//  2. A new issue targeting this station installs it (fatal if already busy).
//  3. Otherwise, a CDB broadcast matching Qj/Qk snaps that operand in; a
//     broadcast matching this station's own Tag frees it (result retired).
type Station struct {
	ins *wire.Register[Entry]

	NewInstruction wire.Wire[Entry]
	CDB            wire.Wire[cdb.Packet]
	Clear          wire.Wire[bool]
}

// NewStation builds an empty reservation station. The caller must Connect
// NewInstruction, CDB, and Clear before the first Pull.
func NewStation() *Station {
	s := &Station{}
	s.ins = wire.NewRegister(func() Entry {
		if s.Clear.Value() {
			return Entry{}
		}

		next := s.NewInstruction.Value()
		old := s.ins.Value()

		if next.Tag != 0 {
			if old.Tag != 0 {
				panic("reservation station: issue to a busy station")
			}
			return next
		}

		pkt := s.CDB.Value()
		if pkt.Tag != 0 {
			if pkt.Tag == old.Qj {
				old.Vj = pkt.Data
				old.Qj = 0
			}
			if pkt.Tag == old.Qk {
				old.Vk = pkt.Data
				old.Qk = 0
			}
			if pkt.Tag == old.Tag {
				old.Tag = 0
			}
		}
		return old
	})
	return s
}

// Entry reads this station's current payload.
func (s *Station) Entry() Entry { return s.ins.Value() }

// Busy reports whether the station currently holds an instruction.
func (s *Station) Busy() bool { return s.ins.Value().Busy() }

// Pull stages the station's next value.
func (s *Station) Pull() { s.ins.Pull() }

// Update commits the station's staged value.
func (s *Station) Update() { s.ins.Update() }

// Pool is a fixed-size collection of stations sharing one CDB and clear
// signal, with lowest-index-first free-slot allocation for determinism.
type Pool struct {
	Stations []*Station
}

// NewPool builds n independent stations (n must be in [1, MaxStations]),
// wiring each to the same cdb and clear wires.
func NewPool(n int, cdbWire wire.Wire[cdb.Packet], clear wire.Wire[bool]) *Pool {
	if n < 1 || n > MaxStations {
		panic("rs: pool size out of range")
	}
	p := &Pool{Stations: make([]*Station, n)}
	for i := range p.Stations {
		st := NewStation()
		st.CDB = cdbWire
		st.Clear = clear
		p.Stations[i] = st
	}
	return p
}

// freeBitmap returns a bitmap with bit i set iff Stations[i] is free.
func (p *Pool) freeBitmap() uint32 {
	var bm uint32
	for i, st := range p.Stations {
		if !st.Busy() {
			bm |= 1 << uint(i)
		}
	}
	return bm
}

// FreeSlot returns the lowest-numbered free station index, biased to low
// indices purely for deterministic, reproducible traces (§4.5).
func (p *Pool) FreeSlot() (index int, ok bool) {
	bm := p.freeBitmap()
	if bm == 0 {
		return 0, false
	}
	return bits.TrailingZeros32(bm), true
}

// ReadyBitmap returns a bitmap with bit i set iff Stations[i] holds a
// ready (both-operands-resolved) instruction.
func (p *Pool) ReadyBitmap() uint32 {
	var bm uint32
	for i, st := range p.Stations {
		if st.Entry().Ready() {
			bm |= 1 << uint(i)
		}
	}
	return bm
}

// Updatables returns every station so the CPU driver can fold them into
// its flat pull/update list.
func (p *Pool) Updatables() []wire.Updatable {
	us := make([]wire.Updatable, len(p.Stations))
	for i, st := range p.Stations {
		us[i] = st
	}
	return us
}
