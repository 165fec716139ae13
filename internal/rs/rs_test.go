package rs

import (
	"testing"

	"github.com/caidj0/RISC-V-Simulator/internal/cdb"
	"github.com/caidj0/RISC-V-Simulator/internal/wire"
)

func TestStationWaitsThenSnapsOperandsFromCDB(t *testing.T) {
	var newInstr Entry
	var pkt cdb.Packet
	var clear bool

	s := NewStation()
	s.NewInstruction.Connect(func() Entry { return newInstr })
	s.CDB.Connect(func() cdb.Packet { return pkt })
	s.Clear.Connect(func() bool { return clear })

	us := []wire.Updatable{s}

	newInstr = Entry{Tag: 1, Qj: 2, Qk: 3, Subop: 0}
	wire.Step(us)
	newInstr = Entry{}

	if s.Entry().Ready() {
		t.Fatalf("a freshly issued entry with pending operands should not be ready")
	}

	pkt = cdb.Packet{Tag: 2, Data: 11}
	wire.Step(us)
	pkt = cdb.Packet{}

	e := s.Entry()
	if e.Qj != 0 || e.Vj != 11 {
		t.Fatalf("operand Vj = (Qj=%d Vj=%d), want (0, 11) after its producer broadcasts", e.Qj, e.Vj)
	}
	if e.Ready() {
		t.Fatalf("entry should still be waiting on Qk=3")
	}

	pkt = cdb.Packet{Tag: 3, Data: 22}
	wire.Step(us)
	pkt = cdb.Packet{}

	if !s.Entry().Ready() {
		t.Fatalf("entry should be ready once both operands resolve")
	}

	// The station's own tag broadcasting frees it.
	pkt = cdb.Packet{Tag: 1, Data: 99}
	wire.Step(us)
	if s.Busy() {
		t.Fatalf("a broadcast matching the station's own tag should free it")
	}
}

func TestStationIssueToBusyStationPanics(t *testing.T) {
	var newInstr Entry
	s := NewStation()
	s.NewInstruction.Connect(func() Entry { return newInstr })
	s.CDB.Connect(func() cdb.Packet { return cdb.Packet{} })
	s.Clear.Connect(func() bool { return false })

	us := []wire.Updatable{s}
	newInstr = Entry{Tag: 1}
	wire.Step(us)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic when issuing into an already-busy station")
		}
	}()
	newInstr = Entry{Tag: 2}
	wire.Step(us)
}

func TestPoolFreeSlotPicksLowestIndex(t *testing.T) {
	cdbWire := wire.NewWire(func() cdb.Packet { return cdb.Packet{} })
	clearWire := wire.NewWire(func() bool { return false })
	p := NewPool(4, cdbWire, clearWire)

	idx, ok := p.FreeSlot()
	if !ok || idx != 0 {
		t.Fatalf("FreeSlot() = (%d, %v), want (0, true) on an empty pool", idx, ok)
	}

	var newInstr [4]Entry
	for i := range p.Stations {
		i := i
		p.Stations[i].NewInstruction.Connect(func() Entry { return newInstr[i] })
	}
	newInstr[0] = Entry{Tag: 1}
	wire.Step(p.Updatables())
	newInstr[0] = Entry{}

	idx, ok = p.FreeSlot()
	if !ok || idx != 1 {
		t.Fatalf("FreeSlot() = (%d, %v), want (1, true) once station 0 is busy", idx, ok)
	}
}

func TestNewPoolSizeBounds(t *testing.T) {
	cdbWire := wire.NewWire(func() cdb.Packet { return cdb.Packet{} })
	clearWire := wire.NewWire(func() bool { return false })
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for a zero-size pool")
		}
	}()
	NewPool(0, cdbWire, clearWire)
}
