package alu

import (
	"testing"

	"github.com/caidj0/RISC-V-Simulator/internal/wire"
)

func TestCompute(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want uint32
	}{
		{"add", Input{Vj: 3, Vk: 4, Op: OpAdd}, 7},
		{"sub", Input{Vj: 10, Vk: 4, Op: OpAdd, Variant: true}, 6},
		{"sll", Input{Vj: 1, Vk: 4, Op: OpSLL}, 16},
		{"slt-true", Input{Vj: 0xFFFFFFFF, Vk: 1, Op: OpSLT}, 1}, // -1 < 1
		{"sltu-false", Input{Vj: 0xFFFFFFFF, Vk: 1, Op: OpSLTU}, 0},
		{"xor", Input{Vj: 0xF0, Vk: 0x0F, Op: OpXOR}, 0xFF},
		{"srl", Input{Vj: 0x80000000, Vk: 1, Op: OpSRL}, 0x40000000},
		{"sra", Input{Vj: 0x80000000, Vk: 1, Op: OpSRL, Variant: true}, 0xC0000000},
		{"or", Input{Vj: 0xF0, Vk: 0x0F, Op: OpOR}, 0xFF},
		{"and", Input{Vj: 0xFF, Vk: 0x0F, Op: OpAND}, 0x0F},
		{"shamt-masked", Input{Vj: 1, Vk: 33, Op: OpSLL}, 2}, // 33 & 0x1F == 1
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Compute(c.in); got != c.want {
				t.Errorf("Compute(%+v) = %#x, want %#x", c.in, got, c.want)
			}
		})
	}
}

func TestComputeUnknownOpcodePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected a panic for an unknown opcode")
		}
	}()
	Compute(Input{Op: 0xF})
}

func TestUnitLatencyAndCDBTiming(t *testing.T) {
	accept := AcceptInput{Ok: true, Input: Input{Tag: 5, Vj: 2, Vk: 3, Op: OpAdd}}
	offer := true
	u := NewUnit(2)
	u.Accept.Connect(func() AcceptInput {
		if offer {
			return accept
		}
		return AcceptInput{}
	})
	u.Clear.Connect(func() bool { return false })
	u.CDB.Connect(u.CDBOut) // sole CDB source: always wins arbitration immediately

	us := []wire.Updatable{u}

	// Cycle 1: accepted, not yet done (latency 2). offer only ever flips
	// between Step calls, never mid-cycle, so every register computing
	// its next state this cycle sees the same Accept value.
	wire.Step(us)
	offer = false
	if u.Idle() {
		t.Fatalf("unit should be busy immediately after accepting")
	}
	if p := u.CDBOut(); p.Tag != 0 {
		t.Fatalf("unit should not broadcast before its latency elapses, got %+v", p)
	}

	// Cycle 2: countdown reaches its done value, result is available this cycle.
	wire.Step(us)
	p := u.CDBOut()
	if p.Tag != 5 || p.Data != 5 {
		t.Fatalf("expected tag=5 data=5 on completion, got %+v", p)
	}

	// Cycle 3: idle again, no broadcast.
	wire.Step(us)
	if !u.Idle() {
		t.Fatalf("unit should be idle after broadcasting its result")
	}
	if p := u.CDBOut(); p.Tag != 0 {
		t.Fatalf("idle unit should not broadcast, got %+v", p)
	}
}

func TestUnitClearFlushesInFlightWork(t *testing.T) {
	u := NewUnit(3)
	clear := false
	u.Accept.Connect(func() AcceptInput {
		return AcceptInput{Ok: true, Input: Input{Tag: 1, Op: OpAdd}}
	})
	u.Clear.Connect(func() bool { return clear })

	us := []wire.Updatable{u}
	wire.Step(us)
	if u.Idle() {
		t.Fatalf("unit should be busy after accepting")
	}

	clear = true
	wire.Step(us)
	if !u.Idle() {
		t.Fatalf("a clear signal should flush in-flight work")
	}
}
