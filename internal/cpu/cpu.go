// Package cpu wires every other package into the single-issue,
// out-of-order pipeline of §4.9: fetch, issue (operand resolution and
// reservation-station dispatch), execute (ALU units and the memory
// port), CDB arbitration, and in-order commit through the ROB. It owns
// the one piece of state no other package does, the program counter,
// and is the only package that knows how an instruction's format maps
// onto an execution class and a reservation-station payload.
//
// Grounded on original_source/CPU.hpp/CPU.cpp's CPU class: its
// constructor wires every sub-component's buses together exactly once,
// and its step()/pullAndUpdate() is this package's Step. Where the
// original hard-codes two ALUs and one memory reservation station
// sharing the one memory port, this generalizes both counts to
// Config fields while keeping the original's 1:1 ALU-station-to-unit
// pairing (stores and branch comparisons also route through the
// ALU class, per §4.5; only loads use the memory class).
package cpu

import (
	"fmt"

	"github.com/caidj0/RISC-V-Simulator/internal/alu"
	"github.com/caidj0/RISC-V-Simulator/internal/cdb"
	"github.com/caidj0/RISC-V-Simulator/internal/isa"
	"github.com/caidj0/RISC-V-Simulator/internal/mem"
	"github.com/caidj0/RISC-V-Simulator/internal/predictor"
	"github.com/caidj0/RISC-V-Simulator/internal/regfile"
	"github.com/caidj0/RISC-V-Simulator/internal/rob"
	"github.com/caidj0/RISC-V-Simulator/internal/rs"
	"github.com/caidj0/RISC-V-Simulator/internal/wire"
)

// execClass is which reservation-station pool (if any) an instruction
// needs, per §4.9's "compute execute_type by opcode".
type execClass uint8

const (
	classNone execClass = iota
	classALU
	classMem
)

func classOf(d isa.Decoded) execClass {
	switch d.Op {
	case isa.OpLUI:
		return classNone
	case isa.OpLoad:
		return classMem
	case isa.OpAUIPC, isa.OpJAL, isa.OpJALR, isa.OpStore, isa.OpBranch, isa.OpImm, isa.OpReg:
		return classALU
	default:
		return classNone
	}
}

// PredictorKind names one of the branch-predictor variants §4.8 offers.
type PredictorKind string

const (
	PredictorAlwaysTaken PredictorKind = "always-taken"
	PredictorNeverTaken  PredictorKind = "never-taken"
	PredictorBimodal     PredictorKind = "bimodal"
	PredictorCorrelating PredictorKind = "correlating"
	PredictorTournament  PredictorKind = "tournament"
)

// Config groups every construction-time parameter of the machine: ROB
// and reservation-station capacities, execution latencies, the memory
// data path (plain or cached) and its geometry, and the predictor
// selection. Mirrors original_source/CPU.hpp's compile-time N_ALU/N_ROB
// constants, restated as runtime fields per §11.
type Config struct {
	ROBLength  uint32
	NumALU     int
	NumMemRS   int
	ALULatency uint32
	MemDelay   uint32

	Cache          bool
	CacheSetBits   uint
	CacheWays      int
	CacheBlockBits uint
	CacheHitDelay  uint32
	CacheMissDelay uint32
	CacheRNGSeed   int64

	Predictor              PredictorKind
	BimodalBits            uint
	CorrelatingIndexBits   uint
	CorrelatingHistoryBits uint
	TournamentChooserBits  uint
}

// Validate rejects configurations that would make construction or
// simulation meaningless, so NewCPU can panic-free reject bad input
// with an ordinary error instead of a deep panic.
func (c Config) Validate() error {
	if c.ROBLength < 2 {
		return fmt.Errorf("cpu: ROBLength must be at least 2, got %d", c.ROBLength)
	}
	if c.NumALU < 1 || c.NumALU > rs.MaxStations {
		return fmt.Errorf("cpu: NumALU must be in [1, %d], got %d", rs.MaxStations, c.NumALU)
	}
	if c.NumMemRS < 1 || c.NumMemRS > rs.MaxStations {
		return fmt.Errorf("cpu: NumMemRS must be in [1, %d], got %d", rs.MaxStations, c.NumMemRS)
	}
	if c.ALULatency < 1 {
		return fmt.Errorf("cpu: ALULatency must be at least 1, got %d", c.ALULatency)
	}
	if c.Cache && c.CacheWays < 1 {
		return fmt.Errorf("cpu: CacheWays must be at least 1, got %d", c.CacheWays)
	}
	switch c.Predictor {
	case PredictorAlwaysTaken, PredictorNeverTaken, PredictorBimodal, PredictorCorrelating, PredictorTournament:
	default:
		return fmt.Errorf("cpu: unknown predictor kind %q", c.Predictor)
	}
	return nil
}

// Stats summarizes a run for reporting, modeled on SupraX.go's
// Stats()/GetIPC()/GetBranchAccuracy() accessor trio.
type Stats struct {
	Cycles uint64

	BranchesTotal, BranchesCorrect uint64
	JalrsTotal, JalrsCorrect       uint64

	CacheHits, CacheMisses uint64
}

func (s Stats) String() string {
	branchPct := 0.0
	if s.BranchesTotal > 0 {
		branchPct = 100 * float64(s.BranchesCorrect) / float64(s.BranchesTotal)
	}
	jalrPct := 0.0
	if s.JalrsTotal > 0 {
		jalrPct = 100 * float64(s.JalrsCorrect) / float64(s.JalrsTotal)
	}
	return fmt.Sprintf(
		"cycles=%d branches=%d/%d (%.1f%%) jalrs=%d/%d (%.1f%%) cache_hits=%d cache_misses=%d",
		s.Cycles, s.BranchesCorrect, s.BranchesTotal, branchPct,
		s.JalrsCorrect, s.JalrsTotal, jalrPct, s.CacheHits, s.CacheMisses,
	)
}

// CPU is the fully wired machine. Step drives it one cycle at a time.
type CPU struct {
	cfg Config

	pc    *wire.Register[uint32]
	regs  *regfile.RegisterFile
	rob   *rob.ROB
	store *mem.Store
	path  mem.DataPath

	aluRS    *rs.Pool
	aluUnits []*alu.Unit
	memRS    *rs.Pool
	memUnit  *mem.Unit

	predictor predictor.Predictor

	cdbSources []cdb.Source

	updatables []wire.Updatable

	cycles uint64
	stats  Stats
}

// NewCPU builds and wires a complete machine over store (which may
// already hold a loaded program image). Returns an error if cfg fails
// Validate.
func NewCPU(cfg Config, store *mem.Store) (*CPU, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &CPU{cfg: cfg, store: store}

	c.regs = regfile.New()
	c.rob = rob.New(cfg.ROBLength, c.regs)
	c.pc = wire.NewRegister(c.nextPC)

	clearWire := wire.NewWire(func() bool { return c.rob.Clear() })
	cdbWire := wire.NewWire(func() cdb.Packet { return cdb.Arbitrate(c.cdbSources) })

	c.rob.CDB = cdbWire
	c.rob.IssueReq.Connect(c.issueReq)

	c.regs.IssueBus.Connect(c.issueBus)
	c.regs.CommitBus.Connect(c.commitBus)
	c.regs.ClearInput = clearWire

	c.aluRS = rs.NewPool(cfg.NumALU, cdbWire, clearWire)
	c.aluUnits = make([]*alu.Unit, cfg.NumALU)
	for i := range c.aluUnits {
		i := i
		u := alu.NewUnit(cfg.ALULatency)
		u.Clear = clearWire
		u.CDB = cdbWire
		u.Accept.Connect(func() alu.AcceptInput { return c.aluAccept(i) })
		c.aluUnits[i] = u
		c.aluRS.Stations[i].NewInstruction.Connect(func() rs.Entry { return c.aluNewInstruction(i) })
	}

	if cfg.Cache {
		c.path = mem.NewCache(store, cfg.CacheSetBits, cfg.CacheWays, cfg.CacheBlockBits, cfg.CacheHitDelay, cfg.CacheMissDelay, cfg.CacheRNGSeed)
	} else {
		c.path = mem.NewPlainMemory(store, cfg.MemDelay)
	}
	c.memRS = rs.NewPool(cfg.NumMemRS, cdbWire, clearWire)
	c.memUnit = mem.NewUnit(store, c.path)
	c.memUnit.Clear = clearWire
	c.memUnit.CDB = cdbWire
	c.memUnit.Accept.Connect(c.memAccept)
	c.memUnit.StoreIn.Connect(c.storeIn)
	for i := range c.memRS.Stations {
		i := i
		c.memRS.Stations[i].NewInstruction.Connect(func() rs.Entry { return c.memNewInstruction(i) })
	}

	fbWire := wire.NewWire(c.feedback)
	c.predictor = buildPredictor(cfg, fbWire)

	c.cdbSources = make([]cdb.Source, 0, cfg.NumALU+1)
	for _, u := range c.aluUnits {
		c.cdbSources = append(c.cdbSources, u)
	}
	c.cdbSources = append(c.cdbSources, c.memUnit)

	c.updatables = c.collectUpdatables()
	c.pc.Set(0)

	return c, nil
}

func buildPredictor(cfg Config, fb wire.Wire[predictor.Feedback]) predictor.Predictor {
	switch cfg.Predictor {
	case PredictorAlwaysTaken:
		return predictor.NewAlwaysTaken()
	case PredictorNeverTaken:
		return predictor.NewNeverTaken()
	case PredictorBimodal:
		p := predictor.NewBimodal(cfg.BimodalBits)
		p.Feedback = fb
		return p
	case PredictorCorrelating:
		p := predictor.NewCorrelating(cfg.CorrelatingIndexBits, cfg.CorrelatingHistoryBits)
		p.Feedback = fb
		return p
	case PredictorTournament:
		a := predictor.NewBimodal(cfg.BimodalBits)
		a.Feedback = fb
		b := predictor.NewCorrelating(cfg.CorrelatingIndexBits, cfg.CorrelatingHistoryBits)
		b.Feedback = fb
		t := predictor.NewTournament(a, b, cfg.TournamentChooserBits)
		t.Feedback = fb
		return t
	default:
		panic("cpu: unknown predictor kind")
	}
}

func (c *CPU) collectUpdatables() []wire.Updatable {
	us := []wire.Updatable{c.pc}
	us = append(us, c.regs.Updatables()...)
	us = append(us, c.rob.Updatables()...)
	us = append(us, c.aluRS.Updatables()...)
	for _, u := range c.aluUnits {
		us = append(us, u)
	}
	us = append(us, c.memRS.Updatables()...)
	us = append(us, c.memUnit)
	us = append(us, c.predictor.Updatables()...)
	return us
}

// currentWord fetches the instruction at the current PC, bypassing any
// data-cache latency, per §4.7(a).
func (c *CPU) currentWord() uint32 { return c.memUnit.Fetch(c.pc.Value()) }

func (c *CPU) decodedCurrent() isa.Decoded { return isa.Decode(c.currentWord()) }

// issueOK reports whether the instruction under consideration this
// cycle can actually be issued: its format must be recognized, the ROB
// must have a free slot, and whichever reservation-station class it
// needs (if any) must have a free slot too.
func (c *CPU) issueOK() bool {
	d := c.decodedCurrent()
	if d.Format == isa.FormatUnknown {
		return false
	}
	if c.rob.NextIndex() == 0 {
		return false
	}
	switch classOf(d) {
	case classALU:
		_, ok := c.aluRS.FreeSlot()
		return ok
	case classMem:
		_, ok := c.memRS.FreeSlot()
		return ok
	default:
		return true
	}
}

// resolveOperand implements §4.3's operand-resolution chain for
// register i: use the committed value if no producer is pending, else
// the ROB's own latched value if that producer has already finished,
// else this cycle's live CDB broadcast if it happens to match, else
// forward the producer's tag for the reservation station to snoop later.
func (c *CPU) resolveOperand(i uint8) (tag uint32, value uint32) {
	t, v := c.regs.Read(i)
	if t == 0 {
		return 0, v
	}
	if c.rob.ItemReady(t) {
		return 0, c.rob.ItemValue(t)
	}
	if pkt := c.cdbValue(); pkt.Tag == t {
		return 0, pkt.Data
	}
	return t, 0
}

func (c *CPU) cdbValue() cdb.Packet { return cdb.Arbitrate(c.cdbSources) }

// predictedTaken consults the predictor for the current PC, only
// meaningful for branch instructions.
func (c *CPU) predictedTaken() bool { return c.predictor.Decide(c.pc.Value()) }

// nextPC computes §4.9's next-PC rule. A ROB-demanded relocation always
// wins; otherwise, if nothing issues this cycle the fetch simply
// retries next cycle (a stall must not skip the stalled instruction,
// a necessary reading of "else PC<-PC+4" the prose leaves implicit).
func (c *CPU) nextPC() uint32 {
	if target, ok := c.rob.Relocate(); ok {
		return target
	}
	if !c.issueOK() {
		return c.pc.Value()
	}
	d := c.decodedCurrent()
	switch {
	case d.Op == isa.OpJAL:
		return c.pc.Value() + d.Imm
	case d.Op == isa.OpBranch && c.predictedTaken():
		return c.pc.Value() + d.Imm
	default:
		return c.pc.Value() + 4
	}
}

func (c *CPU) issueReq() rob.IssueRequest {
	if !c.issueOK() {
		return rob.IssueRequest{}
	}
	d := c.decodedCurrent()
	branched := false
	if d.Op == isa.OpBranch {
		branched = c.predictedTaken()
	}
	return rob.IssueRequest{Add: true, PC: c.pc.Value(), Instruction: d.Word, Branched: branched}
}

func (c *CPU) issueBus() regfile.IssueInput {
	if !c.issueOK() {
		return regfile.IssueInput{}
	}
	d := c.decodedCurrent()
	if d.Rd == 0 {
		return regfile.IssueInput{}
	}
	return regfile.IssueInput{Rd: d.Rd, ReorderIndex: c.rob.NextIndex()}
}

func (c *CPU) commitBus() regfile.CommitInput {
	_, value, ok := c.rob.RegWrite()
	if !ok {
		return regfile.CommitInput{}
	}
	return regfile.CommitInput{ReorderIndex: c.rob.CommitIndex(), Data: value}
}

func (c *CPU) storeIn() mem.StoreInput {
	subop, addr, data, ok := c.rob.StoreWrite()
	if !ok {
		return mem.StoreInput{}
	}
	return mem.StoreInput{Ok: true, Subop: subop, Address: addr, Data: data}
}

func (c *CPU) feedback() predictor.Feedback {
	if !c.rob.Commit() || !isa.IsBranch(c.rob.CommitInstruction()) {
		return predictor.Feedback{}
	}
	taken := c.rob.CommitActualTaken()
	predicted := c.rob.CommitBranched()
	return predictor.Feedback{Valid: true, PC: c.rob.CommitPC(), Taken: taken, Mispredicted: taken != predicted}
}

// remapBranchOp maps a B-type funct3 onto the ALU opcode that computes
// its comparison result: beq/bne subtract (value==0 iff equal),
// blt/bge and bltu/bgeu reuse the signed/unsigned set-less-than
// results directly, exactly the table isa.BranchTaken already expects.
func remapBranchOp(subop uint8) alu.Opcode {
	switch subop {
	case isa.SubopBLT, isa.SubopBGE:
		return alu.OpSLT
	case isa.SubopBLTU, isa.SubopBGEU:
		return alu.OpSLTU
	default:
		return alu.OpAdd
	}
}

// aluEntryForIssue builds the reservation-station payload for whichever
// ALU-class instruction is under consideration this cycle: auipc and
// the jal/jalr return-address both add a constant to the PC; stores
// compute their address the same way; branches remap to a comparison;
// register/immediate ops pass their decoded subop/variant straight
// through.
func (c *CPU) aluEntryForIssue(d isa.Decoded) rs.Entry {
	e := rs.Entry{Tag: c.rob.NextIndex()}
	switch d.Op {
	case isa.OpAUIPC:
		e.Vj, e.Vk = c.pc.Value(), d.Imm
		e.Subop, e.Variant = alu.OpAdd, false
	case isa.OpJAL, isa.OpJALR:
		e.Vj, e.Vk = c.pc.Value(), 4
		e.Subop, e.Variant = alu.OpAdd, false
	case isa.OpStore:
		e.Qj, e.Vj = c.resolveOperand(d.Rs1)
		e.Vk = d.Imm
		e.Subop, e.Variant = alu.OpAdd, false
	case isa.OpBranch:
		e.Qj, e.Vj = c.resolveOperand(d.Rs1)
		e.Qk, e.Vk = c.resolveOperand(d.Rs2)
		e.Subop, e.Variant = remapBranchOp(d.Subop), d.Variant
	default: // OpImm, OpReg
		e.Qj, e.Vj = c.resolveOperand(d.Rs1)
		if d.Op == isa.OpReg {
			e.Qk, e.Vk = c.resolveOperand(d.Rs2)
		} else {
			e.Vk = d.Imm
		}
		e.Subop, e.Variant = d.Subop, d.Variant
	}
	return e
}

func (c *CPU) memEntryForIssue(d isa.Decoded) rs.Entry {
	e := rs.Entry{Tag: c.rob.NextIndex(), Subop: d.Subop, Imm: d.Imm}
	e.Qj, e.Vj = c.resolveOperand(d.Rs1)
	return e
}

func (c *CPU) aluNewInstruction(station int) rs.Entry {
	if !c.issueOK() {
		return rs.Entry{}
	}
	d := c.decodedCurrent()
	if classOf(d) != classALU {
		return rs.Entry{}
	}
	idx, ok := c.aluRS.FreeSlot()
	if !ok || idx != station {
		return rs.Entry{}
	}
	return c.aluEntryForIssue(d)
}

func (c *CPU) memNewInstruction(station int) rs.Entry {
	if !c.issueOK() {
		return rs.Entry{}
	}
	d := c.decodedCurrent()
	if classOf(d) != classMem {
		return rs.Entry{}
	}
	idx, ok := c.memRS.FreeSlot()
	if !ok || idx != station {
		return rs.Entry{}
	}
	return c.memEntryForIssue(d)
}

// aluAccept wires ALU unit i directly to its own paired reservation
// station: the original's fixed alus[N_ALU]/alu_rses[N_ALU] 1:1 layout,
// generalized to Config.NumALU. No cross-station arbitration is needed
// since each unit only ever looks at its own station.
func (c *CPU) aluAccept(unit int) alu.AcceptInput {
	if !c.aluUnits[unit].Idle() {
		return alu.AcceptInput{}
	}
	e := c.aluRS.Stations[unit].Entry()
	if !e.Ready() {
		return alu.AcceptInput{}
	}
	return alu.AcceptInput{Ok: true, Input: alu.Input{Tag: e.Tag, Vj: e.Vj, Vk: e.Vk, Op: e.Subop, Variant: e.Variant}}
}

// memAccept arbitrates the single load port across every ready,
// load-safe memory-class station, lowest ROB tag (i.e. program order)
// wins, the one place this pipeline needs N-to-1 dispatch, since
// unlike the ALU class there is only ever one memory unit.
func (c *CPU) memAccept() mem.AcceptInput {
	if !c.memUnit.Idle() {
		return mem.AcceptInput{}
	}
	var best rs.Entry
	found := false
	for _, st := range c.memRS.Stations {
		e := st.Entry()
		if !e.Ready() {
			continue
		}
		addr := e.Vj + e.Imm
		if !c.rob.CanLoad(e.Tag, addr) {
			continue
		}
		if !found || e.Tag < best.Tag {
			best, found = e, true
		}
	}
	if !found {
		return mem.AcceptInput{}
	}
	return mem.AcceptInput{Ok: true, Tag: best.Tag, Subop: best.Subop, Address: best.Vj + best.Imm}
}

// accumulateStats folds this cycle's about-to-happen commit into the
// running tallies. Must run before Step's wire.Step call, while the ROB
// and predictor still reflect the pre-commit state the rest of this
// cycle's wiring will consult.
func (c *CPU) accumulateStats() {
	if !c.rob.Commit() {
		return
	}
	instr := c.rob.CommitInstruction()
	switch {
	case isa.IsBranch(instr):
		c.stats.BranchesTotal++
		if c.rob.CommitActualTaken() == c.rob.CommitBranched() {
			c.stats.BranchesCorrect++
		}
	case isa.IsJALR(instr):
		c.stats.JalrsTotal++
		if _, mismatched := c.rob.Relocate(); !mismatched {
			c.stats.JalrsCorrect++
		}
	}
}

// Step advances the machine by one cycle. It returns halted=true,
// without advancing any state, the cycle the ROB's head instruction is
// the halt sentinel and ready to commit, per §4.9, that commit's
// register write never happens; the caller reads a0 directly. Any
// internal invariant violation (an issue racing a full ROB, an unknown
// ALU opcode, ...) panics deep in the call graph; Step recovers it here
// and reports it as an ordinary error, the idiomatic translation of the
// original's `throw std::runtime_error`.
func (c *CPU) Step() (halted bool, exitCode uint8, err error) {
	if c.rob.Commit() && c.rob.CommitInstruction() == isa.HaltWord {
		return true, uint8(c.regs.Value(10) & 0xFF), nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cpu: %v", r)
		}
	}()
	c.accumulateStats()
	wire.Step(c.updatables)
	c.cycles++
	return false, 0, nil
}

// Stats reports the running tallies, folding in live cache counters
// when a cache data path is configured.
func (c *CPU) Stats() Stats {
	st := c.stats
	st.Cycles = c.cycles
	if cache, ok := c.path.(*mem.Cache); ok {
		st.CacheHits = cache.Hits
		st.CacheMisses = cache.Misses
	}
	return st
}

// PC returns the current program counter, for tests and diagnostics.
func (c *CPU) PC() uint32 { return c.pc.Value() }

// Register returns the architectural value of register i, for tests
// and diagnostics.
func (c *CPU) Register(i uint8) uint32 { return c.regs.Value(i) }
