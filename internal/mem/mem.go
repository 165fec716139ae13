// Package mem implements the memory unit of §4.7: a byte-addressable
// backing store, a plain (uniform-latency) data path, an optional
// set-associative write-through cache data path, and the single-port
// load pipeline that offers completed loads onto the CDB. Grounded on
// original_source/memory.hpp's Memory<S> template (backing array mutated
// only in update(), width/sign decoding by mode bits) restated with a
// configurable latency and, where the original has no analog, a fresh
// set-associative cache built directly from spec.md §4.7 in the same
// Updatable two-phase style as every other component here.
package mem

import (
	"math/rand"

	"github.com/caidj0/RISC-V-Simulator/internal/cdb"
	"github.com/caidj0/RISC-V-Simulator/internal/isa"
	"github.com/caidj0/RISC-V-Simulator/internal/wire"
)

// Store is the byte-addressable backing memory. It is a sparse map rather
// than a flat array, per §9's "implementers may use a sparse map". During
// simulation it is mutated only by Unit's update phase; pull-phase
// next-state functions (instruction fetch, a load's raw read) only read it.
type Store struct {
	bytes map[uint32]byte
}

// NewStore builds an all-zero backing store.
func NewStore() *Store { return &Store{bytes: make(map[uint32]byte)} }

// ReadByte returns the byte at addr, 0 if never written.
func (s *Store) ReadByte(addr uint32) byte { return s.bytes[addr] }

// WriteByte sets the byte at addr.
func (s *Store) WriteByte(addr uint32, v byte) { s.bytes[addr] = v }

// ReadN reads n (1, 2, or 4) little-endian bytes starting at addr into a
// zero-extended 32-bit value.
func (s *Store) ReadN(addr uint32, n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		v |= uint32(s.ReadByte(addr+uint32(i))) << (8 * i)
	}
	return v
}

// WriteN writes the low n (1, 2, or 4) bytes of v, little-endian, at addr.
func (s *Store) WriteN(addr uint32, n int, v uint32) {
	for i := 0; i < n; i++ {
		s.WriteByte(addr+uint32(i), byte(v>>(8*i)))
	}
}

// FetchWord performs the zero-latency instruction fetch of §4.7(a): a
// combinational 4-byte read straight from backing memory, bypassing any
// cache data path entirely (icache is explicitly out of scope, §9).
func (s *Store) FetchWord(pc uint32) uint32 { return s.ReadN(pc, 4) }

// DataPath is the latency/caching strategy a Unit delegates data accesses
// to: plain uniform-latency memory, or a set-associative cache in front
// of the same backing Store.
type DataPath interface {
	// LoadDelay returns the cycle count (may be 0) a load at addr takes
	// to complete, evaluated combinationally against current state.
	LoadDelay(addr uint32, width int) uint32
	// NoteLoadAccepted lets a cache install/replace a line for a load
	// accepted this cycle; a no-op for plain memory. Called at update time.
	NoteLoadAccepted(addr uint32, width int)
	// NoteStore lets a cache update a hit line's bytes in place
	// (write-through); backing-store writes always happen separately via
	// the Unit's own Store(). Called at update time.
	NoteStore(addr uint32, width int, data uint32)
}

// PlainMemory is a uniform-latency data path: every load takes the same
// configured number of cycles regardless of address, per
// original_source/memory.hpp's single DELAY constant.
type PlainMemory struct {
	store *Store
	delay uint32
}

// NewPlainMemory builds a plain data path with the given per-load delay
// (may be 0, meaning the load completes on the cycle after it's accepted,
// the same one-cycle minimum turnaround every execution unit has here).
func NewPlainMemory(store *Store, delay uint32) *PlainMemory {
	return &PlainMemory{store: store, delay: delay}
}

func (p *PlainMemory) LoadDelay(uint32, int) uint32         { return p.delay }
func (p *PlainMemory) NoteLoadAccepted(uint32, int)         {}
func (p *PlainMemory) NoteStore(uint32, int, uint32)        {}

// cacheLine is one way within one set.
type cacheLine struct {
	valid bool
	tag   uint32
	bytes []byte
}

// Cache is the set-associative write-through cache of §4.7: S = 2^sBits
// sets of E ways, each holding a 2^bBits-byte block. Hits take CacheDelay
// cycles, misses take MemoryDelay cycles (after which the line is filled
// from the backing store). Replacement picks the first invalid way, else
// a uniformly random way.
type Cache struct {
	store *Store

	sBits, bBits uint
	ways         int
	blockSize    uint32
	setMask      uint32

	sets [][]cacheLine

	cacheDelay, memoryDelay uint32

	rng *rand.Rand

	Hits, Misses uint64
}

// NewCache builds a cache of 2^sBits sets, ways ways each, 2^bBits-byte
// blocks, backed by store. rngSeed fixes the random-replacement sequence
// so runs are reproducible, per §9's determinism requirement.
func NewCache(store *Store, sBits uint, ways int, bBits uint, cacheDelay, memoryDelay uint32, rngSeed int64) *Cache {
	if ways < 1 {
		panic("mem: cache needs at least one way per set")
	}
	nSets := 1 << sBits
	c := &Cache{
		store:       store,
		sBits:       sBits,
		bBits:       bBits,
		ways:        ways,
		blockSize:   1 << bBits,
		setMask:     uint32(nSets - 1),
		sets:        make([][]cacheLine, nSets),
		cacheDelay:  cacheDelay,
		memoryDelay: memoryDelay,
		rng:         rand.New(rand.NewSource(rngSeed)),
	}
	for i := range c.sets {
		c.sets[i] = make([]cacheLine, ways)
	}
	return c
}

func (c *Cache) checkBounds(addr uint32, width int) {
	offset := addr & (c.blockSize - 1)
	if offset+uint32(width) > c.blockSize {
		panic("mem: cache access crosses a block boundary")
	}
}

func (c *Cache) setIndex(addr uint32) uint32 { return (addr >> c.bBits) & c.setMask }
func (c *Cache) lineTag(addr uint32) uint32  { return addr >> (c.sBits + c.bBits) }
func (c *Cache) blockBase(addr uint32) uint32 {
	return addr &^ (c.blockSize - 1)
}

func (c *Cache) findWay(addr uint32) (way int, ok bool) {
	set := c.sets[c.setIndex(addr)]
	tag := c.lineTag(addr)
	for i := range set {
		if set[i].valid && set[i].tag == tag {
			return i, true
		}
	}
	return 0, false
}

func (c *Cache) LoadDelay(addr uint32, width int) uint32 {
	c.checkBounds(addr, width)
	if _, ok := c.findWay(addr); ok {
		c.Hits++
		return c.cacheDelay
	}
	c.Misses++
	return c.memoryDelay
}

func (c *Cache) victimWay(set []cacheLine) int {
	for i := range set {
		if !set[i].valid {
			return i
		}
	}
	return c.rng.Intn(len(set))
}

func (c *Cache) NoteLoadAccepted(addr uint32, width int) {
	c.checkBounds(addr, width)
	if _, ok := c.findWay(addr); ok {
		return
	}
	set := c.sets[c.setIndex(addr)]
	way := c.victimWay(set)
	base := c.blockBase(addr)
	line := &set[way]
	line.valid = true
	line.tag = c.lineTag(addr)
	if line.bytes == nil {
		line.bytes = make([]byte, c.blockSize)
	}
	for i := uint32(0); i < c.blockSize; i++ {
		line.bytes[i] = c.store.ReadByte(base + i)
	}
}

func (c *Cache) NoteStore(addr uint32, width int, data uint32) {
	c.checkBounds(addr, width)
	way, ok := c.findWay(addr)
	if !ok {
		return
	}
	line := &c.sets[c.setIndex(addr)][way]
	base := c.blockBase(addr)
	offset := addr - base
	for i := 0; i < width; i++ {
		line.bytes[offset+uint32(i)] = byte(data >> (8 * i))
	}
}

// width returns the access width in bytes for a load/store subop code.
func width(subop uint8) int {
	switch subop {
	case isa.SubopLB, isa.SubopLBU:
		return 1
	case isa.SubopLH, isa.SubopLHU:
		return 2
	case isa.SubopLW:
		return 4
	default:
		panic("mem: unknown access width subop")
	}
}

// loadResult applies sign/zero extension per §4.7's width table to a raw
// little-endian value already read from memory.
func loadResult(subop uint8, raw uint32) uint32 {
	switch subop {
	case isa.SubopLB:
		return uint32(int32(int8(raw)))
	case isa.SubopLH:
		return uint32(int32(int16(raw)))
	case isa.SubopLW, isa.SubopLBU, isa.SubopLHU:
		return raw
	default:
		panic("mem: unknown load subop")
	}
}

// AcceptInput is the dispatch decision the CPU driver makes for the
// single load port each cycle: Ok is false when no mem-class station is
// being dispatched this cycle.
type AcceptInput struct {
	Ok      bool
	Tag     uint32
	Subop   uint8
	Address uint32
}

// StoreInput is the store-commit write the ROB asserts every cycle it
// retires a store, applied unconditionally at update time, with no tag
// and no speculation, per §4.4/§4.7.
type StoreInput struct {
	Ok      bool
	Subop   uint8 // 0=byte, 1=half, 2=word (S-type funct3 directly)
	Address uint32
	Data    uint32
}

// Unit is the single memory port: one in-flight load pipeline (latency
// per DataPath) plus unconditional, zero-latency store application. Once
// a load's result is latched the unit stays that result's CDB source,
// cycle after cycle, until arbitration actually carries its tag.
type Unit struct {
	store *Store
	path  DataPath

	busy      *wire.Register[bool]
	remaining *wire.Register[uint32]
	tag       *wire.Register[uint32]
	subop     *wire.Register[uint8]
	raw       *wire.Register[uint32]

	acceptSnapshot        AcceptInput
	storeSnapshot         StoreInput
	loadAcceptedThisCycle bool

	Accept  wire.Wire[AcceptInput]
	StoreIn wire.Wire[StoreInput]
	Clear   wire.Wire[bool]

	// CDB is the arbitrated bus this unit's own load result competes on;
	// read only to detect when arbitration has carried this unit's tag.
	CDB wire.Wire[cdb.Packet]
}

// NewUnit builds an idle memory unit over the given backing store and
// data path. The caller must Connect Accept, StoreIn, Clear, and CDB
// before the first Pull.
func NewUnit(store *Store, path DataPath) *Unit {
	u := &Unit{store: store, path: path}
	u.busy = wire.NewRegister(u.nextBusy)
	u.remaining = wire.NewRegister(u.nextRemaining)
	u.tag = wire.NewRegister(u.nextTag)
	u.subop = wire.NewRegister(u.nextSubop)
	u.raw = wire.NewRegister(u.nextRaw)
	return u
}

// Fetch reads the 4-byte instruction word at pc, bypassing the data path.
func (u *Unit) Fetch(pc uint32) uint32 { return u.store.FetchWord(pc) }

// Idle reports whether the load port can accept a new request this cycle.
func (u *Unit) Idle() bool { return !u.busy.Value() }

func (u *Unit) done() bool { return u.busy.Value() && u.remaining.Value() == 0 }

// acknowledged reports whether this cycle's arbitrated CDB actually
// carried this unit's own result, per §4.7: a finished load stays the
// result's source on the CDB until the bus carries that tag.
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
			return 0 // already the done sentinel; hold until the CDB carries this tag
		}
		return u.remaining.Value() - 1
	}
	if a := u.Accept.Value(); a.Ok {
		return u.path.LoadDelay(a.Address, width(a.Subop))
	}
	return 0
}

func (u *Unit) nextTag() uint32 {
	if u.Clear.Value() {
		return 0
	}
	if !u.busy.Value() && u.Accept.Value().Ok {
		return u.Accept.Value().Tag
	}
	if u.done() && u.acknowledged() {
		return 0
	}
	return u.tag.Value()
}

func (u *Unit) nextSubop() uint8 {
	if !u.busy.Value() && u.Accept.Value().Ok {
		return u.Accept.Value().Subop
	}
	return u.subop.Value()
}

func (u *Unit) nextRaw() uint32 {
	if !u.busy.Value() && u.Accept.Value().Ok {
		a := u.Accept.Value()
		return u.store.ReadN(a.Address, width(a.Subop))
	}
	return u.raw.Value()
}

// CDBOut implements cdb.Source: the unit broadcasts its sign/zero-extended
// load result every cycle from when its countdown reaches zero until
// arbitration carries that tag (see acknowledged).
func (u *Unit) CDBOut() cdb.Packet {
	if u.done() {
		return cdb.Packet{Tag: u.tag.Value(), Data: loadResult(u.subop.Value(), u.raw.Value())}
	}
	return cdb.Packet{}
}

// Pull stages this unit's next state. The accept and store decisions are
// snapshotted here, while every peer register still holds its
// pre-update value, rather than re-read from the Accept/StoreIn wires
// during Update, since by the time Update runs some peers this unit
// depends on (the dispatching reservation station, the ROB) may already
// have committed their own next state.
func (u *Unit) Pull() {
	u.acceptSnapshot = u.Accept.Value()
	u.storeSnapshot = u.StoreIn.Value()
	wasIdle := u.Idle()

	u.busy.Pull()
	u.remaining.Pull()
	u.tag.Pull()
	u.subop.Pull()
	u.raw.Pull()

	u.loadAcceptedThisCycle = wasIdle && u.acceptSnapshot.Ok
}

// Update commits this unit's staged state and applies both the cache
// line fill for a newly-accepted load and any store the ROB committed
// this cycle; both are genuine backing-store mutations and so, per the
// substrate's rule, only ever happen here, driven by the Pull-phase
// snapshot rather than a fresh wire read.
func (u *Unit) Update() {
	if u.loadAcceptedThisCycle {
		u.path.NoteLoadAccepted(u.acceptSnapshot.Address, width(u.acceptSnapshot.Subop))
	}
	if u.storeSnapshot.Ok {
		w := storeWidth(u.storeSnapshot.Subop)
		u.store.WriteN(u.storeSnapshot.Address, w, u.storeSnapshot.Data)
		u.path.NoteStore(u.storeSnapshot.Address, w, u.storeSnapshot.Data)
	}

	u.busy.Update()
	u.remaining.Update()
	u.tag.Update()
	u.subop.Update()
	u.raw.Update()
}

// storeWidth maps an S-type funct3 directly to its byte width (0=byte,
// 1=half, 2=word); stores carry no sign-extension concerns.
func storeWidth(subop uint8) int {
	switch subop {
	case 0:
		return 1
	case 1:
		return 2
	case 2:
		return 4
	default:
		panic("mem: unknown store width subop")
	}
}
