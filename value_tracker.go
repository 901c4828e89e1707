// Completion: 100% - Value location tracking: homes, spill slots, operand resolution
package main

import "fmt"

// LocKind names where a value's authoritative copy lives
type LocKind int

const (
	LocNone  LocKind = iota
	LocConst         // compile-time constant, no storage
	LocA             // byte in the accumulator
	LocX             // byte in X
	LocY             // byte in Y
	LocAX            // word split A=low, X=high
	LocZP            // zero-page cell or pair
	LocAbs           // absolute address
	LocSym           // assembler symbol plus offset
)

func (k LocKind) String() string {
	switch k {
	case LocNone:
		return "none"
	case LocConst:
		return "const"
	case LocA:
		return "A"
	case LocX:
		return "X"
	case LocY:
		return "Y"
	case LocAX:
		return "A/X"
	case LocZP:
		return "zp"
	case LocAbs:
		return "abs"
	case LocSym:
		return "sym"
	default:
		return "?"
	}
}

// Location is a value's home. Exactly one home is authoritative at a
// time; register caches on top of a memory home live in RegisterFile
// tags, not here.
type Location struct {
	Kind LocKind
	Val  int    // LocConst payload
	Addr uint16 // LocZP and LocAbs
	Sym  string // LocSym
	Off  int    // LocSym byte offset
}

// ConstLoc homes a value as a compile-time constant
func ConstLoc(v int) Location {
	return Location{Kind: LocConst, Val: v}
}

// RegLoc homes a byte value in a register
func RegLoc(r CPUReg) Location {
	switch r {
	case RegX:
		return Location{Kind: LocX}
	case RegY:
		return Location{Kind: LocY}
	default:
		return Location{Kind: LocA}
	}
}

// AXLoc homes a word value in the A/X pair
func AXLoc() Location {
	return Location{Kind: LocAX}
}

// ZPLoc homes a value at a zero-page address
func ZPLoc(addr uint8) Location {
	return Location{Kind: LocZP, Addr: uint16(addr)}
}

// AbsLoc homes a value at an absolute address
func AbsLoc(addr uint16) Location {
	return Location{Kind: LocAbs, Addr: addr}
}

// SymLoc homes a value at an assembler symbol
func SymLoc(sym string) Location {
	return Location{Kind: LocSym, Sym: sym}
}

// InRegister reports whether the home occupies CPU registers
func (l Location) InRegister() bool {
	switch l.Kind {
	case LocA, LocX, LocY, LocAX:
		return true
	}
	return false
}

// InMemory reports whether the home is directly addressable
func (l Location) InMemory() bool {
	switch l.Kind {
	case LocZP, LocAbs, LocSym:
		return true
	}
	return false
}

// MemRef renders a memory home as an operand reference
func (l Location) MemRef() MemRef {
	switch l.Kind {
	case LocZP:
		return ZPRef(uint8(l.Addr))
	case LocAbs:
		return AbsRef(l.Addr)
	case LocSym:
		return SymRef(l.Sym).Plus(l.Off)
	}
	return MemRef{}
}

func (l Location) String() string {
	switch l.Kind {
	case LocConst:
		return fmt.Sprintf("#%d", l.Val)
	case LocZP:
		return fmt.Sprintf("zp $%02X", l.Addr)
	case LocAbs:
		return fmt.Sprintf("$%04X", l.Addr)
	case LocSym:
		if l.Off != 0 {
			return fmt.Sprintf("%s+%d", l.Sym, l.Off)
		}
		return l.Sym
	default:
		return l.Kind.String()
	}
}

// TrackedValue is the lowering-time state of one SSA value
type TrackedValue struct {
	ID        string
	Type      ILType
	Loc       Location
	Uses      int  // reads left; 0 means dead
	SpillAddr int  // pool slot base this value owns, -1 when none
	Fixed     bool // home is a fixed cell (parameter, phi cell), never pool-freed
}

// Operand is a resolved instruction operand: an immediate or a memory
// reference
type Operand struct {
	Imm bool
	Val int
	Ref MemRef
}

// define starts tracking a freshly produced value. The use count comes
// from the per-function tally.
func (bc *B65Compiler) define(id string, t ILType, loc Location) *TrackedValue {
	tv := &TrackedValue{
		ID:        id,
		Type:      t,
		Loc:       loc,
		Uses:      bc.uses[id],
		SpillAddr: -1,
	}
	bc.vals[id] = tv
	return tv
}

// defineFixed tracks a value whose home is a fixed zero-page cell
func (bc *B65Compiler) defineFixed(id string, t ILType, addr uint8) *TrackedValue {
	tv := bc.define(id, t, ZPLoc(addr))
	tv.Fixed = true
	return tv
}

// lookup finds a tracked value, reporting an internal diagnostic when
// the lowering asks for something it never defined
func (bc *B65Compiler) lookup(id string) *TrackedValue {
	tv, ok := bc.vals[id]
	if !ok {
		bc.ec.AddError(UnresolvableValueError(id, bc.fnName(), bc.curPos))
		// Keep going with a dummy so one bug yields one diagnostic.
		tv = &TrackedValue{ID: id, Type: TypeByte, Loc: ConstLoc(0), SpillAddr: -1}
		bc.vals[id] = tv
	}
	return tv
}

// consume records one read of a value. The last read releases the
// value's spill slot and register tags.
func (bc *B65Compiler) consume(id string) {
	tv, ok := bc.vals[id]
	if !ok {
		return
	}
	if tv.Uses > 0 {
		tv.Uses--
	}
	if tv.Uses == 0 {
		bc.release(tv)
	}
}

// release frees a dead value's pool slot. Register tags stay until the
// register is reused; a tag for a dead value counts as free.
func (bc *B65Compiler) release(tv *TrackedValue) {
	if tv.SpillAddr >= 0 && !tv.Fixed {
		bc.spill.Free(uint8(tv.SpillAddr))
		tv.SpillAddr = -1
	}
}

// live reports whether a value id still has reads ahead
func (bc *B65Compiler) live(id string) bool {
	tv, ok := bc.vals[id]
	return ok && tv.Uses > 0
}

// allocSpill reserves size bytes from the active spill pool, turning
// exhaustion into a resource diagnostic exactly once per function
func (bc *B65Compiler) allocSpill(size int) uint8 {
	addr, ok := bc.spill.Alloc(size)
	if !ok {
		if !bc.spillFailed {
			bc.spillFailed = true
			bc.ec.AddError(SpillExhaustedError(bc.fnName(), size, bc.spill.Avail(), bc.curPos))
		}
		return uint8(bc.machine.ZeroPage.Scratch.Start)
	}
	return addr
}

// spillValue writes a register-homed value to a fresh pool slot and
// rehomes it there. Byte homes store with the matching register;
// word A/X homes store both halves.
func (bc *B65Compiler) spillValue(tv *TrackedValue) {
	if !tv.Loc.InRegister() {
		return
	}
	size := tv.Type.Size()
	if size == 0 {
		size = 1
	}
	slot := bc.allocSpill(size)
	ref := ZPRef(slot)
	switch tv.Loc.Kind {
	case LocA:
		bc.asm.Mem("sta", ref)
	case LocX:
		bc.asm.Mem("stx", ref)
	case LocY:
		bc.asm.Mem("sty", ref)
	case LocAX:
		bc.asm.Mem("sta", ref)
		bc.asm.Mem("stx", ref.Plus(1))
	}
	tv.Loc = ZPLoc(slot)
	tv.SpillAddr = int(slot)
	bc.stats.Spills++
}

// byteOperand resolves a byte value into something an ALU instruction
// can read without going through the accumulator. Register-homed
// values are spilled first.
func (bc *B65Compiler) byteOperand(id string) Operand {
	tv := bc.lookup(id)
	if tv.Loc.InRegister() {
		bc.spillValue(tv)
	}
	switch tv.Loc.Kind {
	case LocConst:
		return Operand{Imm: true, Val: tv.Loc.Val & 0xFF}
	case LocZP, LocAbs, LocSym:
		return Operand{Ref: tv.Loc.MemRef()}
	}
	bc.ec.AddError(UnresolvableValueError(id, bc.fnName(), bc.curPos))
	return Operand{Imm: true}
}

// aluMem emits an ALU instruction against a resolved operand
func (bc *B65Compiler) aluMem(mn string, op Operand) {
	if op.Imm {
		bc.asm.Imm(mn, op.Val)
	} else {
		bc.asm.Mem(mn, op.Ref)
	}
}

// wordHalves resolves a word value into low and high byte operands.
// A/X homes are parked in a pool pair first so both halves have
// addresses.
func (bc *B65Compiler) wordHalves(id string) (lo, hi Operand) {
	tv := bc.lookup(id)
	if tv.Loc.Kind == LocAX {
		bc.spillValue(tv)
		bc.regs.ClearValue(id)
	}
	switch tv.Loc.Kind {
	case LocConst:
		return Operand{Imm: true, Val: tv.Loc.Val & 0xFF}, Operand{Imm: true, Val: (tv.Loc.Val >> 8) & 0xFF}
	case LocZP, LocAbs, LocSym:
		ref := tv.Loc.MemRef()
		return Operand{Ref: ref}, Operand{Ref: ref.Plus(1)}
	}
	bc.ec.AddError(UnresolvableValueError(id, bc.fnName(), bc.curPos))
	return Operand{Imm: true}, Operand{Imm: true}
}

// wordPair parks a word value in addressable memory and returns the
// base reference of its low byte
func (bc *B65Compiler) wordPair(id string) MemRef {
	tv := bc.lookup(id)
	if tv.Loc.Kind == LocAX {
		bc.spillValue(tv)
		bc.regs.ClearValue(id)
	}
	if tv.Loc.Kind == LocConst {
		// Constants become a materialized pair only when a caller
		// needs an address, such as in-place shifting.
		slot := bc.allocSpill(2)
		bc.asm.Imm("lda", tv.Loc.Val&0xFF)
		bc.asm.Mem("sta", ZPRef(slot))
		bc.asm.Imm("lda", (tv.Loc.Val>>8)&0xFF)
		bc.asm.Mem("sta", ZPRef(slot).Plus(1))
		bc.regs.Clear(RegA)
		tv.Loc = ZPLoc(slot)
		tv.SpillAddr = int(slot)
	}
	if !tv.Loc.InMemory() {
		bc.ec.AddError(UnresolvableValueError(id, bc.fnName(), bc.curPos))
		return ZPRef(bc.machine.ScratchAddr(0))
	}
	return tv.Loc.MemRef()
}

// storeByteThrough writes a byte value to a destination via the
// accumulator, leaving A tagged as a cache of the value
func (bc *B65Compiler) storeByteThrough(dst MemRef, id string) {
	bc.loadA(id)
	bc.asm.Mem("sta", dst)
}

// storeWordThrough writes a word value to a destination pair. A value
// riding in A/X stores directly when the destination is unindexed;
// everything else goes byte by byte through A.
func (bc *B65Compiler) storeWordThrough(dst MemRef, id string) {
	tv := bc.lookup(id)
	if tv.Loc.Kind == LocAX && dst.index == 0 {
		bc.asm.Mem("sta", dst)
		bc.asm.Mem("stx", dst.Plus(1))
		return
	}
	lo, hi := bc.wordHalves(id)
	bc.evictReg(RegA)
	bc.aluMem("lda", lo)
	bc.asm.Mem("sta", dst)
	bc.aluMem("lda", hi)
	bc.asm.Mem("sta", dst.Plus(1))
	bc.regs.Clear(RegA)
}

// fnName returns the function currently being lowered, for diagnostics
func (bc *B65Compiler) fnName() string {
	if bc.fn == nil {
		return ""
	}
	return bc.fn.Name
}
