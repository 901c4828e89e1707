// Completion: 100% - Three-register allocation: resident first, then free, then LRU spill
package main

// CPUReg is one of the three CPU registers
type CPUReg int

const (
	RegA CPUReg = iota
	RegX
	RegY
)

func (r CPUReg) String() string {
	switch r {
	case RegA:
		return "A"
	case RegX:
		return "X"
	case RegY:
		return "Y"
	default:
		return "?"
	}
}

type regState struct {
	val  string // value id the register holds, "" when free
	tick int    // LRU stamp
	pins int    // pinned registers are never stolen
}

// RegisterFile tracks what each CPU register holds. A tag can be a
// value's register home or a cached copy of a memory home; the
// distinction lives in the value's Location.
type RegisterFile struct {
	st   [3]regState
	tick int
}

// Reset clears all tags and pins, as at a block boundary or after a
// subroutine call
func (rf *RegisterFile) Reset() {
	rf.st = [3]regState{}
}

func (rf *RegisterFile) touch(r CPUReg) {
	rf.tick++
	rf.st[r].tick = rf.tick
}

// ValueIn returns the id tagged in a register
func (rf *RegisterFile) ValueIn(r CPUReg) string {
	return rf.st[r].val
}

// SetValue tags a register with a value id
func (rf *RegisterFile) SetValue(r CPUReg, id string) {
	rf.st[r].val = id
	rf.touch(r)
}

// Clear frees one register's tag
func (rf *RegisterFile) Clear(r CPUReg) {
	rf.st[r].val = ""
}

// ClearValue removes a value id from every register
func (rf *RegisterFile) ClearValue(id string) {
	for i := range rf.st {
		if rf.st[i].val == id {
			rf.st[i].val = ""
		}
	}
}

// Holds reports which register carries a value id, preferring the
// accumulator
func (rf *RegisterFile) Holds(id string) (CPUReg, bool) {
	if id == "" {
		return RegA, false
	}
	for _, r := range []CPUReg{RegA, RegX, RegY} {
		if rf.st[r].val == id {
			return r, true
		}
	}
	return RegA, false
}

// Pin prevents a register from being stolen until Unpin
func (rf *RegisterFile) Pin(r CPUReg) {
	rf.st[r].pins++
}

// Unpin releases one pin
func (rf *RegisterFile) Unpin(r CPUReg) {
	if rf.st[r].pins > 0 {
		rf.st[r].pins--
	}
}

// Pinned reports whether a register is currently pinned
func (rf *RegisterFile) Pinned(r CPUReg) bool {
	return rf.st[r].pins > 0
}

// OlderOf returns whichever of two registers was used less recently
func (rf *RegisterFile) OlderOf(a, b CPUReg) CPUReg {
	if rf.st[a].tick <= rf.st[b].tick {
		return a
	}
	return b
}

// regOccupiedLive reports whether a register holds a still-live value
func (bc *B65Compiler) regOccupiedLive(r CPUReg) bool {
	id := bc.regs.ValueIn(r)
	return id != "" && bc.live(id)
}

// evictReg makes a register safe to overwrite. A live value homed in
// the register moves to a spill slot; a cached copy or a dead value
// is dropped.
func (bc *B65Compiler) evictReg(r CPUReg) {
	id := bc.regs.ValueIn(r)
	if id == "" {
		return
	}
	tv, ok := bc.vals[id]
	if ok && tv.Uses > 0 && tv.Loc.InRegister() {
		home := tv.Loc.Kind
		otherHome := (home == LocA && r != RegA) ||
			(home == LocX && r != RegX) ||
			(home == LocY && r != RegY)
		if otherHome {
			// r only caches a value homed in a different register.
			bc.regs.Clear(r)
			return
		}
		wasWord := home == LocAX
		bc.spillValue(tv)
		if wasWord {
			bc.regs.ClearValue(id)
			return
		}
	}
	bc.regs.Clear(r)
}

// spillLiveRegs parks every live register-homed value in the spill
// pool. Call boundaries and block ends run through here so that no
// live value depends on register contents.
func (bc *B65Compiler) spillLiveRegs() {
	for _, r := range []CPUReg{RegA, RegX, RegY} {
		id := bc.regs.ValueIn(r)
		if id == "" {
			continue
		}
		tv, ok := bc.vals[id]
		if !ok {
			bc.regs.Clear(r)
			continue
		}
		if tv.Uses > 0 && tv.Loc.InRegister() {
			wasWord := tv.Loc.Kind == LocAX
			bc.spillValue(tv)
			if wasWord {
				bc.regs.ClearValue(id)
			}
		}
	}
}

// loadA brings a byte value into the accumulator, evicting whatever
// lives there now
func (bc *B65Compiler) loadA(id string) {
	tv := bc.lookup(id)
	if bc.regs.ValueIn(RegA) == id {
		bc.regs.touch(RegA)
		return
	}
	if r, ok := bc.regs.Holds(id); ok && r != RegA {
		bc.evictReg(RegA)
		if r == RegX {
			bc.asm.Ins("txa")
		} else {
			bc.asm.Ins("tya")
		}
		bc.regs.SetValue(RegA, id)
		return
	}
	bc.evictReg(RegA)
	switch tv.Loc.Kind {
	case LocConst:
		bc.asm.Imm("lda", tv.Loc.Val&0xFF)
	case LocZP, LocAbs, LocSym:
		bc.asm.Mem("lda", tv.Loc.MemRef())
	default:
		bc.ec.AddError(UnresolvableValueError(id, bc.fnName(), bc.curPos))
		bc.asm.Imm("lda", 0)
	}
	bc.regs.SetValue(RegA, id)
}

// pickIndexReg chooses which index register to load into, favoring
// the preferred one, then a free one, then the least recently used
func (bc *B65Compiler) pickIndexReg(prefer CPUReg) CPUReg {
	other := RegY
	if prefer == RegY {
		other = RegX
	}
	if bc.regs.Pinned(prefer) {
		return other
	}
	if bc.regs.Pinned(other) {
		return prefer
	}
	if !bc.regOccupiedLive(prefer) {
		return prefer
	}
	if !bc.regOccupiedLive(other) {
		return other
	}
	return bc.regs.OlderOf(prefer, other)
}

// loadIndex brings a byte value into X or Y for indexed addressing
// and returns the register it landed in
func (bc *B65Compiler) loadIndex(id string, prefer CPUReg) CPUReg {
	if r, ok := bc.regs.Holds(id); ok && r != RegA {
		bc.regs.touch(r)
		return r
	}
	tv := bc.lookup(id)
	t := bc.pickIndexReg(prefer)
	bc.evictReg(t)
	ld, tr := "ldx", "tax"
	if t == RegY {
		ld, tr = "ldy", "tay"
	}
	if bc.regs.ValueIn(RegA) == id {
		bc.asm.Ins(tr)
	} else {
		switch tv.Loc.Kind {
		case LocConst:
			bc.asm.Imm(ld, tv.Loc.Val&0xFF)
		case LocZP, LocAbs, LocSym:
			bc.asm.Mem(ld, tv.Loc.MemRef())
		default:
			bc.ec.AddError(UnresolvableValueError(id, bc.fnName(), bc.curPos))
			bc.asm.Imm(ld, 0)
		}
	}
	bc.regs.SetValue(t, id)
	return t
}

// wordToAX brings a word value into the A/X pair, low byte in A. The
// value's home is untouched; the registers only cache it.
func (bc *B65Compiler) wordToAX(id string) {
	tv := bc.lookup(id)
	if tv.Loc.Kind == LocAX {
		bc.regs.touch(RegA)
		return
	}
	bc.evictReg(RegA)
	bc.evictReg(RegX)
	switch tv.Loc.Kind {
	case LocConst:
		bc.asm.Imm("lda", tv.Loc.Val&0xFF)
		bc.asm.Imm("ldx", (tv.Loc.Val>>8)&0xFF)
	case LocZP, LocAbs, LocSym:
		ref := tv.Loc.MemRef()
		bc.asm.Mem("lda", ref)
		bc.asm.Mem("ldx", ref.Plus(1))
	default:
		bc.ec.AddError(UnresolvableValueError(id, bc.fnName(), bc.curPos))
		bc.asm.Imm("lda", 0)
		bc.asm.Imm("ldx", 0)
	}
	bc.regs.SetValue(RegA, id)
	bc.regs.SetValue(RegX, id)
}
