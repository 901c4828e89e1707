// Completion: 100% - Arithmetic and bitwise lowering for byte and word values
package main

// Runtime helper routine names. Each is emitted once per module, and
// only when some instruction called it.
const (
	helperMul8  = "__mul8"
	helperDiv8  = "__div8"
	helperMod8  = "__mod8"
	helperShl8  = "__shl8"
	helperShr8  = "__shr8"
	helperMul16 = "__mul16"
	helperDiv16 = "__div16"
	helperMod16 = "__mod16"
	helperShl16 = "__shl16"
	helperShr16 = "__shr16"
)

// s returns the address of scratch byte i
func (bc *B65Compiler) s(i int) uint8 {
	return bc.machine.ScratchAddr(i)
}

// markHelper records that a runtime helper is needed. Helpers stage
// their operands in the shared scratch bytes, so a callback reaching
// one gets an advisory: the interrupted code may be inside the same
// helper.
func (bc *B65Compiler) markHelper(name string) {
	if bc.fn != nil && bc.fn.Callback && !bc.isrHelperWarned[name] {
		bc.isrHelperWarned[name] = true
		bc.ec.AddWarning(IsrHelperAdvisory(bc.fnName(), name, bc.curPos))
	}
	bc.usedHelpers[name] = true
	bc.stats.HelperCalls++
}

// defineOwnedPair tracks a word result living in a pool pair the
// value now owns
func (bc *B65Compiler) defineOwnedPair(id string, slot uint8) *TrackedValue {
	tv := bc.define(id, TypeWord, ZPLoc(slot))
	tv.SpillAddr = int(slot)
	return tv
}

// takeA loads a byte value into the accumulator and makes the
// accumulator free to destroy: a live register-only home is parked in
// the pool first, this read is consumed, and the tag dropped.
func (bc *B65Compiler) takeA(id string) {
	bc.loadA(id)
	tv := bc.lookup(id)
	if tv.Uses > 1 && tv.Loc.Kind == LocA {
		bc.spillValue(tv)
	}
	bc.consume(id)
	bc.regs.Clear(RegA)
}

// constVal reports a value's compile-time constant, when it has one
func (bc *B65Compiler) constVal(id string) (int, bool) {
	tv, ok := bc.vals[id]
	if !ok || tv.Loc.Kind != LocConst {
		return 0, false
	}
	return tv.Loc.Val, true
}

// lowerConst tracks a constant. No code: the value materializes at
// its first use.
func (bc *B65Compiler) lowerConst(in *Instr) {
	mask := 0xFF
	if in.Type == TypeWord {
		mask = 0xFFFF
	}
	bc.define(in.ID, in.Type, ConstLoc(in.Val&mask))
}

// lowerCast converts between byte and word
func (bc *B65Compiler) lowerCast(in *Instr) {
	src := bc.lookup(in.Lhs)
	if v, ok := bc.constVal(in.Lhs); ok {
		bc.consume(in.Lhs)
		mask := 0xFF
		if in.Type == TypeWord {
			mask = 0xFFFF
		}
		bc.define(in.ID, in.Type, ConstLoc(v&mask))
		return
	}
	if in.Type == TypeWord && src.Type == TypeByte {
		// Widen: low byte in A, high byte zero in X.
		bc.takeA(in.Lhs)
		bc.evictReg(RegX)
		bc.asm.Imm("ldx", 0)
		bc.define(in.ID, TypeWord, AXLoc())
		bc.regs.SetValue(RegA, in.ID)
		bc.regs.SetValue(RegX, in.ID)
		return
	}
	if in.Type == TypeByte && src.Type == TypeWord {
		// Narrow: keep the low byte.
		if src.Loc.Kind == LocAX && src.Uses == 1 {
			bc.consume(in.Lhs)
			bc.regs.ClearValue(in.Lhs)
			bc.define(in.ID, TypeByte, RegLoc(RegA))
			bc.regs.SetValue(RegA, in.ID)
			return
		}
		lo, _ := bc.wordHalves(in.Lhs)
		bc.evictReg(RegA)
		bc.aluMem("lda", lo)
		bc.consume(in.Lhs)
		bc.define(in.ID, TypeByte, RegLoc(RegA))
		bc.regs.SetValue(RegA, in.ID)
		return
	}
	// Same-width cast behaves as a copy.
	if src.Type == TypeByte {
		bc.takeA(in.Lhs)
		bc.define(in.ID, TypeByte, RegLoc(RegA))
		bc.regs.SetValue(RegA, in.ID)
		return
	}
	lo, hi := bc.wordHalves(in.Lhs)
	slot := bc.allocSpill(2)
	bc.evictReg(RegA)
	bc.aluMem("lda", lo)
	bc.asm.Mem("sta", ZPRef(slot))
	bc.aluMem("lda", hi)
	bc.asm.Mem("sta", ZPRef(slot).Plus(1))
	bc.regs.Clear(RegA)
	bc.consume(in.Lhs)
	bc.defineOwnedPair(in.ID, slot)
}

// lowerNeg emits two's complement negation
func (bc *B65Compiler) lowerNeg(in *Instr) {
	if in.Type == TypeWord {
		lo, hi := bc.wordHalves(in.Lhs)
		slot := bc.allocSpill(2)
		bc.evictReg(RegA)
		bc.asm.Ins("sec")
		bc.asm.Imm("lda", 0)
		bc.aluMem("sbc", lo)
		bc.asm.Mem("sta", ZPRef(slot))
		bc.asm.Imm("lda", 0)
		bc.aluMem("sbc", hi)
		bc.asm.Mem("sta", ZPRef(slot).Plus(1))
		bc.regs.Clear(RegA)
		bc.consume(in.Lhs)
		bc.defineOwnedPair(in.ID, slot)
		return
	}
	bc.takeA(in.Lhs)
	bc.asm.Imm("eor", 0xFF)
	bc.asm.Ins("clc")
	bc.asm.Imm("adc", 0x01)
	bc.define(in.ID, TypeByte, RegLoc(RegA))
	bc.regs.SetValue(RegA, in.ID)
}

// lowerNot emits bitwise complement
func (bc *B65Compiler) lowerNot(in *Instr) {
	if in.Type == TypeWord {
		lo, hi := bc.wordHalves(in.Lhs)
		slot := bc.allocSpill(2)
		bc.evictReg(RegA)
		bc.aluMem("lda", lo)
		bc.asm.Imm("eor", 0xFF)
		bc.asm.Mem("sta", ZPRef(slot))
		bc.aluMem("lda", hi)
		bc.asm.Imm("eor", 0xFF)
		bc.asm.Mem("sta", ZPRef(slot).Plus(1))
		bc.regs.Clear(RegA)
		bc.consume(in.Lhs)
		bc.defineOwnedPair(in.ID, slot)
		return
	}
	bc.takeA(in.Lhs)
	bc.asm.Imm("eor", 0xFF)
	bc.define(in.ID, TypeByte, RegLoc(RegA))
	bc.regs.SetValue(RegA, in.ID)
}

// lowerBin dispatches a binary operation by operator family and width
func (bc *B65Compiler) lowerBin(in *Instr) {
	if in.Bin.IsCompare() {
		bc.lowerCompare(in)
		return
	}
	switch in.Bin {
	case BinAdd, BinSub, BinAnd, BinOr, BinXor:
		if in.Type == TypeWord {
			bc.lowerWordALU(in)
		} else {
			bc.lowerByteALU(in)
		}
	case BinMul, BinDiv, BinMod:
		if in.Type == TypeWord {
			bc.lowerWordHelperOp(in)
		} else {
			bc.lowerByteHelperOp(in)
		}
	case BinShl, BinShr:
		if in.Type == TypeWord {
			bc.lowerWordShift(in)
		} else {
			bc.lowerByteShift(in)
		}
	default:
		bc.ec.AddError(MalformedILError("unsupported operator "+in.Bin.String(), in.Pos))
	}
}

var byteALU = map[BinOp]struct {
	pre string
	mn  string
}{
	BinAdd: {"clc", "adc"},
	BinSub: {"sec", "sbc"},
	BinAnd: {"", "and"},
	BinOr:  {"", "ora"},
	BinXor: {"", "eor"},
}

// lowerByteALU emits single-instruction ALU operations on bytes. When
// the operator commutes and the right operand already sits in the
// accumulator, the operands swap roles to save a reload.
func (bc *B65Compiler) lowerByteALU(in *Instr) {
	alu := byteALU[in.Bin]
	lhs, rhs := in.Lhs, in.Rhs
	if in.Bin.Commutative() && bc.regs.ValueIn(RegA) == rhs {
		lhs, rhs = rhs, lhs
	}
	bc.takeA(lhs)
	rhsOp := bc.byteOperand(rhs)
	if alu.pre != "" {
		bc.asm.Ins(alu.pre)
	}
	bc.aluMem(alu.mn, rhsOp)
	bc.consume(rhs)
	bc.define(in.ID, TypeByte, RegLoc(RegA))
	bc.regs.SetValue(RegA, in.ID)
}

// lowerWordALU emits byte-pair sequences with carry chained from the
// low half to the high half
func (bc *B65Compiler) lowerWordALU(in *Instr) {
	alu := byteALU[in.Bin]
	llo, lhi := bc.wordHalves(in.Lhs)
	rlo, rhi := bc.wordHalves(in.Rhs)
	slot := bc.allocSpill(2)
	bc.evictReg(RegA)
	if alu.pre != "" {
		bc.asm.Ins(alu.pre)
	}
	bc.aluMem("lda", llo)
	bc.aluMem(alu.mn, rlo)
	bc.asm.Mem("sta", ZPRef(slot))
	bc.aluMem("lda", lhi)
	bc.aluMem(alu.mn, rhi)
	bc.asm.Mem("sta", ZPRef(slot).Plus(1))
	bc.regs.Clear(RegA)
	bc.consume(in.Lhs)
	bc.consume(in.Rhs)
	bc.defineOwnedPair(in.ID, slot)
}

// lowerByteHelperOp routes byte multiply, divide and modulo through
// the runtime helpers. The left operand rides in A, the right waits
// in scratch 0.
func (bc *B65Compiler) lowerByteHelperOp(in *Instr) {
	var helper string
	switch in.Bin {
	case BinMul:
		helper = helperMul8
	case BinDiv:
		helper = helperDiv8
	default:
		helper = helperMod8
	}
	bc.spillLiveRegs()
	rhsOp := bc.byteOperand(in.Rhs)
	bc.evictReg(RegA)
	bc.aluMem("lda", rhsOp)
	bc.asm.Mem("sta", ZPRef(bc.s(0)))
	bc.loadA(in.Lhs)
	bc.asm.Jsr(helper)
	bc.markHelper(helper)
	bc.regs.Reset()
	bc.consume(in.Lhs)
	bc.consume(in.Rhs)
	bc.define(in.ID, TypeByte, RegLoc(RegA))
	bc.regs.SetValue(RegA, in.ID)
}

// lowerWordHelperOp routes word multiply, divide and modulo through
// the runtime helpers. Operands wait in scratch 2-5, the result comes
// back in A/X.
func (bc *B65Compiler) lowerWordHelperOp(in *Instr) {
	var helper string
	switch in.Bin {
	case BinMul:
		helper = helperMul16
	case BinDiv:
		helper = helperDiv16
	default:
		helper = helperMod16
	}
	bc.spillLiveRegs()
	llo, lhi := bc.wordHalves(in.Lhs)
	rlo, rhi := bc.wordHalves(in.Rhs)
	bc.evictReg(RegA)
	bc.aluMem("lda", llo)
	bc.asm.Mem("sta", ZPRef(bc.s(2)))
	bc.aluMem("lda", lhi)
	bc.asm.Mem("sta", ZPRef(bc.s(3)))
	bc.aluMem("lda", rlo)
	bc.asm.Mem("sta", ZPRef(bc.s(4)))
	bc.aluMem("lda", rhi)
	bc.asm.Mem("sta", ZPRef(bc.s(5)))
	bc.asm.Jsr(helper)
	bc.markHelper(helper)
	bc.regs.Reset()
	bc.consume(in.Lhs)
	bc.consume(in.Rhs)
	bc.define(in.ID, TypeWord, AXLoc())
	bc.regs.SetValue(RegA, in.ID)
	bc.regs.SetValue(RegX, in.ID)
}

// lowerByteShift emits inline shifts for constant counts and helper
// calls for variable counts
func (bc *B65Compiler) lowerByteShift(in *Instr) {
	mn := "asl"
	helper := helperShl8
	if in.Bin == BinShr {
		mn = "lsr"
		helper = helperShr8
	}
	if n, ok := bc.constVal(in.Rhs); ok {
		bc.consume(in.Rhs)
		bc.takeA(in.Lhs)
		if n >= 8 {
			bc.asm.Imm("lda", 0)
		} else {
			for i := 0; i < n; i++ {
				bc.asm.Ins(mn)
			}
		}
		bc.define(in.ID, TypeByte, RegLoc(RegA))
		bc.regs.SetValue(RegA, in.ID)
		return
	}
	bc.spillLiveRegs()
	bc.loadA(in.Lhs)
	rhsOp := bc.byteOperand(in.Rhs)
	bc.evictReg(RegX)
	bc.aluMem("ldx", rhsOp)
	bc.asm.Jsr(helper)
	bc.markHelper(helper)
	bc.regs.Reset()
	bc.consume(in.Lhs)
	bc.consume(in.Rhs)
	bc.define(in.ID, TypeByte, RegLoc(RegA))
	bc.regs.SetValue(RegA, in.ID)
}

// lowerWordShift shifts a pair in place for constant counts and calls
// the 16-bit helpers for variable counts
func (bc *B65Compiler) lowerWordShift(in *Instr) {
	helper := helperShl16
	if in.Bin == BinShr {
		helper = helperShr16
	}
	if n, ok := bc.constVal(in.Rhs); ok {
		bc.consume(in.Rhs)
		llo, lhi := bc.wordHalves(in.Lhs)
		slot := bc.allocSpill(2)
		lo := ZPRef(slot)
		hi := lo.Plus(1)
		bc.evictReg(RegA)
		if n >= 16 {
			bc.asm.Imm("lda", 0)
			bc.asm.Mem("sta", lo)
			bc.asm.Mem("sta", hi)
		} else {
			bc.aluMem("lda", llo)
			bc.asm.Mem("sta", lo)
			bc.aluMem("lda", lhi)
			bc.asm.Mem("sta", hi)
			for i := 0; i < n; i++ {
				if in.Bin == BinShl {
					bc.asm.Mem("asl", lo)
					bc.asm.Mem("rol", hi)
				} else {
					bc.asm.Mem("lsr", hi)
					bc.asm.Mem("ror", lo)
				}
			}
		}
		bc.regs.Clear(RegA)
		bc.consume(in.Lhs)
		bc.defineOwnedPair(in.ID, slot)
		return
	}
	bc.spillLiveRegs()
	llo, lhi := bc.wordHalves(in.Lhs)
	rhsOp := bc.byteOperand(in.Rhs)
	bc.evictReg(RegA)
	bc.aluMem("lda", llo)
	bc.asm.Mem("sta", ZPRef(bc.s(2)))
	bc.aluMem("lda", lhi)
	bc.asm.Mem("sta", ZPRef(bc.s(3)))
	bc.evictReg(RegX)
	bc.aluMem("ldx", rhsOp)
	bc.asm.Jsr(helper)
	bc.markHelper(helper)
	bc.regs.Reset()
	bc.consume(in.Lhs)
	bc.consume(in.Rhs)
	bc.define(in.ID, TypeWord, AXLoc())
	bc.regs.SetValue(RegA, in.ID)
	bc.regs.SetValue(RegX, in.ID)
}
