// Completion: 100% - Read-modify-write lowering: one read, one write, helpers rejoin safely
package main

// rmwTgt is a resolved compound-assignment target. The refs are
// unindexed; emission applies the index register when one is in play.
type rmwTgt struct {
	lo     MemRef
	hi     MemRef
	typ    ILType
	index  string // index value id, "" for direct targets
	scaled bool   // word elements: index is doubled
}

func (t rmwTgt) ref(r MemRef) MemRef {
	if t.index != "" {
		return r.IndexedBy('x')
	}
	return r
}

// loadRawIndex puts an index value into X without tagging it, scaling
// byte indices by two for word elements, and pins X
func (bc *B65Compiler) loadRawIndex(id string, scaled bool) {
	idxOp := bc.byteOperand(id)
	if scaled {
		bc.evictReg(RegA)
		bc.evictReg(RegX)
		bc.aluMem("lda", idxOp)
		bc.asm.Ins("asl")
		bc.asm.Ins("tax")
		bc.regs.Clear(RegA)
	} else {
		bc.evictReg(RegX)
		bc.aluMem("ldx", idxOp)
	}
	bc.regs.Pin(RegX)
}

// dropIndex releases the pinned index register
func (bc *B65Compiler) dropIndex() {
	bc.regs.Unpin(RegX)
	bc.regs.Clear(RegX)
}

// resolveRmwTarget turns an rmw instruction's target reference into
// addressable refs, rejecting read-only destinations
func (bc *B65Compiler) resolveRmwTarget(in *Instr) (rmwTgt, bool) {
	var t rmwTgt
	t.typ = in.Type
	t.index = in.Index
	switch in.Ref {
	case RefLocal:
		addr, ok := bc.localAddr[in.Sym]
		if !ok {
			bc.ec.AddError(MalformedILError("rmw to unknown local '"+in.Sym+"'", in.Pos))
			return t, false
		}
		t.typ = bc.localType[in.Sym]
		t.lo = ZPRef(addr)
	case RefGlobal, RefElem:
		if g := bc.mod.Global(in.Sym); g != nil {
			if g.Const {
				bc.ec.AddError(ReadOnlyWriteError(in.Sym, bc.fnName(), in.Pos))
				return t, false
			}
			t.typ = g.Type
		}
		t.lo = SymRef(bc.globalLabel(in.Sym))
		t.scaled = in.Ref == RefElem && t.typ == TypeWord
	case RefHw:
		hw, ok := bc.hwAccess(in.Sym, in.Field, in.Pos)
		if !ok {
			return t, false
		}
		if hw.RO {
			bc.ec.AddError(ReadOnlyWriteError(hwSymName(in.Sym, in.Field), bc.fnName(), in.Pos))
			return t, false
		}
		t.typ = hw.Width
		t.lo = AbsRef(hw.Base)
		t.scaled = in.Index != "" && hw.Stride == 2
	}
	if t.typ == TypeVoid {
		t.typ = TypeByte
	}
	t.hi = t.lo.Plus(1)
	return t, true
}

// lowerRmw updates a storage location in place. The target is read
// exactly once and written exactly once per byte, which is what makes
// compound assignment to hardware registers well defined.
func (bc *B65Compiler) lowerRmw(in *Instr) {
	t, ok := bc.resolveRmwTarget(in)
	if !ok {
		return
	}
	if t.typ == TypeWord {
		bc.rmwWord(in, t)
	} else {
		bc.rmwByte(in, t)
	}
	if t.index != "" {
		bc.consume(t.index)
	}
	bc.consume(in.Rhs)
}

func (bc *B65Compiler) rmwByte(in *Instr, t rmwTgt) {
	switch in.Bin {
	case BinAdd, BinSub, BinAnd, BinOr, BinXor:
		alu := byteALU[in.Bin]
		rhsOp := bc.byteOperand(in.Rhs)
		if t.index != "" {
			bc.loadRawIndex(t.index, t.scaled)
		}
		bc.evictReg(RegA)
		bc.asm.Mem("lda", t.ref(t.lo))
		if alu.pre != "" {
			bc.asm.Ins(alu.pre)
		}
		bc.aluMem(alu.mn, rhsOp)
		bc.asm.Mem("sta", t.ref(t.lo))
		if t.index != "" {
			bc.dropIndex()
		}
		bc.regs.Clear(RegA)

	case BinMul, BinDiv, BinMod:
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
		if t.index != "" {
			bc.loadRawIndex(t.index, t.scaled)
		}
		bc.asm.Mem("lda", t.ref(t.lo))
		if t.index != "" {
			bc.dropIndex()
		}
		bc.asm.Jsr(helper)
		bc.markHelper(helper)
		bc.regs.Reset()
		if t.index != "" {
			// Reloading a scaled index rides through A, so park the
			// result first.
			bc.asm.Mem("sta", ZPRef(bc.s(6)))
			bc.loadRawIndex(t.index, t.scaled)
			bc.asm.Mem("lda", ZPRef(bc.s(6)))
		}
		bc.asm.Mem("sta", t.ref(t.lo))
		if t.index != "" {
			bc.dropIndex()
		}

	case BinShl, BinShr:
		mn := "asl"
		helper := helperShl8
		if in.Bin == BinShr {
			mn = "lsr"
			helper = helperShr8
		}
		if n, ok := bc.constVal(in.Rhs); ok {
			if t.index != "" {
				bc.loadRawIndex(t.index, t.scaled)
			}
			bc.evictReg(RegA)
			bc.asm.Mem("lda", t.ref(t.lo))
			if n >= 8 {
				bc.asm.Imm("lda", 0)
			} else {
				for i := 0; i < n; i++ {
					bc.asm.Ins(mn)
				}
			}
			bc.asm.Mem("sta", t.ref(t.lo))
			if t.index != "" {
				bc.dropIndex()
			}
			bc.regs.Clear(RegA)
			return
		}
		bc.spillLiveRegs()
		countOp := bc.byteOperand(in.Rhs)
		if t.index != "" {
			bc.loadRawIndex(t.index, t.scaled)
		}
		bc.evictReg(RegA)
		bc.asm.Mem("lda", t.ref(t.lo))
		if t.index != "" {
			bc.dropIndex()
		}
		bc.aluMem("ldx", countOp)
		bc.asm.Jsr(helper)
		bc.markHelper(helper)
		bc.regs.Reset()
		if t.index != "" {
			bc.asm.Mem("sta", ZPRef(bc.s(6)))
			bc.loadRawIndex(t.index, t.scaled)
			bc.asm.Mem("lda", ZPRef(bc.s(6)))
		}
		bc.asm.Mem("sta", t.ref(t.lo))
		if t.index != "" {
			bc.dropIndex()
		}
	}
}

func (bc *B65Compiler) rmwWord(in *Instr, t rmwTgt) {
	switch in.Bin {
	case BinAdd, BinSub, BinAnd, BinOr, BinXor:
		alu := byteALU[in.Bin]
		rlo, rhi := bc.wordHalves(in.Rhs)
		if t.index != "" {
			bc.loadRawIndex(t.index, t.scaled)
		}
		bc.evictReg(RegA)
		if alu.pre != "" {
			bc.asm.Ins(alu.pre)
		}
		bc.asm.Mem("lda", t.ref(t.lo))
		bc.aluMem(alu.mn, rlo)
		bc.asm.Mem("sta", t.ref(t.lo))
		bc.asm.Mem("lda", t.ref(t.hi))
		bc.aluMem(alu.mn, rhi)
		bc.asm.Mem("sta", t.ref(t.hi))
		if t.index != "" {
			bc.dropIndex()
		}
		bc.regs.Clear(RegA)

	case BinMul, BinDiv, BinMod:
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
		rlo, rhi := bc.wordHalves(in.Rhs)
		if t.index != "" {
			bc.loadRawIndex(t.index, t.scaled)
		}
		bc.evictReg(RegA)
		bc.asm.Mem("lda", t.ref(t.lo))
		bc.asm.Mem("sta", ZPRef(bc.s(2)))
		bc.asm.Mem("lda", t.ref(t.hi))
		bc.asm.Mem("sta", ZPRef(bc.s(3)))
		if t.index != "" {
			bc.dropIndex()
		}
		bc.aluMem("lda", rlo)
		bc.asm.Mem("sta", ZPRef(bc.s(4)))
		bc.aluMem("lda", rhi)
		bc.asm.Mem("sta", ZPRef(bc.s(5)))
		bc.asm.Jsr(helper)
		bc.markHelper(helper)
		bc.regs.Reset()
		bc.asm.Mem("sta", ZPRef(bc.s(6)))
		bc.asm.Mem("stx", ZPRef(bc.s(7)))
		if t.index != "" {
			bc.loadRawIndex(t.index, t.scaled)
		}
		bc.asm.Mem("lda", ZPRef(bc.s(6)))
		bc.asm.Mem("sta", t.ref(t.lo))
		bc.asm.Mem("lda", ZPRef(bc.s(7)))
		bc.asm.Mem("sta", t.ref(t.hi))
		if t.index != "" {
			bc.dropIndex()
		}
		bc.regs.Clear(RegA)

	case BinShl, BinShr:
		if n, ok := bc.constVal(in.Rhs); ok {
			if t.index != "" {
				bc.loadRawIndex(t.index, t.scaled)
			}
			bc.evictReg(RegA)
			bc.asm.Mem("lda", t.ref(t.lo))
			bc.asm.Mem("sta", ZPRef(bc.s(2)))
			bc.asm.Mem("lda", t.ref(t.hi))
			bc.asm.Mem("sta", ZPRef(bc.s(3)))
			if n >= 16 {
				bc.asm.Imm("lda", 0)
				bc.asm.Mem("sta", ZPRef(bc.s(2)))
				bc.asm.Mem("sta", ZPRef(bc.s(3)))
			} else {
				for i := 0; i < n; i++ {
					if in.Bin == BinShl {
						bc.asm.Mem("asl", ZPRef(bc.s(2)))
						bc.asm.Mem("rol", ZPRef(bc.s(3)))
					} else {
						bc.asm.Mem("lsr", ZPRef(bc.s(3)))
						bc.asm.Mem("ror", ZPRef(bc.s(2)))
					}
				}
			}
			bc.asm.Mem("lda", ZPRef(bc.s(2)))
			bc.asm.Mem("sta", t.ref(t.lo))
			bc.asm.Mem("lda", ZPRef(bc.s(3)))
			bc.asm.Mem("sta", t.ref(t.hi))
			if t.index != "" {
				bc.dropIndex()
			}
			bc.regs.Clear(RegA)
			return
		}
		helper := helperShl16
		if in.Bin == BinShr {
			helper = helperShr16
		}
		bc.spillLiveRegs()
		countOp := bc.byteOperand(in.Rhs)
		if t.index != "" {
			bc.loadRawIndex(t.index, t.scaled)
		}
		bc.evictReg(RegA)
		bc.asm.Mem("lda", t.ref(t.lo))
		bc.asm.Mem("sta", ZPRef(bc.s(2)))
		bc.asm.Mem("lda", t.ref(t.hi))
		bc.asm.Mem("sta", ZPRef(bc.s(3)))
		if t.index != "" {
			bc.dropIndex()
		}
		bc.aluMem("ldx", countOp)
		bc.asm.Jsr(helper)
		bc.markHelper(helper)
		bc.regs.Reset()
		bc.asm.Mem("sta", ZPRef(bc.s(6)))
		bc.asm.Mem("stx", ZPRef(bc.s(7)))
		if t.index != "" {
			bc.loadRawIndex(t.index, t.scaled)
		}
		bc.asm.Mem("lda", ZPRef(bc.s(6)))
		bc.asm.Mem("sta", t.ref(t.lo))
		bc.asm.Mem("lda", ZPRef(bc.s(7)))
		bc.asm.Mem("sta", t.ref(t.hi))
		if t.index != "" {
			bc.dropIndex()
		}
		bc.regs.Clear(RegA)
	}
}
