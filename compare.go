// Completion: 100% - Comparison lowering: canonical 0/1 results, hi-first word compares
package main

// emitBoolTail turns CPU flags into a canonical 0/1 in the
// accumulator: taken branch means true
func (bc *B65Compiler) emitBoolTail(br string) {
	t := bc.asm.Cheap()
	d := bc.asm.Cheap()
	bc.asm.Branch(br, t)
	bc.asm.Imm("lda", 0)
	bc.asm.Jmp(d)
	bc.asm.CheapLabel(t)
	bc.asm.Imm("lda", 1)
	bc.asm.CheapLabel(d)
}

// lowerCompare dispatches on operand width. All comparisons are
// unsigned; the result is always a canonical 0/1 byte.
func (bc *B65Compiler) lowerCompare(in *Instr) {
	lt := bc.lookup(in.Lhs)
	if lt.Type == TypeWord {
		bc.lowerWordCompare(in)
	} else {
		bc.lowerByteCompare(in)
	}
}

// lowerByteCompare emits cmp plus a flag-to-bool tail. Greater-than
// and less-or-equal reuse the less-than shape with swapped operands.
func (bc *B65Compiler) lowerByteCompare(in *Instr) {
	lhs, rhs := in.Lhs, in.Rhs
	var br string
	switch in.Bin {
	case BinEq:
		br = "beq"
	case BinNe:
		br = "bne"
	case BinLt:
		br = "bcc"
	case BinGe:
		br = "bcs"
	case BinGt:
		lhs, rhs = rhs, lhs
		br = "bcc"
	case BinLe:
		lhs, rhs = rhs, lhs
		br = "bcs"
	}
	bc.takeA(lhs)
	rhsOp := bc.byteOperand(rhs)
	bc.aluMem("cmp", rhsOp)
	bc.consume(rhs)
	bc.emitBoolTail(br)
	bc.define(in.ID, TypeByte, RegLoc(RegA))
	bc.regs.SetValue(RegA, in.ID)
}

// emitWordLess leaves (l < r) ? 1 : 0 in the accumulator. High bytes
// decide first; equal high bytes fall through to the low bytes.
func (bc *B65Compiler) emitWordLess(l, r string) {
	llo, lhi := bc.wordHalves(l)
	rlo, rhi := bc.wordHalves(r)
	bc.evictReg(RegA)
	t := bc.asm.Cheap()
	f := bc.asm.Cheap()
	d := bc.asm.Cheap()
	bc.aluMem("lda", lhi)
	bc.aluMem("cmp", rhi)
	bc.asm.Branch("bcc", t)
	bc.asm.Branch("bne", f)
	bc.aluMem("lda", llo)
	bc.aluMem("cmp", rlo)
	bc.asm.Branch("bcc", t)
	bc.asm.CheapLabel(f)
	bc.asm.Imm("lda", 0)
	bc.asm.Jmp(d)
	bc.asm.CheapLabel(t)
	bc.asm.Imm("lda", 1)
	bc.asm.CheapLabel(d)
	bc.consume(l)
	bc.consume(r)
}

// emitWordEq leaves (l == r) ? 1 : 0 in the accumulator
func (bc *B65Compiler) emitWordEq(l, r string, negate bool) {
	llo, lhi := bc.wordHalves(l)
	rlo, rhi := bc.wordHalves(r)
	bc.evictReg(RegA)
	f := bc.asm.Cheap()
	d := bc.asm.Cheap()
	yes, no := 1, 0
	if negate {
		yes, no = 0, 1
	}
	bc.aluMem("lda", llo)
	bc.aluMem("cmp", rlo)
	bc.asm.Branch("bne", f)
	bc.aluMem("lda", lhi)
	bc.aluMem("cmp", rhi)
	bc.asm.Branch("bne", f)
	bc.asm.Imm("lda", yes)
	bc.asm.Jmp(d)
	bc.asm.CheapLabel(f)
	bc.asm.Imm("lda", no)
	bc.asm.CheapLabel(d)
	bc.consume(l)
	bc.consume(r)
}

// lowerWordCompare builds all six word comparisons from the less-than
// and equality shapes
func (bc *B65Compiler) lowerWordCompare(in *Instr) {
	switch in.Bin {
	case BinEq:
		bc.emitWordEq(in.Lhs, in.Rhs, false)
	case BinNe:
		bc.emitWordEq(in.Lhs, in.Rhs, true)
	case BinLt:
		bc.emitWordLess(in.Lhs, in.Rhs)
	case BinGt:
		bc.emitWordLess(in.Rhs, in.Lhs)
	case BinGe:
		bc.emitWordLess(in.Lhs, in.Rhs)
		bc.asm.Imm("eor", 0x01)
	case BinLe:
		bc.emitWordLess(in.Rhs, in.Lhs)
		bc.asm.Imm("eor", 0x01)
	}
	bc.define(in.ID, TypeByte, RegLoc(RegA))
	bc.regs.SetValue(RegA, in.ID)
}
