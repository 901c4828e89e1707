// Completion: 100% - Runtime arithmetic subroutines, emitted once and only when called
package main

// helperOrder fixes the emission order of the runtime helpers
var helperOrder = []string{
	helperMul8, helperDiv8, helperMod8, helperShl8, helperShr8,
	helperMul16, helperDiv16, helperMod16, helperShl16, helperShr16,
}

// emitRuntimeHelpers writes the bodies of every helper some
// instruction called. Byte helpers take the left operand in A and the
// right in scratch 0; word helpers take operands in scratch 2-5; shift
// counts ride in X. Results come back in A or A/X low/high. Helpers
// own the scratch region and may clobber all three registers.
// Division and modulo by zero yield zero.
func (bc *B65Compiler) emitRuntimeHelpers() {
	if len(bc.usedHelpers) == 0 {
		return
	}
	a := bc.asm
	a.Use(SegCode)
	a.Blank()
	a.Banner("runtime helpers")
	for _, h := range helperOrder {
		if !bc.usedHelpers[h] {
			continue
		}
		a.Blank()
		switch h {
		case helperMul8:
			bc.emitMul8()
		case helperDiv8:
			bc.emitDivMod8(false)
		case helperMod8:
			bc.emitDivMod8(true)
		case helperShl8:
			bc.emitShift8("asl", helperShl8)
		case helperShr8:
			bc.emitShift8("lsr", helperShr8)
		case helperMul16:
			bc.emitMul16()
		case helperDiv16:
			bc.emitDivMod16(false)
		case helperMod16:
			bc.emitDivMod16(true)
		case helperShl16:
			bc.emitShift16(helperShl16)
		case helperShr16:
			bc.emitShift16(helperShr16)
		}
	}
}

// emitMul8 multiplies A by scratch 0, low 8 bits of the product in A
func (bc *B65Compiler) emitMul8() {
	a := bc.asm
	s0, s1 := ZPRef(bc.s(0)), ZPRef(bc.s(1))
	a.Label(helperMul8)
	loop := a.Cheap()
	skip := a.Cheap()
	a.Mem("sta", s1)
	a.Imm("lda", 0)
	a.Imm("ldx", 8)
	a.CheapLabel(loop)
	a.Mem("lsr", s0)
	a.Branch("bcc", skip)
	a.Ins("clc")
	a.Mem("adc", s1)
	a.CheapLabel(skip)
	a.Mem("asl", s1)
	a.Ins("dex")
	a.Branch("bne", loop)
	a.Ins("rts")
}

// emitDivMod8 divides A by scratch 0 with restoring division. The
// quotient grows in the bits the dividend shift vacates.
func (bc *B65Compiler) emitDivMod8(mod bool) {
	a := bc.asm
	s0, s1 := ZPRef(bc.s(0)), ZPRef(bc.s(1))
	name := helperDiv8
	if mod {
		name = helperMod8
	}
	a.Label(name)
	zero := a.Cheap()
	loop := a.Cheap()
	skip := a.Cheap()
	a.Mem("ldy", s0)
	a.Branch("beq", zero)
	a.Imm("ldx", 8)
	a.Mem("sta", s1)
	a.Imm("lda", 0)
	a.CheapLabel(loop)
	a.Mem("asl", s1)
	a.Ins("rol")
	a.Mem("cmp", s0)
	a.Branch("bcc", skip)
	a.Mem("sbc", s0)
	if !mod {
		a.Mem("inc", s1)
	}
	a.CheapLabel(skip)
	a.Ins("dex")
	a.Branch("bne", loop)
	if !mod {
		a.Mem("lda", s1)
	}
	a.Ins("rts")
	a.CheapLabel(zero)
	a.Imm("lda", 0)
	a.Ins("rts")
}

// emitShift8 shifts A by the count in X
func (bc *B65Compiler) emitShift8(mn, name string) {
	a := bc.asm
	a.Label(name)
	done := a.Cheap()
	big := a.Cheap()
	loop := a.Cheap()
	a.Imm("cpx", 0)
	a.Branch("beq", done)
	a.Imm("cpx", 8)
	a.Branch("bcs", big)
	a.CheapLabel(loop)
	a.Ins(mn)
	a.Ins("dex")
	a.Branch("bne", loop)
	a.CheapLabel(done)
	a.Ins("rts")
	a.CheapLabel(big)
	a.Imm("lda", 0)
	a.Ins("rts")
}

// emitMul16 multiplies scratch 2/3 by scratch 4/5, low 16 bits of the
// product in A/X
func (bc *B65Compiler) emitMul16() {
	a := bc.asm
	s2, s3 := ZPRef(bc.s(2)), ZPRef(bc.s(3))
	s4, s5 := ZPRef(bc.s(4)), ZPRef(bc.s(5))
	s6, s7 := ZPRef(bc.s(6)), ZPRef(bc.s(7))
	a.Label(helperMul16)
	loop := a.Cheap()
	skip := a.Cheap()
	a.Imm("lda", 0)
	a.Mem("sta", s6)
	a.Mem("sta", s7)
	a.Imm("ldx", 16)
	a.CheapLabel(loop)
	a.Mem("lsr", s5)
	a.Mem("ror", s4)
	a.Branch("bcc", skip)
	a.Mem("lda", s6)
	a.Ins("clc")
	a.Mem("adc", s2)
	a.Mem("sta", s6)
	a.Mem("lda", s7)
	a.Mem("adc", s3)
	a.Mem("sta", s7)
	a.CheapLabel(skip)
	a.Mem("asl", s2)
	a.Mem("rol", s3)
	a.Ins("dex")
	a.Branch("bne", loop)
	a.Mem("lda", s6)
	a.Mem("ldx", s7)
	a.Ins("rts")
}

// emitDivMod16 divides scratch 2/3 by scratch 4/5 with restoring
// division. The dividend pair doubles as the quotient register; the
// remainder accumulates in scratch 6/7.
func (bc *B65Compiler) emitDivMod16(mod bool) {
	a := bc.asm
	s2, s3 := ZPRef(bc.s(2)), ZPRef(bc.s(3))
	s4, s5 := ZPRef(bc.s(4)), ZPRef(bc.s(5))
	s6, s7 := ZPRef(bc.s(6)), ZPRef(bc.s(7))
	name := helperDiv16
	if mod {
		name = helperMod16
	}
	a.Label(name)
	zero := a.Cheap()
	loop := a.Cheap()
	skip := a.Cheap()
	a.Mem("lda", s4)
	a.Mem("ora", s5)
	a.Branch("beq", zero)
	a.Imm("lda", 0)
	a.Mem("sta", s6)
	a.Mem("sta", s7)
	a.Imm("ldx", 16)
	a.CheapLabel(loop)
	a.Mem("asl", s2)
	a.Mem("rol", s3)
	a.Mem("rol", s6)
	a.Mem("rol", s7)
	a.Mem("lda", s6)
	a.Ins("sec")
	a.Mem("sbc", s4)
	a.Ins("tay")
	a.Mem("lda", s7)
	a.Mem("sbc", s5)
	a.Branch("bcc", skip)
	a.Mem("sta", s7)
	a.Mem("sty", s6)
	if !mod {
		a.Mem("inc", s2)
	}
	a.CheapLabel(skip)
	a.Ins("dex")
	a.Branch("bne", loop)
	if mod {
		a.Mem("lda", s6)
		a.Mem("ldx", s7)
	} else {
		a.Mem("lda", s2)
		a.Mem("ldx", s3)
	}
	a.Ins("rts")
	a.CheapLabel(zero)
	a.Imm("lda", 0)
	a.Ins("tax")
	a.Ins("rts")
}

// emitShift16 shifts the scratch 2/3 pair by the count in X
func (bc *B65Compiler) emitShift16(name string) {
	a := bc.asm
	s2, s3 := ZPRef(bc.s(2)), ZPRef(bc.s(3))
	left := name == helperShl16
	a.Label(name)
	out := a.Cheap()
	big := a.Cheap()
	loop := a.Cheap()
	a.Imm("cpx", 0)
	a.Branch("beq", out)
	a.Imm("cpx", 16)
	a.Branch("bcs", big)
	a.CheapLabel(loop)
	if left {
		a.Mem("asl", s2)
		a.Mem("rol", s3)
	} else {
		a.Mem("lsr", s3)
		a.Mem("ror", s2)
	}
	a.Ins("dex")
	a.Branch("bne", loop)
	a.CheapLabel(out)
	a.Mem("lda", s2)
	a.Mem("ldx", s3)
	a.Ins("rts")
	a.CheapLabel(big)
	a.Imm("lda", 0)
	a.Ins("tax")
	a.Ins("rts")
}
