// Completion: 100% - Short-circuit logic: lazy right-hand sides, canonical results
package main

// testA forces the Z flag to reflect the accumulator. Loads that find
// the value already resident emit nothing, so flags cannot be trusted
// without this.
func (bc *B65Compiler) testA() {
	bc.asm.Imm("cmp", 0)
}

// lowerLogNot canonicalizes zero to one and nonzero to zero
func (bc *B65Compiler) lowerLogNot(in *Instr) {
	bc.takeA(in.Lhs)
	bc.testA()
	t := bc.asm.Cheap()
	d := bc.asm.Cheap()
	bc.asm.Branch("beq", t)
	bc.asm.Imm("lda", 0)
	bc.asm.Jmp(d)
	bc.asm.CheapLabel(t)
	bc.asm.Imm("lda", 1)
	bc.asm.CheapLabel(d)
	bc.define(in.ID, TypeByte, RegLoc(RegA))
	bc.regs.SetValue(RegA, in.ID)
}

// lowerShortCircuit emits land and lor. The right-hand side is a lazy
// instruction body that only runs when the left side does not decide
// the result. Live values are parked in memory first so both paths
// agree on every home.
func (bc *B65Compiler) lowerShortCircuit(in *Instr) {
	isAnd := in.Op == OpLogAnd

	bc.spillLiveRegs()
	bc.loadA(in.Lhs)
	bc.testA()
	bc.consume(in.Lhs)

	rhs := bc.asm.Cheap()
	fin := bc.asm.Cheap()
	if isAnd {
		// Nonzero left: the right side decides.
		bc.asm.Branch("bne", rhs)
		bc.asm.Imm("lda", 0)
		bc.asm.Jmp(fin)
	} else {
		// Zero left: the right side decides.
		bc.asm.Branch("beq", rhs)
		bc.asm.Imm("lda", 1)
		bc.asm.Jmp(fin)
	}
	bc.asm.CheapLabel(rhs)
	for _, sub := range in.Body {
		bc.lowerInstr(sub)
		if bc.ec.ShouldStop() {
			return
		}
	}
	bc.loadA(in.Rhs)
	bc.testA()
	bc.consume(in.Rhs)
	f := bc.asm.Cheap()
	bc.asm.Branch("beq", f)
	bc.asm.Imm("lda", 1)
	bc.asm.Jmp(fin)
	bc.asm.CheapLabel(f)
	bc.asm.Imm("lda", 0)
	bc.asm.CheapLabel(fin)

	// Register state depends on which path ran.
	bc.regs.Reset()
	bc.define(in.ID, TypeByte, RegLoc(RegA))
	bc.regs.SetValue(RegA, in.ID)
}
