// Completion: 100% - Program entry: BASIC stub, init chain, vector binding, halt
package main

import "strconv"

// basicStubDigits finds the SYS operand for a stub loaded at org. The
// stub's own length depends on how many digits the entry address has,
// so the address is solved as a fixpoint. Converges in two rounds for
// any realistic origin.
func basicStubDigits(org int) string {
	d := 4
	for {
		entry := org + 8 + d
		s := strconv.Itoa(entry)
		if len(s) == d {
			return s
		}
		d = len(s)
	}
}

// emitBootstrap writes the startup path of a program image: the
// optional BASIC line, the module init chain, interrupt vector
// binding and the call into main. Libraries have no entry of their
// own, their init routine is chained from the importing program.
func (bc *B65Compiler) emitBootstrap() {
	if bc.mod.Kind != "program" {
		return
	}
	a := bc.asm
	a.Use(SegStartup)
	a.Blank()
	a.Banner("entry")

	if bc.machine.BasicStub {
		digits := basicStubDigits(bc.machine.Org)
		link := bc.machine.Org + 6 + len(digits)
		a.Comment("%d sys %s", 10, digits)
		a.Word(link)
		a.Word(10)
		a.Byte(0x9e)
		a.ByteString(digits)
		a.Byte(0)
		a.Word(0)
	}

	a.Label("__start")
	a.Jsr(initLabel(bc.mod.Name))
	for _, imp := range bc.mod.Imports {
		lbl := initLabel(imp)
		a.Import(lbl)
		a.Jsr(lbl)
	}
	bc.emitVectorInstalls(bc.vectorInstalls())
	a.Jsr(bc.funcLabel("main"))

	if bc.machine.BasicStub {
		a.Ins("rts")
		return
	}
	h := a.Cheap()
	a.CheapLabel(h)
	a.Jmp(h)
}
