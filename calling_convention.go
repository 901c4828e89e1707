// Completion: 100% - Zero-page parameter window ABI: packing, arg staging, call lowering
package main

import "strings"

// The calling convention packs every signature into one shared
// zero-page window: byte parameters take 1 byte, word parameters 2,
// declaration order, no padding. Byte results return in A, word
// results in A (low) and X (high). The window, like the other zero
// page regions, is owned by whichever activation is running, so a
// caller treats it as clobbered across any call.

// paramWindow lays out a signature in the parameter window and
// returns each parameter's zero-page address
func (bc *B65Compiler) paramWindow(params []ILParam, fn string, pos SourceLocation) ([]uint8, bool) {
	win := bc.machine.ZeroPage.Params
	addrs := make([]uint8, len(params))
	off := 0
	for i, p := range params {
		addrs[i] = uint8(win.Start + off)
		off += p.Type.Size()
	}
	if off > win.Size() {
		bc.ec.AddError(ParamWindowOverflowError(fn, off, win.Size(), pos))
		return nil, false
	}
	return addrs, true
}

// valueType returns a value's IL type, defaulting to byte when the
// stream never declared one
func (bc *B65Compiler) valueType(id string) ILType {
	if t, ok := bc.types[id]; ok && t != TypeVoid {
		return t
	}
	return TypeByte
}

// callTarget mangles a callee name into its assembly label. A dotted
// name lives in another module and turns into an import.
func (bc *B65Compiler) callTarget(sym string) string {
	if strings.Contains(sym, ".") {
		lbl := strings.ReplaceAll(sym, ".", "_")
		bc.asm.Import(lbl)
		return lbl
	}
	return bc.funcLabel(sym)
}

// lowerCall stages arguments into the callee's window, issues the
// jsr and homes the result. Everything live leaves the registers
// first; argument staging is a parallel copy, so a source sitting
// inside the window (a passed-through parameter, typically) is parked
// before the window changes, and an argument already in its slot
// costs nothing.
func (bc *B65Compiler) lowerCall(in *Instr) {
	callee := bc.mod.Function(in.Sym)
	var params []ILParam
	if callee != nil {
		params = callee.Params
	} else {
		params = make([]ILParam, len(in.Args))
		for i, a := range in.Args {
			params[i] = ILParam{Name: a, Type: bc.valueType(a)}
		}
	}
	if len(in.Args) != len(params) {
		// Arity mismatches were already reported; keep the books
		// straight and move on.
		for _, a := range in.Args {
			bc.consume(a)
		}
		return
	}
	addrs, ok := bc.paramWindow(params, in.Sym, in.Pos)
	if !ok {
		for _, a := range in.Args {
			bc.consume(a)
		}
		return
	}

	bc.spillLiveRegs()

	moves := make([]phiMove, 0, len(in.Args))
	for i, a := range in.Args {
		if bc.valueType(a) != params[i].Type {
			bc.ec.AddError(MalformedILError("argument '"+a+"' does not match the parameter width of '"+in.Sym+"'", in.Pos))
			bc.consume(a)
			continue
		}
		moves = append(moves, phiMove{dst: addrs[i], src: a, typ: params[i].Type})
	}
	bc.emitPhiMoves(moves)

	bc.asm.Jsr(bc.callTarget(in.Sym))
	bc.regs.Reset()
	bc.stats.Calls++

	if in.ID == "" || in.Type == TypeVoid {
		return
	}
	if in.Type == TypeWord {
		bc.define(in.ID, TypeWord, AXLoc())
		bc.regs.SetValue(RegA, in.ID)
		bc.regs.SetValue(RegX, in.ID)
	} else {
		bc.define(in.ID, TypeByte, RegLoc(RegA))
		bc.regs.SetValue(RegA, in.ID)
	}
}
