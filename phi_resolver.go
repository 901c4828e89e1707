// Completion: 100% - Phi lowering: fixed merge cells, simultaneous edge copies, branch trampolines
package main

import "fmt"

// assignPhiCells gives every phi in the current function a fixed
// zero-page merge cell and homes the phi result there. Cells live for
// the whole function, so joins deep in loops keep stable addresses.
func (bc *B65Compiler) assignPhiCells() {
	for _, b := range bc.fn.Blocks {
		for _, phi := range b.Phis() {
			size := phi.Type.Size()
			cell, ok := bc.phis.Alloc(size)
			if !ok {
				bc.ec.AddError(ZeroPageExhaustedError(bc.phis.Region(), bc.fnName(), size, bc.phis.Avail(), phi.Pos))
				cell = uint8(bc.phis.base)
			}
			bc.phiCell[phi.ID] = cell
			bc.defineFixed(phi.ID, phi.Type, cell)
		}
	}
}

// phiMove is one copy a control flow edge performs
type phiMove struct {
	dst uint8
	src string
	typ ILType
}

// phiMoves collects the copies needed when control reaches succ from
// the predecessor labeled pred
func (bc *B65Compiler) phiMoves(pred string, succ *ILBlock) []phiMove {
	if succ == nil {
		return nil
	}
	var moves []phiMove
	for _, phi := range succ.Phis() {
		src, ok := phi.Sources[pred]
		if !ok {
			continue
		}
		cell, ok := bc.phiCell[phi.ID]
		if !ok {
			continue
		}
		moves = append(moves, phiMove{dst: cell, src: src, typ: phi.Type})
	}
	return moves
}

// emitPhiMoves performs an edge's copies. The copies read their
// sources simultaneously in the IL, so a source another copy's cell
// would overwrite is staged in the spill pool before any cell changes.
func (bc *B65Compiler) emitPhiMoves(moves []phiMove) {
	if len(moves) == 0 {
		return
	}
	written := make(map[uint16]bool)
	for _, m := range moves {
		written[uint16(m.dst)] = true
		if m.typ == TypeWord {
			written[uint16(m.dst)+1] = true
		}
	}

	staged := make(map[string]uint8)
	var temps []uint8
	for _, m := range moves {
		tv := bc.lookup(m.src)
		if tv.Loc.Kind != LocZP {
			continue
		}
		if tv.Loc.Addr == uint16(m.dst) {
			continue
		}
		clobbered := written[tv.Loc.Addr] || (m.typ == TypeWord && written[tv.Loc.Addr+1])
		if !clobbered {
			continue
		}
		if _, ok := staged[m.src]; ok {
			continue
		}
		size := m.typ.Size()
		tmp := bc.allocSpill(size)
		src := tv.Loc.MemRef()
		bc.evictReg(RegA)
		bc.asm.Mem("lda", src)
		bc.asm.Mem("sta", ZPRef(tmp))
		if size == 2 {
			bc.asm.Mem("lda", src.Plus(1))
			bc.asm.Mem("sta", ZPRef(tmp+1))
		}
		bc.regs.Clear(RegA)
		staged[m.src] = tmp
		temps = append(temps, tmp)
	}

	for _, m := range moves {
		tv := bc.lookup(m.src)
		dst := ZPRef(m.dst)
		if tmp, ok := staged[m.src]; ok {
			bc.evictReg(RegA)
			bc.asm.Mem("lda", ZPRef(tmp))
			bc.asm.Mem("sta", dst)
			if m.typ == TypeWord {
				bc.asm.Mem("lda", ZPRef(tmp+1))
				bc.asm.Mem("sta", dst.Plus(1))
			}
			bc.regs.Clear(RegA)
			bc.consume(m.src)
			continue
		}
		if tv.Loc.Kind == LocZP && tv.Loc.Addr == uint16(m.dst) {
			// The value already lives in the cell.
			bc.consume(m.src)
			continue
		}
		if m.typ == TypeWord {
			lo, hi := bc.wordHalves(m.src)
			bc.evictReg(RegA)
			bc.aluMem("lda", lo)
			bc.asm.Mem("sta", dst)
			bc.aluMem("lda", hi)
			bc.asm.Mem("sta", dst.Plus(1))
			bc.regs.Clear(RegA)
		} else {
			op := bc.byteOperand(m.src)
			bc.evictReg(RegA)
			bc.aluMem("lda", op)
			bc.asm.Mem("sta", dst)
			bc.regs.Clear(RegA)
		}
		bc.consume(m.src)
	}

	for i := len(temps) - 1; i >= 0; i-- {
		bc.spill.Free(temps[i])
	}
}

// lowerJmpEdge transfers control unconditionally, performing the
// edge's phi copies inline before the jump
func (bc *B65Compiler) lowerJmpEdge(pred *ILBlock, target string) {
	bc.emitPhiMoves(bc.phiMoves(pred.Name, bc.blocks[target]))
	bc.asm.Jmp(bc.blockLabel(target))
}

// branchEdgeTarget resolves where a conditional branch should aim: the
// block itself when the edge carries no phi copies, otherwise a fresh
// trampoline label the caller must emit with emitEdgeTrampoline
func (bc *B65Compiler) branchEdgeTarget(pred *ILBlock, target string) (string, []phiMove) {
	moves := bc.phiMoves(pred.Name, bc.blocks[target])
	if len(moves) == 0 {
		return bc.blockLabel(target), nil
	}
	bc.edgeN++
	return fmt.Sprintf("%s_e%d", bc.fnLabel, bc.edgeN), moves
}

// emitEdgeTrampoline lands a conditional edge that carries phi copies:
// the copies run here, off the fall-through path, then control moves
// on to the real block
func (bc *B65Compiler) emitEdgeTrampoline(label, target string, moves []phiMove) {
	bc.asm.Label(label)
	bc.emitPhiMoves(moves)
	bc.asm.Jmp(bc.blockLabel(target))
}
