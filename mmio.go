// Completion: 100% - Memory-mapped hardware: declaration flattening and volatile access lowering
package main

import (
	"fmt"
	"strings"
)

// HwSym is one resolved hardware access point. Declarations flatten to
// these before lowering starts; struct and explicit fields each get
// their own entry keyed "decl.field".
type HwSym struct {
	Base   uint16
	Width  ILType
	Count  int
	Stride int
	RO     bool
}

// hwSymName renders the source-level name of an access point
func hwSymName(sym, field string) string {
	if field == "" {
		return sym
	}
	return sym + "." + field
}

// resolveHardware flattens the module's hardware declarations into the
// access point table and checks each against what the addressing modes
// and the machine profile can support
func (bc *B65Compiler) resolveHardware() {
	bc.hw = make(map[string]*HwSym)
	for _, h := range bc.mod.Hardware {
		switch h.Form {
		case HwSingle:
			bc.addHwSym(h.Name, h.Addr, h.Type, 1, h.ReadOnly, h.Pos)
		case HwRange:
			count := h.Count
			if count < 1 {
				count = 1
			}
			bc.addHwSym(h.Name, h.Addr, h.Type, count, h.ReadOnly, h.Pos)
		case HwStruct:
			off := 0
			for i := range h.Fields {
				f := &h.Fields[i]
				count := f.Count
				if count < 1 {
					count = 1
				}
				bc.addHwSym(h.Name+"."+f.Name, h.Addr+uint16(off), f.Type, count, h.ReadOnly || f.ReadOnly, h.Pos)
				off += f.Type.Size() * count
			}
		case HwExplicit:
			for i := range h.Fields {
				f := &h.Fields[i]
				count := f.Count
				if count < 1 {
					count = 1
				}
				bc.addHwSym(h.Name+"."+f.Name, f.Addr, f.Type, count, h.ReadOnly || f.ReadOnly, h.Pos)
			}
		}
	}
}

// addHwSym registers one access point. Ranges must stay reachable by a
// byte index, and anything landing in the zero page gets checked
// against the regions the generated code owns.
func (bc *B65Compiler) addHwSym(name string, base uint16, t ILType, count int, ro bool, pos SourceLocation) {
	stride := t.Size()
	span := count * stride
	if count > 1 && span > 256 {
		bc.ec.AddError(CompilerError{
			Level:    LevelError,
			Category: CategoryHardware,
			Message:  fmt.Sprintf("hardware range '%s' spans %d bytes, more than indexed addressing can reach", name, span),
			Location: pos,
			Context: ErrorContext{
				Suggestion: "split the declaration or reduce the element count to fit 256 bytes",
			},
		})
	}
	if int(base)+span-1 > 0xFFFF {
		bc.ec.AddError(CompilerError{
			Level:    LevelError,
			Category: CategoryHardware,
			Message:  fmt.Sprintf("hardware range '%s' at $%04x extends past the top of memory", name, base),
			Location: pos,
		})
	}
	bc.hw[name] = &HwSym{Base: base, Width: t, Count: count, Stride: stride, RO: ro}

	if int(base) >= 0x100 {
		return
	}
	hwEnd := int(base) + span - 1
	if hwEnd > 0xFF {
		hwEnd = 0xFF
	}
	zp := bc.machine.ZeroPage
	regions := []struct {
		name string
		r    ZPRange
	}{
		{"scratch", zp.Scratch},
		{"params", zp.Params},
		{"locals", zp.Locals},
		{"phi", zp.Phi},
		{"spill", zp.Spill},
		{"isr_spill", zp.IsrSpill},
	}
	for _, reg := range regions {
		if reg.r.Size() == 0 {
			continue
		}
		if int(base) <= reg.r.End && hwEnd >= reg.r.Start {
			bc.ec.AddWarning(CompilerError{
				Level:    LevelWarning,
				Category: CategoryHardware,
				Message:  fmt.Sprintf("hardware '%s' at $%02x overlaps the '%s' zero page region", name, base, reg.name),
				Location: pos,
				Context: ErrorContext{
					Suggestion: "move the region in the machine profile or relocate the hardware binding",
				},
			})
			return
		}
	}
}

// hwAccess looks up an access point for a load, store or rmw
func (bc *B65Compiler) hwAccess(sym, field string, pos SourceLocation) (*HwSym, bool) {
	name := hwSymName(sym, field)
	if hw, ok := bc.hw[name]; ok {
		return hw, true
	}
	msg := fmt.Sprintf("unknown hardware location '%s'", name)
	if field == "" {
		for k := range bc.hw {
			if strings.HasPrefix(k, sym+".") {
				msg = fmt.Sprintf("hardware '%s' has named fields and cannot be accessed whole", sym)
				break
			}
		}
	}
	bc.ec.AddError(MalformedILError(msg, pos))
	return nil, false
}

// hwIndexable rejects indexed access to single registers
func (bc *B65Compiler) hwIndexable(hw *HwSym, sym, field string, pos SourceLocation) bool {
	if hw.Count > 1 {
		return true
	}
	bc.ec.AddError(MalformedILError(fmt.Sprintf("indexed access to non-range hardware '%s'", hwSymName(sym, field)), pos))
	return false
}

// lowerLoadHw reads a hardware location. The read is emitted
// unconditionally: hardware reads have side effects, so a dead result
// does not elide them, and the location itself is never cached.
func (bc *B65Compiler) lowerLoadHw(in *Instr) {
	hw, ok := bc.hwAccess(in.Sym, in.Field, in.Pos)
	if !ok {
		return
	}
	base := AbsRef(hw.Base)

	if in.Index == "" {
		if hw.Width == TypeWord {
			slot := bc.allocSpill(2)
			bc.evictReg(RegA)
			bc.asm.Mem("lda", base)
			bc.asm.Mem("sta", ZPRef(slot))
			bc.asm.Mem("lda", base.Plus(1))
			bc.asm.Mem("sta", ZPRef(slot+1))
			bc.regs.Clear(RegA)
			bc.defineOwnedPair(in.ID, slot)
			return
		}
		bc.evictReg(RegA)
		bc.asm.Mem("lda", base)
		bc.define(in.ID, TypeByte, RegLoc(RegA))
		bc.regs.SetValue(RegA, in.ID)
		return
	}

	if !bc.hwIndexable(hw, in.Sym, in.Field, in.Pos) {
		return
	}
	bc.loadRawIndex(in.Index, hw.Stride == 2)
	if hw.Width == TypeWord {
		slot := bc.allocSpill(2)
		bc.evictReg(RegA)
		bc.asm.Mem("lda", base.IndexedBy('x'))
		bc.asm.Mem("sta", ZPRef(slot))
		bc.asm.Mem("lda", base.Plus(1).IndexedBy('x'))
		bc.asm.Mem("sta", ZPRef(slot+1))
		bc.dropIndex()
		bc.regs.Clear(RegA)
		bc.consume(in.Index)
		bc.defineOwnedPair(in.ID, slot)
		return
	}
	bc.evictReg(RegA)
	bc.asm.Mem("lda", base.IndexedBy('x'))
	bc.dropIndex()
	bc.consume(in.Index)
	bc.define(in.ID, TypeByte, RegLoc(RegA))
	bc.regs.SetValue(RegA, in.ID)
}

// lowerStoreHw writes a hardware location, exactly once per byte
func (bc *B65Compiler) lowerStoreHw(in *Instr) {
	hw, ok := bc.hwAccess(in.Sym, in.Field, in.Pos)
	if !ok {
		return
	}
	if hw.RO {
		bc.ec.AddError(ReadOnlyWriteError(hwSymName(in.Sym, in.Field), bc.fnName(), in.Pos))
		return
	}
	dst := AbsRef(hw.Base)
	if in.Index != "" {
		if !bc.hwIndexable(hw, in.Sym, in.Field, in.Pos) {
			return
		}
		bc.loadRawIndex(in.Index, hw.Stride == 2)
		dst = dst.IndexedBy('x')
	}
	if hw.Width == TypeWord {
		bc.storeWordThrough(dst, in.Lhs)
	} else {
		bc.storeByteThrough(dst, in.Lhs)
	}
	if in.Index != "" {
		bc.dropIndex()
		bc.consume(in.Index)
	}
	bc.consume(in.Lhs)
}
