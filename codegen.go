// Completion: 100% - Code generator core: module pipeline, block lowering, data emission
package main

import (
	"fmt"
	"strings"
)

// GenStats counts what one generation run produced
type GenStats struct {
	Functions    int
	Instructions int
	Spills       int
	HelperCalls  int
	Calls        int
}

// B65Compiler lowers one validated IL module to ca65 assembly for a
// machine profile. One instance handles one module; per-function state
// is reset as generation moves down the function list.
type B65Compiler struct {
	machine *Machine
	ec      *ErrorCollector
	asm     *Asm

	mod *ILModule
	hw  map[string]*HwSym

	fn          *ILFunction
	fnLabel     string
	blk         *ILBlock
	blocks      map[string]*ILBlock
	vals        map[string]*TrackedValue
	regs        RegisterFile
	uses        map[string]int
	types       map[string]ILType
	localAddr   map[string]uint8
	localType   map[string]ILType
	phiCell     map[string]uint8
	curPos      SourceLocation
	edgeN       int
	spillFailed bool

	spill      *ZPAlloc // active pool: main code or interrupt context
	locals     *ZPAlloc // active locals pool
	phis       *ZPAlloc // active phi cell pool
	spillMain  *ZPAlloc
	spillIsr   *ZPAlloc
	localAlloc *ZPAlloc
	phiAlloc   *ZPAlloc

	usedHelpers     map[string]bool
	isrHelperWarned map[string]bool
	stats       GenStats
}

// NewB65Compiler creates a code generator over one machine profile
func NewB65Compiler(machine *Machine, ec *ErrorCollector, comments bool) *B65Compiler {
	zp := machine.ZeroPage
	return &B65Compiler{
		machine:     machine,
		ec:          ec,
		asm:         NewAsm(comments),
		spillMain:   NewZPAlloc("spill", zp.Spill),
		spillIsr:    NewZPAlloc("isr_spill", zp.IsrSpill),
		localAlloc:  NewZPAlloc("locals", zp.Locals),
		phiAlloc:    NewZPAlloc("phi", zp.Phi),
		usedHelpers: make(map[string]bool),
	}
}

// Stats returns the counters of the last Generate run
func (bc *B65Compiler) Stats() GenStats {
	return bc.stats
}

// Generate lowers a module to assembly text. The boolean is false when
// hard errors were collected; advisories alone never block output.
func (bc *B65Compiler) Generate(mod *ILModule) (string, bool) {
	bc.mod = mod
	ValidateModule(mod, bc.ec)
	if bc.ec.HasErrors() {
		return "", false
	}

	bc.resolveHardware()
	analyzeCallGraph(mod, bc.machine.CallDepthWarn, bc.ec)

	bc.asm.Header(versionString)
	bc.asm.Header(fmt.Sprintf("module %s (%s)", mod.Name, mod.Kind))
	bc.asm.Header(fmt.Sprintf("machine %s, origin $%04x", bc.machine.Name, bc.machine.Org))

	bc.asm.Use(SegCode)
	for _, f := range mod.Funcs {
		bc.genFunction(f)
		if bc.ec.ShouldStop() {
			break
		}
	}

	bc.emitModuleInit()
	bc.emitRuntimeHelpers()
	bc.emitGlobals()
	bc.emitBootstrap()
	bc.emitSymbolDirectives()

	bc.stats.Instructions = bc.asm.InsCount()
	if bc.ec.HasErrors() {
		return "", false
	}
	return bc.asm.String(), true
}

// mangle turns an IL identifier into an assembler-safe symbol
func mangle(s string) string {
	var b strings.Builder
	for i, r := range s {
		ok := r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(i > 0 && r >= '0' && r <= '9')
		if ok {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// funcLabel mangles a local function name. Library symbols carry the
// module prefix so importing programs see one flat namespace.
func (bc *B65Compiler) funcLabel(name string) string {
	if bc.mod.Kind == "library" {
		return mangle(bc.mod.Name) + "_" + mangle(name)
	}
	return mangle(name)
}

// globalLabel mangles a global name, registering an import for dotted
// cross-module references
func (bc *B65Compiler) globalLabel(sym string) string {
	if strings.Contains(sym, ".") {
		lbl := strings.ReplaceAll(sym, ".", "_")
		bc.asm.Import(lbl)
		return lbl
	}
	if bc.mod.Kind == "library" {
		return mangle(bc.mod.Name) + "_" + mangle(sym)
	}
	return mangle(sym)
}

// blockLabel scopes a block name under the current function
func (bc *B65Compiler) blockLabel(name string) string {
	return bc.fnLabel + "_" + mangle(name)
}

// initLabel names a module's global initializer routine
func initLabel(module string) string {
	return "__init_" + mangle(module)
}

func signature(f *ILFunction) string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", p.Name, p.Type)
	}
	b.WriteByte(')')
	if f.Result != TypeVoid {
		fmt.Fprintf(&b, ": %s", f.Result)
	}
	if f.Callback {
		b.WriteString(" callback")
		if f.Vector != "" {
			b.WriteString(" " + f.Vector)
		}
	}
	return b.String()
}

// genFunction lowers one function: fixed homes first, then every
// reachable block in reverse postorder
func (bc *B65Compiler) genFunction(f *ILFunction) {
	bc.fn = f
	bc.fnLabel = bc.funcLabel(f.Name)
	bc.blocks = f.BlockMap()
	bc.vals = make(map[string]*TrackedValue)
	bc.uses = countUses(f)
	bc.types = valueTypes(f)
	bc.localAddr = make(map[string]uint8)
	bc.localType = make(map[string]ILType)
	bc.phiCell = make(map[string]uint8)
	bc.regs.Reset()
	bc.edgeN = 0
	bc.spillFailed = false
	bc.curPos = f.Pos

	bc.spillMain.Reset()
	bc.spillMain.ResetPeak()
	bc.spillIsr.Reset()
	bc.spillIsr.ResetPeak()
	bc.localAlloc.Reset()
	bc.phiAlloc.Reset()
	bc.isrHelperWarned = make(map[string]bool)
	bc.spill = bc.spillMain
	bc.locals = bc.localAlloc
	bc.phis = bc.phiAlloc
	if f.Callback {
		// A handler can fire between any two instructions of the main
		// program, so its locals, phi cells and spills all come from
		// the dedicated interrupt region.
		bc.spill = bc.spillIsr
		bc.locals = bc.spillIsr
		bc.phis = bc.spillIsr
		bc.checkVector(f)
	}

	if addrs, ok := bc.paramWindow(f.Params, f.Name, f.Pos); ok {
		for i, p := range f.Params {
			bc.defineFixed(p.Name, p.Type, addrs[i])
		}
	}

	for _, l := range f.Locals {
		size := l.Type.Size()
		addr, ok := bc.locals.Alloc(size)
		if !ok {
			bc.ec.AddError(ZeroPageExhaustedError(bc.locals.Region(), f.Name, size, bc.locals.Avail(), l.Pos))
			addr = uint8(bc.locals.base)
		}
		bc.localAddr[l.Name] = addr
		bc.localType[l.Name] = l.Type
	}

	bc.assignPhiCells()

	bc.asm.Use(SegCode)
	bc.asm.Blank()
	bc.asm.Banner("%s", signature(f))
	bc.asm.Label(bc.fnLabel)
	if f.Callback {
		bc.callbackPrologue()
	}

	for _, b := range f.ReversePostorder() {
		bc.genBlock(b)
		if bc.ec.ShouldStop() {
			return
		}
	}

	peak := bc.spill.Peak()
	if cap := bc.spill.Cap(); cap > 0 && peak > 0 && peak*100 >= cap*bc.machine.SpillWarnPct {
		bc.ec.AddWarning(SpillPressureAdvisory(f.Name, peak, cap, f.Pos))
	}
	bc.stats.Functions++
}

// genBlock lowers one basic block. Nothing survives in registers
// across block boundaries, so the tags start clean.
func (bc *B65Compiler) genBlock(b *ILBlock) {
	bc.blk = b
	bc.asm.Label(bc.blockLabel(b.Name))
	bc.regs.Reset()
	for _, in := range b.Instrs {
		bc.lowerInstr(in)
		if bc.ec.ShouldStop() {
			return
		}
	}
}

func ilSummary(in *Instr) string {
	s := in.Op.String()
	if in.Sym != "" {
		s += " " + hwSymName(in.Sym, in.Field)
	}
	if in.ID != "" {
		s = in.ID + " = " + s
	}
	return s
}

// lowerInstr dispatches one IL instruction
func (bc *B65Compiler) lowerInstr(in *Instr) {
	bc.curPos = in.Pos
	bc.asm.Comment("%s", ilSummary(in))
	switch in.Op {
	case OpConst:
		bc.lowerConst(in)
	case OpCast:
		bc.lowerCast(in)
	case OpBin:
		bc.lowerBin(in)
	case OpNeg:
		bc.lowerNeg(in)
	case OpNot:
		bc.lowerNot(in)
	case OpLogNot:
		bc.lowerLogNot(in)
	case OpLogAnd, OpLogOr:
		bc.lowerShortCircuit(in)
	case OpLoadLocal:
		bc.lowerLoadLocal(in)
	case OpStoreLocal:
		bc.lowerStoreLocal(in)
	case OpLoadGlobal:
		bc.lowerLoadGlobal(in)
	case OpStoreGlobal:
		bc.lowerStoreGlobal(in)
	case OpLoadElem:
		bc.lowerLoadElem(in)
	case OpStoreElem:
		bc.lowerStoreElem(in)
	case OpLoadHw:
		bc.lowerLoadHw(in)
	case OpStoreHw:
		bc.lowerStoreHw(in)
	case OpRmw:
		bc.lowerRmw(in)
	case OpCall:
		bc.lowerCall(in)
	case OpRet:
		bc.lowerRet(in)
	case OpJmp:
		bc.lowerJmp(in)
	case OpBr:
		bc.lowerBr(in)
	case OpPhi:
		// Homed in its merge cell at function entry; the edges wrote it.
	default:
		bc.ec.AddError(MalformedILError("unknown operation '"+in.Op.String()+"'", in.Pos))
	}
}

// loadScalar reads a byte or word from memory into registers and
// defines the result value there. The copy happens now, so later
// writes to the source never reach the loaded value.
func (bc *B65Compiler) loadScalar(id string, t ILType, ref MemRef) {
	if t == TypeWord {
		bc.evictReg(RegA)
		bc.evictReg(RegX)
		bc.asm.Mem("lda", ref)
		bc.asm.Mem("ldx", ref.Plus(1))
		bc.define(id, TypeWord, AXLoc())
		bc.regs.SetValue(RegA, id)
		bc.regs.SetValue(RegX, id)
		return
	}
	bc.evictReg(RegA)
	bc.asm.Mem("lda", ref)
	bc.define(id, TypeByte, RegLoc(RegA))
	bc.regs.SetValue(RegA, id)
}

func (bc *B65Compiler) lowerLoadLocal(in *Instr) {
	addr, ok := bc.localAddr[in.Sym]
	if !ok {
		bc.ec.AddError(MalformedILError("load from unknown local '"+in.Sym+"'", in.Pos))
		return
	}
	bc.loadScalar(in.ID, bc.localType[in.Sym], ZPRef(addr))
}

func (bc *B65Compiler) lowerStoreLocal(in *Instr) {
	addr, ok := bc.localAddr[in.Sym]
	if !ok {
		bc.ec.AddError(MalformedILError("store to unknown local '"+in.Sym+"'", in.Pos))
		return
	}
	if bc.localType[in.Sym] == TypeWord {
		bc.storeWordThrough(ZPRef(addr), in.Lhs)
	} else {
		bc.storeByteThrough(ZPRef(addr), in.Lhs)
	}
	bc.consume(in.Lhs)
}

func (bc *B65Compiler) lowerLoadGlobal(in *Instr) {
	t := TypeByte
	if g := bc.mod.Global(in.Sym); g != nil {
		t = g.Type
	} else if strings.Contains(in.Sym, ".") {
		t = in.Type
	}
	bc.loadScalar(in.ID, t, SymRef(bc.globalLabel(in.Sym)))
}

func (bc *B65Compiler) lowerStoreGlobal(in *Instr) {
	g := bc.mod.Global(in.Sym)
	if g != nil && g.Const {
		bc.ec.AddError(ReadOnlyWriteError(in.Sym, bc.fnName(), in.Pos))
		return
	}
	t := TypeByte
	if g != nil {
		t = g.Type
	} else {
		t = bc.valueType(in.Lhs)
	}
	dst := SymRef(bc.globalLabel(in.Sym))
	if t == TypeWord {
		bc.storeWordThrough(dst, in.Lhs)
	} else {
		bc.storeByteThrough(dst, in.Lhs)
	}
	bc.consume(in.Lhs)
}

// checkElemBounds warns when a constant index falls outside a global
// whose element count is known
func (bc *B65Compiler) checkElemBounds(g *ILGlobal, n int, pos SourceLocation) {
	if g == nil || g.Count < 1 || n < g.Count {
		return
	}
	bc.ec.AddWarning(CompilerError{
		Level:    LevelWarning,
		Category: CategoryAdvisory,
		Message:  fmt.Sprintf("constant index %d is outside '%s' (%d element(s))", n, g.Name, g.Count),
		Location: pos,
		Context:  ErrorContext{Function: bc.fnName()},
	})
}

func (bc *B65Compiler) lowerLoadElem(in *Instr) {
	g := bc.mod.Global(in.Sym)
	t := TypeByte
	if g != nil {
		t = g.Type
	} else if strings.Contains(in.Sym, ".") {
		t = in.Type
	}
	base := SymRef(bc.globalLabel(in.Sym))

	if n, ok := bc.constVal(in.Index); ok {
		bc.checkElemBounds(g, n, in.Pos)
		bc.consume(in.Index)
		bc.loadScalar(in.ID, t, base.Plus(n*t.Size()))
		return
	}
	if t == TypeWord {
		bc.loadRawIndex(in.Index, true)
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
	r := bc.loadIndex(in.Index, RegY)
	bc.evictReg(RegA)
	idx := byte('y')
	if r == RegX {
		idx = 'x'
	}
	bc.asm.Mem("lda", base.IndexedBy(idx))
	bc.consume(in.Index)
	bc.define(in.ID, TypeByte, RegLoc(RegA))
	bc.regs.SetValue(RegA, in.ID)
}

func (bc *B65Compiler) lowerStoreElem(in *Instr) {
	g := bc.mod.Global(in.Sym)
	if g != nil && g.Const {
		bc.ec.AddError(ReadOnlyWriteError(in.Sym, bc.fnName(), in.Pos))
		return
	}
	t := TypeByte
	if g != nil {
		t = g.Type
	} else {
		t = bc.valueType(in.Lhs)
	}
	base := SymRef(bc.globalLabel(in.Sym))

	if n, ok := bc.constVal(in.Index); ok {
		bc.checkElemBounds(g, n, in.Pos)
		bc.consume(in.Index)
		dst := base.Plus(n * t.Size())
		if t == TypeWord {
			bc.storeWordThrough(dst, in.Lhs)
		} else {
			bc.storeByteThrough(dst, in.Lhs)
		}
		bc.consume(in.Lhs)
		return
	}
	if t == TypeWord {
		bc.loadRawIndex(in.Index, true)
		bc.storeWordThrough(base.IndexedBy('x'), in.Lhs)
		bc.dropIndex()
	} else {
		r := bc.loadIndex(in.Index, RegY)
		idx := byte('y')
		if r == RegX {
			idx = 'x'
		}
		bc.storeByteThrough(base.IndexedBy(idx), in.Lhs)
	}
	bc.consume(in.Index)
	bc.consume(in.Lhs)
}

// lowerRet places the result per the return convention and leaves the
// function. Callbacks restore the interrupted context instead.
func (bc *B65Compiler) lowerRet(in *Instr) {
	if bc.fn.Callback {
		bc.callbackEpilogue()
		return
	}
	if in.Lhs != "" {
		if bc.fn.Result == TypeWord {
			bc.wordToAX(in.Lhs)
		} else {
			bc.loadA(in.Lhs)
		}
		bc.consume(in.Lhs)
	}
	bc.asm.Ins("rts")
}

func (bc *B65Compiler) lowerJmp(in *Instr) {
	bc.spillLiveRegs()
	bc.lowerJmpEdge(bc.blk, in.Target)
	bc.regs.Reset()
}

// lowerBr tests the condition and splits control. The taken edge may
// route through a trampoline when it carries phi copies; the
// fall-through edge performs its copies inline.
func (bc *B65Compiler) lowerBr(in *Instr) {
	bc.spillLiveRegs()
	bc.loadA(in.Cond)
	bc.testA()
	bc.consume(in.Cond)

	thenLabel, thenMoves := bc.branchEdgeTarget(bc.blk, in.Then)
	bc.asm.BranchLong("bne", thenLabel)
	bc.emitPhiMoves(bc.phiMoves(bc.blk.Name, bc.blocks[in.Else]))
	bc.asm.Jmp(bc.blockLabel(in.Else))
	if thenMoves != nil {
		bc.emitEdgeTrampoline(thenLabel, in.Then, thenMoves)
	}
	bc.regs.Reset()
}

// globalInitValues expands a global's initializer list to one value
// per element
func globalInitValues(g *ILGlobal) []int {
	count := g.Count
	if count < 1 {
		count = 1
	}
	if len(g.Init) == 0 {
		return nil
	}
	if len(g.Init) == 1 && count > 1 {
		vals := make([]int, count)
		for i := range vals {
			vals[i] = g.Init[0]
		}
		return vals
	}
	return g.Init
}

// emitModuleInit writes the routine that resets every mutable global
// to its declared initial value. The program entry runs it before
// main, so restarting an image behaves like a fresh load.
func (bc *B65Compiler) emitModuleInit() {
	a := bc.asm
	a.Use(SegCode)
	a.Blank()
	a.Banner("global initializers")
	a.Label(initLabel(bc.mod.Name))
	prev := -1
	for _, g := range bc.mod.Globals {
		if g.Const || len(g.Init) == 0 {
			continue
		}
		base := SymRef(bc.globalLabel(g.Name))
		for i, v := range globalInitValues(g) {
			if g.Type == TypeWord {
				lo, hi := v&0xFF, (v>>8)&0xFF
				if lo != prev {
					a.Imm("lda", lo)
					prev = lo
				}
				a.Mem("sta", base.Plus(i*2))
				if hi != prev {
					a.Imm("lda", hi)
					prev = hi
				}
				a.Mem("sta", base.Plus(i*2+1))
			} else {
				if v&0xFF != prev {
					a.Imm("lda", v&0xFF)
					prev = v & 0xFF
				}
				a.Mem("sta", base.Plus(i))
			}
		}
	}
	a.Ins("rts")
}

// emitGlobals lays out constant tables in RODATA and reserves mutable
// storage in BSS
func (bc *B65Compiler) emitGlobals() {
	a := bc.asm
	var ro, bss []*ILGlobal
	for _, g := range bc.mod.Globals {
		if g.Const {
			ro = append(ro, g)
		} else {
			bss = append(bss, g)
		}
	}
	if len(ro) > 0 {
		a.Use(SegRodata)
		for _, g := range ro {
			a.Label(bc.globalLabel(g.Name))
			vals := globalInitValues(g)
			for i := 0; i < len(vals); i += 8 {
				end := i + 8
				if end > len(vals) {
					end = len(vals)
				}
				if g.Type == TypeWord {
					a.Word(vals[i:end]...)
				} else {
					a.Byte(vals[i:end]...)
				}
			}
		}
	}
	if len(bss) > 0 {
		a.Use(SegBss)
		for _, g := range bss {
			a.Label(bc.globalLabel(g.Name))
			a.Res(g.SizeBytes())
		}
	}
}

// emitSymbolDirectives registers the module's exported symbols.
// Imports accumulated during lowering are already in the emitter.
func (bc *B65Compiler) emitSymbolDirectives() {
	if bc.mod.Kind == "library" {
		bc.asm.Export(initLabel(bc.mod.Name))
	}
	for _, e := range bc.mod.Exports {
		if f := bc.mod.Function(e); f != nil {
			bc.asm.Export(bc.funcLabel(e))
			continue
		}
		if g := bc.mod.Global(e); g != nil {
			bc.asm.Export(bc.globalLabel(e))
			continue
		}
		bc.ec.AddError(MalformedILError("export of unknown symbol '"+e+"'", bc.mod.Pos))
	}
}
