// Completion: 100% - IL data model, CFG helpers, structural validation
package main

import (
	"fmt"
	"sort"
	"strings"
)

// ILType is the width of an IL value. The source language has exactly
// two sized types; everything else lowers to these.
type ILType int

const (
	TypeVoid ILType = iota
	TypeByte        // 8-bit unsigned
	TypeWord        // 16-bit unsigned, little-endian in memory
)

func (t ILType) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeByte:
		return "byte"
	case TypeWord:
		return "word"
	default:
		return "unknown"
	}
}

// Size returns the in-memory size in bytes
func (t ILType) Size() int {
	switch t {
	case TypeByte:
		return 1
	case TypeWord:
		return 2
	default:
		return 0
	}
}

// ParseILType maps a type name from the IL stream to an ILType
func ParseILType(s string) (ILType, bool) {
	switch s {
	case "void", "":
		return TypeVoid, true
	case "byte":
		return TypeByte, true
	case "word":
		return TypeWord, true
	default:
		return TypeVoid, false
	}
}

// BinOp is a binary operator carried by bin and rmw instructions
type BinOp int

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinAnd
	BinOr
	BinXor
	BinShl
	BinShr
	BinEq
	BinNe
	BinLt
	BinLe
	BinGt
	BinGe
)

var binOpNames = map[BinOp]string{
	BinAdd: "add", BinSub: "sub", BinMul: "mul", BinDiv: "div", BinMod: "mod",
	BinAnd: "and", BinOr: "or", BinXor: "xor", BinShl: "shl", BinShr: "shr",
	BinEq: "eq", BinNe: "ne", BinLt: "lt", BinLe: "le", BinGt: "gt", BinGe: "ge",
}

func (b BinOp) String() string {
	if s, ok := binOpNames[b]; ok {
		return s
	}
	return "?"
}

// ParseBinOp maps an operator name from the IL stream to a BinOp
func ParseBinOp(s string) (BinOp, bool) {
	for op, name := range binOpNames {
		if name == s {
			return op, true
		}
	}
	return BinAdd, false
}

// Commutative reports whether operand order is irrelevant, which lets
// the lowering pick whichever operand already sits in the accumulator
func (b BinOp) Commutative() bool {
	switch b {
	case BinAdd, BinMul, BinAnd, BinOr, BinXor, BinEq, BinNe:
		return true
	}
	return false
}

// IsCompare reports whether the operator produces a canonical 0/1 byte
func (b BinOp) IsCompare() bool {
	return b >= BinEq && b <= BinGe
}

// Opcode identifies an IL instruction
type Opcode int

const (
	OpConst Opcode = iota
	OpCast
	OpBin
	OpNeg
	OpNot
	OpLogNot
	OpLogAnd
	OpLogOr
	OpLoadLocal
	OpStoreLocal
	OpLoadGlobal
	OpStoreGlobal
	OpLoadElem
	OpStoreElem
	OpLoadHw
	OpStoreHw
	OpRmw
	OpCall
	OpRet
	OpJmp
	OpBr
	OpPhi
)

var opcodeNames = map[Opcode]string{
	OpConst: "const", OpCast: "cast", OpBin: "bin",
	OpNeg: "neg", OpNot: "not", OpLogNot: "lognot",
	OpLogAnd: "land", OpLogOr: "lor",
	OpLoadLocal: "load.local", OpStoreLocal: "store.local",
	OpLoadGlobal: "load.global", OpStoreGlobal: "store.global",
	OpLoadElem: "load.elem", OpStoreElem: "store.elem",
	OpLoadHw: "load.hw", OpStoreHw: "store.hw",
	OpRmw: "rmw", OpCall: "call", OpRet: "ret",
	OpJmp: "jmp", OpBr: "br", OpPhi: "phi",
}

func (o Opcode) String() string {
	if s, ok := opcodeNames[o]; ok {
		return s
	}
	return "?"
}

// ParseOpcode maps an op name from the IL stream to an Opcode
func ParseOpcode(s string) (Opcode, bool) {
	for op, name := range opcodeNames {
		if name == s {
			return op, true
		}
	}
	return OpConst, false
}

// RefKind names the kind of storage an rmw instruction updates
type RefKind int

const (
	RefLocal RefKind = iota
	RefGlobal
	RefElem
	RefHw
)

func (r RefKind) String() string {
	switch r {
	case RefLocal:
		return "local"
	case RefGlobal:
		return "global"
	case RefElem:
		return "elem"
	case RefHw:
		return "hw"
	default:
		return "?"
	}
}

// ParseRefKind maps a target kind name from the IL stream to a RefKind
func ParseRefKind(s string) (RefKind, bool) {
	switch s {
	case "local":
		return RefLocal, true
	case "global":
		return RefGlobal, true
	case "elem":
		return RefElem, true
	case "hw":
		return RefHw, true
	default:
		return RefLocal, false
	}
}

// Instr is a single IL instruction. One struct covers all opcodes; the
// decoder guarantees the fields each opcode needs are present.
type Instr struct {
	ID      string            // SSA value id, empty for pure effects
	Op      Opcode            // what to do
	Type    ILType            // result type, or the stored value's type
	Bin     BinOp             // operator for bin and rmw
	Lhs     string            // first operand, ret value, stored value
	Rhs     string            // second operand
	Cond    string            // br condition
	Val     int               // const payload
	Sym     string            // local, global, hardware or callee name
	Field   string            // hardware register field
	Index   string            // index value for elem and hw access
	Ref     RefKind           // rmw target kind
	Args    []string          // call arguments
	Then    string            // br taken target
	Else    string            // br fallthrough target
	Target  string            // jmp target
	Body    []*Instr          // lazily evaluated rhs of land and lor
	Sources map[string]string // phi: predecessor block name to value id
	Pos     SourceLocation
}

// IsTerminator reports whether the instruction ends a basic block
func (in *Instr) IsTerminator() bool {
	switch in.Op {
	case OpRet, OpJmp, OpBr:
		return true
	}
	return false
}

// ILBlock is a basic block: a label and straight-line instructions
// ending in exactly one terminator
type ILBlock struct {
	Name   string
	Instrs []*Instr
	Pos    SourceLocation
}

// Terminator returns the block's final instruction when it is a
// terminator, or nil for a malformed block
func (b *ILBlock) Terminator() *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	if !last.IsTerminator() {
		return nil
	}
	return last
}

// Successors lists the block names this block can branch to, in a
// fixed order so downstream passes stay deterministic
func (b *ILBlock) Successors() []string {
	t := b.Terminator()
	if t == nil {
		return nil
	}
	switch t.Op {
	case OpJmp:
		return []string{t.Target}
	case OpBr:
		return []string{t.Then, t.Else}
	}
	return nil
}

// Phis returns the leading phi instructions of the block
func (b *ILBlock) Phis() []*Instr {
	var phis []*Instr
	for _, in := range b.Instrs {
		if in.Op != OpPhi {
			break
		}
		phis = append(phis, in)
	}
	return phis
}

// ILParam is a formal parameter
type ILParam struct {
	Name string
	Type ILType
}

// ILLocal is a named function-local slot, always addressed in the
// zero-page locals region
type ILLocal struct {
	Name string
	Type ILType
	Pos  SourceLocation
}

// ILGlobal is a module-level variable or constant table
type ILGlobal struct {
	Name  string
	Type  ILType // element type
	Count int    // 1 for scalars, >1 for arrays
	Init  []int  // constant initializers, at most Count entries
	Const bool   // read-only; placed in RODATA and never written
	Pos   SourceLocation
}

// SizeBytes returns the total footprint of the global
func (g *ILGlobal) SizeBytes() int {
	n := g.Count
	if n < 1 {
		n = 1
	}
	return n * g.Type.Size()
}

// HwForm is the shape of a hardware declaration
type HwForm int

const (
	HwSingle   HwForm = iota // one register at one address
	HwRange                  // consecutive registers from a base address
	HwStruct                 // named fields packed from a base address
	HwExplicit               // named fields, each at its own address
)

func (f HwForm) String() string {
	switch f {
	case HwSingle:
		return "single"
	case HwRange:
		return "range"
	case HwStruct:
		return "struct"
	case HwExplicit:
		return "explicit"
	default:
		return "?"
	}
}

// ParseHwForm maps a hardware form name from the IL stream to a HwForm
func ParseHwForm(s string) (HwForm, bool) {
	switch s {
	case "single":
		return HwSingle, true
	case "range":
		return HwRange, true
	case "struct":
		return HwStruct, true
	case "explicit":
		return HwExplicit, true
	default:
		return HwSingle, false
	}
}

// HwField is one member of a struct or explicit hardware declaration
type HwField struct {
	Name     string
	Type     ILType
	Count    int    // >1 makes the field an indexable sub-range
	Addr     uint16 // explicit form only; struct fields are packed
	ReadOnly bool
}

// HardwareDecl is a memory-mapped hardware binding. Accesses are
// volatile: each IL-level access becomes exactly one hardware access.
type HardwareDecl struct {
	Name     string
	Form     HwForm
	Addr     uint16
	Count    int // range form: number of elements
	Type     ILType
	ReadOnly bool
	Fields   []HwField
	Pos      SourceLocation
}

// ILFunction is one function: signature, local slots and a CFG
type ILFunction struct {
	Name     string
	Params   []ILParam
	Result   ILType
	Callback bool   // interrupt callback: preserve A, X, Y, end in RTI
	Vector   string // machine profile vector to install into, optional
	Locals   []ILLocal
	Blocks   []*ILBlock
	Pos      SourceLocation
}

// Entry returns the function's entry block
func (f *ILFunction) Entry() *ILBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// BlockMap indexes the function's blocks by name
func (f *ILFunction) BlockMap() map[string]*ILBlock {
	m := make(map[string]*ILBlock, len(f.Blocks))
	for _, b := range f.Blocks {
		m[b.Name] = b
	}
	return m
}

// Predecessors maps each block name to the blocks that branch to it,
// in declaration order
func (f *ILFunction) Predecessors() map[string][]string {
	preds := make(map[string][]string, len(f.Blocks))
	for _, b := range f.Blocks {
		for _, s := range b.Successors() {
			preds[s] = append(preds[s], b.Name)
		}
	}
	return preds
}

// ReversePostorder returns the blocks reachable from the entry in
// reverse postorder, the emission order for the whole backend
func (f *ILFunction) ReversePostorder() []*ILBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	bm := f.BlockMap()
	seen := make(map[string]bool, len(f.Blocks))
	var post []*ILBlock
	var visit func(name string)
	visit = func(name string) {
		b, ok := bm[name]
		if !ok || seen[name] {
			return
		}
		seen[name] = true
		for _, s := range b.Successors() {
			visit(s)
		}
		post = append(post, b)
	}
	visit(f.Blocks[0].Name)
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// ILModule is a whole translation unit as handed to the backend
type ILModule struct {
	Name     string
	Kind     string // "program" or "library"
	Imports  []string
	Exports  []string
	Globals  []*ILGlobal
	Hardware []*HardwareDecl
	Funcs    []*ILFunction
	Pos      SourceLocation
}

// Function looks up a function by name
func (m *ILModule) Function(name string) *ILFunction {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Global looks up a global by name
func (m *ILModule) Global(name string) *ILGlobal {
	for _, g := range m.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// IsExported reports whether a name appears in the export list
func (m *ILModule) IsExported(name string) bool {
	for _, e := range m.Exports {
		if e == name {
			return true
		}
	}
	return false
}

// countUses tallies how many times each value id is read inside a
// function. Liveness during lowering is "uses left > 0".
func countUses(f *ILFunction) map[string]int {
	uses := make(map[string]int)
	use := func(id string) {
		if id != "" {
			uses[id]++
		}
	}
	var walk func(instrs []*Instr)
	walk = func(instrs []*Instr) {
		for _, in := range instrs {
			use(in.Lhs)
			use(in.Rhs)
			use(in.Cond)
			use(in.Index)
			for _, a := range in.Args {
				use(a)
			}
			if in.Op == OpPhi {
				for _, src := range in.Sources {
					use(src)
				}
			}
			if len(in.Body) > 0 {
				walk(in.Body)
			}
		}
	}
	for _, b := range f.Blocks {
		walk(b.Instrs)
	}
	return uses
}

// valueTypes maps every defined value id in a function to its type,
// seeding parameters first
func valueTypes(f *ILFunction) map[string]ILType {
	types := make(map[string]ILType)
	for _, p := range f.Params {
		types[p.Name] = p.Type
	}
	var walk func(instrs []*Instr)
	walk = func(instrs []*Instr) {
		for _, in := range instrs {
			if in.ID != "" {
				types[in.ID] = in.Type
			}
			if len(in.Body) > 0 {
				walk(in.Body)
			}
		}
	}
	for _, b := range f.Blocks {
		walk(b.Instrs)
	}
	return types
}

// ValidateModule checks the structural invariants the lowering relies
// on. Malformed input must surface here as diagnostics, never as a
// panic deeper in the backend.
func ValidateModule(mod *ILModule, ec *ErrorCollector) {
	if mod.Name == "" {
		ec.AddError(MalformedILError("module has no name", mod.Pos))
	}
	if mod.Kind != "program" && mod.Kind != "library" {
		ec.AddError(MalformedILError(fmt.Sprintf("module kind must be 'program' or 'library', got '%s'", mod.Kind), mod.Pos))
	}

	names := make(map[string]string)
	claim := func(name, what string, pos SourceLocation) {
		if name == "" {
			ec.AddError(MalformedILError(fmt.Sprintf("%s with empty name", what), pos))
			return
		}
		if prev, dup := names[name]; dup {
			ec.AddError(MalformedILError(fmt.Sprintf("name '%s' declared as both %s and %s", name, prev, what), pos))
			return
		}
		names[name] = what
	}
	for _, g := range mod.Globals {
		claim(g.Name, "global", g.Pos)
		if g.Type != TypeByte && g.Type != TypeWord {
			ec.AddError(MalformedILError(fmt.Sprintf("global '%s' has non-data type %s", g.Name, g.Type), g.Pos))
		}
		if g.Count < 1 {
			ec.AddError(MalformedILError(fmt.Sprintf("global '%s' has count %d", g.Name, g.Count), g.Pos))
		}
		if len(g.Init) > g.Count {
			ec.AddError(MalformedILError(fmt.Sprintf("global '%s' has %d initializers for %d element(s)", g.Name, len(g.Init), g.Count), g.Pos))
		}
		if g.Const && len(g.Init) == 0 {
			ec.AddError(MalformedILError(fmt.Sprintf("constant global '%s' has no initializer", g.Name), g.Pos))
		}
	}
	for _, h := range mod.Hardware {
		claim(h.Name, "hardware", h.Pos)
	}
	for _, f := range mod.Funcs {
		claim(f.Name, "function", f.Pos)
		validateFunction(mod, f, ec)
		if ec.ShouldStop() {
			return
		}
	}

	if mod.Kind == "program" {
		entry := mod.Function("main")
		if entry == nil {
			ec.AddError(MalformedILError("program module does not define 'main'", mod.Pos))
		} else {
			if len(entry.Params) > 0 || entry.Result != TypeVoid {
				ec.AddError(MalformedILError("'main' must take no parameters and return nothing", entry.Pos))
			}
			if entry.Callback {
				ec.AddError(MalformedILError("'main' cannot be an interrupt callback", entry.Pos))
			}
		}
	}
}

// validateFunction checks one function's CFG and instruction shape
func validateFunction(mod *ILModule, f *ILFunction, ec *ErrorCollector) {
	bad := func(msg string, pos SourceLocation) {
		ec.AddError(MalformedILError(fmt.Sprintf("%s (in '%s')", msg, f.Name), pos))
	}

	if f.Callback && (len(f.Params) > 0 || f.Result != TypeVoid) {
		ec.AddError(CallbackSignatureError(f.Name, f.Pos))
	}
	if len(f.Blocks) == 0 {
		bad("function has no blocks", f.Pos)
		return
	}

	defined := make(map[string]bool)
	for _, p := range f.Params {
		if p.Type != TypeByte && p.Type != TypeWord {
			bad(fmt.Sprintf("parameter '%s' has non-data type %s", p.Name, p.Type), f.Pos)
		}
		defined[p.Name] = true
	}
	localNames := make(map[string]ILType, len(f.Locals))
	for _, l := range f.Locals {
		if _, dup := localNames[l.Name]; dup {
			bad(fmt.Sprintf("duplicate local '%s'", l.Name), l.Pos)
		}
		localNames[l.Name] = l.Type
	}

	blocks := make(map[string]*ILBlock, len(f.Blocks))
	for _, b := range f.Blocks {
		if _, dup := blocks[b.Name]; dup {
			bad(fmt.Sprintf("duplicate block '%s'", b.Name), b.Pos)
		}
		blocks[b.Name] = b
	}

	// Collect definitions first; SSA ids may be referenced by phis in
	// blocks that precede their defining block in declaration order.
	var collect func(instrs []*Instr)
	collect = func(instrs []*Instr) {
		for _, in := range instrs {
			if in.ID != "" {
				if defined[in.ID] {
					bad(fmt.Sprintf("value '%s' defined more than once", in.ID), in.Pos)
				}
				defined[in.ID] = true
			}
			if len(in.Body) > 0 {
				collect(in.Body)
			}
		}
	}
	for _, b := range f.Blocks {
		collect(b.Instrs)
	}

	preds := f.Predecessors()
	for _, b := range f.Blocks {
		if len(b.Instrs) == 0 {
			bad(fmt.Sprintf("block '%s' is empty", b.Name), b.Pos)
			continue
		}
		if b.Terminator() == nil {
			bad(fmt.Sprintf("block '%s' does not end in a terminator", b.Name), b.Pos)
		}
		seenNonPhi := false
		for i, in := range b.Instrs {
			if in.IsTerminator() && i != len(b.Instrs)-1 {
				bad(fmt.Sprintf("terminator in the middle of block '%s'", b.Name), in.Pos)
			}
			if in.Op == OpPhi {
				if seenNonPhi {
					bad(fmt.Sprintf("phi after non-phi instruction in block '%s'", b.Name), in.Pos)
				}
				validatePhi(f, b, in, preds[b.Name], bad)
			} else {
				seenNonPhi = true
			}
			validateInstr(mod, f, b, in, defined, localNames, bad)
		}
	}
}

// validatePhi checks a phi's sources against the block's predecessors
func validatePhi(f *ILFunction, b *ILBlock, in *Instr, preds []string, bad func(string, SourceLocation)) {
	if in.ID == "" {
		bad(fmt.Sprintf("phi without a result id in block '%s'", b.Name), in.Pos)
	}
	if in.Type != TypeByte && in.Type != TypeWord {
		bad(fmt.Sprintf("phi '%s' has non-data type %s", in.ID, in.Type), in.Pos)
	}
	for _, p := range preds {
		if _, ok := in.Sources[p]; !ok {
			bad(fmt.Sprintf("phi '%s' has no source for predecessor '%s'", in.ID, p), in.Pos)
		}
	}
	if len(in.Sources) != len(preds) {
		have := make([]string, 0, len(in.Sources))
		for k := range in.Sources {
			have = append(have, k)
		}
		sort.Strings(have)
		bad(fmt.Sprintf("phi '%s' names %d source(s) [%s] for %d predecessor(s)", in.ID, len(in.Sources), strings.Join(have, ", "), len(preds)), in.Pos)
	}
}

// validateInstr checks operand presence and reference targets for a
// single instruction
func validateInstr(mod *ILModule, f *ILFunction, b *ILBlock, in *Instr, defined map[string]bool, locals map[string]ILType, bad func(string, SourceLocation)) {
	ref := func(id, role string) {
		if id == "" {
			bad(fmt.Sprintf("%s missing %s operand", in.Op, role), in.Pos)
			return
		}
		if !defined[id] {
			bad(fmt.Sprintf("%s references undefined value '%s'", in.Op, id), in.Pos)
		}
	}
	wantResult := func() {
		if in.ID == "" {
			bad(fmt.Sprintf("%s without a result id", in.Op), in.Pos)
		}
		if in.Type != TypeByte && in.Type != TypeWord {
			bad(fmt.Sprintf("%s result has non-data type %s", in.Op, in.Type), in.Pos)
		}
	}
	blockRef := func(name, role string) {
		if name == "" {
			bad(fmt.Sprintf("%s missing %s target", in.Op, role), in.Pos)
			return
		}
		found := false
		for _, blk := range f.Blocks {
			if blk.Name == name {
				found = true
				break
			}
		}
		if !found {
			bad(fmt.Sprintf("%s targets unknown block '%s'", in.Op, name), in.Pos)
		}
	}

	switch in.Op {
	case OpConst:
		wantResult()
		max := 0xFF
		if in.Type == TypeWord {
			max = 0xFFFF
		}
		if in.Val < 0 || in.Val > max {
			bad(fmt.Sprintf("const %d does not fit in %s", in.Val, in.Type), in.Pos)
		}
	case OpCast:
		wantResult()
		ref(in.Lhs, "source")
	case OpBin:
		wantResult()
		ref(in.Lhs, "left")
		ref(in.Rhs, "right")
	case OpNeg, OpNot, OpLogNot:
		wantResult()
		ref(in.Lhs, "source")
	case OpLogAnd, OpLogOr:
		wantResult()
		ref(in.Lhs, "left")
		if len(in.Body) == 0 {
			bad(fmt.Sprintf("%s has an empty right-hand side", in.Op), in.Pos)
		}
		for _, b := range in.Body {
			if b.IsTerminator() || b.Op == OpPhi {
				bad(fmt.Sprintf("%s body may not contain %s", in.Op, b.Op), b.Pos)
			}
		}
		ref(in.Rhs, "right")
	case OpLoadLocal:
		wantResult()
		if _, ok := locals[in.Sym]; !ok {
			bad(fmt.Sprintf("load.local of unknown local '%s'", in.Sym), in.Pos)
		}
	case OpStoreLocal:
		ref(in.Lhs, "value")
		if _, ok := locals[in.Sym]; !ok {
			bad(fmt.Sprintf("store.local to unknown local '%s'", in.Sym), in.Pos)
		}
	case OpLoadGlobal, OpStoreGlobal, OpLoadElem, OpStoreElem:
		g := mod.Global(in.Sym)
		if g == nil && !strings.Contains(in.Sym, ".") {
			bad(fmt.Sprintf("%s references unknown global '%s'", in.Op, in.Sym), in.Pos)
		}
		if in.Op == OpLoadGlobal || in.Op == OpLoadElem {
			wantResult()
		} else {
			ref(in.Lhs, "value")
		}
		if in.Op == OpLoadElem || in.Op == OpStoreElem {
			ref(in.Index, "index")
			if g != nil && g.Count <= 1 {
				bad(fmt.Sprintf("indexed access to scalar global '%s'", in.Sym), in.Pos)
			}
		}
	case OpLoadHw, OpStoreHw:
		if in.Op == OpLoadHw {
			wantResult()
		} else {
			ref(in.Lhs, "value")
		}
		if in.Sym == "" {
			bad(fmt.Sprintf("%s missing hardware symbol", in.Op), in.Pos)
		}
		if in.Index != "" {
			ref(in.Index, "index")
		}
	case OpRmw:
		ref(in.Rhs, "operand")
		if in.Bin.IsCompare() {
			bad("rmw with comparison operator", in.Pos)
		}
		switch in.Ref {
		case RefLocal:
			if _, ok := locals[in.Sym]; !ok {
				bad(fmt.Sprintf("rmw to unknown local '%s'", in.Sym), in.Pos)
			}
		case RefGlobal, RefElem:
			if mod.Global(in.Sym) == nil && !strings.Contains(in.Sym, ".") {
				bad(fmt.Sprintf("rmw to unknown global '%s'", in.Sym), in.Pos)
			}
			if in.Ref == RefElem {
				ref(in.Index, "index")
			}
		case RefHw:
			if in.Index != "" {
				ref(in.Index, "index")
			}
		}
	case OpCall:
		if in.Sym == "" {
			bad("call without a callee", in.Pos)
		}
		for _, a := range in.Args {
			ref(a, "argument")
		}
		callee := mod.Function(in.Sym)
		if callee != nil {
			if len(in.Args) != len(callee.Params) {
				bad(fmt.Sprintf("call to '%s' passes %d argument(s), want %d", in.Sym, len(in.Args), len(callee.Params)), in.Pos)
			}
			if callee.Callback {
				bad(fmt.Sprintf("direct call to interrupt callback '%s'", in.Sym), in.Pos)
			}
		} else if !strings.Contains(in.Sym, ".") {
			bad(fmt.Sprintf("call to unknown function '%s'", in.Sym), in.Pos)
		}
	case OpRet:
		if f.Result == TypeVoid {
			if in.Lhs != "" {
				bad("ret with a value in a void function", in.Pos)
			}
		} else {
			ref(in.Lhs, "value")
		}
	case OpJmp:
		blockRef(in.Target, "jump")
	case OpBr:
		ref(in.Cond, "condition")
		blockRef(in.Then, "then")
		blockRef(in.Else, "else")
	case OpPhi:
		for _, src := range in.Sources {
			ref(src, "phi source")
		}
	default:
		bad(fmt.Sprintf("unknown opcode %d", int(in.Op)), in.Pos)
	}
}
