// Completion: 100% - ca65 text emitter: segments, labels, operand formatting, branch islands
package main

import (
	"fmt"
	"strings"
)

// Segment names follow the standard ca65 linker configs
type Segment string

const (
	SegStartup Segment = "STARTUP"
	SegCode    Segment = "CODE"
	SegRodata  Segment = "RODATA"
	SegData    Segment = "DATA"
	SegBss     Segment = "BSS"
)

var segmentOrder = []Segment{SegStartup, SegCode, SegRodata, SegData, SegBss}

// Memory reference kinds
const (
	refZP = iota
	refAbs
	refSym
)

// MemRef names one directly addressable location: a zero-page byte, an
// absolute address, or an assembler symbol plus offset, optionally
// indexed by x or y
type MemRef struct {
	kind  int
	zp    uint8
	abs   uint16
	sym   string
	off   int
	index byte // 0, 'x' or 'y'
}

// ZPRef references a zero-page byte
func ZPRef(addr uint8) MemRef {
	return MemRef{kind: refZP, zp: addr}
}

// AbsRef references an absolute address
func AbsRef(addr uint16) MemRef {
	return MemRef{kind: refAbs, abs: addr}
}

// SymRef references an assembler symbol
func SymRef(sym string) MemRef {
	return MemRef{kind: refSym, sym: sym}
}

// Plus returns the reference shifted by n bytes, for high halves of
// word values
func (r MemRef) Plus(n int) MemRef {
	switch r.kind {
	case refZP:
		r.zp += uint8(n)
	case refAbs:
		r.abs += uint16(n)
	case refSym:
		r.off += n
	}
	return r
}

// IndexedBy returns the reference with an index register applied
func (r MemRef) IndexedBy(reg byte) MemRef {
	r.index = reg
	return r
}

// IsZP reports whether the reference stays in the zero page
func (r MemRef) IsZP() bool {
	return r.kind == refZP
}

func (r MemRef) String() string {
	var s string
	switch r.kind {
	case refZP:
		s = fmt.Sprintf("$%02x", r.zp)
	case refAbs:
		s = fmt.Sprintf("$%04x", r.abs)
	case refSym:
		if r.off != 0 {
			s = fmt.Sprintf("%s+%d", r.sym, r.off)
		} else {
			s = r.sym
		}
	}
	if r.index != 0 {
		s += "," + string(r.index)
	}
	return s
}

// Asm accumulates assembly text per segment and renders the final
// file in a fixed segment order
type Asm struct {
	bufs     map[Segment]*strings.Builder
	cur      Segment
	comments bool
	cheapN   int
	insCount int
	exports  []string
	imports  []string
	header   []string
}

// NewAsm creates an emitter. When comments is true the lowering's
// per-instruction annotations are kept in the output.
func NewAsm(comments bool) *Asm {
	return &Asm{
		bufs:     make(map[Segment]*strings.Builder),
		cur:      SegCode,
		comments: comments,
	}
}

func (a *Asm) buf() *strings.Builder {
	b, ok := a.bufs[a.cur]
	if !ok {
		b = &strings.Builder{}
		a.bufs[a.cur] = b
	}
	return b
}

// Use switches the active segment
func (a *Asm) Use(s Segment) {
	a.cur = s
}

// Current returns the active segment
func (a *Asm) Current() Segment {
	return a.cur
}

// Header adds a line to the leading comment block
func (a *Asm) Header(text string) {
	a.header = append(a.header, text)
}

// Export registers a symbol for an .export line
func (a *Asm) Export(sym string) {
	for _, e := range a.exports {
		if e == sym {
			return
		}
	}
	a.exports = append(a.exports, sym)
}

// Import registers a symbol for an .import line
func (a *Asm) Import(sym string) {
	for _, i := range a.imports {
		if i == sym {
			return
		}
	}
	a.imports = append(a.imports, sym)
}

// Label emits a normal label. Normal labels open a new cheap-label
// scope, so the counter restarts.
func (a *Asm) Label(name string) {
	fmt.Fprintf(a.buf(), "%s:\n", name)
	a.cheapN = 0
}

// Cheap reserves the next cheap local label name in this scope
func (a *Asm) Cheap() string {
	a.cheapN++
	return fmt.Sprintf("@l%d", a.cheapN)
}

// CheapLabel emits a previously reserved cheap label
func (a *Asm) CheapLabel(name string) {
	fmt.Fprintf(a.buf(), "%s:\n", name)
}

func (a *Asm) op(mn, operand string) {
	b := a.buf()
	if operand == "" {
		fmt.Fprintf(b, "        %s\n", mn)
	} else {
		fmt.Fprintf(b, "        %s %s\n", mn, operand)
	}
	a.insCount++
}

// Ins emits an implied or accumulator mode instruction
func (a *Asm) Ins(mn string) {
	a.op(mn, "")
}

// Imm emits an immediate mode instruction
func (a *Asm) Imm(mn string, v int) {
	a.op(mn, fmt.Sprintf("#$%02x", v&0xFF))
}

// ImmLo emits an immediate instruction loading the low byte of a
// symbol's address
func (a *Asm) ImmLo(mn, sym string) {
	a.op(mn, "#<"+sym)
}

// ImmHi emits an immediate instruction loading the high byte of a
// symbol's address
func (a *Asm) ImmHi(mn, sym string) {
	a.op(mn, "#>"+sym)
}

// Mem emits an instruction against a memory reference
func (a *Asm) Mem(mn string, ref MemRef) {
	a.op(mn, ref.String())
}

// Branch emits a short conditional branch to a cheap label in the
// current scope
func (a *Asm) Branch(mn, label string) {
	a.op(mn, label)
}

var branchInverse = map[string]string{
	"beq": "bne", "bne": "beq",
	"bcc": "bcs", "bcs": "bcc",
	"bmi": "bpl", "bpl": "bmi",
	"bvc": "bvs", "bvs": "bvc",
}

// BranchLong emits a conditional jump to an arbitrary label. The
// inverted branch hops over a jmp, so the target can sit anywhere in
// the address space and the relative branch can never go out of
// range.
func (a *Asm) BranchLong(mn, target string) {
	inv, ok := branchInverse[mn]
	if !ok {
		inv = "bne"
	}
	hop := a.Cheap()
	a.Branch(inv, hop)
	a.Jmp(target)
	a.CheapLabel(hop)
}

// Jmp emits an absolute jump
func (a *Asm) Jmp(target string) {
	a.op("jmp", target)
}

// Jsr emits a subroutine call
func (a *Asm) Jsr(target string) {
	a.op("jsr", target)
}

// Comment emits a full-line annotation when annotations are enabled
func (a *Asm) Comment(format string, args ...interface{}) {
	if !a.comments {
		return
	}
	fmt.Fprintf(a.buf(), "        ; %s\n", fmt.Sprintf(format, args...))
}

// Banner emits a full-line comment regardless of the annotation flag
func (a *Asm) Banner(format string, args ...interface{}) {
	fmt.Fprintf(a.buf(), "; %s\n", fmt.Sprintf(format, args...))
}

// Blank emits an empty line
func (a *Asm) Blank() {
	a.buf().WriteString("\n")
}

// Byte emits a .byte row
func (a *Asm) Byte(vals ...int) {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("$%02x", v&0xFF)
	}
	fmt.Fprintf(a.buf(), "        .byte %s\n", strings.Join(parts, ", "))
}

// ByteString emits a .byte row with a string literal
func (a *Asm) ByteString(s string) {
	fmt.Fprintf(a.buf(), "        .byte %q\n", s)
}

// Word emits a .word row of numeric values
func (a *Asm) Word(vals ...int) {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("$%04x", v&0xFFFF)
	}
	fmt.Fprintf(a.buf(), "        .word %s\n", strings.Join(parts, ", "))
}

// WordSym emits a .word row of symbol references
func (a *Asm) WordSym(syms ...string) {
	fmt.Fprintf(a.buf(), "        .word %s\n", strings.Join(syms, ", "))
}

// Res reserves n uninitialized bytes
func (a *Asm) Res(n int) {
	fmt.Fprintf(a.buf(), "        .res %d\n", n)
}

// InsCount returns the number of instructions emitted so far
func (a *Asm) InsCount() int {
	return a.insCount
}

// String renders the whole file: header, cpu directive, exports,
// imports, then every non-empty segment in fixed order
func (a *Asm) String() string {
	var sb strings.Builder
	for _, h := range a.header {
		fmt.Fprintf(&sb, "; %s\n", h)
	}
	sb.WriteString("\n")
	sb.WriteString("        .setcpu \"6502\"\n")
	if len(a.exports) > 0 {
		sb.WriteString("\n")
		for _, e := range a.exports {
			fmt.Fprintf(&sb, "        .export %s\n", e)
		}
	}
	if len(a.imports) > 0 {
		sb.WriteString("\n")
		for _, i := range a.imports {
			fmt.Fprintf(&sb, "        .import %s\n", i)
		}
	}
	for _, seg := range segmentOrder {
		b, ok := a.bufs[seg]
		if !ok || b.Len() == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n        .segment %q\n\n", string(seg))
		sb.WriteString(b.String())
	}
	return sb.String()
}
