// Completion: 100% - IL JSON decoding, tolerant address forms, defensive conversion
package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"
)

// hexInt decodes an address that may arrive as a JSON number, a
// decimal string, a "0x" string or a "$" string
type hexInt int

func (h *hexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) > 0 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(str)
		base := 10
		switch {
		case strings.HasPrefix(str, "0x"), strings.HasPrefix(str, "0X"):
			base, str = 16, str[2:]
		case strings.HasPrefix(str, "$"):
			base, str = 16, str[1:]
		}
		v, err := strconv.ParseUint(str, base, 32)
		if err != nil {
			return fmt.Errorf("bad address %q", str)
		}
		*h = hexInt(v)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*h = hexInt(n)
	return nil
}

// Wire structs. One struct per JSON object shape; conversion to the
// IL model happens in the conv functions below so that bad enum
// strings become diagnostics instead of panics.

type jsonPos struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
}

type jsonGlobal struct {
	Name  string   `json:"name"`
	Type  string   `json:"type"`
	Count int      `json:"count"`
	Init  []int    `json:"init"`
	Const bool     `json:"const"`
	Pos   *jsonPos `json:"pos"`
}

type jsonHwField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Count    int    `json:"count"`
	Addr     hexInt `json:"addr"`
	ReadOnly bool   `json:"readonly"`
}

type jsonHw struct {
	Name     string        `json:"name"`
	Form     string        `json:"form"`
	Addr     hexInt        `json:"addr"`
	Count    int           `json:"count"`
	Type     string        `json:"type"`
	ReadOnly bool          `json:"readonly"`
	Fields   []jsonHwField `json:"fields"`
	Pos      *jsonPos      `json:"pos"`
}

type jsonParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type jsonLocal struct {
	Name string   `json:"name"`
	Type string   `json:"type"`
	Pos  *jsonPos `json:"pos"`
}

type jsonInstr struct {
	Op      string            `json:"op"`
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Bin     string            `json:"bin"`
	Lhs     string            `json:"lhs"`
	Rhs     string            `json:"rhs"`
	Cond    string            `json:"cond"`
	Val     int               `json:"val"`
	Sym     string            `json:"sym"`
	Field   string            `json:"field"`
	Index   string            `json:"index"`
	Ref     string            `json:"ref"`
	Args    []string          `json:"args"`
	Then    string            `json:"then"`
	Else    string            `json:"else"`
	Target  string            `json:"target"`
	Body    []jsonInstr       `json:"body"`
	Sources map[string]string `json:"sources"`
	Pos     *jsonPos          `json:"pos"`
}

type jsonBlock struct {
	Name   string      `json:"name"`
	Instrs []jsonInstr `json:"instrs"`
	Pos    *jsonPos    `json:"pos"`
}

type jsonFunc struct {
	Name     string      `json:"name"`
	Params   []jsonParam `json:"params"`
	Result   string      `json:"result"`
	Callback bool        `json:"callback"`
	Vector   string      `json:"vector"`
	Locals   []jsonLocal `json:"locals"`
	Blocks   []jsonBlock `json:"blocks"`
	Pos      *jsonPos    `json:"pos"`
}

type jsonModule struct {
	Module   string       `json:"module"`
	Kind     string       `json:"kind"`
	Imports  []string     `json:"imports"`
	Exports  []string     `json:"exports"`
	Globals  []jsonGlobal `json:"globals"`
	Hardware []jsonHw     `json:"hardware"`
	Funcs    []jsonFunc   `json:"funcs"`
	Pos      *jsonPos     `json:"pos"`
}

func posOf(p *jsonPos) SourceLocation {
	if p == nil {
		return SourceLocation{}
	}
	return SourceLocation{File: p.File, Line: p.Line, Column: p.Col}
}

// DecodeModule parses an IL JSON stream into an ILModule. Problems are
// reported through the collector; a nil return means the stream was
// unusable.
func DecodeModule(data []byte, ec *ErrorCollector) *ILModule {
	var jm jsonModule
	if err := json.Unmarshal(data, &jm); err != nil {
		ec.AddError(MalformedILError(fmt.Sprintf("cannot parse IL stream: %v", err), SourceLocation{}))
		return nil
	}
	return convModule(&jm, ec)
}

func convModule(jm *jsonModule, ec *ErrorCollector) *ILModule {
	mod := &ILModule{
		Name:    jm.Module,
		Kind:    jm.Kind,
		Imports: jm.Imports,
		Exports: jm.Exports,
		Pos:     posOf(jm.Pos),
	}
	if mod.Kind == "" {
		mod.Kind = "program"
	}
	for i := range jm.Globals {
		if g := convGlobal(&jm.Globals[i], ec); g != nil {
			mod.Globals = append(mod.Globals, g)
		}
	}
	for i := range jm.Hardware {
		if h := convHardware(&jm.Hardware[i], ec); h != nil {
			mod.Hardware = append(mod.Hardware, h)
		}
	}
	for i := range jm.Funcs {
		if f := convFunc(&jm.Funcs[i], ec); f != nil {
			mod.Funcs = append(mod.Funcs, f)
		}
	}
	return mod
}

func convType(s, what string, pos SourceLocation, ec *ErrorCollector) ILType {
	t, ok := ParseILType(s)
	if !ok {
		ec.AddError(MalformedILError(fmt.Sprintf("unknown type '%s' for %s", s, what), pos))
	}
	return t
}

func convGlobal(jg *jsonGlobal, ec *ErrorCollector) *ILGlobal {
	pos := posOf(jg.Pos)
	g := &ILGlobal{
		Name:  jg.Name,
		Type:  convType(jg.Type, "global "+jg.Name, pos, ec),
		Count: jg.Count,
		Init:  jg.Init,
		Const: jg.Const,
		Pos:   pos,
	}
	if g.Count == 0 {
		g.Count = 1
	}
	return g
}

func convAddr(a hexInt, what string, pos SourceLocation, ec *ErrorCollector) uint16 {
	if a < 0 || a > 0xFFFF {
		ec.AddError(MalformedILError(fmt.Sprintf("address $%X for %s is outside the 16-bit address space", int(a), what), pos))
		return 0
	}
	return uint16(a)
}

func convHardware(jh *jsonHw, ec *ErrorCollector) *HardwareDecl {
	pos := posOf(jh.Pos)
	form, ok := ParseHwForm(jh.Form)
	if !ok {
		ec.AddError(MalformedILError(fmt.Sprintf("unknown hardware form '%s' for '%s'", jh.Form, jh.Name), pos))
		return nil
	}
	h := &HardwareDecl{
		Name:     jh.Name,
		Form:     form,
		Addr:     convAddr(jh.Addr, "hardware "+jh.Name, pos, ec),
		Count:    jh.Count,
		ReadOnly: jh.ReadOnly,
		Pos:      pos,
	}
	if form == HwSingle || form == HwRange {
		h.Type = convType(jh.Type, "hardware "+jh.Name, pos, ec)
		if h.Type == TypeVoid {
			h.Type = TypeByte
		}
	}
	if h.Count == 0 {
		h.Count = 1
	}
	for _, jf := range jh.Fields {
		f := HwField{
			Name:     jf.Name,
			Type:     convType(jf.Type, fmt.Sprintf("field %s.%s", jh.Name, jf.Name), pos, ec),
			Count:    jf.Count,
			ReadOnly: jf.ReadOnly || jh.ReadOnly,
		}
		if f.Count == 0 {
			f.Count = 1
		}
		if form == HwExplicit {
			f.Addr = convAddr(jf.Addr, fmt.Sprintf("field %s.%s", jh.Name, jf.Name), pos, ec)
		}
		h.Fields = append(h.Fields, f)
	}
	if (form == HwStruct || form == HwExplicit) && len(h.Fields) == 0 {
		ec.AddError(MalformedILError(fmt.Sprintf("hardware '%s' declares no fields", jh.Name), pos))
	}
	return h
}

func convFunc(jf *jsonFunc, ec *ErrorCollector) *ILFunction {
	pos := posOf(jf.Pos)
	f := &ILFunction{
		Name:     jf.Name,
		Result:   convType(jf.Result, "result of "+jf.Name, pos, ec),
		Callback: jf.Callback,
		Vector:   jf.Vector,
		Pos:      pos,
	}
	for _, jp := range jf.Params {
		f.Params = append(f.Params, ILParam{
			Name: jp.Name,
			Type: convType(jp.Type, fmt.Sprintf("parameter %s of %s", jp.Name, jf.Name), pos, ec),
		})
	}
	for _, jl := range jf.Locals {
		lpos := posOf(jl.Pos)
		f.Locals = append(f.Locals, ILLocal{
			Name: jl.Name,
			Type: convType(jl.Type, fmt.Sprintf("local %s of %s", jl.Name, jf.Name), lpos, ec),
			Pos:  lpos,
		})
	}
	for i := range jf.Blocks {
		jb := &jf.Blocks[i]
		b := &ILBlock{Name: jb.Name, Pos: posOf(jb.Pos)}
		for k := range jb.Instrs {
			if in := convInstr(&jb.Instrs[k], jf.Name, ec); in != nil {
				b.Instrs = append(b.Instrs, in)
			}
		}
		f.Blocks = append(f.Blocks, b)
	}
	return f
}

func convInstr(ji *jsonInstr, fn string, ec *ErrorCollector) *Instr {
	pos := posOf(ji.Pos)
	op, ok := ParseOpcode(ji.Op)
	if !ok {
		ec.AddError(MalformedILError(fmt.Sprintf("unknown op '%s' in '%s'", ji.Op, fn), pos))
		return nil
	}
	in := &Instr{
		ID:      ji.ID,
		Op:      op,
		Type:    convType(ji.Type, "result of "+ji.Op, pos, ec),
		Lhs:     ji.Lhs,
		Rhs:     ji.Rhs,
		Cond:    ji.Cond,
		Val:     ji.Val,
		Sym:     ji.Sym,
		Field:   ji.Field,
		Index:   ji.Index,
		Args:    ji.Args,
		Then:    ji.Then,
		Else:    ji.Else,
		Target:  ji.Target,
		Sources: ji.Sources,
		Pos:     pos,
	}
	if op == OpBin || op == OpRmw {
		bin, ok := ParseBinOp(ji.Bin)
		if !ok {
			ec.AddError(MalformedILError(fmt.Sprintf("unknown operator '%s' in '%s'", ji.Bin, fn), pos))
			return nil
		}
		in.Bin = bin
	}
	if op == OpRmw {
		ref, ok := ParseRefKind(ji.Ref)
		if !ok {
			ec.AddError(MalformedILError(fmt.Sprintf("unknown rmw target kind '%s' in '%s'", ji.Ref, fn), pos))
			return nil
		}
		in.Ref = ref
	}
	for k := range ji.Body {
		if sub := convInstr(&ji.Body[k], fn, ec); sub != nil {
			in.Body = append(in.Body, sub)
		}
	}
	return in
}
