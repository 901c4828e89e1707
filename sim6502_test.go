// Completion: 100% - Execution tests: assembles emitted text and runs it on a small 6502 core
package main

import (
	"strconv"
	"strings"
	"testing"
)

// The emitter's output is plain ca65 text. To execute the semantic
// properties instead of pattern-matching them, this file carries a
// two-pass assembler for the exact subset the emitter produces and an
// interpreter for the documented 6502 instruction set. Segments are
// packed contiguously from the load address, the way the standard
// linker configs lay them out.

// Addressing modes understood by the test assembler
const (
	amImp = iota
	amAcc
	amImm
	amZP
	amZPX
	amZPY
	amAbs
	amAbsX
	amAbsY
	amRel
)

type opEnc struct {
	mn   string
	mode int
}

var opcodes = map[opEnc]byte{
	{"lda", amImm}: 0xA9, {"lda", amZP}: 0xA5, {"lda", amZPX}: 0xB5, {"lda", amAbs}: 0xAD, {"lda", amAbsX}: 0xBD, {"lda", amAbsY}: 0xB9,
	{"ldx", amImm}: 0xA2, {"ldx", amZP}: 0xA6, {"ldx", amZPY}: 0xB6, {"ldx", amAbs}: 0xAE, {"ldx", amAbsY}: 0xBE,
	{"ldy", amImm}: 0xA0, {"ldy", amZP}: 0xA4, {"ldy", amZPX}: 0xB4, {"ldy", amAbs}: 0xAC, {"ldy", amAbsX}: 0xBC,
	{"sta", amZP}: 0x85, {"sta", amZPX}: 0x95, {"sta", amAbs}: 0x8D, {"sta", amAbsX}: 0x9D, {"sta", amAbsY}: 0x99,
	{"stx", amZP}: 0x86, {"stx", amZPY}: 0x96, {"stx", amAbs}: 0x8E,
	{"sty", amZP}: 0x84, {"sty", amZPX}: 0x94, {"sty", amAbs}: 0x8C,
	{"adc", amImm}: 0x69, {"adc", amZP}: 0x65, {"adc", amZPX}: 0x75, {"adc", amAbs}: 0x6D, {"adc", amAbsX}: 0x7D, {"adc", amAbsY}: 0x79,
	{"sbc", amImm}: 0xE9, {"sbc", amZP}: 0xE5, {"sbc", amZPX}: 0xF5, {"sbc", amAbs}: 0xED, {"sbc", amAbsX}: 0xFD, {"sbc", amAbsY}: 0xF9,
	{"and", amImm}: 0x29, {"and", amZP}: 0x25, {"and", amZPX}: 0x35, {"and", amAbs}: 0x2D, {"and", amAbsX}: 0x3D, {"and", amAbsY}: 0x39,
	{"ora", amImm}: 0x09, {"ora", amZP}: 0x05, {"ora", amZPX}: 0x15, {"ora", amAbs}: 0x0D, {"ora", amAbsX}: 0x1D, {"ora", amAbsY}: 0x19,
	{"eor", amImm}: 0x49, {"eor", amZP}: 0x45, {"eor", amZPX}: 0x55, {"eor", amAbs}: 0x4D, {"eor", amAbsX}: 0x5D, {"eor", amAbsY}: 0x59,
	{"cmp", amImm}: 0xC9, {"cmp", amZP}: 0xC5, {"cmp", amZPX}: 0xD5, {"cmp", amAbs}: 0xCD, {"cmp", amAbsX}: 0xDD, {"cmp", amAbsY}: 0xD9,
	{"cpx", amImm}: 0xE0, {"cpx", amZP}: 0xE4, {"cpx", amAbs}: 0xEC,
	{"cpy", amImm}: 0xC0, {"cpy", amZP}: 0xC4, {"cpy", amAbs}: 0xCC,
	{"asl", amAcc}: 0x0A, {"asl", amZP}: 0x06, {"asl", amZPX}: 0x16, {"asl", amAbs}: 0x0E, {"asl", amAbsX}: 0x1E,
	{"lsr", amAcc}: 0x4A, {"lsr", amZP}: 0x46, {"lsr", amZPX}: 0x56, {"lsr", amAbs}: 0x4E, {"lsr", amAbsX}: 0x5E,
	{"rol", amAcc}: 0x2A, {"rol", amZP}: 0x26, {"rol", amZPX}: 0x36, {"rol", amAbs}: 0x2E, {"rol", amAbsX}: 0x3E,
	{"ror", amAcc}: 0x6A, {"ror", amZP}: 0x66, {"ror", amZPX}: 0x76, {"ror", amAbs}: 0x6E, {"ror", amAbsX}: 0x7E,
	{"inc", amZP}: 0xE6, {"inc", amZPX}: 0xF6, {"inc", amAbs}: 0xEE, {"inc", amAbsX}: 0xFE,
	{"dec", amZP}: 0xC6, {"dec", amZPX}: 0xD6, {"dec", amAbs}: 0xCE, {"dec", amAbsX}: 0xDE,
	{"jmp", amAbs}: 0x4C, {"jsr", amAbs}: 0x20,
	{"beq", amRel}: 0xF0, {"bne", amRel}: 0xD0, {"bcc", amRel}: 0x90, {"bcs", amRel}: 0xB0,
	{"bmi", amRel}: 0x30, {"bpl", amRel}: 0x10, {"bvc", amRel}: 0x50, {"bvs", amRel}: 0x70,
	{"inx", amImp}: 0xE8, {"dex", amImp}: 0xCA, {"iny", amImp}: 0xC8, {"dey", amImp}: 0x88,
	{"tax", amImp}: 0xAA, {"tay", amImp}: 0xA8, {"txa", amImp}: 0x8A, {"tya", amImp}: 0x98,
	{"clc", amImp}: 0x18, {"sec", amImp}: 0x38, {"cli", amImp}: 0x58, {"sei", amImp}: 0x78,
	{"pha", amImp}: 0x48, {"pla", amImp}: 0x68, {"php", amImp}: 0x08, {"plp", amImp}: 0x28,
	{"rts", amImp}: 0x60, {"rti", amImp}: 0x40, {"nop", amImp}: 0xEA,
}

var decode = func() map[byte]opEnc {
	m := make(map[byte]opEnc, len(opcodes))
	for k, v := range opcodes {
		m[v] = k
	}
	return m
}()

var relBranches = map[string]bool{
	"beq": true, "bne": true, "bcc": true, "bcs": true,
	"bmi": true, "bpl": true, "bvc": true, "bvs": true,
}

type asmLine struct {
	text  string
	scope int
	num   int
}

type testImage struct {
	mem    [65536]byte
	labels map[string]uint16
	org    uint16
	end    uint16
}

func (img *testImage) label(t *testing.T, name string) uint16 {
	t.Helper()
	a, ok := img.labels[name]
	if !ok {
		t.Fatalf("label %q not defined in image", name)
	}
	return a
}

func (img *testImage) word(addr uint16) int {
	return int(img.mem[addr]) | int(img.mem[addr+1])<<8
}

// splitOperand separates an index suffix from an operand
func splitOperand(op string) (string, byte) {
	if strings.HasSuffix(op, ",x") {
		return strings.TrimSpace(op[:len(op)-2]), 'x'
	}
	if strings.HasSuffix(op, ",y") {
		return strings.TrimSpace(op[:len(op)-2]), 'y'
	}
	return op, 0
}

// operandMode classifies an operand string without resolving symbols
func operandMode(mn, op string) int {
	if op == "" {
		if _, acc := opcodes[opEnc{mn, amAcc}]; acc {
			return amAcc
		}
		return amImp
	}
	if strings.HasPrefix(op, "#") {
		return amImm
	}
	if relBranches[mn] {
		return amRel
	}
	base, idx := splitOperand(op)
	zp := strings.HasPrefix(base, "$") && len(base) == 3
	switch {
	case zp && idx == 'x':
		return amZPX
	case zp && idx == 'y':
		return amZPY
	case zp:
		return amZP
	case idx == 'x':
		return amAbsX
	case idx == 'y':
		return amAbsY
	default:
		return amAbs
	}
}

func modeSize(mode int) int {
	switch mode {
	case amImp, amAcc:
		return 1
	case amImm, amZP, amZPX, amZPY, amRel:
		return 2
	default:
		return 3
	}
}

// scopedCheap qualifies a cheap label with its surrounding scope
func scopedCheap(scope int, name string) string {
	return strconv.Itoa(scope) + name
}

// stripComment cuts a trailing comment off a line, honoring quotes
func stripComment(line string) string {
	quoted := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			quoted = !quoted
		case ';':
			if !quoted {
				return strings.TrimSpace(line[:i])
			}
		}
	}
	return line
}

// byteItems parses a .byte operand list: hex values or one quoted string
func byteItems(t *testing.T, rest string, num int) []byte {
	t.Helper()
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "\"") {
		s, err := strconv.Unquote(rest)
		if err != nil {
			t.Fatalf("line %d: bad string %s: %v", num, rest, err)
		}
		return []byte(s)
	}
	var out []byte
	for _, item := range strings.Split(rest, ",") {
		item = strings.TrimSpace(item)
		v, err := strconv.ParseUint(strings.TrimPrefix(item, "$"), 16, 8)
		if err != nil {
			t.Fatalf("line %d: bad byte %q: %v", num, item, err)
		}
		out = append(out, byte(v))
	}
	return out
}

// assemble turns emitted assembly text into a memory image. Unknown
// syntax fails the test: the assembler understands exactly what the
// emitter produces, nothing more.
func assemble(t *testing.T, text string, org uint16) *testImage {
	t.Helper()
	img := &testImage{labels: make(map[string]uint16), org: org}

	var lines []asmLine
	scope := 0
	for num, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		line = stripComment(line)
		switch {
		case strings.HasPrefix(line, ".setcpu"),
			strings.HasPrefix(line, ".segment"),
			strings.HasPrefix(line, ".export"),
			strings.HasPrefix(line, ".import"):
			continue
		}
		if strings.HasSuffix(line, ":") && !strings.HasPrefix(line, "@") {
			scope++
		}
		lines = append(lines, asmLine{text: line, scope: scope, num: num + 1})
	}

	// First pass: addresses
	pc := int(org)
	for _, ln := range lines {
		switch {
		case strings.HasSuffix(ln.text, ":"):
			name := strings.TrimSuffix(ln.text, ":")
			if strings.HasPrefix(name, "@") {
				name = scopedCheap(ln.scope, name)
			}
			if _, dup := img.labels[name]; dup {
				t.Fatalf("line %d: duplicate label %q", ln.num, name)
			}
			img.labels[name] = uint16(pc)
		case strings.HasPrefix(ln.text, ".byte"):
			pc += len(byteItems(t, strings.TrimPrefix(ln.text, ".byte"), ln.num))
		case strings.HasPrefix(ln.text, ".word"):
			pc += 2 * len(strings.Split(ln.text, ","))
		case strings.HasPrefix(ln.text, ".res"):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(ln.text, ".res")))
			if err != nil {
				t.Fatalf("line %d: bad .res: %v", ln.num, err)
			}
			pc += n
		default:
			mn, op := ln.text, ""
			if i := strings.IndexByte(ln.text, ' '); i >= 0 {
				mn, op = ln.text[:i], strings.TrimSpace(ln.text[i+1:])
			}
			pc += modeSize(operandMode(mn, op))
		}
		if pc > 0x10000 {
			t.Fatalf("line %d: image overflows memory", ln.num)
		}
	}

	resolve := func(ln asmLine, sym string) int {
		name := sym
		off := 0
		if i := strings.IndexByte(sym, '+'); i >= 0 {
			name = sym[:i]
			n, err := strconv.Atoi(sym[i+1:])
			if err != nil {
				t.Fatalf("line %d: bad offset in %q: %v", ln.num, sym, err)
			}
			off = n
		}
		if strings.HasPrefix(name, "@") {
			name = scopedCheap(ln.scope, name)
		}
		a, ok := img.labels[name]
		if !ok {
			t.Fatalf("line %d: undefined symbol %q", ln.num, sym)
		}
		return int(a) + off
	}

	value := func(ln asmLine, s string) int {
		if strings.HasPrefix(s, "$") {
			v, err := strconv.ParseUint(s[1:], 16, 16)
			if err != nil {
				t.Fatalf("line %d: bad value %q: %v", ln.num, s, err)
			}
			return int(v)
		}
		return resolve(ln, s)
	}

	// Second pass: encode
	pc = int(org)
	for _, ln := range lines {
		switch {
		case strings.HasSuffix(ln.text, ":"):
			continue
		case strings.HasPrefix(ln.text, ".byte"):
			for _, b := range byteItems(t, strings.TrimPrefix(ln.text, ".byte"), ln.num) {
				img.mem[pc] = b
				pc++
			}
		case strings.HasPrefix(ln.text, ".word"):
			for _, item := range strings.Split(strings.TrimPrefix(ln.text, ".word"), ",") {
				v := value(ln, strings.TrimSpace(item))
				img.mem[pc] = byte(v)
				img.mem[pc+1] = byte(v >> 8)
				pc += 2
			}
		case strings.HasPrefix(ln.text, ".res"):
			n, _ := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(ln.text, ".res")))
			pc += n
		default:
			mn, op := ln.text, ""
			if i := strings.IndexByte(ln.text, ' '); i >= 0 {
				mn, op = ln.text[:i], strings.TrimSpace(ln.text[i+1:])
			}
			mode := operandMode(mn, op)
			code, ok := opcodes[opEnc{mn, mode}]
			if !ok {
				t.Fatalf("line %d: no encoding for %q mode %d", ln.num, ln.text, mode)
			}
			img.mem[pc] = code
			switch mode {
			case amImp, amAcc:
				pc++
			case amImm:
				var v int
				switch {
				case strings.HasPrefix(op, "#<"):
					v = resolve(ln, op[2:]) & 0xFF
				case strings.HasPrefix(op, "#>"):
					v = resolve(ln, op[2:]) >> 8 & 0xFF
				default:
					v = value(ln, op[1:])
				}
				img.mem[pc+1] = byte(v)
				pc += 2
			case amRel:
				target := resolve(ln, op)
				disp := target - (pc + 2)
				if disp < -128 || disp > 127 {
					t.Fatalf("line %d: branch to %q out of range (%d)", ln.num, op, disp)
				}
				img.mem[pc+1] = byte(disp)
				pc += 2
			case amZP, amZPX, amZPY:
				base, _ := splitOperand(op)
				img.mem[pc+1] = byte(value(ln, base))
				pc += 2
			default:
				base, _ := splitOperand(op)
				v := value(ln, base)
				img.mem[pc+1] = byte(v)
				img.mem[pc+2] = byte(v >> 8)
				pc += 3
			}
		}
	}
	img.end = uint16(pc)
	return img
}

// sentinelPC is where call() parks the return address; reaching it
// means the routine came back
const sentinelPC uint16 = 0xFFF9

type sim6502 struct {
	t     *testing.T
	mem   [65536]byte
	a     byte
	x     byte
	y     byte
	sp    byte
	pc    uint16
	c     bool
	z     bool
	n     bool
	v     bool
	intI  bool
	steps int
}

func newSim(t *testing.T, img *testImage) *sim6502 {
	s := &sim6502{t: t, sp: 0xFD}
	s.mem = img.mem
	return s
}

func (s *sim6502) word(addr uint16) int {
	return int(s.mem[addr]) | int(s.mem[addr+1])<<8
}

func (s *sim6502) push(b byte) {
	s.mem[0x0100+uint16(s.sp)] = b
	s.sp--
}

func (s *sim6502) pull() byte {
	s.sp++
	return s.mem[0x0100+uint16(s.sp)]
}

func (s *sim6502) flags() byte {
	var p byte = 0x20
	if s.c {
		p |= 0x01
	}
	if s.z {
		p |= 0x02
	}
	if s.intI {
		p |= 0x04
	}
	if s.v {
		p |= 0x40
	}
	if s.n {
		p |= 0x80
	}
	return p
}

func (s *sim6502) setFlags(p byte) {
	s.c = p&0x01 != 0
	s.z = p&0x02 != 0
	s.intI = p&0x04 != 0
	s.v = p&0x40 != 0
	s.n = p&0x80 != 0
}

func (s *sim6502) setZN(v byte) {
	s.z = v == 0
	s.n = v&0x80 != 0
}

// call runs a subroutine to completion, rts-ing back to the sentinel
func (s *sim6502) call(addr uint16, maxSteps int) {
	s.t.Helper()
	s.push(byte((sentinelPC - 1) >> 8))
	s.push(byte((sentinelPC - 1) & 0xFF))
	s.pc = addr
	s.run(maxSteps)
}

// interrupt fires a hardware interrupt through the vector at vecAddr
// and runs the handler until it returns to the interrupted spot
func (s *sim6502) interrupt(vecAddr uint16, maxSteps int) {
	s.t.Helper()
	resume := s.pc
	s.push(byte(s.pc >> 8))
	s.push(byte(s.pc))
	s.push(s.flags())
	s.intI = true
	s.pc = uint16(s.word(vecAddr))
	for i := 0; s.pc != resume; i++ {
		if i >= maxSteps {
			s.t.Fatalf("interrupt handler did not return after %d steps (pc=$%04x)", maxSteps, s.pc)
		}
		s.step()
	}
}

func (s *sim6502) run(maxSteps int) {
	s.t.Helper()
	for i := 0; s.pc != sentinelPC; i++ {
		// Bare-board images park in a jmp-to-self once main returns.
		if s.mem[s.pc] == 0x4C && uint16(s.word(s.pc+1)) == s.pc {
			return
		}
		if i >= maxSteps {
			s.t.Fatalf("program did not finish after %d steps (pc=$%04x)", maxSteps, s.pc)
		}
		s.step()
	}
}

func (s *sim6502) step() {
	s.t.Helper()
	op := s.mem[s.pc]
	d, ok := decode[op]
	if !ok {
		s.t.Fatalf("sim: undefined opcode $%02x at $%04x", op, s.pc)
	}
	s.steps++

	// Operand address (or immediate value for amImm)
	var addr uint16
	var imm byte
	size := modeSize(d.mode)
	switch d.mode {
	case amImm:
		imm = s.mem[s.pc+1]
	case amZP:
		addr = uint16(s.mem[s.pc+1])
	case amZPX:
		addr = uint16(s.mem[s.pc+1] + s.x)
	case amZPY:
		addr = uint16(s.mem[s.pc+1] + s.y)
	case amAbs:
		addr = uint16(s.word(s.pc + 1))
	case amAbsX:
		addr = uint16(s.word(s.pc+1)) + uint16(s.x)
	case amAbsY:
		addr = uint16(s.word(s.pc+1)) + uint16(s.y)
	case amRel:
		addr = uint16(int(s.pc) + 2 + int(int8(s.mem[s.pc+1])))
	}
	next := s.pc + uint16(size)

	load := func() byte {
		if d.mode == amImm {
			return imm
		}
		return s.mem[addr]
	}
	branch := func(taken bool) {
		if taken {
			next = addr
		}
	}

	switch d.mn {
	case "lda":
		s.a = load()
		s.setZN(s.a)
	case "ldx":
		s.x = load()
		s.setZN(s.x)
	case "ldy":
		s.y = load()
		s.setZN(s.y)
	case "sta":
		s.mem[addr] = s.a
	case "stx":
		s.mem[addr] = s.x
	case "sty":
		s.mem[addr] = s.y
	case "adc":
		m := load()
		sum := int(s.a) + int(m)
		if s.c {
			sum++
		}
		r := byte(sum)
		s.v = (s.a^r)&(m^r)&0x80 != 0
		s.c = sum > 0xFF
		s.a = r
		s.setZN(s.a)
	case "sbc":
		m := load()
		diff := int(s.a) - int(m)
		if !s.c {
			diff--
		}
		r := byte(diff)
		s.v = (s.a^m)&(s.a^r)&0x80 != 0
		s.c = diff >= 0
		s.a = r
		s.setZN(s.a)
	case "and":
		s.a &= load()
		s.setZN(s.a)
	case "ora":
		s.a |= load()
		s.setZN(s.a)
	case "eor":
		s.a ^= load()
		s.setZN(s.a)
	case "cmp":
		m := load()
		s.c = s.a >= m
		s.setZN(s.a - m)
	case "cpx":
		m := load()
		s.c = s.x >= m
		s.setZN(s.x - m)
	case "cpy":
		m := load()
		s.c = s.y >= m
		s.setZN(s.y - m)
	case "asl":
		if d.mode == amAcc {
			s.c = s.a&0x80 != 0
			s.a <<= 1
			s.setZN(s.a)
		} else {
			v := s.mem[addr]
			s.c = v&0x80 != 0
			v <<= 1
			s.mem[addr] = v
			s.setZN(v)
		}
	case "lsr":
		if d.mode == amAcc {
			s.c = s.a&0x01 != 0
			s.a >>= 1
			s.setZN(s.a)
		} else {
			v := s.mem[addr]
			s.c = v&0x01 != 0
			v >>= 1
			s.mem[addr] = v
			s.setZN(v)
		}
	case "rol":
		carryIn := byte(0)
		if s.c {
			carryIn = 1
		}
		if d.mode == amAcc {
			s.c = s.a&0x80 != 0
			s.a = s.a<<1 | carryIn
			s.setZN(s.a)
		} else {
			v := s.mem[addr]
			s.c = v&0x80 != 0
			v = v<<1 | carryIn
			s.mem[addr] = v
			s.setZN(v)
		}
	case "ror":
		carryIn := byte(0)
		if s.c {
			carryIn = 0x80
		}
		if d.mode == amAcc {
			s.c = s.a&0x01 != 0
			s.a = s.a>>1 | carryIn
			s.setZN(s.a)
		} else {
			v := s.mem[addr]
			s.c = v&0x01 != 0
			v = v>>1 | carryIn
			s.mem[addr] = v
			s.setZN(v)
		}
	case "inc":
		s.mem[addr]++
		s.setZN(s.mem[addr])
	case "dec":
		s.mem[addr]--
		s.setZN(s.mem[addr])
	case "inx":
		s.x++
		s.setZN(s.x)
	case "dex":
		s.x--
		s.setZN(s.x)
	case "iny":
		s.y++
		s.setZN(s.y)
	case "dey":
		s.y--
		s.setZN(s.y)
	case "tax":
		s.x = s.a
		s.setZN(s.x)
	case "tay":
		s.y = s.a
		s.setZN(s.y)
	case "txa":
		s.a = s.x
		s.setZN(s.a)
	case "tya":
		s.a = s.y
		s.setZN(s.a)
	case "clc":
		s.c = false
	case "sec":
		s.c = true
	case "cli":
		s.intI = false
	case "sei":
		s.intI = true
	case "pha":
		s.push(s.a)
	case "pla":
		s.a = s.pull()
		s.setZN(s.a)
	case "php":
		s.push(s.flags() | 0x10)
	case "plp":
		s.setFlags(s.pull())
	case "jmp":
		next = addr
	case "jsr":
		ret := s.pc + 2
		s.push(byte(ret >> 8))
		s.push(byte(ret))
		next = addr
	case "rts":
		lo := s.pull()
		hi := s.pull()
		next = uint16(lo) | uint16(hi)<<8
		next++
	case "rti":
		s.setFlags(s.pull())
		lo := s.pull()
		hi := s.pull()
		next = uint16(lo) | uint16(hi)<<8
	case "beq":
		branch(s.z)
	case "bne":
		branch(!s.z)
	case "bcc":
		branch(!s.c)
	case "bcs":
		branch(s.c)
	case "bmi":
		branch(s.n)
	case "bpl":
		branch(!s.n)
	case "bvc":
		branch(!s.v)
	case "bvs":
		branch(s.v)
	case "nop":
	default:
		s.t.Fatalf("sim: unhandled mnemonic %q", d.mn)
	}
	s.pc = next
}

// --- IL construction helpers ---

func iConst(id string, t ILType, v int) *Instr {
	return &Instr{ID: id, Op: OpConst, Type: t, Val: v}
}

func iBin(id string, t ILType, op BinOp, lhs, rhs string) *Instr {
	return &Instr{ID: id, Op: OpBin, Type: t, Bin: op, Lhs: lhs, Rhs: rhs}
}

func iCast(id string, t ILType, src string) *Instr {
	return &Instr{ID: id, Op: OpCast, Type: t, Lhs: src}
}

func iStoreGlobal(sym, val string) *Instr {
	return &Instr{Op: OpStoreGlobal, Sym: sym, Lhs: val}
}

func iLoadGlobal(id string, t ILType, sym string) *Instr {
	return &Instr{ID: id, Op: OpLoadGlobal, Type: t, Sym: sym}
}

func iRet(val string) *Instr {
	return &Instr{Op: OpRet, Lhs: val}
}

func iJmp(target string) *Instr {
	return &Instr{Op: OpJmp, Target: target}
}

func iBr(cond, then, els string) *Instr {
	return &Instr{Op: OpBr, Cond: cond, Then: then, Else: els}
}

func iCall(id string, t ILType, callee string, args ...string) *Instr {
	return &Instr{ID: id, Op: OpCall, Type: t, Sym: callee, Args: args}
}

func iPhi(id string, t ILType, sources map[string]string) *Instr {
	return &Instr{ID: id, Op: OpPhi, Type: t, Sources: sources}
}

func byteGlobal(name string, init ...int) *ILGlobal {
	return &ILGlobal{Name: name, Type: TypeByte, Count: 1, Init: init}
}

func wordGlobal(name string, init ...int) *ILGlobal {
	return &ILGlobal{Name: name, Type: TypeWord, Count: 1, Init: init}
}

func program(funcs []*ILFunction, globals ...*ILGlobal) *ILModule {
	return &ILModule{Name: "t", Kind: "program", Globals: globals, Funcs: funcs}
}

func fn(name string, blocks ...*ILBlock) *ILFunction {
	return &ILFunction{Name: name, Result: TypeVoid, Blocks: blocks}
}

func block(name string, instrs ...*Instr) *ILBlock {
	return &ILBlock{Name: name, Instrs: instrs}
}

// genProgram lowers a module and fails the test on any error
func genProgram(t *testing.T, m *Machine, mod *ILModule) string {
	t.Helper()
	ec := NewErrorCollector(20)
	bc := NewB65Compiler(m, ec, true)
	out, ok := bc.Generate(mod)
	if !ok {
		t.Fatalf("generation failed:\n%s", ec.Report(false))
	}
	return out
}

// buildAndRun lowers, assembles and executes a program's entry path
func buildAndRun(t *testing.T, mod *ILModule) (*sim6502, *testImage) {
	t.Helper()
	m := MachineRaw()
	out := genProgram(t, m, mod)
	img := assemble(t, out, uint16(m.Org))
	s := newSim(t, img)
	s.call(img.label(t, "__start"), 200000)
	return s, img
}

// --- execution tests ---

// TestExecArithmeticProperties runs the wraparound and carry cases
// through real execution: 3-10 on bytes, $00FF+1 on words, and the
// unsigned word comparison $0200 > $01FF.
func TestExecArithmeticProperties(t *testing.T) {
	mod := program(
		[]*ILFunction{fn("main", block("entry",
			iConst("v1", TypeByte, 3),
			iConst("v2", TypeByte, 10),
			iBin("v3", TypeByte, BinSub, "v1", "v2"),
			iStoreGlobal("r1", "v3"),
			iConst("v4", TypeWord, 0x00FF),
			iConst("v5", TypeWord, 1),
			iBin("v6", TypeWord, BinAdd, "v4", "v5"),
			iStoreGlobal("r2", "v6"),
			iConst("v7", TypeWord, 0x0200),
			iConst("v8", TypeWord, 0x01FF),
			iBin("v9", TypeByte, BinGt, "v7", "v8"),
			iStoreGlobal("r3", "v9"),
			iRet(""),
		))},
		byteGlobal("r1"), wordGlobal("r2"), byteGlobal("r3"),
	)
	s, img := buildAndRun(t, mod)

	if got := s.mem[img.label(t, "r1")]; got != 249 {
		t.Errorf("3 - 10 = %d, want 249", got)
	}
	if got := s.word(img.label(t, "r2")); got != 0x0100 {
		t.Errorf("$00FF + 1 = $%04x, want $0100", got)
	}
	if got := s.mem[img.label(t, "r3")]; got != 1 {
		t.Errorf("$0200 > $01FF = %d, want 1", got)
	}
}

// TestExecRuntimeHelpers exercises the emitted mul, div, mod and
// shift routines for both widths, including divide by zero
func TestExecRuntimeHelpers(t *testing.T) {
	cases := []struct {
		name string
		typ  ILType
		op   BinOp
		lhs  int
		rhs  int
		want int
	}{
		{"byte_mul", TypeByte, BinMul, 7, 6, 42},
		{"byte_div", TypeByte, BinDiv, 100, 9, 11},
		{"byte_mod", TypeByte, BinMod, 100, 9, 1},
		{"byte_shl", TypeByte, BinShl, 3, 3, 24},
		{"byte_shr", TypeByte, BinShr, 0x80, 7, 1},
		{"byte_div_zero", TypeByte, BinDiv, 55, 0, 0},
		{"word_mul", TypeWord, BinMul, 123, 4, 492},
		{"word_div", TypeWord, BinDiv, 500, 7, 71},
		{"word_mod", TypeWord, BinMod, 500, 7, 3},
		{"word_shl", TypeWord, BinShl, 1, 9, 512},
		{"word_shr", TypeWord, BinShr, 0x0300, 4, 0x30},
		{"word_mul_wrap", TypeWord, BinMul, 300, 300, 300 * 300 & 0xFFFF},
		{"word_div_zero", TypeWord, BinDiv, 999, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// The divisor arrives from a global so constant folding
			// cannot shortcut the helper call.
			g := &ILGlobal{Name: "rhs", Type: tc.typ, Count: 1, Init: []int{tc.rhs}}
			var result *ILGlobal
			if tc.typ == TypeWord {
				result = wordGlobal("out")
			} else {
				result = byteGlobal("out")
			}
			mod := program(
				[]*ILFunction{fn("main", block("entry",
					iConst("v1", tc.typ, tc.lhs),
					iLoadGlobal("v2", tc.typ, "rhs"),
					iBin("v3", tc.typ, tc.op, "v1", "v2"),
					iStoreGlobal("out", "v3"),
					iRet(""),
				))},
				g, result,
			)
			s, img := buildAndRun(t, mod)
			var got int
			if tc.typ == TypeWord {
				got = s.word(img.label(t, "out"))
			} else {
				got = int(s.mem[img.label(t, "out")])
			}
			if got != tc.want {
				t.Errorf("%d %s %d = %d, want %d", tc.lhs, tc.op, tc.rhs, got, tc.want)
			}
		})
	}
}

// TestExecLoopPhi runs a counted loop whose induction variable and
// accumulator are phis: sum of 1..5
func TestExecLoopPhi(t *testing.T) {
	mod := program(
		[]*ILFunction{fn("main",
			block("entry",
				iConst("c0", TypeByte, 0),
				iConst("c1", TypeByte, 1),
				iConst("c5", TypeByte, 5),
				iJmp("loop"),
			),
			block("loop",
				iPhi("i", TypeByte, map[string]string{"entry": "c1", "body": "inext"}),
				iPhi("s", TypeByte, map[string]string{"entry": "c0", "body": "snext"}),
				iBin("cond", TypeByte, BinLe, "i", "c5"),
				iBr("cond", "body", "exit"),
			),
			block("body",
				iBin("snext", TypeByte, BinAdd, "s", "i"),
				iBin("inext", TypeByte, BinAdd, "i", "c1"),
				iJmp("loop"),
			),
			block("exit",
				iStoreGlobal("out", "s"),
				iRet(""),
			),
		)},
		byteGlobal("out"),
	)
	s, img := buildAndRun(t, mod)
	if got := s.mem[img.label(t, "out")]; got != 15 {
		t.Errorf("sum 1..5 = %d, want 15", got)
	}
}

// TestExecParamWindow passes (5, 300, 7) through the packed zero-page
// window, with a nested call whose arguments overlap the caller's own
// parameter cells
func TestExecParamWindow(t *testing.T) {
	g := &ILFunction{
		Name:   "g",
		Params: []ILParam{{"p", TypeWord}, {"q", TypeByte}},
		Result: TypeWord,
		Blocks: []*ILBlock{block("entry",
			iCast("v1", TypeWord, "q"),
			iBin("v2", TypeWord, BinAdd, "p", "v1"),
			iRet("v2"),
		)},
	}
	f := &ILFunction{
		Name:   "f",
		Params: []ILParam{{"a", TypeByte}, {"w", TypeWord}, {"c", TypeByte}},
		Result: TypeWord,
		Blocks: []*ILBlock{block("entry",
			// g(w, a): w lands where a and w.lo lived, a lands on w.hi
			iCall("v1", TypeWord, "g", "w", "a"),
			iCast("v2", TypeWord, "c"),
			iBin("v3", TypeWord, BinAdd, "v1", "v2"),
			iRet("v3"),
		)},
	}
	main := fn("main", block("entry",
		iConst("c5", TypeByte, 5),
		iConst("c300", TypeWord, 300),
		iConst("c7", TypeByte, 7),
		iCall("v1", TypeWord, "f", "c5", "c300", "c7"),
		iStoreGlobal("out", "v1"),
		iRet(""),
	))
	mod := program([]*ILFunction{main, f, g}, wordGlobal("out"))
	s, img := buildAndRun(t, mod)
	if got := s.word(img.label(t, "out")); got != 312 {
		t.Errorf("f(5, 300, 7) = %d, want 312", got)
	}
}

// TestExecShortCircuit checks that the lazily evaluated right-hand
// side runs only when the left side demands it, observed through a
// side effect inside the body
func TestExecShortCircuit(t *testing.T) {
	build := func(aVal int) *ILModule {
		return program(
			[]*ILFunction{fn("main", block("entry",
				iLoadGlobal("a", TypeByte, "lhs"),
				iConst("c1", TypeByte, 1),
				&Instr{ID: "r", Op: OpLogAnd, Type: TypeByte, Lhs: "a", Rhs: "t2", Body: []*Instr{
					iStoreGlobal("touched", "c1"),
					iLoadGlobal("t1", TypeByte, "rhs"),
					iBin("t2", TypeByte, BinGt, "t1", "c1"),
				}},
				iStoreGlobal("out", "r"),
				iRet(""),
			))},
			&ILGlobal{Name: "lhs", Type: TypeByte, Count: 1, Init: []int{aVal}},
			&ILGlobal{Name: "rhs", Type: TypeByte, Count: 1, Init: []int{5}},
			byteGlobal("touched"),
			byteGlobal("out"),
		)
	}

	t.Run("short_circuits", func(t *testing.T) {
		s, img := buildAndRun(t, build(0))
		if got := s.mem[img.label(t, "out")]; got != 0 {
			t.Errorf("0 land _ = %d, want 0", got)
		}
		if got := s.mem[img.label(t, "touched")]; got != 0 {
			t.Errorf("right-hand side ran despite false left side")
		}
	})
	t.Run("evaluates_rhs", func(t *testing.T) {
		s, img := buildAndRun(t, build(1))
		if got := s.mem[img.label(t, "out")]; got != 1 {
			t.Errorf("1 land (5 > 1) = %d, want 1", got)
		}
		if got := s.mem[img.label(t, "touched")]; got != 1 {
			t.Errorf("right-hand side did not run for true left side")
		}
	})
}

// TestExecArrayStride indexes byte and word arrays with a runtime
// index: byte elements are one apart, word elements two
func TestExecArrayStride(t *testing.T) {
	mod := program(
		[]*ILFunction{fn("main", block("entry",
			iLoadGlobal("idx", TypeByte, "which"),
			iConst("b", TypeByte, 0x41),
			&Instr{Op: OpStoreElem, Sym: "bytes", Index: "idx", Lhs: "b"},
			iLoadGlobal("idx2", TypeByte, "which"),
			iConst("w", TypeWord, 0x1234),
			&Instr{Op: OpStoreElem, Sym: "words", Index: "idx2", Lhs: "w"},
			iLoadGlobal("idx3", TypeByte, "which"),
			&Instr{ID: "rb", Op: OpLoadElem, Type: TypeByte, Sym: "bytes", Index: "idx3"},
			iStoreGlobal("outb", "rb"),
			iLoadGlobal("idx4", TypeByte, "which"),
			&Instr{ID: "rw", Op: OpLoadElem, Type: TypeWord, Sym: "words", Index: "idx4"},
			iStoreGlobal("outw", "rw"),
			iRet(""),
		))},
		&ILGlobal{Name: "which", Type: TypeByte, Count: 1, Init: []int{2}},
		&ILGlobal{Name: "bytes", Type: TypeByte, Count: 4},
		&ILGlobal{Name: "words", Type: TypeWord, Count: 4},
		byteGlobal("outb"),
		wordGlobal("outw"),
	)
	s, img := buildAndRun(t, mod)

	bytesBase := img.label(t, "bytes")
	wordsBase := img.label(t, "words")
	if got := s.mem[bytesBase+2]; got != 0x41 {
		t.Errorf("bytes[2] = $%02x, want $41", got)
	}
	for i := uint16(0); i < 4; i++ {
		if i != 2 && s.mem[bytesBase+i] != 0 {
			t.Errorf("bytes[%d] = $%02x, want untouched", i, s.mem[bytesBase+i])
		}
	}
	if got := s.word(wordsBase + 4); got != 0x1234 {
		t.Errorf("words[2] = $%04x, want $1234", got)
	}
	if got := s.mem[img.label(t, "outb")]; got != 0x41 {
		t.Errorf("loaded bytes[2] = $%02x, want $41", got)
	}
	if got := s.word(img.label(t, "outw")); got != 0x1234 {
		t.Errorf("loaded words[2] = $%04x, want $1234", got)
	}
}

// TestExecHardwareStride writes through hardware bindings with a
// runtime index: a word range steps two bytes per element
func TestExecHardwareStride(t *testing.T) {
	mod := program(
		[]*ILFunction{fn("main", block("entry",
			iLoadGlobal("i1", TypeByte, "which"),
			iConst("b", TypeByte, 0x7F),
			&Instr{Op: OpStoreHw, Sym: "ports", Index: "i1", Lhs: "b"},
			iLoadGlobal("i2", TypeByte, "which"),
			iConst("w", TypeWord, 0x0203),
			&Instr{Op: OpStoreHw, Sym: "timers", Index: "i2", Lhs: "w"},
			iLoadGlobal("i3", TypeByte, "which"),
			&Instr{ID: "r", Op: OpLoadHw, Type: TypeWord, Sym: "timers", Index: "i3"},
			iStoreGlobal("out", "r"),
			iRet(""),
		))},
		&ILGlobal{Name: "which", Type: TypeByte, Count: 1, Init: []int{3}},
		wordGlobal("out"),
	)
	mod.Hardware = []*HardwareDecl{
		{Name: "ports", Form: HwRange, Addr: 0xD000, Count: 4, Type: TypeByte},
		{Name: "timers", Form: HwRange, Addr: 0xD400, Count: 4, Type: TypeWord},
	}
	s, img := buildAndRun(t, mod)

	if got := s.mem[0xD003]; got != 0x7F {
		t.Errorf("ports[3] = $%02x, want $7f", got)
	}
	if got := s.word(0xD406); got != 0x0203 {
		t.Errorf("timers[3] = $%04x, want $0203", got)
	}
	if got := s.word(img.label(t, "out")); got != 0x0203 {
		t.Errorf("read back timers[3] = $%04x, want $0203", got)
	}
}

// TestExecInterruptPreservesRegisters installs an irq callback, fires
// an interrupt while A, X and Y hold known values and checks the
// handler ran without disturbing them
func TestExecInterruptPreservesRegisters(t *testing.T) {
	cb := &ILFunction{
		Name:     "onirq",
		Callback: true,
		Vector:   "irq",
		Blocks: []*ILBlock{block("entry",
			iLoadGlobal("v1", TypeByte, "count"),
			iConst("c1", TypeByte, 1),
			iBin("v2", TypeByte, BinAdd, "v1", "c1"),
			iStoreGlobal("count", "v2"),
			iRet(""),
		)},
	}
	main := fn("main", block("entry", iRet("")))
	mod := program([]*ILFunction{main, cb}, byteGlobal("count"))

	m := MachineRaw()
	out := genProgram(t, m, mod)
	img := assemble(t, out, uint16(m.Org))
	s := newSim(t, img)
	s.call(img.label(t, "__start"), 100000)

	irqVec := uint16(m.Vectors["irq"])
	if got := uint16(s.word(irqVec)); got != img.label(t, "onirq") {
		t.Fatalf("irq vector holds $%04x, want handler at $%04x", got, img.label(t, "onirq"))
	}

	s.pc = sentinelPC
	s.a, s.x, s.y = 0x11, 0x22, 0x33
	s.interrupt(irqVec, 10000)

	if s.a != 0x11 || s.x != 0x22 || s.y != 0x33 {
		t.Errorf("registers after interrupt = %02x %02x %02x, want 11 22 33", s.a, s.x, s.y)
	}
	if got := s.mem[img.label(t, "count")]; got != 1 {
		t.Errorf("handler ran %d time(s), want 1", got)
	}
}

// TestExecInterruptMidFunction fires the interrupt between a store and
// a load of a main-program local. The handler keeps its own local, so
// the interrupted function's zero page comes back untouched.
func TestExecInterruptMidFunction(t *testing.T) {
	cb := &ILFunction{
		Name:     "onirq",
		Callback: true,
		Vector:   "irq",
		Locals:   []ILLocal{{Name: "c", Type: TypeByte}},
		Blocks: []*ILBlock{block("entry",
			iLoadGlobal("v1", TypeByte, "count"),
			iConst("c1", TypeByte, 1),
			iBin("v2", TypeByte, BinAdd, "v1", "c1"),
			&Instr{Op: OpStoreLocal, Sym: "c", Lhs: "v2"},
			&Instr{ID: "v3", Op: OpLoadLocal, Type: TypeByte, Sym: "c"},
			iStoreGlobal("count", "v3"),
			iRet(""),
		)},
	}
	mainFn := &ILFunction{
		Name:   "main",
		Locals: []ILLocal{{Name: "m", Type: TypeByte}},
		Blocks: []*ILBlock{block("entry",
			iConst("v1", TypeByte, 40),
			&Instr{Op: OpStoreLocal, Sym: "m", Lhs: "v1"},
			iConst("v2", TypeByte, 2),
			&Instr{ID: "v3", Op: OpLoadLocal, Type: TypeByte, Sym: "m"},
			iBin("v4", TypeByte, BinAdd, "v3", "v2"),
			iStoreGlobal("out", "v4"),
			iRet(""),
		)},
	}
	mod := program([]*ILFunction{mainFn, cb},
		byteGlobal("out"), byteGlobal("count", 7))

	m := MachineRaw()
	out := genProgram(t, m, mod)
	img := assemble(t, out, uint16(m.Org))
	s := newSim(t, img)
	s.call(img.label(t, "__start"), 100000)

	// Run main again, preempting it right after the local store lands.
	localAddr := uint16(m.ZeroPage.Locals.Start)
	s.mem[localAddr] = 0
	s.push(byte((sentinelPC - 1) >> 8))
	s.push(byte((sentinelPC - 1) & 0xFF))
	s.pc = img.label(t, "main")
	for i := 0; s.mem[localAddr] != 40; i++ {
		if i >= 1000 {
			t.Fatalf("main never stored its local (pc=$%04x)", s.pc)
		}
		s.step()
	}
	s.interrupt(uint16(m.Vectors["irq"]), 10000)

	if got := s.mem[localAddr]; got != 40 {
		t.Fatalf("handler clobbered the interrupted local: $%02x, want $28", got)
	}
	s.run(100000)

	if got := s.mem[img.label(t, "out")]; got != 42 {
		t.Errorf("interrupted main computed %d, want 42", got)
	}
	if got := s.mem[img.label(t, "count")]; got != 8 {
		t.Errorf("handler left count at %d, want 8", got)
	}
}

// TestExecLocalRoundTrip stores to named locals and loads them back,
// both widths
func TestExecLocalRoundTrip(t *testing.T) {
	f := &ILFunction{
		Name:   "main",
		Result: TypeVoid,
		Locals: []ILLocal{{Name: "lb", Type: TypeByte}, {Name: "lw", Type: TypeWord}},
		Blocks: []*ILBlock{block("entry",
			iConst("v1", TypeByte, 0x5A),
			&Instr{Op: OpStoreLocal, Sym: "lb", Lhs: "v1"},
			iConst("v2", TypeWord, 0xBEEF),
			&Instr{Op: OpStoreLocal, Sym: "lw", Lhs: "v2"},
			&Instr{ID: "v3", Op: OpLoadLocal, Type: TypeByte, Sym: "lb"},
			iStoreGlobal("outb", "v3"),
			&Instr{ID: "v4", Op: OpLoadLocal, Type: TypeWord, Sym: "lw"},
			iStoreGlobal("outw", "v4"),
			iRet(""),
		)},
	}
	mod := program([]*ILFunction{f}, byteGlobal("outb"), wordGlobal("outw"))
	s, img := buildAndRun(t, mod)

	if got := s.mem[img.label(t, "outb")]; got != 0x5A {
		t.Errorf("byte local round-trip = $%02x, want $5a", got)
	}
	if got := s.word(img.label(t, "outw")); got != 0xBEEF {
		t.Errorf("word local round-trip = $%04x, want $beef", got)
	}
}

// TestExecRmw applies read-modify-write operations to globals and
// array elements
func TestExecRmw(t *testing.T) {
	mod := program(
		[]*ILFunction{fn("main", block("entry",
			iConst("c1", TypeByte, 1),
			&Instr{Op: OpRmw, Bin: BinAdd, Ref: RefGlobal, Sym: "counter", Rhs: "c1"},
			iConst("c2", TypeByte, 2),
			&Instr{Op: OpRmw, Bin: BinShl, Ref: RefGlobal, Sym: "shifted", Rhs: "c2"},
			iConst("c5", TypeWord, 5),
			&Instr{Op: OpRmw, Bin: BinAdd, Ref: RefGlobal, Sym: "wide", Rhs: "c5"},
			iLoadGlobal("idx", TypeByte, "which"),
			iConst("c3", TypeByte, 3),
			&Instr{Op: OpRmw, Bin: BinSub, Ref: RefElem, Sym: "cells", Index: "idx", Rhs: "c3"},
			iRet(""),
		))},
		&ILGlobal{Name: "counter", Type: TypeByte, Count: 1, Init: []int{41}},
		&ILGlobal{Name: "shifted", Type: TypeByte, Count: 1, Init: []int{3}},
		&ILGlobal{Name: "wide", Type: TypeWord, Count: 1, Init: []int{0x00FE}},
		&ILGlobal{Name: "which", Type: TypeByte, Count: 1, Init: []int{1}},
		&ILGlobal{Name: "cells", Type: TypeByte, Count: 2, Init: []int{9, 9}},
	)
	s, img := buildAndRun(t, mod)

	if got := s.mem[img.label(t, "counter")]; got != 42 {
		t.Errorf("counter += 1 = %d, want 42", got)
	}
	if got := s.mem[img.label(t, "shifted")]; got != 12 {
		t.Errorf("shifted <<= 2 = %d, want 12", got)
	}
	if got := s.word(img.label(t, "wide")); got != 0x0103 {
		t.Errorf("wide += 5 = $%04x, want $0103", got)
	}
	if got := s.mem[img.label(t, "cells")+1]; got != 6 {
		t.Errorf("cells[1] -= 3 = %d, want 6", got)
	}
}

// TestExecGlobalInit checks that the entry path resets mutable
// globals before main runs
func TestExecGlobalInit(t *testing.T) {
	mod := program(
		[]*ILFunction{fn("main", block("entry", iRet("")))},
		&ILGlobal{Name: "seeded", Type: TypeByte, Count: 1, Init: []int{0x77}},
		&ILGlobal{Name: "table", Type: TypeWord, Count: 3, Init: []int{0x0102, 0x0304, 0x0506}},
		&ILGlobal{Name: "filled", Type: TypeByte, Count: 4, Init: []int{0xEE}},
	)
	s, img := buildAndRun(t, mod)

	if got := s.mem[img.label(t, "seeded")]; got != 0x77 {
		t.Errorf("seeded = $%02x, want $77", got)
	}
	base := img.label(t, "table")
	for i, want := range []int{0x0102, 0x0304, 0x0506} {
		if got := s.word(base + uint16(2*i)); got != want {
			t.Errorf("table[%d] = $%04x, want $%04x", i, got, want)
		}
	}
	fb := img.label(t, "filled")
	for i := uint16(0); i < 4; i++ {
		if got := s.mem[fb+i]; got != 0xEE {
			t.Errorf("filled[%d] = $%02x, want broadcast $ee", i, got)
		}
	}
}

// TestExecConstTable reads from a constant table laid out in the
// read-only segment
func TestExecConstTable(t *testing.T) {
	mod := program(
		[]*ILFunction{fn("main", block("entry",
			iLoadGlobal("idx", TypeByte, "which"),
			&Instr{ID: "v", Op: OpLoadElem, Type: TypeByte, Sym: "digits", Index: "idx"},
			iStoreGlobal("out", "v"),
			iRet(""),
		))},
		&ILGlobal{Name: "digits", Type: TypeByte, Count: 10, Const: true,
			Init: []int{0, 1, 4, 9, 16, 25, 36, 49, 64, 81}},
		&ILGlobal{Name: "which", Type: TypeByte, Count: 1, Init: []int{7}},
		byteGlobal("out"),
	)
	s, img := buildAndRun(t, mod)
	if got := s.mem[img.label(t, "out")]; got != 49 {
		t.Errorf("digits[7] = %d, want 49", got)
	}
}

// TestExecBasicStub assembles a c64 image and checks the SYS line
// points exactly at the entry label
func TestExecBasicStub(t *testing.T) {
	mod := program([]*ILFunction{fn("main", block("entry", iRet("")))})
	m := MachineC64()
	out := genProgram(t, m, mod)
	if !strings.Contains(out, ".byte \"2061\"") {
		t.Fatalf("BASIC stub at $0801 should SYS 2061, output:\n%s", out)
	}
	img := assemble(t, out, uint16(m.Org))
	if got := img.label(t, "__start"); got != 2061 {
		t.Errorf("__start at %d, want 2061", got)
	}

	s := newSim(t, img)
	s.call(img.label(t, "__start"), 10000)
}

// TestExecCastWidths narrows and widens through real code: a word
// holding $01FF truncates to $FF, a byte $80 widens to $0080
func TestExecCastWidths(t *testing.T) {
	mod := program(
		[]*ILFunction{fn("main", block("entry",
			iConst("v1", TypeWord, 0x01FF),
			iCast("v2", TypeByte, "v1"),
			iStoreGlobal("narrow", "v2"),
			iConst("v3", TypeByte, 0x80),
			iCast("v4", TypeWord, "v3"),
			iStoreGlobal("wide", "v4"),
			iRet(""),
		))},
		byteGlobal("narrow"), wordGlobal("wide"),
	)
	s, img := buildAndRun(t, mod)

	if got := s.mem[img.label(t, "narrow")]; got != 0xFF {
		t.Errorf("word $01FF as byte = $%02x, want $ff", got)
	}
	if got := s.word(img.label(t, "wide")); got != 0x0080 {
		t.Errorf("byte $80 as word = $%04x, want $0080 (zero extension)", got)
	}
}

// TestExecSpillRoundTrip keeps more byte values live than the three
// registers can hold, forcing evictions into the spill pool, then sums
// every one of them
func TestExecSpillRoundTrip(t *testing.T) {
	var instrs []*Instr
	names := []string{"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7"}
	for _, n := range names {
		instrs = append(instrs, iLoadGlobal(n, TypeByte, "seed"))
	}
	// sum all eight: 8 * 7 = 56
	prev := "s0"
	for i := 1; i < len(names); i++ {
		id := "t" + strconv.Itoa(i)
		instrs = append(instrs, iBin(id, TypeByte, BinAdd, prev, names[i]))
		prev = id
	}
	instrs = append(instrs, iStoreGlobal("out", prev), iRet(""))

	mod := program(
		[]*ILFunction{fn("main", block("entry", instrs...))},
		&ILGlobal{Name: "seed", Type: TypeByte, Count: 1, Init: []int{7}},
		byteGlobal("out"),
	)
	s, img := buildAndRun(t, mod)
	if got := s.mem[img.label(t, "out")]; got != 56 {
		t.Errorf("sum of eight spilled sevens = %d, want 56", got)
	}
}
