// Completion: 100% - Phi lowering tests: merge cells, inline edge copies, branch trampolines
package main

import (
	"strings"
	"testing"
)

// TestBranchEdgeTrampoline routes a conditional edge through a
// trampoline when it carries phi copies
func TestBranchEdgeTrampoline(t *testing.T) {
	mod := program([]*ILFunction{fn("main",
		block("entry",
			iConst("cond", TypeByte, 1),
			iConst("a0", TypeByte, 5),
			iBr("cond", "join", "bye"),
		),
		block("join",
			iPhi("x", TypeByte, map[string]string{"entry": "a0"}),
			iStoreGlobal("out", "x"),
			iRet(""),
		),
		block("bye", iRet("")),
	)}, byteGlobal("out"))
	out, ok, ec := generateWith(MachineRaw(), mod)
	if !ok {
		t.Fatalf("Expected generation to succeed, got: %s", ec.Report(false))
	}
	if !strings.Contains(out, "jmp main_e1") {
		t.Errorf("Expected the branch to aim at the trampoline, got:\n%s", out)
	}
	want := "main_e1:\n        lda #$05\n        sta $48\n        jmp main_join\n"
	if !strings.Contains(out, want) {
		t.Errorf("Expected the trampoline to copy into the merge cell, got:\n%s", out)
	}
}

// TestBranchEdgeDirect aims a conditional edge straight at the block
// when nothing needs copying
func TestBranchEdgeDirect(t *testing.T) {
	mod := program([]*ILFunction{fn("main",
		block("entry",
			iConst("cond", TypeByte, 1),
			iBr("cond", "yes", "no"),
		),
		block("yes", iRet("")),
		block("no", iRet("")),
	)})
	out, ok, ec := generateWith(MachineRaw(), mod)
	if !ok {
		t.Fatalf("Expected generation to succeed, got: %s", ec.Report(false))
	}
	if strings.Contains(out, "main_e1") {
		t.Errorf("Expected no trampoline on a copy-free edge, got:\n%s", out)
	}
	if !strings.Contains(out, "jmp main_yes") {
		t.Errorf("Expected a direct branch target, got:\n%s", out)
	}
}

// TestJmpEdgeInlineCopies performs an unconditional edge's phi copies
// inline before the jump
func TestJmpEdgeInlineCopies(t *testing.T) {
	mod := program([]*ILFunction{fn("main",
		block("entry",
			iConst("a0", TypeByte, 7),
			iJmp("join"),
		),
		block("join",
			iPhi("x", TypeByte, map[string]string{"entry": "a0"}),
			iStoreGlobal("out", "x"),
			iRet(""),
		),
	)}, byteGlobal("out"))
	out, ok, ec := generateWith(MachineRaw(), mod)
	if !ok {
		t.Fatalf("Expected generation to succeed, got: %s", ec.Report(false))
	}
	if !strings.Contains(out, "        lda #$07\n        sta $48\n        jmp main_join\n") {
		t.Errorf("Expected the inline copy before the jump, got:\n%s", out)
	}
	if strings.Contains(out, "main_e1") {
		t.Errorf("Expected no trampoline on an unconditional edge, got:\n%s", out)
	}
}

// TestPhiCellSharedByAllEdges writes every incoming edge into the same
// merge cell
func TestPhiCellSharedByAllEdges(t *testing.T) {
	mod := program([]*ILFunction{fn("main",
		block("entry",
			iConst("cond", TypeByte, 1),
			iConst("a0", TypeByte, 5),
			iBr("cond", "left", "join"),
		),
		block("left",
			iConst("b0", TypeByte, 9),
			iJmp("join"),
		),
		block("join",
			iPhi("x", TypeByte, map[string]string{"entry": "a0", "left": "b0"}),
			iStoreGlobal("out", "x"),
			iRet(""),
		),
	)}, byteGlobal("out"))
	out, ok, ec := generateWith(MachineRaw(), mod)
	if !ok {
		t.Fatalf("Expected generation to succeed, got: %s", ec.Report(false))
	}
	if n := strings.Count(out, "sta $48"); n != 2 {
		t.Errorf("Expected both edges to write the merge cell, got %d writes:\n%s", n, out)
	}
	if strings.Contains(out, "main_e1") {
		t.Errorf("Expected the then edge to stay direct, got:\n%s", out)
	}
}

// TestPhiPoolExhaustion names the phi region when merge cells run out
func TestPhiPoolExhaustion(t *testing.T) {
	m := MachineRaw()
	m.ZeroPage.Phi = ZPRange{Start: 0x48, End: 0x48}

	mod := program([]*ILFunction{fn("main",
		block("entry",
			iConst("a0", TypeWord, 1),
			iJmp("join"),
		),
		block("join",
			iPhi("x", TypeWord, map[string]string{"entry": "a0"}),
			iStoreGlobal("wout", "x"),
			iRet(""),
		),
	)}, wordGlobal("wout"))
	_, ok, ec := generateWith(m, mod)
	if ok {
		t.Fatalf("Expected generation to fail on a one-byte phi region")
	}
	if !diagContains(ec.Errors(), "zero-page region 'phi' exhausted in 'main'") {
		t.Errorf("Expected the phi region diagnostic, got: %s", ec.Report(false))
	}
}
