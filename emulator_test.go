// Completion: 100% - Live emulator integration test, needs BLEND65_EMU pointing at a control socket
package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/xyproto/env/v2"
)

// dialTestEmulator connects to the emulator named by BLEND65_EMU or
// skips when none is configured
func dialTestEmulator(t *testing.T, ctx context.Context) *EmulatorClient {
	t.Helper()
	addr := env.Str("BLEND65_EMU")
	if addr == "" {
		t.Skip("BLEND65_EMU not set, no emulator to talk to")
	}
	emu, err := DialEmulator(ctx, addr)
	if err != nil {
		t.Fatalf("Expected to reach the emulator at %s, got %v", addr, err)
	}
	return emu
}

// TestEmulatorProbe mirrors the -verify probe: reset, a memory
// round-trip and a register read
func TestEmulatorProbe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	emu := dialTestEmulator(t, ctx)
	defer emu.Close()

	if err := emu.Reset(ctx); err != nil {
		t.Fatalf("Expected reset to succeed, got %v", err)
	}
	probe := []byte{0xb6, 0x5a}
	if err := emu.WriteMemory(ctx, 0x0200, probe); err != nil {
		t.Fatalf("Expected the write to succeed, got %v", err)
	}
	got, err := emu.ReadMemory(ctx, 0x0200, len(probe))
	if err != nil {
		t.Fatalf("Expected the read to succeed, got %v", err)
	}
	if !bytes.Equal(got, probe) {
		t.Errorf("Expected % 02x back, got % 02x", probe, got)
	}
	if _, err := emu.Registers(ctx); err != nil {
		t.Fatalf("Expected a register read to succeed, got %v", err)
	}
}

// TestEmulatorRunsGeneratedImage pushes a generated image into the
// emulator and watches a global change
func TestEmulatorRunsGeneratedImage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	emu := dialTestEmulator(t, ctx)
	defer emu.Close()

	mod := program([]*ILFunction{fn("main", block("entry",
		iConst("c", TypeByte, 0x2A),
		iStoreGlobal("out", "c"),
		iRet(""),
	))}, byteGlobal("out", 0))
	m := MachineRaw()
	text := genProgram(t, m, mod)
	img := assemble(t, text, uint16(m.Org))

	if err := emu.Reset(ctx); err != nil {
		t.Fatalf("Expected reset to succeed, got %v", err)
	}
	if err := emu.LoadImage(ctx, int(img.org), img.mem[img.org:img.end]); err != nil {
		t.Fatalf("Expected the image load to succeed, got %v", err)
	}
	regs, err := emu.Registers(ctx)
	if err != nil {
		t.Fatalf("Expected a register read to succeed, got %v", err)
	}
	regs.PC = img.label(t, "__start")
	if err := emu.SetRegisters(ctx, regs); err != nil {
		t.Fatalf("Expected the register write to succeed, got %v", err)
	}
	if _, err := emu.Step(ctx, 400); err != nil {
		t.Fatalf("Expected stepping to succeed, got %v", err)
	}

	out, err := emu.ReadMemory(ctx, int(img.label(t, "out")), 1)
	if err != nil {
		t.Fatalf("Expected the result read to succeed, got %v", err)
	}
	if len(out) != 1 || out[0] != 0x2A {
		t.Errorf("Expected out = $2a after main ran, got % 02x", out)
	}
}
