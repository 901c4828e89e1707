// Completion: 100% - CLI interface: flags, env overrides, build pipeline
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xyproto/env/v2"
)

// A code generator that lowers SSA IL modules to 6502 assembly for ca65

const versionString = "blend65 0.6.2"

const defaultMaxErrors = 20

var (
	VerboseMode bool
	DebugMode   bool
)

type buildOptions struct {
	input     string
	output    string
	machine   string
	comments  bool
	verify    bool
	maxErrors int
}

// defaultOutput places the assembly next to the input, same stem
func defaultOutput(input string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if base == "" {
		base = "out"
	}
	return filepath.Join(filepath.Dir(input), base+".s")
}

// useColor honors NO_COLOR and requires stderr to be a terminal
func useColor() bool {
	if env.Has("NO_COLOR") {
		return false
	}
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// compileOnce runs one full build and returns the process exit code
func compileOnce(opts *buildOptions) int {
	machine, err := ResolveMachine(opts.machine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if n := env.Int("BLEND65_CALL_DEPTH", 0); n > 0 {
		machine.CallDepthWarn = n
	}
	if DebugMode {
		zp := machine.ZeroPage
		fmt.Fprintf(os.Stderr, "machine %s: org=$%04x scratch=%s params=%s locals=%s phi=%s spill=%s isr=%s\n",
			machine.Name, machine.Org, zp.Scratch, zp.Params, zp.Locals, zp.Phi, zp.Spill, zp.IsrSpill)
	}

	var data []byte
	if opts.input == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(opts.input)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ec := NewErrorCollector(opts.maxErrors)
	mod := DecodeModule(data, ec)

	var out string
	ok := false
	var bc *B65Compiler
	if mod != nil && !ec.HasErrors() {
		bc = NewB65Compiler(machine, ec, opts.comments)
		out, ok = bc.Generate(mod)
	}

	if report := ec.Report(useColor()); report != "" {
		fmt.Fprint(os.Stderr, report)
	}
	if !ok {
		return 1
	}

	dest := opts.output
	if dest == "" {
		if opts.input == "-" {
			dest = "-"
		} else {
			dest = defaultOutput(opts.input)
		}
	}
	if dest == "-" {
		fmt.Print(out)
	} else if err := os.WriteFile(dest, []byte(out), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if VerboseMode {
		st := bc.Stats()
		fmt.Fprintf(os.Stderr, "%s: %d function(s), %d instruction(s), %d call(s), %d spill(s), %d helper call(s)\n",
			mod.Name, st.Functions, st.Instructions, st.Calls, st.Spills, st.HelperCalls)
	}

	if opts.verify {
		return runVerify()
	}
	return 0
}

// runVerify probes the emulator named by BLEND65_EMU: reset, a memory
// round-trip through the scratch page and a register read. The backend
// emits text, so byte-level checks live with the emulator tests.
func runVerify() int {
	addr := env.Str("BLEND65_EMU")
	if addr == "" {
		fmt.Fprintln(os.Stderr, "Error: -verify needs BLEND65_EMU (host:port)")
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	emu, err := DialEmulator(ctx, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer emu.Close()

	if err := emu.Reset(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: emulator reset: %v\n", err)
		return 1
	}
	probe := []byte{0xb6, 0x5a}
	if err := emu.WriteMemory(ctx, 0x0200, probe); err != nil {
		fmt.Fprintf(os.Stderr, "Error: emulator write: %v\n", err)
		return 1
	}
	got, err := emu.ReadMemory(ctx, 0x0200, len(probe))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: emulator read: %v\n", err)
		return 1
	}
	if len(got) != len(probe) || got[0] != probe[0] || got[1] != probe[1] {
		fmt.Fprintf(os.Stderr, "Error: emulator memory round-trip mismatch: wrote %02x %02x, read back % 02x\n",
			probe[0], probe[1], got)
		return 1
	}
	regs, err := emu.Registers(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: emulator registers: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "emulator at %s responding, pc=$%04x\n", addr, regs.PC)
	return 0
}

func main() {
	var (
		outFlag      = flag.String("o", "", "output file ('-' for stdout, default: input name with .s)")
		machineFlag  = flag.String("machine", "c64", "machine profile name (c64, raw) or profile .toml path")
		verbose      = flag.Bool("v", false, "verbose mode (per-module statistics)")
		versionShort = flag.Bool("V", false, "print version information and exit")
		version      = flag.Bool("version", false, "print version information and exit")
		watchFlag    = flag.Bool("watch", false, "watch mode: rebuild when the module or profile changes")
		commentsFlag = flag.Bool("comments", false, "interleave IL-level comments in the output")
		verifyFlag   = flag.Bool("verify", false, "probe the emulator named by BLEND65_EMU after the build")
		maxErrFlag   = flag.Int("maxerrors", defaultMaxErrors, "stop after this many errors")
	)
	flag.Parse()

	if *version || *versionShort {
		fmt.Println(versionString)
		os.Exit(0)
	}

	DebugMode = env.Bool("BLEND65_DEBUG")
	VerboseMode = *verbose || DebugMode

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: blend65 [flags] <module.il.json>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	opts := &buildOptions{
		input:     flag.Arg(0),
		output:    *outFlag,
		machine:   *machineFlag,
		comments:  *commentsFlag,
		verify:    *verifyFlag,
		maxErrors: *maxErrFlag,
	}

	if *watchFlag {
		if opts.input == "-" {
			fmt.Fprintln(os.Stderr, "Error: -watch cannot read from stdin")
			os.Exit(1)
		}
		if err := runWatch(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	os.Exit(compileOnce(opts))
}
