// Completion: 100% - JSON-RPC client for the emulator control protocol
package main

import (
	"context"
	"fmt"
	"net"

	"go.lsp.dev/jsonrpc2"
)

// EmuRegisters mirrors the CPU state exposed by the emulator
type EmuRegisters struct {
	A     uint8  `json:"a"`
	X     uint8  `json:"x"`
	Y     uint8  `json:"y"`
	SP    uint8  `json:"sp"`
	PC    uint16 `json:"pc"`
	Flags uint8  `json:"flags"`
}

// EmuRunResult reports where a run stopped and what it cost
type EmuRunResult struct {
	PC     uint16 `json:"pc"`
	Cycles int    `json:"cycles"`
	Halted bool   `json:"halted"`
}

type emuLoadParams struct {
	Org  int    `json:"org"`
	Data []byte `json:"data"`
}

type emuMemParams struct {
	Addr int    `json:"addr"`
	Len  int    `json:"len,omitempty"`
	Data []byte `json:"data,omitempty"`
}

type emuMemResult struct {
	Data []byte `json:"data"`
}

type emuStepParams struct {
	Count int `json:"count"`
}

type emuStepResult struct {
	Cycles int `json:"cycles"`
}

type emuRunParams struct {
	UntilPC   int `json:"until_pc,omitempty"`
	MaxCycles int `json:"max_cycles,omitempty"`
}

type emuInterruptParams struct {
	Vector string `json:"vector"`
}

// EmulatorClient talks to a running 6502 emulator over its JSON-RPC
// control socket. Used by verify mode and the integration tests; code
// generation itself never needs one.
type EmulatorClient struct {
	conn jsonrpc2.Conn
}

// DialEmulator connects to an emulator control endpoint, host:port
func DialEmulator(ctx context.Context, addr string) (*EmulatorClient, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("emulator at %s: %w", addr, err)
	}
	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(nc))
	conn.Go(ctx, jsonrpc2.MethodNotFoundHandler)
	return &EmulatorClient{conn: conn}, nil
}

func (c *EmulatorClient) Close() error {
	return c.conn.Close()
}

// LoadImage places an assembled image at org and leaves the CPU alone
func (c *EmulatorClient) LoadImage(ctx context.Context, org int, data []byte) error {
	_, err := c.conn.Call(ctx, "emu/loadImage", emuLoadParams{Org: org, Data: data}, nil)
	return err
}

// ReadMemory fetches n bytes starting at addr
func (c *EmulatorClient) ReadMemory(ctx context.Context, addr, n int) ([]byte, error) {
	var res emuMemResult
	if _, err := c.conn.Call(ctx, "emu/readMemory", emuMemParams{Addr: addr, Len: n}, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

// WriteMemory stores bytes starting at addr
func (c *EmulatorClient) WriteMemory(ctx context.Context, addr int, data []byte) error {
	_, err := c.conn.Call(ctx, "emu/writeMemory", emuMemParams{Addr: addr, Data: data}, nil)
	return err
}

// Registers reads the current CPU state
func (c *EmulatorClient) Registers(ctx context.Context) (EmuRegisters, error) {
	var regs EmuRegisters
	_, err := c.conn.Call(ctx, "emu/registers", nil, &regs)
	return regs, err
}

// SetRegisters overwrites the CPU state
func (c *EmulatorClient) SetRegisters(ctx context.Context, regs EmuRegisters) error {
	_, err := c.conn.Call(ctx, "emu/setRegisters", regs, nil)
	return err
}

// Step executes count instructions and returns the cycles spent
func (c *EmulatorClient) Step(ctx context.Context, count int) (int, error) {
	var res emuStepResult
	if _, err := c.conn.Call(ctx, "emu/step", emuStepParams{Count: count}, &res); err != nil {
		return 0, err
	}
	return res.Cycles, nil
}

// Run executes until untilPC is reached or maxCycles elapse. Zero
// means no bound for either.
func (c *EmulatorClient) Run(ctx context.Context, untilPC, maxCycles int) (EmuRunResult, error) {
	var res EmuRunResult
	_, err := c.conn.Call(ctx, "emu/run", emuRunParams{UntilPC: untilPC, MaxCycles: maxCycles}, &res)
	return res, err
}

// FireInterrupt asserts the named interrupt line for one dispatch
func (c *EmulatorClient) FireInterrupt(ctx context.Context, vector string) error {
	_, err := c.conn.Call(ctx, "emu/fireInterrupt", emuInterruptParams{Vector: vector}, nil)
	return err
}

// Reset performs a CPU reset without touching memory
func (c *EmulatorClient) Reset(ctx context.Context) error {
	_, err := c.conn.Call(ctx, "emu/reset", nil, nil)
	return err
}
