// Completion: 100% - Machine profiles: built-in c64 and raw, TOML overlays, layout validation
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// ZPRange is an inclusive zero-page address range
type ZPRange struct {
	Start int `toml:"start"`
	End   int `toml:"end"`
}

// Size returns the number of bytes in the range
func (r ZPRange) Size() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains reports whether an address falls inside the range
func (r ZPRange) Contains(a int) bool {
	return a >= r.Start && a <= r.End
}

// Overlaps reports whether two ranges share any address
func (r ZPRange) Overlaps(o ZPRange) bool {
	if r.Size() == 0 || o.Size() == 0 {
		return false
	}
	return r.Start <= o.End && o.Start <= r.End
}

func (r ZPRange) String() string {
	return fmt.Sprintf("$%02X-$%02X", r.Start, r.End)
}

// ZeroPageLayout partitions the zero page into the regions the code
// generator hands out addresses from
type ZeroPageLayout struct {
	Scratch  ZPRange `toml:"scratch"`   // runtime helper operands, staging
	Params   ZPRange `toml:"params"`    // packed parameter window
	Locals   ZPRange `toml:"locals"`    // named function locals
	Phi      ZPRange `toml:"phi"`       // phi merge cells
	Spill    ZPRange `toml:"spill"`     // LIFO spill pool
	IsrSpill ZPRange `toml:"isr_spill"` // spill pool reserved for interrupt callbacks
}

// Machine describes the target the generated code runs on. Built-in
// profiles cover the common cases; a TOML file overlays any field.
type Machine struct {
	Name          string         `toml:"name"`
	Org           int            `toml:"org"`             // load address of the image
	BasicStub     bool           `toml:"basic_stub"`      // emit a BASIC SYS bootstrap
	CallDepthWarn int            `toml:"call_depth_warn"` // static call depth advisory threshold
	SpillWarnPct  int            `toml:"spill_warn_pct"`  // spill pressure advisory threshold
	ZeroPage      ZeroPageLayout `toml:"zeropage"`
	Vectors       map[string]int `toml:"vectors"`
}

// MachineC64 returns the Commodore 64 profile: BASIC stub at $0801,
// KERNAL RAM vectors, zero page kept below the KERNAL work area
func MachineC64() *Machine {
	return &Machine{
		Name:          "c64",
		Org:           0x0801,
		BasicStub:     true,
		CallDepthWarn: 32,
		SpillWarnPct:  75,
		ZeroPage: ZeroPageLayout{
			Scratch:  ZPRange{0x02, 0x09},
			Params:   ZPRange{0x0A, 0x29},
			Locals:   ZPRange{0x2A, 0x49},
			Phi:      ZPRange{0x4A, 0x59},
			Spill:    ZPRange{0x5A, 0x71},
			IsrSpill: ZPRange{0x72, 0x79},
		},
		Vectors: map[string]int{
			"irq": 0x0314,
			"brk": 0x0316,
			"nmi": 0x0318,
		},
	}
}

// MachineRaw returns a bare-board profile: no bootstrap, hardware
// vectors at the top of memory, the whole low zero page available
func MachineRaw() *Machine {
	return &Machine{
		Name:          "raw",
		Org:           0x0200,
		BasicStub:     false,
		CallDepthWarn: 32,
		SpillWarnPct:  75,
		ZeroPage: ZeroPageLayout{
			Scratch:  ZPRange{0x00, 0x07},
			Params:   ZPRange{0x08, 0x27},
			Locals:   ZPRange{0x28, 0x47},
			Phi:      ZPRange{0x48, 0x57},
			Spill:    ZPRange{0x58, 0x6F},
			IsrSpill: ZPRange{0x70, 0x77},
		},
		Vectors: map[string]int{
			"nmi":   0xFFFA,
			"reset": 0xFFFC,
			"irq":   0xFFFE,
		},
	}
}

// LoadMachine reads a TOML profile. Fields the file leaves out keep
// the raw profile's values, so a profile only has to state what
// differs.
func LoadMachine(path string) (*Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read machine profile: %w", err)
	}
	m := MachineRaw()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse machine profile %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("machine profile %s: %w", path, err)
	}
	return m, nil
}

// ResolveMachine turns a -machine argument into a profile: a built-in
// name or a path to a TOML file
func ResolveMachine(spec string) (*Machine, error) {
	switch spec {
	case "", "c64":
		return MachineC64(), nil
	case "raw":
		return MachineRaw(), nil
	}
	if strings.HasSuffix(spec, ".toml") {
		return LoadMachine(spec)
	}
	if _, err := os.Stat(spec); err == nil {
		return LoadMachine(spec)
	}
	return nil, fmt.Errorf("unknown machine '%s' (want c64, raw or a .toml profile)", spec)
}

// Validate checks that the profile is internally consistent
func (m *Machine) Validate() error {
	var problems []string
	oops := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if m.Org < 0x0200 || m.Org > 0xFFFF {
		oops("org $%04X is outside usable memory", m.Org)
	}

	regions := []struct {
		name string
		r    ZPRange
	}{
		{"scratch", m.ZeroPage.Scratch},
		{"params", m.ZeroPage.Params},
		{"locals", m.ZeroPage.Locals},
		{"phi", m.ZeroPage.Phi},
		{"spill", m.ZeroPage.Spill},
		{"isr_spill", m.ZeroPage.IsrSpill},
	}
	for _, reg := range regions {
		if reg.r.Start < 0 || reg.r.End > 0xFF {
			oops("zero-page region %s %s leaves the zero page", reg.name, reg.r)
		}
		if reg.r.Size() == 0 {
			oops("zero-page region %s is empty", reg.name)
		}
	}
	for i := 0; i < len(regions); i++ {
		for j := i + 1; j < len(regions); j++ {
			if regions[i].r.Overlaps(regions[j].r) {
				oops("zero-page regions %s %s and %s %s overlap",
					regions[i].name, regions[i].r, regions[j].name, regions[j].r)
			}
		}
	}
	// The runtime helpers stage their operands in the first eight
	// scratch bytes.
	if m.ZeroPage.Scratch.Size() < 8 {
		oops("scratch region %s holds %d byte(s), need at least 8", m.ZeroPage.Scratch, m.ZeroPage.Scratch.Size())
	}

	for name, addr := range m.Vectors {
		if addr < 0 || addr > 0xFFFE {
			oops("vector %s at $%X is outside the address space", name, addr)
		}
	}

	if m.CallDepthWarn <= 0 {
		m.CallDepthWarn = 32
	}
	if m.SpillWarnPct <= 0 {
		m.SpillWarnPct = 75
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// VectorAddr returns the install address for a named vector
func (m *Machine) VectorAddr(name string) (uint16, bool) {
	a, ok := m.Vectors[name]
	if !ok {
		return 0, false
	}
	return uint16(a), true
}

// VectorNames lists the profile's vectors in a stable order
func (m *Machine) VectorNames() []string {
	names := make([]string, 0, len(m.Vectors))
	for n := range m.Vectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ScratchAddr returns the address of scratch byte i. Callers stay
// inside the validated eight-byte window.
func (m *Machine) ScratchAddr(i int) uint8 {
	return uint8(m.ZeroPage.Scratch.Start + i)
}
