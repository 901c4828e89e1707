// Completion: 100% - IL structure tests: CFG helpers, use counting, module validation
package main

import (
	"strings"
	"testing"
)

// validationErrors runs the structural validator and returns what it
// collected
func validationErrors(mod *ILModule) []CompilerError {
	ec := NewErrorCollector(20)
	ValidateModule(mod, ec)
	return ec.Errors()
}

// wantValidationError asserts that at least one diagnostic mentions
// the given fragment
func wantValidationError(t *testing.T, mod *ILModule, fragment string) {
	t.Helper()
	errs := validationErrors(mod)
	for _, e := range errs {
		if strings.Contains(e.Message, fragment) {
			return
		}
	}
	var got []string
	for _, e := range errs {
		got = append(got, e.Message)
	}
	t.Errorf("Expected a diagnostic containing %q, got: %s", fragment, strings.Join(got, " | "))
}

// diamond builds the classic two-arm CFG used by the order tests
func diamond() *ILFunction {
	return fn("main",
		block("entry",
			iConst("c", TypeByte, 1),
			iBr("c", "left", "right"),
		),
		block("left", iJmp("join")),
		block("right", iJmp("join")),
		block("join", iRet("")),
	)
}

// TestSuccessors reads the terminator fan-out for each kind
func TestSuccessors(t *testing.T) {
	f := diamond()
	got := f.Blocks[0].Successors()
	if len(got) != 2 || got[0] != "left" || got[1] != "right" {
		t.Errorf("Expected br successors [left right], got %v", got)
	}
	if s := f.Blocks[1].Successors(); len(s) != 1 || s[0] != "join" {
		t.Errorf("Expected jmp successor [join], got %v", s)
	}
	if s := f.Blocks[3].Successors(); len(s) != 0 {
		t.Errorf("Expected ret to have no successors, got %v", s)
	}
}

// TestPredecessors inverts the diamond's edges
func TestPredecessors(t *testing.T) {
	preds := diamond().Predecessors()
	if len(preds["join"]) != 2 {
		t.Errorf("Expected join to have 2 predecessors, got %v", preds["join"])
	}
	if len(preds["left"]) != 1 || preds["left"][0] != "entry" {
		t.Errorf("Expected left's predecessor [entry], got %v", preds["left"])
	}
	if len(preds["entry"]) != 0 {
		t.Errorf("Expected entry to have no predecessors, got %v", preds["entry"])
	}
}

// TestReversePostorder checks that the entry comes first and a join
// never precedes its dominating branches
func TestReversePostorder(t *testing.T) {
	order := diamond().ReversePostorder()
	if len(order) != 4 {
		t.Fatalf("Expected 4 blocks in order, got %d", len(order))
	}
	if order[0].Name != "entry" {
		t.Errorf("Expected entry first, got %s", order[0].Name)
	}
	if order[3].Name != "join" {
		t.Errorf("Expected join last, got %s", order[3].Name)
	}
}

// TestReversePostorderSkipsUnreachable leaves orphan blocks out
func TestReversePostorderSkipsUnreachable(t *testing.T) {
	f := fn("main",
		block("entry", iRet("")),
		block("orphan", iRet("")),
	)
	order := f.ReversePostorder()
	if len(order) != 1 || order[0].Name != "entry" {
		t.Errorf("Expected only the entry block, got %d blocks", len(order))
	}
}

// TestCountUses tallies reads through every operand slot, including
// phi sources and lazy bodies
func TestCountUses(t *testing.T) {
	f := fn("main",
		block("entry",
			iConst("a", TypeByte, 1),
			iConst("b", TypeByte, 2),
			iBin("c", TypeByte, BinAdd, "a", "b"),
			&Instr{ID: "d", Op: OpLogAnd, Type: TypeByte, Lhs: "c", Rhs: "e", Body: []*Instr{
				iBin("e", TypeByte, BinGt, "a", "b"),
			}},
			iJmp("loop"),
		),
		block("loop",
			iPhi("p", TypeByte, map[string]string{"entry": "d", "loop": "p"}),
			iJmp("loop"),
		),
	)
	uses := countUses(f)
	if uses["a"] != 2 {
		t.Errorf("Expected 2 uses of a (add, body compare), got %d", uses["a"])
	}
	if uses["c"] != 1 {
		t.Errorf("Expected 1 use of c, got %d", uses["c"])
	}
	if uses["e"] != 1 {
		t.Errorf("Expected the land result operand to count, got %d", uses["e"])
	}
	if uses["d"] != 1 {
		t.Errorf("Expected the phi source to count, got %d", uses["d"])
	}
	if uses["p"] != 1 {
		t.Errorf("Expected the self-referential phi source to count, got %d", uses["p"])
	}
}

// TestValueTypes seeds parameters and walks lazy bodies
func TestValueTypes(t *testing.T) {
	f := &ILFunction{
		Name:   "f",
		Params: []ILParam{{"p", TypeWord}},
		Result: TypeWord,
		Blocks: []*ILBlock{block("entry",
			iConst("a", TypeByte, 1),
			&Instr{ID: "d", Op: OpLogAnd, Type: TypeByte, Lhs: "a", Rhs: "e", Body: []*Instr{
				iBin("e", TypeByte, BinGt, "a", "a"),
			}},
			iRet("p"),
		)},
	}
	types := valueTypes(f)
	if types["p"] != TypeWord {
		t.Errorf("Expected parameter type word, got %s", types["p"])
	}
	if types["a"] != TypeByte {
		t.Errorf("Expected const type byte, got %s", types["a"])
	}
	if types["e"] != TypeByte {
		t.Errorf("Expected body-defined value to be typed, got %s", types["e"])
	}
}

// TestBlockHelpers covers Terminator and the phi prefix rule
func TestBlockHelpers(t *testing.T) {
	b := block("entry",
		iPhi("p", TypeByte, map[string]string{}),
		iConst("c", TypeByte, 1),
		iRet(""),
	)
	if b.Terminator() == nil || b.Terminator().Op != OpRet {
		t.Errorf("Expected ret terminator")
	}
	if phis := b.Phis(); len(phis) != 1 || phis[0].ID != "p" {
		t.Errorf("Expected one leading phi, got %d", len(phis))
	}
	if block("x", iConst("c", TypeByte, 1)).Terminator() != nil {
		t.Errorf("Expected nil terminator for an unterminated block")
	}
}

// TestValidateAcceptsWellFormed runs the validator over a
// representative module and expects silence
func TestValidateAcceptsWellFormed(t *testing.T) {
	cb := &ILFunction{
		Name:     "tick",
		Callback: true,
		Vector:   "irq",
		Blocks:   []*ILBlock{block("entry", iRet(""))},
	}
	mod := program(
		[]*ILFunction{
			fn("main",
				block("entry",
					iConst("c0", TypeByte, 0),
					iConst("c1", TypeByte, 1),
					iJmp("loop"),
				),
				block("loop",
					iPhi("i", TypeByte, map[string]string{"entry": "c0", "loop": "inext"}),
					iBin("inext", TypeByte, BinAdd, "i", "c1"),
					iJmp("loop"),
				),
			),
			cb,
		},
		byteGlobal("counter"),
		&ILGlobal{Name: "table", Type: TypeWord, Count: 3, Init: []int{1, 2, 3}, Const: true},
	)
	if errs := validationErrors(mod); len(errs) != 0 {
		t.Fatalf("Expected no diagnostics, got: %v", errs[0].Message)
	}
}

// TestValidateRejectsMalformedModules drives every structural rule
// with a minimal offending module
func TestValidateRejectsMalformedModules(t *testing.T) {
	okMain := func() *ILFunction {
		return fn("main", block("entry", iRet("")))
	}
	cases := []struct {
		name    string
		build   func() *ILModule
		wantSub string
	}{
		{"missing_name", func() *ILModule {
			m := program([]*ILFunction{okMain()})
			m.Name = ""
			return m
		}, "no name"},
		{"bad_kind", func() *ILModule {
			m := program([]*ILFunction{okMain()})
			m.Kind = "script"
			return m
		}, "kind must be"},
		{"duplicate_name", func() *ILModule {
			return program([]*ILFunction{okMain()}, byteGlobal("main", 0))
		}, "declared as both"},
		{"global_bad_count", func() *ILModule {
			return program([]*ILFunction{okMain()}, &ILGlobal{Name: "g", Type: TypeByte, Count: 0})
		}, "has count 0"},
		{"global_excess_init", func() *ILModule {
			return program([]*ILFunction{okMain()}, &ILGlobal{Name: "g", Type: TypeByte, Count: 1, Init: []int{1, 2}})
		}, "initializers"},
		{"const_without_init", func() *ILModule {
			return program([]*ILFunction{okMain()}, &ILGlobal{Name: "g", Type: TypeByte, Count: 1, Const: true})
		}, "no initializer"},
		{"program_without_main", func() *ILModule {
			return program([]*ILFunction{fn("helper", block("entry", iRet("")))})
		}, "does not define 'main'"},
		{"main_with_params", func() *ILModule {
			m := program([]*ILFunction{okMain()})
			m.Funcs[0].Params = []ILParam{{"x", TypeByte}}
			return m
		}, "'main' must take no parameters"},
		{"callback_with_result", func() *ILModule {
			cb := &ILFunction{Name: "cb", Callback: true, Result: TypeByte,
				Blocks: []*ILBlock{block("entry", iRet("r"))}}
			return program([]*ILFunction{okMain(), cb})
		}, "callback"},
		{"function_without_blocks", func() *ILModule {
			return program([]*ILFunction{okMain(), {Name: "f", Result: TypeVoid}})
		}, "no blocks"},
		{"empty_block", func() *ILModule {
			return program([]*ILFunction{fn("main", block("entry", iRet("")), block("dead"))})
		}, "is empty"},
		{"missing_terminator", func() *ILModule {
			return program([]*ILFunction{fn("main", block("entry", iConst("c", TypeByte, 1)))})
		}, "does not end in a terminator"},
		{"mid_block_terminator", func() *ILModule {
			return program([]*ILFunction{fn("main", block("entry", iRet(""), iRet("")))})
		}, "terminator in the middle"},
		{"phi_after_non_phi", func() *ILModule {
			return program([]*ILFunction{fn("main",
				block("entry", iJmp("next")),
				block("next",
					iConst("c", TypeByte, 1),
					iPhi("p", TypeByte, map[string]string{"entry": "c"}),
					iRet("")),
			)})
		}, "phi after non-phi"},
		{"phi_missing_source", func() *ILModule {
			return program([]*ILFunction{fn("main",
				block("entry", iConst("c", TypeByte, 1), iJmp("next")),
				block("next",
					iPhi("p", TypeByte, map[string]string{}),
					iRet("")),
			)})
		}, "no source for predecessor"},
		{"phi_excess_source", func() *ILModule {
			return program([]*ILFunction{fn("main",
				block("entry", iConst("c", TypeByte, 1), iJmp("next")),
				block("next",
					iPhi("p", TypeByte, map[string]string{"entry": "c", "ghost": "c"}),
					iRet("")),
			)})
		}, "source(s)"},
		{"undefined_value", func() *ILModule {
			return program([]*ILFunction{fn("main", block("entry",
				iStoreGlobal("g", "missing"), iRet("")))},
				byteGlobal("g"))
		}, "undefined value"},
		{"unknown_global", func() *ILModule {
			return program([]*ILFunction{fn("main", block("entry",
				iLoadGlobal("v", TypeByte, "ghost"), iRet("")))})
		}, "unknown global"},
		{"indexed_scalar", func() *ILModule {
			return program([]*ILFunction{fn("main", block("entry",
				iConst("i", TypeByte, 0),
				&Instr{ID: "v", Op: OpLoadElem, Type: TypeByte, Sym: "g", Index: "i"},
				iRet("")))},
				byteGlobal("g"))
		}, "indexed access to scalar"},
		{"const_overflow", func() *ILModule {
			return program([]*ILFunction{fn("main", block("entry",
				iConst("c", TypeByte, 300), iRet("")))})
		}, "does not fit"},
		{"land_body_terminator", func() *ILModule {
			return program([]*ILFunction{fn("main", block("entry",
				iConst("a", TypeByte, 1),
				&Instr{ID: "r", Op: OpLogAnd, Type: TypeByte, Lhs: "a", Rhs: "e", Body: []*Instr{
					iRet(""),
					iBin("e", TypeByte, BinGt, "a", "a"),
				}},
				iRet("")))})
		}, "body may not contain"},
		{"call_arity", func() *ILModule {
			callee := &ILFunction{Name: "f", Params: []ILParam{{"x", TypeByte}},
				Result: TypeVoid, Blocks: []*ILBlock{block("entry", iRet(""))}}
			return program([]*ILFunction{fn("main", block("entry",
				&Instr{Op: OpCall, Sym: "f"}, iRet(""))), callee})
		}, "argument(s)"},
		{"call_to_callback", func() *ILModule {
			cb := &ILFunction{Name: "tick", Callback: true,
				Blocks: []*ILBlock{block("entry", iRet(""))}}
			return program([]*ILFunction{fn("main", block("entry",
				&Instr{Op: OpCall, Sym: "tick"}, iRet(""))), cb})
		}, "interrupt callback"},
		{"ret_value_in_void", func() *ILModule {
			return program([]*ILFunction{fn("main", block("entry",
				iConst("c", TypeByte, 1), iRet("c")))})
		}, "ret with a value"},
		{"rmw_compare", func() *ILModule {
			return program([]*ILFunction{fn("main", block("entry",
				iConst("c", TypeByte, 1),
				&Instr{Op: OpRmw, Bin: BinLt, Ref: RefGlobal, Sym: "g", Rhs: "c"},
				iRet("")))},
				byteGlobal("g"))
		}, "comparison operator"},
		{"jmp_unknown_block", func() *ILModule {
			return program([]*ILFunction{fn("main", block("entry", iJmp("nowhere")))})
		}, "unknown block"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wantValidationError(t, tc.build(), tc.wantSub)
		})
	}
}
