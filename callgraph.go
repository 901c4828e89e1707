// Completion: 100% - Static call graph advisories: recursion, tail self calls, depth
package main

import "strings"

// callGraph is the static local call structure of one module. Dotted
// callees live in other modules and never close a cycle here.
type callGraph struct {
	mod       *ILModule
	edges     map[string][]string
	external  map[string]bool // function calls into another module
	selfTail  map[string]bool // self call immediately before a ret
	selfInner map[string]bool // self call anywhere else
}

func buildCallGraph(mod *ILModule) *callGraph {
	g := &callGraph{
		mod:       mod,
		edges:     make(map[string][]string),
		external:  make(map[string]bool),
		selfTail:  make(map[string]bool),
		selfInner: make(map[string]bool),
	}
	for _, f := range mod.Funcs {
		seen := make(map[string]bool)
		for _, b := range f.Blocks {
			for i, in := range b.Instrs {
				g.scan(f, b, i, in, seen)
			}
		}
	}
	return g
}

// scan records one instruction's call edges. Short-circuit bodies are
// walked too; a call hiding in one is never in tail position.
func (g *callGraph) scan(f *ILFunction, b *ILBlock, idx int, in *Instr, seen map[string]bool) {
	if in.Op == OpCall {
		switch {
		case strings.Contains(in.Sym, "."):
			g.external[f.Name] = true
		case in.Sym == f.Name:
			if idx >= 0 && idx+1 < len(b.Instrs) && b.Instrs[idx+1].Op == OpRet {
				g.selfTail[f.Name] = true
			} else {
				g.selfInner[f.Name] = true
			}
		default:
			if !seen[in.Sym] {
				seen[in.Sym] = true
				g.edges[f.Name] = append(g.edges[f.Name], in.Sym)
			}
		}
	}
	for _, sub := range in.Body {
		g.scan(f, b, -1, sub, seen)
	}
}

func (g *callGraph) pos(fn string) SourceLocation {
	if f := g.mod.Function(fn); f != nil {
		return f.Pos
	}
	return SourceLocation{}
}

// report walks the graph once, flagging recursion and measuring the
// longest call path. Back edges close cycles and do not extend the
// path, so the walk terminates on any input.
func (g *callGraph) report(threshold int, ec *ErrorCollector) {
	for _, f := range g.mod.Funcs {
		if g.selfInner[f.Name] {
			ec.AddWarning(RecursionAdvisory(f.Name, []string{f.Name, f.Name}, f.Pos))
		} else if g.selfTail[f.Name] {
			ec.AddWarning(TailCallAdvisory(f.Name, f.Pos))
		}
	}

	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int)
	depth := make(map[string]int)
	reported := make(map[string]bool)
	var stack []string

	var visit func(fn string) int
	visit = func(fn string) int {
		switch color[fn] {
		case black:
			return depth[fn]
		case gray:
			if !reported[fn] {
				reported[fn] = true
				start := 0
				for i, s := range stack {
					if s == fn {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, stack[start:]...), fn)
				ec.AddWarning(RecursionAdvisory(fn, cycle, g.pos(fn)))
			}
			return 0
		}
		color[fn] = gray
		stack = append(stack, fn)
		d := 1
		if g.external[fn] {
			d = 2
		}
		for _, callee := range g.edges[fn] {
			if g.mod.Function(callee) == nil {
				continue
			}
			if cd := 1 + visit(callee); cd > d {
				d = cd
			}
		}
		stack = stack[:len(stack)-1]
		color[fn] = black
		depth[fn] = d
		return d
	}

	worst, worstFn := 0, ""
	for _, f := range g.mod.Funcs {
		if d := visit(f.Name); d > worst {
			worst, worstFn = d, f.Name
		}
	}
	if threshold > 0 && worst > threshold && worstFn != "" {
		ec.AddWarning(CallDepthAdvisory(worstFn, worst, threshold, g.pos(worstFn)))
	}
}

// analyzeCallGraph runs the static call shape advisories for a module
func analyzeCallGraph(mod *ILModule, threshold int, ec *ErrorCollector) {
	buildCallGraph(mod).report(threshold, ec)
}
