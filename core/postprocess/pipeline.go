// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// Package postprocess rewrites the raw Logic line stream a Function
// walk produces into idiomatic Solidity-like output, per §4.6's
// ordered line-level passes plus a finalization pass. The passes do
// not check the analysis mode; the decompile package runs them over
// Yul output too.
package postprocess

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/probechain/evmdecompiler/core/analysis"
)

// State carries the per-function bookkeeping the line passes share: the
// memory->variable name table (reset per function), the set of
// expression definitions seen so far (for variable-reuse substitution),
// and each variable's inferred type (for type-inheritance propagation).
// Grounded on the teacher's per-scope bookkeeping structs (e.g.
// LinearChecker's bindings map) — a single mutable state object threaded
// through a sequence of passes.
type State struct {
	memVars  map[string]string // "memory[0x20]" -> "var_a"
	nextVar  int
	defExpr  map[string]string // RHS expression text -> variable already holding it
	varTypes map[string]string // variable name -> inferred type
}

// NewState returns a fresh per-function postprocessor state.
func NewState() *State {
	return &State{
		memVars:  make(map[string]string),
		defExpr:  make(map[string]string),
		varTypes: make(map[string]string),
	}
}

// Base26 implements the injective base-26 identifier scheme used for
// both memory-slot and storage-slot naming: Base26(1) = "a",
// Base26(26) = "z", Base26(27) = "aa".
func Base26(n int) string {
	if n <= 0 {
		return ""
	}
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('a' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}

var (
	bitmaskAndRe = regexp.MustCompile(`^((?:.+? = )?)(.*) & (0x[fF]+)(;?)$`)
	// castRe has no backreference (RE2 doesn't support one): the two
	// type names are captured separately and compared in Go code.
	castRe       = regexp.MustCompile(`^(u?int\d+|bytes\d+)\((u?int\d+|bytes\d+)\((.*)\)\)$`)
	outerParenRe = regexp.MustCompile(`^\((.*)\)$`)
	doubleBangRe  = regexp.MustCompile(`^!!(.*)$`)
	memReadRe     = regexp.MustCompile(`memory\[(0x[0-9a-f]+|\d+)\]`)
	assignRe      = regexp.MustCompile(`^(\w+) = (.+);$`)
	castAssignRe  = regexp.MustCompile(`^(\w+) = (u?int\d+|bytes\d+|bool|address)\((.+)\);$`)
	divByOneRe    = regexp.MustCompile(`^(.*) / 1$`)
	mulByOneRe    = regexp.MustCompile(`^(.*) \* 1$`)
)

// Run applies every line-level pass, in §4.6 order, to fn.Logic and
// returns the rewritten line stream. fn itself is left untouched; the
// caller decides whether to store the result back.
func Run(fn *analysis.Function, st *State, resolvedNames map[string]string) []string {
	lines := append([]string(nil), fn.Logic...)
	for i, line := range lines {
		line = bitmaskToCast(line)
		line = simplifyCasts(line)
		line = simplifyParens(line)
		line = memoryToVariable(line, st)
		line = reuseVariable(line, st)
		line = hoistCast(line, st)
		line = inheritType(line, st)
		line = substituteResolvedNames(line, resolvedNames)
		line = simplifyArithmetic(line)
		lines[i] = line
	}
	return lines
}

// bitmaskToCast implements pass 1: `expr & 0xff..ff` collapses to
// `uintN(expr)` using the run length of the mask's low non-zero bytes.
func bitmaskToCast(line string) string {
	m := bitmaskAndRe.FindStringSubmatch(line)
	if m == nil {
		return line
	}
	hexDigits := strings.TrimPrefix(m[3], "0x")
	bits := len(hexDigits) * 4
	if bits <= 0 || bits > 256 {
		return line
	}
	return strings.Replace(line, m[0], m[1]+"uint"+strconv.Itoa(bits)+"("+m[2]+")"+m[4], 1)
}

// simplifyCasts implements pass 2: drop a redundant outer T(T(x)) down
// to a single T(x).
func simplifyCasts(line string) string {
	for {
		m := castRe.FindStringSubmatch(line)
		if m == nil || m[1] != m[2] {
			return line
		}
		line = strings.Replace(line, m[0], m[1]+"("+m[3]+")", 1)
	}
}

// simplifyParens implements pass 4: strip outer parens with no free
// top-level operator, and collapse double negation. Casts, calls, and
// conditional headers (lines ending in "{") are left untouched since
// their parens are syntactically required.
func simplifyParens(line string) string {
	if strings.HasSuffix(line, "{") {
		return line
	}
	if m := doubleBangRe.FindStringSubmatch(line); m != nil {
		line = m[1]
	}
	if m := outerParenRe.FindStringSubmatch(line); m != nil {
		inner := m[1]
		if !hasTopLevelOperator(inner) && !looksLikeCallOrCast(line) {
			line = inner
		}
	}
	return line
}

func hasTopLevelOperator(s string) bool {
	depth := 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		case '+', '-', '*', '/', '<', '>', '=', '&', '|', '^':
			if depth == 0 && i > 0 {
				return true
			}
		}
	}
	return false
}

func looksLikeCallOrCast(line string) bool {
	idx := strings.IndexByte(line, '(')
	return idx > 0 && isIdentifier(line[:idx])
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// memoryToVariable implements pass 5: the first occurrence of a given
// memory[offset] read in the function registers a fresh base-26
// variable name; later occurrences substitute it.
func memoryToVariable(line string, st *State) string {
	return memReadRe.ReplaceAllStringFunc(line, func(match string) string {
		if name, ok := st.memVars[match]; ok {
			return name
		}
		st.nextVar++
		name := "var_" + Base26(st.nextVar)
		st.memVars[match] = name
		return name
	})
}

// reuseVariable implements pass 6: once `v = E;` has been emitted, any
// later occurrence of the exact expression text E is replaced with v.
func reuseVariable(line string, st *State) string {
	if m := assignRe.FindStringSubmatch(line); m != nil {
		lhs, rhs := m[1], m[2]
		if _, seen := st.defExpr[rhs]; !seen {
			st.defExpr[rhs] = lhs
		}
		return line
	}
	for expr, name := range st.defExpr {
		if expr == "" {
			continue
		}
		if strings.Contains(line, expr) && !strings.HasPrefix(line, name+" = ") {
			line = strings.ReplaceAll(line, expr, name)
		}
	}
	return line
}

// hoistCast implements pass 7: `x = T(rhs);` becomes `T x = rhs;` when
// the cast envelops the whole RHS, recorded once per (lhs, T) pair.
func hoistCast(line string, st *State) string {
	m := castAssignRe.FindStringSubmatch(line)
	if m == nil {
		return line
	}
	lhs, typ, rhs := m[1], m[2], m[3]
	key := lhs + ":" + typ
	if st.varTypes[lhs] == typ {
		return lhs + " = " + rhs + ";"
	}
	st.varTypes[lhs] = typ
	_ = key
	return typ + " " + lhs + " = " + rhs + ";"
}

// inheritType implements pass 8: if `y = ... x ...` and x's type is
// already known, y inherits it — a best-effort propagation keyed on
// whitespace-delimited token membership rather than full parsing.
func inheritType(line string, st *State) string {
	m := assignRe.FindStringSubmatch(line)
	if m == nil {
		return line
	}
	lhs, rhs := m[1], m[2]
	if _, known := st.varTypes[lhs]; known {
		return line
	}
	for _, tok := range strings.Fields(rhs) {
		tok = strings.Trim(tok, "(),;")
		if typ, ok := st.varTypes[tok]; ok {
			st.varTypes[lhs] = typ
			return line
		}
	}
	return line
}

// substituteResolvedNames implements pass 9: replace placeholder
// CustomError_XXXXXXXX / Event_XXXXXXXX names with resolver-provided
// human names, keyed by the same placeholder string.
func substituteResolvedNames(line string, resolved map[string]string) string {
	for placeholder, name := range resolved {
		line = strings.ReplaceAll(line, placeholder, name)
	}
	return line
}

// simplifyArithmetic implements pass 10: divisions by 1 and
// multiplications by 1 are no-ops.
func simplifyArithmetic(line string) string {
	if m := divByOneRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	if m := mulByOneRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return line
}
