// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// Finalization pass: contract-header declaration insertion, dead
// assignment elimination, and brace-driven indentation — the last
// step before a decompiled contract is ready to print.
package postprocess

import "strings"

// Finalize assembles the full contract source: the header line, the
// accumulated storage declarations (already sorted by StorageNamer),
// then every function's lines in order, indented by brace depth.
func Finalize(header string, storageDecls []string, functionBlocks [][]string) []string {
	var out []string
	out = append(out, header+" {")
	for _, d := range storageDecls {
		out = append(out, "    "+d)
	}
	if len(storageDecls) > 0 {
		out = append(out, "")
	}
	for i, block := range functionBlocks {
		block = dropDeadAssignments(block)
		out = append(out, indent(block)...)
		if i != len(functionBlocks)-1 {
			out = append(out, "")
		}
	}
	out = append(out, "}")
	return out
}

// dropDeadAssignments removes "lhs = rhs;" lines whose lhs never
// appears again before either being reassigned or the next function
// boundary — except external-call success tuples and storage writes,
// which always have an observable side effect worth keeping visible.
func dropDeadAssignments(lines []string) []string {
	keep := make([]bool, len(lines))
	for i := range lines {
		keep[i] = true
	}
	for i, line := range lines {
		lhs, ok := assignedName(line)
		if !ok || isExemptFromDeadCodeElim(line) {
			continue
		}
		used := false
		for j := i + 1; j < len(lines); j++ {
			if strings.Contains(lines[j], lhs) {
				used = true
				break
			}
		}
		if !used {
			keep[i] = false
		}
	}
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		if keep[i] {
			out = append(out, line)
		}
	}
	return out
}

func assignedName(line string) (string, bool) {
	m := assignRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func isExemptFromDeadCodeElim(line string) bool {
	return strings.Contains(line, "success") || strings.HasPrefix(strings.TrimSpace(line), "store_") ||
		strings.HasPrefix(strings.TrimSpace(line), "storage_map_")
}

// indent applies §4.6's brace-driven indentation: +1 level on lines
// ending in "{", -1 on lines starting with "}", four spaces per level.
func indent(lines []string) []string {
	out := make([]string, 0, len(lines))
	level := 1
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		lvl := level
		if strings.HasPrefix(trimmed, "}") {
			lvl--
		}
		if lvl < 0 {
			lvl = 0
		}
		out = append(out, strings.Repeat("    ", lvl)+trimmed)
		if strings.HasSuffix(trimmed, "{") {
			level++
		}
		if strings.HasPrefix(trimmed, "}") {
			level--
			if level < 1 {
				level = 1
			}
		}
	}
	return out
}
