// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// Verify performs defensive, bytecode-verifier-style sanity checks on
// a built Function before it is handed to core/postprocess — the same
// "trust but verify the compiler's own output" idiom the teacher
// applies at the bytecode level, applied here to the decompiled
// Function record instead.
package analysis

import "fmt"

// VerifyError describes a Function that failed a sanity check.
type VerifyError struct {
	Selector uint32
	Message  string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify error in %08x: %s", e.Selector, e.Message)
}

// Verify checks a Function for structural problems that would
// indicate a bug in the walk rather than a legitimate decompilation
// oddity: conditional scopes still open at function end, unbalanced
// braces in the emitted lines, and calldata arguments whose candidate
// type set has been narrowed to nothing.
func Verify(f *Function) []VerifyError {
	var errs []VerifyError

	if len(f.openConditionals) != 0 {
		errs = append(errs, VerifyError{
			Selector: f.Selector,
			Message:  fmt.Sprintf("%d conditional scope(s) left open at function end", len(f.openConditionals)),
		})
	}

	opens, closes := 0, 0
	for _, line := range f.Logic {
		if len(line) > 0 && line[len(line)-1] == '{' {
			opens++
		}
		if len(line) > 0 && line[0] == '}' {
			closes++
		}
	}
	if opens != closes {
		errs = append(errs, VerifyError{
			Selector: f.Selector,
			Message:  fmt.Sprintf("unbalanced braces: %d opens, %d closes", opens, closes),
		})
	}

	for idx, frame := range f.CalldataArgs {
		if len(frame.Candidates) == 0 {
			errs = append(errs, VerifyError{
				Selector: f.Selector,
				Message:  fmt.Sprintf("argument %d narrowed to zero candidate types", idx),
			})
		}
	}

	return errs
}
