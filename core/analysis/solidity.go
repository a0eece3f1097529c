// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package analysis

import "github.com/probechain/evmdecompiler/core/trace"

// AnalyzeSolidity folds t into a Function whose Logic lines use
// Solidity-like infix/call rendering (WrappedOpcode.Solidify), the
// postprocessor's primary target per §4.6.
func AnalyzeSolidity(t *trace.VMTrace, selector uint32) *Function {
	return Analyze(t, selector, Solidity)
}
