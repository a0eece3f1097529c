// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package analysis

import "github.com/probechain/evmdecompiler/core/trace"

// AnalyzeYul folds t into a Function whose Logic lines use Yul prefix
// rendering (WrappedOpcode.Yulify). The Yul variant shares every walk
// rule above. It does not itself skip any postprocessor pass: the
// decompile package's render step runs the same core/postprocess
// passes over Yul and Solidity Logic lines alike.
func AnalyzeYul(t *trace.VMTrace, selector uint32) *Function {
	return Analyze(t, selector, Yul)
}
