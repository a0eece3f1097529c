// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// Package decompile is the public entry point: it wires together
// bytecode acquisition, selector discovery, per-selector symbolic
// exploration, analysis, and postprocessing into one Decompile() call,
// plus the external collaborator interfaces a caller must supply.
package decompile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/probechain/evmdecompiler/core/abi"
	"github.com/probechain/evmdecompiler/core/analysis"
	"github.com/probechain/evmdecompiler/core/postprocess"
	"github.com/probechain/evmdecompiler/core/trace"
	"github.com/probechain/evmdecompiler/core/vm"
)

// TargetSpec names the bytecode to decompile: exactly one of Hex,
// FilePath, or Address (with RPCURL) should be set.
type TargetSpec struct {
	Hex      string
	FilePath string
	Address  string
	RPCURL   string
}

// BytecodeProvider is the external collaborator that resolves a
// TargetSpec to opaque bytecode bytes. The core never interprets how
// the bytes were obtained.
type BytecodeProvider interface {
	Fetch(ctx context.Context, target TargetSpec) ([]byte, error)
}

// SignatureResolver is the external collaborator that looks up
// human-readable candidates for a 4-byte selector.
type SignatureResolver interface {
	Resolve(ctx context.Context, selector [4]byte) ([]abi.Candidate, error)
}

// ProgressBar is a handle for a single long-running operation's
// progress, returned by Reporter.Bar.
type ProgressBar interface {
	Inc()
	Done()
}

// Reporter is an abstract logger with the go-ethereum/go-probeum
// calling convention (alternating key/value pairs), plus a progress
// bar handle for long-running operations. cmd/decompile supplies the
// only concrete implementation; the core never formats for a terminal
// directly.
type Reporter interface {
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	Debug(msg string, kv ...interface{})
	Bar(label string, total int) ProgressBar
}

// nopReporter discards everything; used when a caller supplies none.
type nopReporter struct{}

func (nopReporter) Info(string, ...interface{})  {}
func (nopReporter) Warn(string, ...interface{})  {}
func (nopReporter) Error(string, ...interface{}) {}
func (nopReporter) Debug(string, ...interface{}) {}
func (nopReporter) Bar(string, int) ProgressBar  { return nopBar{} }

type nopBar struct{}

func (nopBar) Inc()  {}
func (nopBar) Done() {}

// Options configures a single Decompile call.
type Options struct {
	Mode           analysis.Mode
	Timeout        time.Duration // per-selector symbolic-exploration deadline
	SkipResolving  bool
	DefaultSigs    bool // set from --default; Decompile does not read it (the CLI also sets SkipResolving)
	Reporter       Reporter
}

// Result is everything Decompile recovers from one contract's bytecode.
type Result struct {
	CompilerFamily string
	VersionRange   string
	Functions      []*analysis.Function
	Source         []string
}

// Decompile is the cooperative-async top-level entry point: it
// performs I/O (bytecode fetch, signature-resolver lookups) but the
// inner symbolic interpreter and analyzer never suspend, per §5.
func Decompile(ctx context.Context, provider BytecodeProvider, resolver SignatureResolver, target TargetSpec, opts Options) (*Result, error) {
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	runID := uuid.New()
	opts.Reporter.Debug("starting decompile run", "run_id", runID.String())

	code, err := provider.Fetch(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("decompile: fetch bytecode: %w", err)
	}

	family, version := DetectCompiler(code)
	opts.Reporter.Info("detected compiler", "family", family, "version", version)

	selectors := trace.DiscoverSelectors(code)
	opts.Reporter.Info("discovered selectors", "count", len(selectors))

	var cache *SignatureCache
	if !opts.SkipResolving {
		cache = NewSignatureCache(256)
	}

	functions, err := orchestrate(ctx, code, selectors, opts, resolver, cache)
	if err != nil {
		return nil, err
	}

	source := render(functions)

	return &Result{
		CompilerFamily: family,
		VersionRange:   version,
		Functions:      functions,
		Source:         source,
	}, nil
}

// render runs the postprocessor over every function and assembles the
// final contract source, per §4.6's finalization pass.
func render(functions []*analysis.Function) []string {
	namer := postprocess.NewStorageNamer()
	var blocks [][]string
	for _, fn := range functions {
		fn.Logic = postprocess.InferStorage(fn, namer)
		st := postprocess.NewState()
		lines := postprocess.Run(fn, st, nil)
		header := fmt.Sprintf("function sel_%08x() external {", fn.Selector)
		block := []string{header}
		for _, a := range fn.ArgTypes() {
			block = append(block, fmt.Sprintf("// arg%d: %s", a.Index, a.Type))
		}
		block = append(block, lines...)
		block = append(block, "}")
		blocks = append(blocks, block)
	}
	return postprocess.Finalize("contract DecompiledContract", namer.Declarations(), blocks)
}

// vmNew is a thin indirection so orchestrate.go can construct a fresh
// VM per selector without importing core/vm directly into every file.
func vmNew(code []byte, calldata []byte, gasLimit uint64) *vm.VM {
	return vm.New(code, calldata, gasLimit)
}
