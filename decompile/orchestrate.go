// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// Per-selector fan-out: each discovered selector gets its own freshly
// constructed VM, its own Explorer deadline, and runs concurrently with its
// siblings since the explorer's copy-on-fork model shares no mutable
// state across selectors, per §5.
package decompile

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/probechain/evmdecompiler/core/abi"
	"github.com/probechain/evmdecompiler/core/analysis"
	"github.com/probechain/evmdecompiler/core/trace"
)

// orchestrate explores and analyzes every discovered selector's entry
// point in parallel, resolving signatures for documentation purposes
// (the Function record itself is always keyed by the raw 4-byte
// selector). Results are returned sorted by selector for determinism.
func orchestrate(ctx context.Context, code []byte, selectors map[uint32]uint64, opts Options, resolver SignatureResolver, cache *SignatureCache) ([]*analysis.Function, error) {
	type indexed struct {
		selector uint32
		fn       *analysis.Function
	}

	ordered := make([]uint32, 0, len(selectors))
	for sel := range selectors {
		ordered = append(ordered, sel)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	results := make([]indexed, len(ordered))
	bar := opts.Reporter.Bar("analyzing selectors", len(ordered))

	g, gctx := errgroup.WithContext(ctx)
	for i, sel := range ordered {
		i, sel := i, sel
		entry := selectors[sel]
		g.Go(func() error {
			fn, err := analyzeOneSelector(gctx, code, sel, entry, opts)
			bar.Inc()
			if err != nil {
				opts.Reporter.Warn("selector analysis failed", "selector", sel, "err", err.Error())
				return nil // one bad selector must not abort the whole run
			}
			if !opts.SkipResolving && resolver != nil {
				annotateResolvedName(gctx, fn, sel, resolver, cache, opts)
			}
			results[i] = indexed{selector: sel, fn: fn}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	bar.Done()

	out := make([]*analysis.Function, 0, len(results))
	for _, r := range results {
		if r.fn != nil {
			out = append(out, r.fn)
		}
	}
	return out, nil
}

// analyzeOneSelector runs the symbolic explorer from entry under a
// per-selector wall-clock deadline, then folds the resulting VMTrace
// into a Function via the analyzer in the configured mode.
func analyzeOneSelector(ctx context.Context, code []byte, selector uint32, entry uint64, opts Options) (*analysis.Function, error) {
	v := vmNew(code, selectorCalldata(selector), 50_000_000)
	v.PC = entry

	explorer := trace.NewExplorer(opts.Timeout)
	root := explorer.Explore(v)

	var fn *analysis.Function
	switch opts.Mode {
	case analysis.Yul:
		fn = analysis.AnalyzeYul(root, selector)
	default:
		fn = analysis.AnalyzeSolidity(root, selector)
	}
	if explorer.TimedOut() {
		fn.Notices = append(fn.Notices, "symbolic execution timed out")
	}
	if errs := analysis.Verify(fn); len(errs) > 0 {
		for _, e := range errs {
			fn.Notices = append(fn.Notices, e.Error())
		}
	}
	return fn, nil
}

// selectorCalldata builds a minimal calldata buffer (selector only, no
// arguments) to seed exploration; CALLDATALOAD reads past the 4-byte
// prefix fall back to the VM's own symbolic-zero-extension behavior.
func selectorCalldata(selector uint32) []byte {
	return []byte{byte(selector >> 24), byte(selector >> 16), byte(selector >> 8), byte(selector)}
}

// annotateResolvedName looks up a human-readable name for selector via
// the cache-then-resolver path and records it as a notice on fn. The
// notice is informational only: render passes no resolved names to the
// postprocessor, so nothing is renamed from it.
func annotateResolvedName(ctx context.Context, fn *analysis.Function, selector uint32, resolver SignatureResolver, cache *SignatureCache, opts Options) {
	sel4 := [4]byte{byte(selector >> 24), byte(selector >> 16), byte(selector >> 8), byte(selector)}

	if cache != nil {
		if cands, ok := cache.Get(sel4); ok {
			recordBest(fn, cands)
			return
		}
	}

	cands, err := resolver.Resolve(ctx, sel4)
	if err != nil {
		opts.Reporter.Debug("resolve failed", "selector", sel4, "err", err.Error())
		return
	}
	if cache != nil {
		cache.Put(sel4, cands)
	}
	recordBest(fn, cands)
}

func recordBest(fn *analysis.Function, cands []abi.Candidate) {
	best, ok := abi.BestCandidate(cands)
	if !ok {
		return
	}
	fn.Notices = append(fn.Notices, "resolved: "+best.Signature)
}
