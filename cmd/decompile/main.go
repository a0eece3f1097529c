// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// Command decompile is the CLI front end over the decompile package:
// it supplies the only concrete BytecodeProvider, SignatureResolver,
// and Reporter implementations, per §6's CLI surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"

	"github.com/probechain/evmdecompiler/core/abi"
	"github.com/probechain/evmdecompiler/core/analysis"
	"github.com/probechain/evmdecompiler/decompile"
)

func main() {
	app := cli.NewApp()
	app.Name = "decompile"
	app.Usage = "recover Solidity/Yul-like source from EVM bytecode"
	app.ArgsUsage = "<TARGET>"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "rpc-url", Usage: "JSON-RPC endpoint, required when TARGET is an on-chain address"},
		cli.BoolFlag{Name: "default", Usage: "resolve no selector names (same effect as --skip-resolving)"},
		cli.BoolFlag{Name: "skip-resolving", Usage: "never resolve selectors to human-readable signatures"},
		cli.BoolFlag{Name: "include-sol", Usage: "render Solidity-like output (default)"},
		cli.BoolFlag{Name: "include-yul", Usage: "render Yul output instead"},
		cli.StringFlag{Name: "output", Value: "print", Usage: "output directory, or \"print\" for stdout"},
		cli.StringFlag{Name: "name", Value: "DecompiledContract", Usage: "contract name for the rendered header"},
		cli.IntFlag{Name: "timeout", Value: 5000, Usage: "per-selector symbolic-exploration deadline in milliseconds"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errInvalidArgs) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errInvalidArgs = errors.New("invalid arguments")

func run(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("%w: expected exactly one TARGET argument", errInvalidArgs)
	}
	if ctx.Bool("include-sol") && ctx.Bool("include-yul") {
		return fmt.Errorf("%w: --include-sol and --include-yul are mutually exclusive", errInvalidArgs)
	}

	target := parseTarget(ctx.Args().First(), ctx.String("rpc-url"))

	mode := analysis.Solidity
	if ctx.Bool("include-yul") {
		mode = analysis.Yul
	}

	opts := decompile.Options{
		Mode:          mode,
		Timeout:       time.Duration(ctx.Int("timeout")) * time.Millisecond,
		SkipResolving: ctx.Bool("skip-resolving") || ctx.Bool("default"),
		DefaultSigs:   ctx.Bool("default"),
		Reporter:      newColorReporter(),
	}

	result, err := decompile.Decompile(context.Background(), fileOrHexProvider{}, nopResolver{}, target, opts)
	if err != nil {
		return err
	}

	return emit(ctx.String("output"), ctx.String("name"), result)
}

// parseTarget implements the three TargetSpec shapes: a hex string, a
// file path, or a 20-byte on-chain address paired with --rpc-url.
func parseTarget(arg, rpcURL string) decompile.TargetSpec {
	trimmed := strings.TrimPrefix(arg, "0x")
	switch {
	case isAddress(trimmed) && rpcURL != "":
		return decompile.TargetSpec{Address: arg, RPCURL: rpcURL}
	case isHex(trimmed) && len(trimmed) != 40:
		return decompile.TargetSpec{Hex: arg}
	default:
		return decompile.TargetSpec{FilePath: arg}
	}
}

func isAddress(s string) bool { return len(s) == 40 && isHex(s) }

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}

// fileOrHexProvider implements decompile.BytecodeProvider for the hex
// and file-path TargetSpec shapes. On-chain address fetch requires an
// RPC client, which is explicitly out of this module's scope per
// spec.md's non-goals (nothing here talks to the network).
type fileOrHexProvider struct{}

func (fileOrHexProvider) Fetch(ctx context.Context, t decompile.TargetSpec) ([]byte, error) {
	switch {
	case t.Hex != "":
		return abi.DecodeHex(t.Hex)
	case t.FilePath != "":
		raw, err := os.ReadFile(t.FilePath)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", t.FilePath, err)
		}
		return abi.DecodeHex(strings.TrimSpace(string(raw)))
	default:
		return nil, fmt.Errorf("on-chain address fetch requires an RPC client, which this build does not provide")
	}
}

// nopResolver always returns no candidates: this build ships with no
// network-backed signature database, per spec.md's non-goals.
type nopResolver struct{}

func (nopResolver) Resolve(ctx context.Context, selector [4]byte) ([]abi.Candidate, error) {
	return nil, nil
}

func emit(output, name string, result *decompile.Result) error {
	if output == "print" {
		printTable(result)
		for _, line := range result.Source {
			fmt.Println(strings.Replace(line, "DecompiledContract", name, 1))
		}
		return nil
	}
	if err := os.MkdirAll(output, 0o755); err != nil {
		return err
	}
	path := fmt.Sprintf("%s/%s.sol", output, name)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, line := range result.Source {
		fmt.Fprintln(f, strings.Replace(line, "DecompiledContract", name, 1))
	}
	return nil
}

func printTable(result *decompile.Result) {
	fmt.Printf("compiler: %s %s\n", result.CompilerFamily, result.VersionRange)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Selector", "Pure", "View", "Payable", "Notices"})
	for _, fn := range result.Functions {
		table.Append([]string{
			fmt.Sprintf("0x%08x", fn.Selector),
			fmt.Sprintf("%v", fn.Pure),
			fmt.Sprintf("%v", fn.View),
			fmt.Sprintf("%v", fn.Payable),
			strings.Join(fn.Notices, "; "),
		})
	}
	table.Render()
}
