// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// colorReporter is the only concrete decompile.Reporter implementation,
// matching go-ethereum/go-probeum's level-colored CLI logging idiom
// with github.com/fatih/color.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/probechain/evmdecompiler/decompile"
)

type colorReporter struct {
	info, warn, errc, debug *color.Color
}

func newColorReporter() *colorReporter {
	return &colorReporter{
		info:  color.New(color.FgCyan),
		warn:  color.New(color.FgYellow),
		errc:  color.New(color.FgRed),
		debug: color.New(color.FgHiBlack),
	}
}

func formatKV(msg string, kv []interface{}) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}

func (r *colorReporter) Info(msg string, kv ...interface{}) {
	r.info.Fprintln(os.Stdout, formatKV(msg, kv))
}

func (r *colorReporter) Warn(msg string, kv ...interface{}) {
	r.warn.Fprintln(os.Stderr, formatKV(msg, kv))
}

func (r *colorReporter) Error(msg string, kv ...interface{}) {
	r.errc.Fprintln(os.Stderr, formatKV(msg, kv))
}

func (r *colorReporter) Debug(msg string, kv ...interface{}) {
	if os.Getenv("DECOMPILE_DEBUG") == "" {
		return
	}
	r.debug.Fprintln(os.Stderr, formatKV(msg, kv))
}

func (r *colorReporter) Bar(label string, total int) decompile.ProgressBar {
	return &textBar{label: label, total: total}
}

// textBar is a minimal line-based progress indicator; it avoids a
// terminal-control-sequence dependency since none is carried by the
// teacher's go.mod for progress rendering specifically.
type textBar struct {
	label string
	total int
	done  int
}

func (b *textBar) Inc() {
	b.done++
	fmt.Fprintf(os.Stderr, "\r%s: %d/%d", b.label, b.done, b.total)
}

func (b *textBar) Done() {
	fmt.Fprintf(os.Stderr, "\r%s: %d/%d\n", b.label, b.total, b.total)
}
