// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// Compiler-family detection via prefix matching on well-known init-code
// signatures, per §6.
package decompile

import (
	"encoding/hex"
	"strings"
)

type detectRule struct {
	prefix  string // hex, matched against the start of the bytecode
	family  string
	version string
}

var prefixRules = []detectRule{
	{"363d3d373d3d3d363d73", "proxy", "minimal"},
	{"366000600037611000600036600073", "proxy", "vyper"},
	{"6004361015", "vyper", "0.2.0-0.2.4,0.2.11-0.3.3"},
	{"341561000a", "vyper", "0.2.5-0.2.8"},
	{"731bf797", "solc", "0.4.10-0.4.24"},
	{"6080604052", "solc", "0.4.22+"},
	{"6060604052", "solc", "0.4.11-0.4.21"},
}

const (
	vyperMarkerHex = "7679706572" // ascii "vyper"
	solcMarkerHex  = "736f6c63"   // ascii "solc"
)

// DetectCompiler implements §6's detect(bytecode) -> (family, version).
// Returns ("", "") if nothing in the code matches any known signature.
func DetectCompiler(bytecode []byte) (family, versionRange string) {
	codeHex := hex.EncodeToString(bytecode)

	for _, r := range prefixRules {
		if strings.HasPrefix(codeHex, r.prefix) {
			return r.family, r.version
		}
	}

	if idx := strings.Index(codeHex, vyperMarkerHex); idx >= 0 {
		if v, ok := decodeVyperVersionTag(codeHex, idx+len(vyperMarkerHex)); ok {
			return "vyper", v
		}
		return "vyper", "unknown"
	}

	if strings.Contains(codeHex, solcMarkerHex) {
		return "solc", "unknown"
	}

	return "", ""
}

// decodeVyperVersionTag looks for an "83NN..." marker immediately after
// the "vyper" ascii signature and decodes NN bytes of ascii version
// text, per §6.
func decodeVyperVersionTag(codeHex string, from int) (string, bool) {
	if from+2 > len(codeHex) || codeHex[from:from+2] != "83" {
		return "", false
	}
	if from+4 > len(codeHex) {
		return "", false
	}
	nHex := codeHex[from+2 : from+4]
	n, err := hexByteToInt(nHex)
	if err != nil {
		return "", false
	}
	start := from + 4
	end := start + n*2
	if end > len(codeHex) {
		return "", false
	}
	raw, err := hex.DecodeString(codeHex[start:end])
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func hexByteToInt(s string) (int, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 1 {
		return 0, err
	}
	return int(b[0]), nil
}
