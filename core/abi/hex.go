// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// Hex codec helpers shared across target parsing (bytecode given as a
// hex string) and literal rendering (reduced-width hex constants).
package abi

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// EncodeHex lower-cases and hex-encodes b with no "0x" prefix.
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodeHex decodes an even-length hex string with or without a "0x"
// prefix. Case-insensitive.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("abi: invalid hex string: %w", err)
	}
	return b, nil
}

// EncodeHexReduced renders v as the minimal-width "0x"-prefixed hex
// literal used throughout solidified output: "0" for zero, otherwise
// the shortest even-length representation with no leading zero byte.
func EncodeHexReduced(v *uint256.Int) string {
	if v.IsZero() {
		return "0"
	}
	b := v.Bytes() // big-endian, no leading zero bytes
	return "0x" + hex.EncodeToString(b)
}
