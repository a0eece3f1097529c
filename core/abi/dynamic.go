// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// Dynamic-parameter detector: given calldata already chunked into
// 32-byte words, decides for each word whether it is a pointer to an
// ABI-encoded dynamic value (bytes, string, or array).
package abi

import "fmt"

// DynamicResult is the outcome of detecting a dynamic value at a given
// head word: the inferred ABI type name and the full set of word
// indices its encoding consumes (the pointer word itself, the length
// word, and every data word).
type DynamicResult struct {
	Type      string
	Coverages []uint64
}

// wordPadding classifies a 32-byte word's non-zero byte layout.
type wordPadding int

const (
	paddingLeft  wordPadding = iota // left-padded: looks like a uintN/address
	paddingRight                    // right-padded or unpadded: looks like bytesN/string
)

// classifyPadding reports how a data word is padded, used to tell a
// string/bytes payload (right-padded data) apart from an array of
// left-padded scalars (uintN, address).
func classifyPadding(w [32]byte) wordPadding {
	leadingZeros, trailingZeros := 0, 0
	for _, b := range w {
		if b != 0 {
			break
		}
		leadingZeros++
	}
	for i := len(w) - 1; i >= 0; i-- {
		if w[i] != 0 {
			break
		}
		trailingZeros++
	}
	if trailingZeros >= leadingZeros {
		return paddingRight
	}
	return paddingLeft
}

// DetectDynamic implements §4.5's algorithm for word index i: words is
// the full calldata word array (post 4-byte selector), and i is the
// head-region word under inspection. Returns nil if word i cannot be a
// dynamic-type pointer.
func DetectDynamic(words [][32]byte, i uint64) *DynamicResult {
	wordCount := uint64(len(words))
	if i >= wordCount {
		return nil
	}
	ptr := bytesToUint64(words[i][:])
	if ptr == 0 || ptr%32 != 0 {
		return nil
	}
	off := ptr / 32
	if off >= wordCount {
		return nil
	}
	size := bytesToUint64(words[off][:])

	dataWordCount := (size + 31) / 32
	if off+1+dataWordCount > wordCount {
		// Not enough remaining words for the declared size: treat the
		// declared length as a byte count and fall through to the bytes
		// path anyway — the caller will cap coverage at what actually
		// exists in this calldata.
		dataWordCount = wordCount - off - 1
	}

	var res *DynamicResult
	remainingBytes := (wordCount - off - 1) * 32
	if remainingBytes < size || looksLikeBytesPath(words, off, size, dataWordCount) {
		res = detectBytesOrString(words, off, size, dataWordCount, "bytes")
	} else {
		res = detectArrayOrString(words, off, size, dataWordCount)
	}
	res.Coverages = dedupe(append([]uint64{i}, res.Coverages...))
	return res
}

// looksLikeBytesPath applies the single-data-word padding rule that
// distinguishes a short bytes/string value from a 1-element array: when
// there is exactly one data word, a size ≤ 32 with valid right-padding
// for that size is read as bytes rather than as a 1-element array.
func looksLikeBytesPath(words [][32]byte, off, size, dataWordCount uint64) bool {
	if dataWordCount != 1 || size == 0 || size > 32 {
		return false
	}
	return classifyPadding(words[off+1]) == paddingRight && validBytesPadding(words[off+1], size)
}

func validBytesPadding(w [32]byte, size uint64) bool {
	if size >= 32 {
		return true
	}
	allowed := 32 - size
	trailingZeros := uint64(0)
	for i := len(w) - 1; i >= 0; i-- {
		if w[i] != 0 {
			break
		}
		trailingZeros++
	}
	return trailingZeros <= allowed
}

func detectBytesOrString(words [][32]byte, off, size, dataWordCount uint64, label string) *DynamicResult {
	cov := []uint64{}
	for w := off; w <= off+dataWordCount && int(w) < len(words); w++ {
		cov = append(cov, w)
	}
	if size > 32 {
		last := words[off+dataWordCount]
		tail := size % 32
		if tail == 0 {
			tail = 32
		}
		if !validBytesPadding(last, tail) {
			label = "string"
		}
	}
	return &DynamicResult{Type: label, Coverages: cov}
}

// detectArrayOrString implements steps 4-5: inspect the data window's
// per-word padding to tell an array of uniformly-padded elements from a
// string/bytes payload with irregular, size-terminated padding.
func detectArrayOrString(words [][32]byte, off, size, dataWordCount uint64) *DynamicResult {
	cov := []uint64{off}
	uniform := true
	var first wordPadding
	haveFirst := false
	elemTypes := map[string]bool{}

	for k := uint64(0); k < dataWordCount; k++ {
		idx := off + 1 + k
		if idx >= uint64(len(words)) {
			break
		}
		cov = append(cov, idx)
		if nested := DetectDynamic(words, idx); nested != nil {
			elemTypes[nested.Type] = true
			cov = append(cov, nested.Coverages...)
			continue
		}
		p := classifyPadding(words[idx])
		if !haveFirst {
			first, haveFirst = p, true
		} else if p != first {
			uniform = false
		}
		if p == paddingLeft {
			elemTypes["uintN"] = true
			elemTypes["address"] = true
		} else {
			elemTypes["bytesN"] = true
			elemTypes["string"] = true
		}
	}

	if !uniform {
		return detectBytesOrString(words, off, size, dataWordCount, "string")
	}

	return &DynamicResult{Type: mergeElemType(elemTypes) + "[]", Coverages: dedupe(cov)}
}

// mergeElemType collapses the per-word candidate set into one element
// type name, giving priority string > address > widest numeric type.
func mergeElemType(cands map[string]bool) string {
	switch {
	case cands["string"] && !cands["uintN"] && !cands["address"]:
		return "string"
	case cands["address"]:
		return "address"
	case cands["uintN"]:
		return "uint256"
	case cands["bytesN"]:
		return "bytes32"
	default:
		return "bytes32"
	}
}

func dedupe(in []uint64) []uint64 {
	seen := make(map[uint64]bool, len(in))
	out := make([]uint64, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func bytesToUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b[len(b)-8:] {
		v = v<<8 | uint64(c)
	}
	for _, c := range b[:len(b)-8] {
		if c != 0 {
			return ^uint64(0) // overflow sentinel: too large to be a plausible offset
		}
	}
	return v
}

// ChunkWords right-pads raw calldata bytes (after the 4-byte selector)
// to the next 32-byte multiple and splits it into words, so the ABI-less
// calldata decoder can run the same detector regardless of whether the
// final word was short.
func ChunkWords(data []byte) [][32]byte {
	n := (len(data) + 31) / 32
	out := make([][32]byte, n)
	for i := 0; i < n; i++ {
		start := i * 32
		end := start + 32
		if end > len(data) {
			end = len(data)
		}
		copy(out[i][:], data[start:end])
	}
	return out
}

func (r *DynamicResult) String() string {
	return fmt.Sprintf("%s@%v", r.Type, r.Coverages)
}
