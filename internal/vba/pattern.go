// Package vba implements byte-level neutralization of protection markers
// inside a workbook's embedded macro-project binary, plus the archive
// handling and processing pipeline around it.
package vba

import "bytes"

const (
	// quoteByte terminates a marker value.
	quoteByte = 0x22
	// fillerByte overwrites every byte of a matched value. Length is
	// preserved so the container's internal offset bookkeeping stays valid.
	fillerByte = 0x46
)

// PatternSpec identifies a protection marker by its fixed byte prefix. The
// prefix includes the opening quote, so the value starts immediately after
// it and runs to the next quote byte.
type PatternSpec struct {
	Prefix []byte
	Label  string
}

// ProtectionPatterns are the known protection markers, in scan order.
var ProtectionPatterns = []PatternSpec{
	{Prefix: []byte(`CMG="`), Label: "CMG"},
	{Prefix: []byte(`DPB="`), Label: "DPB"},
	{Prefix: []byte(`GC="`), Label: "GC"},
}

// MatchSpan records where a marker and its value were found.
// PrefixStart <= ValueStart <= ValueEnd <= len(payload); ValueEnd is the
// offset of the terminating quote, exclusive of the value.
type MatchSpan struct {
	PrefixStart int
	ValueStart  int
	ValueEnd    int
}

// ScanAndRewrite runs each pattern independently over the payload, left to
// right, overwriting every matched value with the filler byte in place.
// It returns the total number of values actually changed by the overwrite:
// a value that already consists entirely of filler bytes (or is empty) is
// found and skipped past, but not counted. Re-running the scan over an
// already-rewritten buffer therefore reports zero modifications.
//
// Each pattern pass scans the same mutable buffer. Rewritten regions contain
// only filler bytes, which cannot begin any of the known prefixes, so one
// pattern's rewrite does not produce spurious matches for another. If a
// future pattern's prefix could be spelled entirely in filler bytes that
// guarantee would no longer hold; the sequential-independent-pass structure
// is kept as is for compatibility with the original scanner.
func ScanAndRewrite(payload []byte, patterns []PatternSpec) int {
	total := 0
	for _, p := range patterns {
		total += rewritePattern(payload, p)
	}
	return total
}

// rewritePattern applies a single pattern over the buffer.
//
// A prefix match with no terminating quote before end of buffer is
// discarded: nothing is rewritten, nothing is counted, and scanning resumes
// one byte further so later occurrences are still found. A zero-length
// value (prefix immediately followed by the closing quote) is found and
// skipped past, but the overwrite is a no-op and does not count.
func rewritePattern(buf []byte, p PatternSpec) int {
	count := 0
	plen := len(p.Prefix)
	if plen == 0 {
		return 0
	}
	for i := 0; i+plen <= len(buf); {
		if !bytes.Equal(buf[i:i+plen], p.Prefix) {
			i++
			continue
		}
		valueStart := i + plen
		rel := bytes.IndexByte(buf[valueStart:], quoteByte)
		if rel < 0 {
			// Truncated value at end of buffer: not a match.
			i++
			continue
		}
		valueEnd := valueStart + rel
		changed := false
		for j := valueStart; j < valueEnd; j++ {
			if buf[j] != fillerByte {
				buf[j] = fillerByte
				changed = true
			}
		}
		if changed {
			count++
		}
		// Skip past the rewritten value and its closing quote.
		i = valueEnd + 1
	}
	return count
}

// FindMatches reports the spans a pattern would rewrite, without mutating
// the buffer. Useful for inspection and tests.
func FindMatches(buf []byte, p PatternSpec) []MatchSpan {
	var spans []MatchSpan
	plen := len(p.Prefix)
	if plen == 0 {
		return nil
	}
	for i := 0; i+plen <= len(buf); {
		if !bytes.Equal(buf[i:i+plen], p.Prefix) {
			i++
			continue
		}
		valueStart := i + plen
		rel := bytes.IndexByte(buf[valueStart:], quoteByte)
		if rel < 0 {
			i++
			continue
		}
		valueEnd := valueStart + rel
		spans = append(spans, MatchSpan{PrefixStart: i, ValueStart: valueStart, ValueEnd: valueEnd})
		i = valueEnd + 1
	}
	return spans
}
