package ticket

import (
	"regexp"
	"strings"
)

// Recognized text fragments single logical lines into many short lines and
// interleaves pure symbol noise. Downstream field extraction assumes one
// semantic unit per line, so the raw text is consolidated first.

const shortLineMax = 5 // fragments shorter than this get accumulated

var (
	symbolOnlyRe = regexp.MustCompile(`^[^\p{L}\p{N}]+$`)
	bareNumberRe = regexp.MustCompile(`^\$?\s*-?[\d.,]+\s*$`)
)

// garbageTokens are artifacts the recognizer emits for ruled lines, logos
// and torn paper edges.
var garbageTokens = map[string]bool{
	"---": true, "___": true, "===": true, "***": true,
	"...": true, "|||": true, "- -": true, "~~": true,
}

// ConsolidateLines merges fragmented recognized-text lines into logical
// lines: symbol noise is dropped, and runs of short fragments (< 5 chars,
// not a bare number) are concatenated until a normal-length line flushes
// the accumulator.
func ConsolidateLines(raw string) []string {
	var out []string
	var acc []string

	flush := func() {
		if len(acc) > 0 {
			out = append(out, strings.Join(acc, " "))
			acc = nil
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isNoise(line) {
			continue
		}
		if len([]rune(line)) < shortLineMax && !bareNumberRe.MatchString(line) {
			acc = append(acc, line)
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()
	return out
}

// isNoise reports lines that carry no recoverable text: a single
// non-alphanumeric character, punctuation runs, or known garbage tokens.
func isNoise(line string) bool {
	if garbageTokens[line] {
		return true
	}
	runes := []rune(line)
	if len(runes) == 1 && symbolOnlyRe.MatchString(line) {
		return true
	}
	return symbolOnlyRe.MatchString(line)
}
