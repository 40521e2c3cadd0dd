package exec

import (
	"strconv"
	"strings"
)

// ModelOutputMaxBytes and ModelOutputMaxLines are the spec.md §4.2 limits
// for what a tool's aggregated output can return to the *model* — distinct
// from ExecOutputMaxBytes above, which bounds what is ever held in memory
// or streamed to the client. A command can legally exceed ExecOutputMaxBytes
// never (it's a hard cap on capture); it can very often exceed these two
// limits, which only gate what TruncateForModel keeps.
const (
	ModelOutputMaxBytes    = 10 * 1024
	ModelOutputMaxLines    = 256
	modelOutputHeadLines   = 128
	modelOutputTailLines   = 128
	modelOutputHeadMaxByte = 5 * 1024
	modelOutputTailMaxByte = 5 * 1024
)

// TruncateForModel applies spec.md §4.2's output-truncation rule: if s
// exceeds ModelOutputMaxBytes or ModelOutputMaxLines, keep the first 128
// lines (up to 5 KiB) and the last 128 lines (up to 5 KiB), separated by
// "\n[... omitted M of N lines ...]\n\n". Idempotent: re-truncating an
// already-truncated string returns it unchanged (spec.md P7).
func TruncateForModel(s string) string {
	lines := strings.Split(s, "\n")
	n := len(lines)

	if len(s) <= ModelOutputMaxBytes && n <= ModelOutputMaxLines {
		return s
	}

	// Already truncated: the head/tail slices fit their budgets by
	// construction, so re-truncating would only rewrite the marker with
	// bogus counts. Idempotence requires returning it untouched.
	if hasTruncationMarker(lines) {
		return s
	}

	head := lines
	if len(head) > modelOutputHeadLines {
		head = head[:modelOutputHeadLines]
	}
	headText := capBytes(strings.Join(head, "\n"), modelOutputHeadMaxByte)

	tail := lines
	if len(tail) > modelOutputTailLines {
		tail = tail[len(tail)-modelOutputTailLines:]
	}
	tailText := capBytes(strings.Join(tail, "\n"), modelOutputTailMaxByte)

	omitted := n - countLines(headText) - countLines(tailText)
	if omitted < 0 {
		omitted = 0
	}

	marker := "\n[... omitted " + strconv.Itoa(omitted) + " of " + strconv.Itoa(n) + " lines ...]\n\n"
	result := headText + marker + tailText

	// Idempotence guard: if the marker construction somehow produced
	// something still over budget (pathological single giant line),
	// hard-cap it rather than recurse.
	if len(result) > ModelOutputMaxBytes+len(marker)+256 {
		result = result[:ModelOutputMaxBytes+len(marker)]
	}
	return result
}

// hasTruncationMarker reports whether one of the lines is a marker line
// produced by TruncateForModel.
func hasTruncationMarker(lines []string) bool {
	for _, line := range lines {
		if strings.HasPrefix(line, "[... omitted ") && strings.HasSuffix(line, " lines ...]") {
			return true
		}
	}
	return false
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

func capBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
