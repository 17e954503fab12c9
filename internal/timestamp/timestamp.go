// Package timestamp handles the bracketed [MM:SS] time references that the
// assistant and the client exchange to point at moments in a video.
package timestamp

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// pattern matches a bracketed reference with a 1-2 digit minutes field and an
// exactly 2 digit seconds field. Anything else ([1:2], [123:45], stray
// brackets) is not a reference.
var pattern = regexp.MustCompile(`\[(\d{1,2}):(\d{2})\]`)

// Parse converts a single bracketed token like "[2:10]" or "[02:10]" to
// milliseconds. The second return value is false when s is not exactly one
// well-formed token.
func Parse(s string) (int64, bool) {
	m := pattern.FindStringSubmatch(s)
	if m == nil || m[0] != s {
		return 0, false
	}
	minutes, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	return int64(minutes*60+seconds) * 1000, true
}

// Extract scans text for every non-overlapping bracketed reference, in
// left-to-right order. Duplicates are preserved; deduplication is the
// caller's concern.
func Extract(text string) []int64 {
	matches := pattern.FindAllStringSubmatch(text, -1)
	if matches == nil {
		return nil
	}
	out := make([]int64, 0, len(matches))
	for _, m := range matches {
		minutes, _ := strconv.Atoi(m[1])
		seconds, _ := strconv.Atoi(m[2])
		out = append(out, int64(minutes*60+seconds)*1000)
	}
	return out
}

// Format renders a duration in seconds as "MM:SS". Negative and NaN inputs
// clamp to "00:00"; fractional seconds are floored. Minutes have no upper
// bound, so 125 minutes renders as "125:00".
func Format(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		return "00:00"
	}
	total := int64(math.Floor(seconds))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatMs is Format for a millisecond offset.
func FormatMs(ms int64) string {
	return Format(float64(ms) / 1000)
}
