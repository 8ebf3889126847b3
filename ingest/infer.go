package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

var bpmPattern = regexp.MustCompile(`(?i)\b(\d{2,3})\s*-?\s*bpm\b`)

// keyPatterns are tried in order. Group 1 is the root, 2 the accidental and
// 3 the quality. A bare "m" counts only after "key" or when followed by a
// separator, a number or the end, so "Am I Dreaming" carries no key.
var keyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b([A-G])(#|b|♯|♭)?\s*((?i:major|minor|maj|min))\b`),
	regexp.MustCompile(`\b(?i:key)\s*:?\s*([A-G])(#|b|♯|♭)?(m?)(?:\W|$)`),
	regexp.MustCompile(`\b([A-G])(#|b|♯|♭)?(m)(?:\s*$|\s*[\])|/,-]|\s+\d)`),
}

// InferBPM finds a tempo written like "140 BPM" in text. Zero means none.
func InferBPM(text string) int {
	m := bpmPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	bpm, err := strconv.Atoi(m[1])
	if err != nil || bpm < 40 || bpm > 250 {
		return 0
	}
	return bpm
}

// InferKey finds a musical key written like "C# minor", "Key: Am" or "[Am]" and returns
// it as root plus an "m" suffix for minor keys.
func InferKey(text string) string {
	var m []string
	for _, p := range keyPatterns {
		if m = p.FindStringSubmatch(text); m != nil {
			break
		}
	}
	if m == nil {
		return ""
	}
	root := m[1]
	switch m[2] {
	case "#", "♯":
		root += "#"
	case "b", "♭":
		root += "b"
	}
	if q := strings.ToLower(m[3]); strings.HasPrefix(q, "min") || q == "m" {
		return root + "m"
	}
	return root
}
