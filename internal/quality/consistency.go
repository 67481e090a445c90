// Package quality implements the response gates: a consistency checker over
// merged text and a hallucination detector with adjustable fact and phrase
// sets. Reports land in the scratchpad for the Judge to fold into quality.
package quality

import (
	"fmt"
	"regexp"
	"strings"

	"cortex/internal/logging"
	"cortex/internal/types"
)

// proximityWindow bounds how close two contradicting terms must be to count.
const proximityWindow = 500

// transitionWords signal logical flow in longer answers.
var transitionWords = []string{
	"however", "therefore", "because", "first", "second", "then",
	"finally", "additionally", "for example", "in contrast", "so",
}

var (
	codeBlockPattern = regexp.MustCompile("(?s)```.*?```")
	orphanPattern    = regexp.MustCompile(`(?m)^\s*(?:This|That)[.!?]?\s*$`)
)

// contradictionPairs are term pairs that read as self-contradiction when
// they appear near each other.
var contradictionPairs = [][2]string{
	{"yes", "no"},
	{"always", "never"},
	{"must", "optional"},
}

// ConsistencyChecker scans merged response text for self-contradictions and
// structural defects.
type ConsistencyChecker struct{}

// NewConsistencyChecker creates a checker.
func NewConsistencyChecker() *ConsistencyChecker {
	return &ConsistencyChecker{}
}

// Check runs every rule and returns a report. Score starts at 1.0 and each
// issue subtracts by severity: HIGH 0.3, MEDIUM 0.15, LOW 0.05 (floor 0).
func (c *ConsistencyChecker) Check(text string) *types.ConsistencyReport {
	report := &types.ConsistencyReport{Score: 1.0}
	lower := strings.ToLower(text)

	for _, pair := range contradictionPairs {
		if termsNear(lower, pair[0], pair[1], proximityWindow) {
			addIssue(report, types.SeverityHigh,
				fmt.Sprintf("contradictory terms %q and %q within %d chars", pair[0], pair[1], proximityWindow))
		}
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, "For example,") || strings.HasSuffix(trimmed, "for example,") {
		addIssue(report, types.SeverityMedium, "response ends with an incomplete opener fragment")
	}

	if orphanPattern.MatchString(text) {
		addIssue(report, types.SeverityLow, "orphaned deictic reference (bare this/that)")
	}

	if len(text) > proximityWindow && !containsAnyWord(lower, transitionWords) {
		addIssue(report, types.SeverityLow, "long response with no logical transitions")
	}

	for _, block := range codeBlockPattern.FindAllString(text, -1) {
		if !balancedDelimiters(block) {
			addIssue(report, types.SeverityMedium, "unbalanced braces or brackets in code block")
		}
	}

	logging.Quality("consistency check: score=%.2f issues=%d", report.Score, len(report.Issues))
	return report
}

func addIssue(r *types.ConsistencyReport, sev types.IssueSeverity, desc string) {
	r.Issues = append(r.Issues, types.QualityIssue{Severity: sev, Description: desc})
	switch sev {
	case types.SeverityHigh:
		r.Score -= 0.3
	case types.SeverityMedium:
		r.Score -= 0.15
	case types.SeverityLow:
		r.Score -= 0.05
	}
	if r.Score < 0 {
		r.Score = 0
	}
}

// termsNear reports whether a and b both occur as words within window chars
// of each other.
func termsNear(lower, a, b string, window int) bool {
	aIdx := wordIndexes(lower, a)
	bIdx := wordIndexes(lower, b)
	for _, i := range aIdx {
		for _, j := range bIdx {
			d := i - j
			if d < 0 {
				d = -d
			}
			if d <= window {
				return true
			}
		}
	}
	return false
}

// wordIndexes returns byte offsets of whole-word occurrences.
func wordIndexes(lower, word string) []int {
	var out []int
	start := 0
	for {
		i := strings.Index(lower[start:], word)
		if i < 0 {
			return out
		}
		abs := start + i
		beforeOK := abs == 0 || !isWordByte(lower[abs-1])
		afterOK := abs+len(word) >= len(lower) || !isWordByte(lower[abs+len(word)])
		if beforeOK && afterOK {
			out = append(out, abs)
		}
		start = abs + len(word)
	}
}

func isWordByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

func containsAnyWord(lower string, words []string) bool {
	for _, w := range words {
		if len(wordIndexes(lower, w)) > 0 {
			return true
		}
	}
	return false
}

// balancedDelimiters checks (), [], {} balance with a depth counter per kind.
func balancedDelimiters(text string) bool {
	var round, square, curly int
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(':
			round++
		case ')':
			round--
		case '[':
			square++
		case ']':
			square--
		case '{':
			curly++
		case '}':
			curly--
		}
		if round < 0 || square < 0 || curly < 0 {
			return false
		}
	}
	return round == 0 && square == 0 && curly == 0
}
