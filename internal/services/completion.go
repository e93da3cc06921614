package services

import "math"

// ActiveOnly filters out items whose active flag is false.
func ActiveOnly(items []ItemDefinition) []ItemDefinition {
	out := make([]ItemDefinition, 0, len(items))
	for _, it := range items {
		if it.IsActive() {
			out = append(out, it)
		}
	}
	return out
}

// Completion is round(100 * answered / active). Zero active items yield 0, so
// the checklist can never be finished in that case.
func Completion(items []ItemDefinition, responses Responses) int {
	total := 0
	answered := 0
	for _, it := range items {
		if !it.IsActive() {
			continue
		}
		total++
		if responses.StatusOf(it.ID) != StatusPending {
			answered++
		}
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(answered) / float64(total)))
}

// HasNonCompliant reports whether any active item is non-compliant. Pending
// items do not count as issues.
func HasNonCompliant(items []ItemDefinition, responses Responses) bool {
	for _, it := range items {
		if it.IsActive() && responses.StatusOf(it.ID) == StatusNonCompliant {
			return true
		}
	}
	return false
}

type OverallResult string

const (
	ResultAllOK          OverallResult = "all_ok"
	ResultIssuesDetected OverallResult = "issues_detected"
)

func Overall(items []ItemDefinition, responses Responses) OverallResult {
	if HasNonCompliant(items, responses) {
		return ResultIssuesDetected
	}
	return ResultAllOK
}

// MessageKey is the i18n key of the overall summary message.
func (r OverallResult) MessageKey() string {
	if r == ResultIssuesDetected {
		return "summary.issues"
	}
	return "summary.ok"
}
