package workflow

import "strings"

const (
	// RouteCopyMarker in a plan selects CategoryCopy.
	RouteCopyMarker = "[ROUTE: COPYWRITER]"
	// RejectMarker is the auditors' negative verdict.
	RejectMarker = "不通过"
	// RejectGlyph also marks a rejection.
	RejectGlyph = "❌"
)

// Verdict is the auditor's decision.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictRejected Verdict = "rejected"
)

// ClassifyRoute picks the category for a plan. Anything without the copy
// marker, including an empty plan, is engineering.
func ClassifyRoute(plan string) Category {
	if strings.Contains(plan, RouteCopyMarker) {
		return CategoryCopy
	}
	return CategoryEngineering
}

// ClassifyVerdict reads an audit. It is a rejection iff the text carries the
// negative marker or the rejection glyph; everything else, including an
// empty audit, is an approval.
func ClassifyVerdict(audit string) Verdict {
	if strings.Contains(audit, RejectMarker) || strings.Contains(audit, RejectGlyph) {
		return VerdictRejected
	}
	return VerdictApproved
}
