package model

// Grade is an ordinal quality bucket derived from the numeric score.
type Grade string

const (
	GradeAPlus  Grade = "A+"
	GradeA      Grade = "A"
	GradeAMinus Grade = "A-"
	GradeBPlus  Grade = "B+"
	GradeB      Grade = "B"
	GradeBMinus Grade = "B-"
	GradeCPlus  Grade = "C+"
	GradeC      Grade = "C"
	GradeCMinus Grade = "C-"
	GradeD      Grade = "D"
	GradeF      Grade = "F"
)

// gradeRank orders grades best-first for comparison and capping.
var gradeRank = map[Grade]int{
	GradeAPlus:  0,
	GradeA:      1,
	GradeAMinus: 2,
	GradeBPlus:  3,
	GradeB:      4,
	GradeBMinus: 5,
	GradeCPlus:  6,
	GradeC:      7,
	GradeCMinus: 8,
	GradeD:      9,
	GradeF:      10,
}

// BetterThan reports whether g outranks other. Unknown grades rank worst.
func (g Grade) BetterThan(other Grade) bool {
	return rankOf(g) < rankOf(other)
}

func rankOf(g Grade) int {
	r, ok := gradeRank[g]
	if !ok {
		return len(gradeRank)
	}
	return r
}

// CapGrade returns g capped at ceiling: whichever of the two is worse.
func CapGrade(g, ceiling Grade) Grade {
	if g.BetterThan(ceiling) {
		return ceiling
	}
	return g
}

// DiffResult holds the field-presence diff between the generated and parsed
// field sets. Derived deterministically from its inputs; never stored on its
// own.
type DiffResult struct {
	Matched *FieldSet
	Missing *FieldSet
	Extra   *FieldSet
}

// GeneratedLen returns the size of the original generated set (matched plus
// missing), the denominator for coverage.
func (d DiffResult) GeneratedLen() int {
	return d.Matched.Len() + d.Missing.Len()
}

// ReasonCode distinguishes why a report carries the score it does.
type ReasonCode string

const (
	// ReasonNone is a normally scored report.
	ReasonNone ReasonCode = ""
	// ReasonNoParseObserved means the parser never produced output within
	// the retrieval window. Distinct from a genuine 0% field match.
	ReasonNoParseObserved ReasonCode = "NO_PARSE_OBSERVED"
)

// FixSuggestion is one actionable remediation produced by the recommender.
type FixSuggestion struct {
	Code     string `json:"code"`
	Summary  string `json:"summary"`
	Detail   string `json:"detail,omitempty"`
	Required bool   `json:"required"`
}

// ComplianceReport is the scored outcome for one producer/parser pair.
type ComplianceReport struct {
	Score           float64         `json:"score"`
	Grade           Grade           `json:"grade"`
	RequiredMissing []string        `json:"required_missing,omitempty"`
	Reason          ReasonCode      `json:"reason,omitempty"`
	Recommendations []FixSuggestion `json:"recommendations,omitempty"`
}
