package engine

import (
	"github.com/rotisserie/eris"

	"github.com/parity-labs/parity-cli/internal/model"
)

// Grade breakpoints: the minimum numeric score for each grade. Tunable via
// ScorerConfig; these are the defaults.
const (
	BreakAPlus  = 98.0
	BreakA      = 94.0
	BreakAMinus = 90.0
	BreakBPlus  = 87.0
	BreakB      = 83.0
	BreakBMinus = 80.0
	BreakCPlus  = 77.0
	BreakC      = 73.0
	BreakCMinus = 70.0
	BreakD      = 60.0
)

// DefaultPenaltyWeight is the score deduction per missing required field.
const DefaultPenaltyWeight = 5.0

// DefaultGradeCeiling caps the grade whenever any required field is missing,
// regardless of numeric score.
const DefaultGradeCeiling = model.GradeB

// GradeBreakpoint maps a minimum score to a grade.
type GradeBreakpoint struct {
	Min   float64
	Grade model.Grade
}

// DefaultBreakpoints returns the default grade scale, best grade first.
func DefaultBreakpoints() []GradeBreakpoint {
	return []GradeBreakpoint{
		{BreakAPlus, model.GradeAPlus},
		{BreakA, model.GradeA},
		{BreakAMinus, model.GradeAMinus},
		{BreakBPlus, model.GradeBPlus},
		{BreakB, model.GradeB},
		{BreakBMinus, model.GradeBMinus},
		{BreakCPlus, model.GradeCPlus},
		{BreakC, model.GradeC},
		{BreakCMinus, model.GradeCMinus},
		{BreakD, model.GradeD},
	}
}

// ScorerConfig holds the tunable scoring parameters. Zero values fall back
// to the defaults above, except PenaltyWeight: nil means the default, while
// an explicit zero disables the per-field penalty (the required-missing
// grade ceiling still applies).
type ScorerConfig struct {
	PenaltyWeight *float64
	Breakpoints   []GradeBreakpoint
	GradeCeiling  model.Grade
}

// Scorer maps field diffs onto the schema taxonomy and produces compliance
// reports. Construction validates the taxonomy and configuration eagerly so
// misconfiguration surfaces before any jobs run.
type Scorer struct {
	taxonomy *model.SchemaTaxonomy
	cfg      ScorerConfig
	penalty  float64
}

// NewScorer creates a Scorer, validating taxonomy and config.
func NewScorer(taxonomy *model.SchemaTaxonomy, cfg ScorerConfig) (*Scorer, error) {
	if taxonomy == nil {
		return nil, eris.New("scorer: nil taxonomy")
	}
	if err := taxonomy.Validate(); err != nil {
		return nil, eris.Wrap(err, "scorer: invalid taxonomy")
	}
	penalty := DefaultPenaltyWeight
	if cfg.PenaltyWeight != nil {
		penalty = *cfg.PenaltyWeight
	}
	if penalty < 0 {
		return nil, eris.Errorf("scorer: negative penalty weight %v", penalty)
	}
	if penalty > 0 && len(taxonomy.Required()) == 0 {
		return nil, eris.Errorf("scorer: taxonomy %q has no required fields but penalty weight is %v", taxonomy.Name, penalty)
	}
	if cfg.GradeCeiling == "" {
		cfg.GradeCeiling = DefaultGradeCeiling
	}
	if len(cfg.Breakpoints) == 0 {
		cfg.Breakpoints = DefaultBreakpoints()
	}
	for i := 1; i < len(cfg.Breakpoints); i++ {
		if cfg.Breakpoints[i].Min >= cfg.Breakpoints[i-1].Min {
			return nil, eris.New("scorer: breakpoints must be strictly decreasing")
		}
	}
	return &Scorer{taxonomy: taxonomy, cfg: cfg, penalty: penalty}, nil
}

// Score produces a compliance report from a field diff.
//
// Coverage |matched| / max(|generated|, 1) is the base score in [0,100];
// each required-missing field subtracts PenaltyWeight, floored at 0. A
// non-empty required-missing set additionally caps the grade at the ceiling:
// required-field absence is a hard quality ceiling, not just a penalty.
func (s *Scorer) Score(diff model.DiffResult) model.ComplianceReport {
	generated := diff.GeneratedLen()
	if generated < 1 {
		generated = 1
	}
	coverage := float64(diff.Matched.Len()) / float64(generated) * 100

	var requiredMissing []string
	for _, name := range diff.Missing.Sorted() {
		if s.taxonomy.IsRequired(name) {
			requiredMissing = append(requiredMissing, name)
		}
	}

	score := coverage - s.penalty*float64(len(requiredMissing))
	if score < 0 {
		score = 0
	}

	grade := s.gradeFor(score)
	if len(requiredMissing) > 0 {
		grade = model.CapGrade(grade, s.cfg.GradeCeiling)
	}

	return model.ComplianceReport{
		Score:           score,
		Grade:           grade,
		RequiredMissing: requiredMissing,
	}
}

// ScoreNoParse is the report for a job whose parse output never arrived.
// Defined as score 0 / grade F with a distinguished reason code so it is
// never conflated with a genuinely observed 0% match.
func (s *Scorer) ScoreNoParse() model.ComplianceReport {
	return model.ComplianceReport{
		Score:  0,
		Grade:  model.GradeF,
		Reason: model.ReasonNoParseObserved,
	}
}

func (s *Scorer) gradeFor(score float64) model.Grade {
	for _, bp := range s.cfg.Breakpoints {
		if score >= bp.Min {
			return bp.Grade
		}
	}
	return model.GradeF
}
