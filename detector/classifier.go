package detector

import (
	"errors"
	"fmt"
)

// Verdict statuses
const (
	StatusAIDetected = "AI Detected"
	StatusHuman      = "Human Voice"
)

// DefaultDecisionPoints is the point total at which a voice is called
// synthetic
const DefaultDecisionPoints = 3

// FeatureName identifies a scalar of Features in rule tables
type FeatureName string

const (
	FeatureF0Mean  FeatureName = "f0_mean"
	FeatureF0Min   FeatureName = "f0_min"
	FeatureF0Max   FeatureName = "f0_max"
	FeatureRangeF0 FeatureName = "range_f0"
	FeatureJitter  FeatureName = "jitter_local"
	FeatureHNR     FeatureName = "hnr_mean"
)

// Value returns the named feature
func (f Features) Value(name FeatureName) (float64, bool) {
	switch name {
	case FeatureF0Mean:
		return f.F0Mean, true
	case FeatureF0Min:
		return f.F0Min, true
	case FeatureF0Max:
		return f.F0Max, true
	case FeatureRangeF0:
		return f.RangeF0, true
	case FeatureJitter:
		return f.JitterLocal, true
	case FeatureHNR:
		return f.HNRMean, true
	default:
		return 0, false
	}
}

// Rule awards one point when Feature is strictly greater than Threshold
type Rule struct {
	Name      string      `json:"name" yaml:"name"`
	Feature   FeatureName `json:"feature" yaml:"feature"`
	Threshold float64     `json:"threshold" yaml:"threshold"`
}

// Fires reports whether the rule awards its point for f
func (r Rule) Fires(f Features) bool {
	v, ok := f.Value(r.Feature)
	return ok && v > r.Threshold
}

// DefaultRules returns the four threshold rules of the detector
func DefaultRules() []Rule {
	return []Rule{
		{Name: "high_pitch_ceiling", Feature: FeatureF0Max, Threshold: 300},
		{Name: "wide_pitch_range", Feature: FeatureRangeF0, Threshold: 400},
		{Name: "irregular_periods", Feature: FeatureJitter, Threshold: 45},
		{Name: "clean_voicing", Feature: FeatureHNR, Threshold: 8},
	}
}

// ClassifierConfig is the editable form of a Classifier
type ClassifierConfig struct {
	Rules          []Rule `json:"rules" yaml:"rules"`
	DecisionPoints int    `json:"decision_points" yaml:"decision_points"`
}

// DefaultClassifierConfig returns DefaultRules with a decision at 3 points
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{Rules: DefaultRules(), DecisionPoints: DefaultDecisionPoints}
}

// Validate checks that every rule names a known feature and that the
// decision threshold is reachable.
func (c ClassifierConfig) Validate() error {
	var errs []error
	if len(c.Rules) == 0 {
		errs = append(errs, errors.New("classifier needs at least one rule"))
	}
	seen := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("rule %d has no name", i))
		} else if seen[r.Name] {
			errs = append(errs, fmt.Errorf("duplicate rule name %q", r.Name))
		}
		seen[r.Name] = true
		if _, ok := (Features{}).Value(r.Feature); !ok {
			errs = append(errs, fmt.Errorf("rule %q references unknown feature %q", r.Name, r.Feature))
		}
	}
	if c.DecisionPoints < 1 || c.DecisionPoints > len(c.Rules) {
		errs = append(errs, fmt.Errorf("decision points must be between 1 and %d, got %d", len(c.Rules), c.DecisionPoints))
	}
	return errors.Join(errs...)
}

// Verdict is the classifier output
type Verdict struct {
	Status   string   `json:"status"`
	Score    float64  `json:"score"`     // AIPoints / number of rules
	AIPoints int      `json:"ai_points"` // Rules that fired
	Fired    []string `json:"fired"`     // Names of the rules that fired
}

// Classifier scores features against a rule table. It is stateless and
// safe for concurrent use.
type Classifier struct {
	rules          []Rule
	decisionPoints int
}

// NewClassifier validates cfg and builds a classifier
func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rules := make([]Rule, len(cfg.Rules))
	copy(rules, cfg.Rules)
	return &Classifier{rules: rules, decisionPoints: cfg.DecisionPoints}, nil
}

// DefaultClassifier returns the classifier built from DefaultClassifierConfig
func DefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultClassifierConfig())
	if err != nil {
		panic("detector: default classifier config is invalid: " + err.Error())
	}
	return c
}

// Rules returns a copy of the rule table
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify applies every rule to the unrounded features
func (c *Classifier) Classify(f Features) Verdict {
	v := Verdict{Status: StatusHuman, Fired: []string{}}
	for _, r := range c.rules {
		if r.Fires(f) {
			v.AIPoints++
			v.Fired = append(v.Fired, r.Name)
		}
	}
	if v.AIPoints >= c.decisionPoints {
		v.Status = StatusAIDetected
	}
	v.Score = float64(v.AIPoints) / float64(len(c.rules))
	return v
}
