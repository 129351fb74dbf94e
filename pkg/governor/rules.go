package governor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/neurorail/core/pkg/contracts"
)

// Rule is one ordered gating predicate. Expr is a CEL expression over the
// variables `job_type` (string) and `ctx` (the caller-supplied context
// map); it must evaluate to bool. The first matching rule wins.
type Rule struct {
	ID     string                  `yaml:"id" json:"id"`
	Mode   contracts.ExecutionMode `yaml:"mode" json:"mode"`
	Reason string                  `yaml:"reason" json:"reason"`
	Expr   string                  `yaml:"expr" json:"expr"`
}

// DefaultRules is the baseline rule set applied when no rules file is
// configured.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:     "personal-data-rail",
			Mode:   contracts.ModeRail,
			Reason: "processing of personal data requires supervised execution (DSGVO Art. 22)",
			Expr:   `"uses_personal_data" in ctx && ctx["uses_personal_data"] == true`,
		},
		{
			ID:     "external-side-effects-rail",
			Mode:   contracts.ModeRail,
			Reason: "externally visible side effects require supervised execution",
			Expr:   `"external_side_effects" in ctx && ctx["external_side_effects"] == true`,
		},
	}
}

// LoadRulesFile reads an ordered rule list from a YAML file.
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	for i, r := range doc.Rules {
		if r.ID == "" || r.Expr == "" {
			return nil, fmt.Errorf("rule %d: id and expr are required", i)
		}
		if r.Mode != contracts.ModeDirect && r.Mode != contracts.ModeRail {
			return nil, fmt.Errorf("rule %s: unknown mode %q", r.ID, r.Mode)
		}
	}
	return doc.Rules, nil
}
