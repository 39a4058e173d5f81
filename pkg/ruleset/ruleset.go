package ruleset

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultRules []byte

// RuleSet describes what the rewriter removes or hides. It is loaded once at
// startup and never mutated afterwards.
type RuleSet struct {
	// Selectors are CSS selectors matched as-is.
	Selectors []string `yaml:"selectors,omitempty"`
	// Keywords are matched case-insensitively against id, class and test attributes.
	Keywords []string `yaml:"keywords,omitempty"`
	// TestAttributes lists the attributes treated as test hooks, e.g. data-test.
	TestAttributes []string `yaml:"testAttributes,omitempty"`
	// ChartRoles are ARIA roles that mark an svg container as a graphic.
	ChartRoles []string `yaml:"chartRoles,omitempty"`
	// Strip lists the elements removed when hardening is on.
	Strip   []string `yaml:"strip,omitempty"`
	HideCSS []string `yaml:"hideCSS,omitempty"`
	Notice  string   `yaml:"notice,omitempty"`
}

// Default returns the embedded rule set.
func Default() (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(defaultRules, &rs); err != nil {
		return nil, fmt.Errorf("syntax error in embedded rules: %w", err)
	}
	return &rs, nil
}

// NewRuleSet loads rule files from a ';' separated list of files or
// directories. An empty list yields the embedded defaults. Fields left empty
// by the loaded files fall back to the defaults.
func NewRuleSet(rulePaths string) (*RuleSet, error) {
	def, err := Default()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rulePaths) == "" {
		return def, nil
	}

	var loaded RuleSet
	var errs []error

	for _, rulePath := range strings.Split(rulePaths, ";") {
		trimmedPath := strings.TrimSpace(rulePath)
		if trimmedPath == "" {
			continue
		}

		err := filepath.Walk(trimmedPath, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !(strings.HasSuffix(path, ".yml") || strings.HasSuffix(path, ".yaml")) {
				return nil
			}
			yamlFile, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read rules file '%s': %w", path, err)
			}
			var r RuleSet
			if err := yaml.Unmarshal(yamlFile, &r); err != nil {
				return fmt.Errorf("syntax error in rules file '%s': %w", path, err)
			}
			loaded.merge(r)
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to load rules from '%s': %w", trimmedPath, err))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("errors while loading rulesets: %v", errs)
	}

	loaded.fillFrom(def)
	return &loaded, nil
}

func (rs *RuleSet) merge(r RuleSet) {
	rs.Selectors = append(rs.Selectors, r.Selectors...)
	rs.Keywords = append(rs.Keywords, r.Keywords...)
	rs.TestAttributes = append(rs.TestAttributes, r.TestAttributes...)
	rs.ChartRoles = append(rs.ChartRoles, r.ChartRoles...)
	rs.Strip = append(rs.Strip, r.Strip...)
	rs.HideCSS = append(rs.HideCSS, r.HideCSS...)
	if r.Notice != "" {
		rs.Notice = r.Notice
	}
}

func (rs *RuleSet) fillFrom(def *RuleSet) {
	if len(rs.Selectors) == 0 {
		rs.Selectors = def.Selectors
	}
	if len(rs.Keywords) == 0 {
		rs.Keywords = def.Keywords
	}
	if len(rs.TestAttributes) == 0 {
		rs.TestAttributes = def.TestAttributes
	}
	if len(rs.ChartRoles) == 0 {
		rs.ChartRoles = def.ChartRoles
	}
	if len(rs.Strip) == 0 {
		rs.Strip = def.Strip
	}
	if len(rs.HideCSS) == 0 {
		rs.HideCSS = def.HideCSS
	}
	if rs.Notice == "" {
		rs.Notice = def.Notice
	}
}

// Count returns the number of element matchers in the set.
func (rs *RuleSet) Count() int {
	return len(rs.Selectors) + len(rs.Keywords)
}

// YAML renders the rule set for the /ruleset endpoint.
func (rs *RuleSet) YAML() ([]byte, error) {
	return yaml.Marshal(rs)
}
