package dlp

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Rule describes one raw-identifier pattern that must never appear in
// anonymized output.
type Rule struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Pattern  string `yaml:"pattern" json:"pattern"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Severity string `yaml:"severity" json:"severity"`
}

type RulesConfig struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

// LoadRules reads leak-detection rules from a YAML file, or returns the
// defaults when no path is configured.
func LoadRules(path string) (RulesConfig, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultRules(), err
	}

	var cfg RulesConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return RulesConfig{}, err
	}
	if len(cfg.Rules) == 0 {
		return RulesConfig{}, errors.New("no leak-detection rules configured")
	}
	return cfg, nil
}

// DefaultRules covers the identifier formats seen in UK hospital exports.
func DefaultRules() RulesConfig {
	return RulesConfig{Rules: []Rule{
		{Name: "NHS number", Type: "nhs_number", Pattern: `\b\d{3}[ -]\d{3}[ -]\d{4}\b`, Enabled: true, Severity: "high"},
		{Name: "Hospital number", Type: "hospital_number", Pattern: `\b[A-Z]{1,3}\d{6,8}\b`, Enabled: true, Severity: "high"},
		{Name: "Email", Type: "email", Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`, Enabled: true, Severity: "medium"},
		{Name: "Phone", Type: "phone", Pattern: `\b0\d{3}[ -]?\d{3}[ -]?\d{4}\b`, Enabled: true, Severity: "medium"},
	}}
}
