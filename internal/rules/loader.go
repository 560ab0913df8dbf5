package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dativo-io/safeops/internal/violation"
)

// fileRule is one entry of a rules YAML file.
type fileRule struct {
	Action    string `yaml:"action"`
	NotifyNow *bool  `yaml:"notify_now"`
}

// rulesFile is the on-disk rule table format:
//
//	rules:
//	  missing-head-protection:
//	    action: "Send alert to site supervisor: Worker without helmet."
//	    notify_now: true
type rulesFile struct {
	Rules map[string]fileRule `yaml:"rules"`
}

// LoadTable reads a rules YAML file and overlays it on DefaultTable.
// Keys may be canonical kinds or legacy detector tags. An omitted notify_now
// keeps the default; unknown keys are rejected so typos surface early.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file %s: %w", path, err)
	}
	return ParseTable(data)
}

// ParseTable parses rules YAML and overlays it on DefaultTable.
func ParseTable(data []byte) (Table, error) {
	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rules YAML: %w", err)
	}

	table := DefaultTable()
	for key, fr := range rf.Rules {
		kind, known := violation.Kind(key).Canonical()
		if !known {
			return nil, fmt.Errorf("rules: unknown violation kind %q", key)
		}
		rule := table[kind]
		if action := strings.TrimSpace(fr.Action); action != "" {
			rule.Action = action
		}
		if fr.NotifyNow != nil {
			rule.NotifyNow = *fr.NotifyNow
		}
		if rule.Action == "" {
			return nil, fmt.Errorf("rules: %s has no action text", kind)
		}
		table[kind] = rule
	}
	return table, nil
}
