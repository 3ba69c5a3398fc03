// Package batch runs many solver configurations over many instances on a bounded worker
// pool and reports one CSV row per run.
package batch

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"topsolver/internal/opt"
)

// Algo is one solver run applied to every matching instance.
type Algo struct {
	Type    string      `yaml:"type" json:"type"`
	Descr   string      `yaml:"descr" json:"descr"`
	Options opt.Options `yaml:"options" json:"options"`
}

// Action pairs an instance-name pattern with the runs to apply.
type Action struct {
	Names string `yaml:"names" json:"names"`
	Algos []Algo `yaml:"algos" json:"algos"`

	re *regexp.Regexp
}

// Match reports whether name matches the whole pattern.
func (a *Action) Match(name string) bool { return a.re.MatchString(name) }

type Plan []Action

// ParsePlan decodes a YAML plan; JSON plans parse as well.
func ParsePlan(data []byte) (Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	for i := range p {
		a := &p[i]
		if strings.TrimSpace(a.Names) == "" {
			a.Names = ".*"
		}
		re, err := regexp.Compile("^(?:" + a.Names + ")$")
		if err != nil {
			return nil, fmt.Errorf("plan action %d: names: %w", i, err)
		}
		a.re = re
		if len(a.Algos) == 0 {
			return nil, fmt.Errorf("plan action %d: no algos", i)
		}
		for j, al := range a.Algos {
			if _, err := opt.Lookup(al.Type); err != nil {
				return nil, fmt.Errorf("plan action %d algo %d: %w", i, j, err)
			}
			if al.Options == nil {
				a.Algos[j].Options = opt.Options{}
			}
		}
	}
	return p, nil
}

func LoadPlan(path string) (Plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePlan(b)
}
