package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultAccessRules is the built-in protected-route table used when no rules
// file is configured.
func DefaultAccessRules() []AccessRule {
	return []AccessRule{
		{Pattern: "/api/student/*", Roles: []Role{RoleStudent, RoleTeacher, RoleAdmin}},
		{Pattern: "/api/teacher/*", Roles: []Role{RoleTeacher, RoleAdmin}},
		{Pattern: "/api/admin/*", Roles: []Role{RoleAdmin}},
	}
}

type ruleEntry struct {
	Pattern string   `yaml:"pattern"`
	Roles   []string `yaml:"roles"`
}

type rulesFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

// LoadAccessRules reads access rules from a YAML file:
//
//	rules:
//	  - pattern: /api/student/*
//	    roles: [student, teacher, admin]
//
// Role names are parsed case-insensitively. Pattern validation happens later
// in NewAccessPolicy.
func LoadAccessRules(path string) ([]AccessRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read access rules %s: %w", path, err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse access rules %s: %w", path, err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("access rules %s: no rules defined", path)
	}

	rules := make([]AccessRule, 0, len(f.Rules))
	for _, entry := range f.Rules {
		rule := AccessRule{Pattern: entry.Pattern}
		for _, raw := range entry.Roles {
			role, ok := ParseRole(raw)
			if !ok {
				return nil, fmt.Errorf("access rule %q: unknown role %q", entry.Pattern, raw)
			}
			rule.Roles = append(rule.Roles, role)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
