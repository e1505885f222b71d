package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// DecisionAllow lets the request through to the handler.
	DecisionAllow Decision = iota
	// DecisionUnauthenticated denies a request with no valid principal (401).
	DecisionUnauthenticated
	// DecisionForbidden denies an authenticated request whose role is not in
	// the allowed set (403).
	DecisionForbidden
)

// AccessRule maps a path pattern to the roles allowed through it. A pattern
// is either an exact path or a prefix ending in "/*", which matches exactly
// one extra path segment.
type AccessRule struct {
	Pattern string
	Roles   []Role
}

// AccessPolicy is the rule table assembled once at startup and treated as
// immutable afterwards, so concurrent reads need no synchronization.
type AccessPolicy struct {
	exact    map[string]map[Role]struct{}
	wildcard map[string]map[Role]struct{} // keyed by the prefix before "/*"
}

// NewAccessPolicy validates and indexes the rules. Rules sharing a pattern
// union their role sets, so decisions do not depend on rule order.
func NewAccessPolicy(rules []AccessRule) (*AccessPolicy, error) {
	p := &AccessPolicy{
		exact:    make(map[string]map[Role]struct{}),
		wildcard: make(map[string]map[Role]struct{}),
	}
	for _, rule := range rules {
		if !strings.HasPrefix(rule.Pattern, "/") {
			return nil, fmt.Errorf("access rule pattern %q must start with /", rule.Pattern)
		}
		if len(rule.Roles) == 0 {
			return nil, fmt.Errorf("access rule %q has no roles", rule.Pattern)
		}
		target := p.exact
		key := rule.Pattern
		if prefix, ok := strings.CutSuffix(rule.Pattern, "/*"); ok {
			if prefix == "" {
				return nil, errors.New(`access rule pattern "/*" is too broad`)
			}
			target = p.wildcard
			key = prefix
		} else if strings.Contains(rule.Pattern, "*") {
			return nil, fmt.Errorf("access rule pattern %q: wildcard only allowed as trailing /*", rule.Pattern)
		}
		set := target[key]
		if set == nil {
			set = make(map[Role]struct{})
			target[key] = set
		}
		for _, role := range rule.Roles {
			if !role.IsValid() {
				return nil, fmt.Errorf("access rule %q has unknown role %q", rule.Pattern, role)
			}
			set[role] = struct{}{}
		}
	}
	return p, nil
}

// Authorize decides whether the request for path may proceed. Paths matched
// by a rule require the principal's role to be in the rule's set; unmatched
// paths require any authenticated principal.
func (p *AccessPolicy) Authorize(path string, sc SecurityContext) Decision {
	allowed, matched := p.match(path)
	if sc.Principal == nil {
		return DecisionUnauthenticated
	}
	if !matched {
		return DecisionAllow
	}
	if _, ok := allowed[sc.Principal.Role]; ok {
		return DecisionAllow
	}
	return DecisionForbidden
}

// match resolves the role set governing path. An exact rule takes precedence
// over a wildcard rule covering the same path.
func (p *AccessPolicy) match(path string) (map[Role]struct{}, bool) {
	if set, ok := p.exact[path]; ok {
		return set, true
	}
	if i := strings.LastIndex(path, "/"); i > 0 && i < len(path)-1 {
		if set, ok := p.wildcard[path[:i]]; ok {
			return set, true
		}
	}
	return nil, false
}

// Rules returns the indexed rules in a stable order, for logging at startup.
func (p *AccessPolicy) Rules() []AccessRule {
	out := make([]AccessRule, 0, len(p.exact)+len(p.wildcard))
	for pattern, set := range p.exact {
		out = append(out, AccessRule{Pattern: pattern, Roles: rolesOf(set)})
	}
	for prefix, set := range p.wildcard {
		out = append(out, AccessRule{Pattern: prefix + "/*", Roles: rolesOf(set)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern < out[j].Pattern })
	return out
}

func rolesOf(set map[Role]struct{}) []Role {
	roles := make([]Role, 0, len(set))
	for r := range set {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
