package model

import (
	"fmt"
	"strings"
	"time"
)

// MappingRule assigns a classification to every transaction whose label matches Name.
type MappingRule struct {
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Name          string    `json:"name"`
	Levels        Levels    `json:"levels"`
	ID            int64     `json:"id"`
	PropertyID    int64     `json:"property_id"`
	Priority      int       `json:"priority"`
	IsPrefixMatch bool      `json:"is_prefix_match"`
}

// Pattern returns the rule name as used for matching.
func (r *MappingRule) Pattern() string {
	return strings.TrimSpace(r.Name)
}

// RuleSet is the complete rule list of exactly one property.
// It cannot hold a rule belonging to another property.
type RuleSet struct {
	rules      []MappingRule
	propertyID int64
}

// NewRuleSet builds the rule set of propertyID. It fails if any rule belongs elsewhere.
func NewRuleSet(propertyID int64, rules []MappingRule) (*RuleSet, error) {
	for _, r := range rules {
		if r.PropertyID != propertyID {
			return nil, fmt.Errorf("rule %q belongs to property %d, not %d", r.Name, r.PropertyID, propertyID)
		}
	}
	copied := make([]MappingRule, len(rules))
	copy(copied, rules)
	return &RuleSet{propertyID: propertyID, rules: copied}, nil
}

// PropertyID returns the property every rule of the set belongs to.
func (s *RuleSet) PropertyID() int64 {
	return s.propertyID
}

// Rules returns a copy of the rules.
func (s *RuleSet) Rules() []MappingRule {
	out := make([]MappingRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Len returns the number of rules.
func (s *RuleSet) Len() int {
	return len(s.rules)
}
