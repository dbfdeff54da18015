package engine

import "github.com/Veraticus/the-rent-must-flow/internal/model"

// Result is the outcome of classifying one transaction.
type Result struct {
	Rule      *model.MappingRule // nil when unassigned
	Levels    model.Levels
	HadRecord bool // a classification row existed before
	Changed   bool // a classification row was written
}

// RuleUpdate is a partial update of a mapping rule. Nil fields are left alone.
type RuleUpdate struct {
	Name          *string
	Levels        *model.Levels
	IsPrefixMatch *bool
	Priority      *int
}

// RuleResult reports a rule mutation and its cascade.
type RuleResult struct {
	Previous     *model.MappingRule // nil for a new rule
	Rule         model.MappingRule  // zero after a delete
	Reclassified int
	Created      bool
}
