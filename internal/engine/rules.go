package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/the-rent-must-flow/internal/combinations"
	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
	"github.com/Veraticus/the-rent-must-flow/internal/pattern"
	"github.com/Veraticus/the-rent-must-flow/internal/service"
)

// CreateOrUpdateRuleFromClassification makes name the rule for the given levels.
// The levels must be an allowed combination of the property. Every transaction the
// rule matches is reclassified in the same storage transaction.
func (e *ClassificationEngine) CreateOrUpdateRuleFromClassification(ctx context.Context, name string, levels model.Levels, propertyID int64) (*RuleResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, common.NewUserError("rule name cannot be empty", nil)
	}
	levels = levels.Normalize()

	var result *RuleResult
	err := service.InTx(ctx, e.storage, func(tx service.Storage) error {
		if err := combinations.ValidateIn(ctx, tx, propertyID, levels); err != nil {
			return err
		}

		rule, err := tx.GetRuleByName(ctx, propertyID, name)
		switch {
		case errors.Is(err, common.ErrNotFound):
			rule = &model.MappingRule{
				PropertyID:    propertyID,
				Name:          name,
				Levels:        levels,
				IsPrefixMatch: true,
			}
			if err := tx.CreateRule(ctx, rule); err != nil {
				return err
			}
			result = &RuleResult{Rule: *rule, Created: true}
		case err != nil:
			return err
		default:
			previous := *rule
			rule.Levels = levels
			if err := tx.UpdateRule(ctx, rule); err != nil {
				return err
			}
			result = &RuleResult{Rule: *rule, Previous: &previous}
		}

		n, err := e.cascade(ctx, tx, propertyID, rulePattern(result.Rule))
		if err != nil {
			return err
		}
		result.Reclassified = n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save rule %q: %w", name, err)
	}

	slog.Info("Mapping rule saved",
		"rule", name,
		"property_id", propertyID,
		"created", result.Created,
		"levels", levels.String(),
		"reclassified", result.Reclassified)
	return result, nil
}

// UpdateRule applies a partial update to a rule and reclassifies every transaction
// matched by its old or new form.
func (e *ClassificationEngine) UpdateRule(ctx context.Context, ruleID int64, update RuleUpdate) (*RuleResult, error) {
	var result *RuleResult
	err := service.InTx(ctx, e.storage, func(tx service.Storage) error {
		existing, err := tx.GetRule(ctx, ruleID)
		if err != nil {
			return err
		}
		previous := *existing
		rule := *existing

		if update.Name != nil {
			name := strings.TrimSpace(*update.Name)
			if name == "" {
				return common.NewUserError("rule name cannot be empty", nil)
			}
			if name != previous.Name {
				other, err := tx.GetRuleByName(ctx, rule.PropertyID, name)
				switch {
				case errors.Is(err, common.ErrNotFound):
				case err != nil:
					return err
				default:
					return common.NewUserError(
						fmt.Sprintf("rule %q already exists (id %d)", name, other.ID),
						common.ErrDuplicateEntry)
				}
			}
			rule.Name = name
		}
		if update.Levels != nil {
			levels := update.Levels.Normalize()
			if err := combinations.ValidateIn(ctx, tx, rule.PropertyID, levels); err != nil {
				return err
			}
			rule.Levels = levels
		}
		if update.IsPrefixMatch != nil {
			rule.IsPrefixMatch = *update.IsPrefixMatch
		}
		if update.Priority != nil {
			rule.Priority = *update.Priority
		}

		if err := tx.UpdateRule(ctx, &rule); err != nil {
			return err
		}

		n, err := e.cascade(ctx, tx, rule.PropertyID, rulePattern(previous), rulePattern(rule))
		if err != nil {
			return err
		}
		result = &RuleResult{Rule: rule, Previous: &previous, Reclassified: n}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update rule %d: %w", ruleID, err)
	}

	slog.Info("Mapping rule updated",
		"rule_id", ruleID,
		"rule", result.Rule.Name,
		"property_id", result.Rule.PropertyID,
		"reclassified", result.Reclassified)
	return result, nil
}

// DeleteRule removes a rule and reclassifies the transactions it used to match.
func (e *ClassificationEngine) DeleteRule(ctx context.Context, ruleID int64) (*RuleResult, error) {
	var result *RuleResult
	err := service.InTx(ctx, e.storage, func(tx service.Storage) error {
		rule, err := tx.GetRule(ctx, ruleID)
		if err != nil {
			return err
		}
		if err := tx.DeleteRule(ctx, ruleID); err != nil {
			return err
		}

		n, err := e.cascade(ctx, tx, rule.PropertyID, rulePattern(*rule))
		if err != nil {
			return err
		}
		result = &RuleResult{Previous: rule, Reclassified: n}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete rule %d: %w", ruleID, err)
	}

	slog.Info("Mapping rule deleted",
		"rule_id", ruleID,
		"rule", result.Previous.Name,
		"property_id", result.Previous.PropertyID,
		"reclassified", result.Reclassified)
	return result, nil
}

type matchPattern struct {
	name          string
	isPrefixMatch bool
}

func rulePattern(rule model.MappingRule) matchPattern {
	return matchPattern{name: rule.Pattern(), isPrefixMatch: rule.IsPrefixMatch}
}

// cascade reclassifies, against the property's current rules, every transaction
// whose label matches one of the patterns. It returns the number of rows changed.
func (e *ClassificationEngine) cascade(ctx context.Context, tx service.Storage, propertyID int64, patterns ...matchPattern) (int, error) {
	seen := make(map[int64]struct{})
	var affected []model.Transaction
	for _, p := range patterns {
		// Every match case needs the pattern inside the label, so the
		// substring query never misses a candidate.
		txns, err := tx.GetTransactionsContaining(ctx, propertyID, p.name)
		if err != nil {
			return 0, err
		}
		for _, txn := range txns {
			if _, ok := seen[txn.ID]; ok {
				continue
			}
			if !pattern.Matches(txn.Name, p.name, p.isPrefixMatch) {
				continue
			}
			seen[txn.ID] = struct{}{}
			affected = append(affected, txn)
		}
	}
	if len(affected) == 0 {
		return 0, nil
	}

	rules, err := tx.GetRuleSet(ctx, propertyID)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, txn := range affected {
		result, err := e.classifyIn(ctx, tx, txn, rules, false)
		if err != nil {
			return 0, err
		}
		if result.Changed {
			changed++
		}
	}

	slog.Debug("Cascade reclassification",
		"property_id", propertyID,
		"matched", len(affected),
		"changed", changed)
	return changed, nil
}
