// Package combinations manages the per-property whitelist of classification triples.
package combinations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
	"github.com/Veraticus/the-rent-must-flow/internal/pattern"
	"github.com/Veraticus/the-rent-must-flow/internal/service"
)

// Registry is the single source of truth for which triples a property may use.
type Registry struct {
	store        service.Storage
	recalculator service.AmortizationRecalculator
}

// NewRegistry creates a registry backed by store.
func NewRegistry(store service.Storage) *Registry {
	return &Registry{store: store}
}

// WithRecalculator makes Reset rebuild schedules of the transactions it unassigns.
func (r *Registry) WithRecalculator(recalculator service.AmortizationRecalculator) *Registry {
	r.recalculator = recalculator
	return r
}

// IsValidLevel3 reports whether level3 is unset or one of the fixed values.
func IsValidLevel3(level3 model.Level3) bool {
	return level3.IsValid()
}

// IsValidLevel3 reports whether level3 is unset or one of the fixed values.
func (r *Registry) IsValidLevel3(level3 model.Level3) bool {
	return IsValidLevel3(level3)
}

// IsAllowed reports whether the exact triple is whitelisted for the property.
// An unset level 3 only matches entries without a level 3.
func (r *Registry) IsAllowed(ctx context.Context, propertyID int64, levels model.Levels) (bool, error) {
	return r.store.IsCombinationAllowed(ctx, propertyID, levels.Normalize())
}

// Validate returns a user-facing error naming the check the triple fails.
func (r *Registry) Validate(ctx context.Context, propertyID int64, levels model.Levels) error {
	return validateWith(ctx, r.store, propertyID, levels)
}

func validateWith(ctx context.Context, store service.CombinationStore, propertyID int64, levels model.Levels) error {
	levels = levels.Normalize()
	if err := checkShape(levels); err != nil {
		return err
	}

	allowed, err := store.IsCombinationAllowed(ctx, propertyID, levels)
	if err != nil {
		return err
	}
	if !allowed {
		return common.NewUserError(
			fmt.Sprintf("%s is not an allowed combination for property %d", levels, propertyID),
			common.ErrInvalidCombination)
	}
	return nil
}

// ValidateIn is Validate against another store, typically an open transaction.
func ValidateIn(ctx context.Context, store service.CombinationStore, propertyID int64, levels model.Levels) error {
	return validateWith(ctx, store, propertyID, levels)
}

func checkShape(levels model.Levels) error {
	if !IsValidLevel3(levels.Level3) {
		return common.NewUserError(
			fmt.Sprintf("level 3 must be empty or one of %v", model.Level3Values),
			fmt.Errorf("%w: %q", common.ErrInvalidLevel3, levels.Level3))
	}
	if levels.Level1 == "" || levels.Level2 == "" {
		return common.NewUserError("level 1 and level 2 are required", common.ErrInvalidCombination)
	}
	return nil
}

// Add whitelists a new manual triple.
func (r *Registry) Add(ctx context.Context, propertyID int64, levels model.Levels) (*model.AllowedCombination, error) {
	levels = levels.Normalize()
	if err := checkShape(levels); err != nil {
		return nil, err
	}

	combination := &model.AllowedCombination{
		PropertyID: propertyID,
		Levels:     levels,
	}
	if err := r.store.CreateCombination(ctx, combination); err != nil {
		return nil, err
	}

	slog.Info("Added allowed combination",
		"property_id", propertyID,
		"combination", levels.String())
	return combination, nil
}

// Remove deletes a manual combination. It returns false when id does not exist
// and common.ErrProtectedEntry for hardcoded entries.
func (r *Registry) Remove(ctx context.Context, id int64) (bool, error) {
	combination, err := r.store.GetCombination(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if combination.IsHardcoded {
		return false, common.NewUserError(
			fmt.Sprintf("combination %s is hardcoded and cannot be removed", combination.Levels),
			common.ErrProtectedEntry)
	}

	if err := r.store.DeleteCombination(ctx, id); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	slog.Info("Removed allowed combination",
		"property_id", combination.PropertyID,
		"combination", combination.Levels.String())
	return true, nil
}

// Reset removes every manual combination of the property, then every rule whose
// triple is no longer allowed, and unassigns the transactions those rules classified.
func (r *Registry) Reset(ctx context.Context, propertyID int64) (service.ResetStats, error) {
	var stats service.ResetStats

	err := service.InTx(ctx, r.store, func(tx service.Storage) error {
		stats = service.ResetStats{}

		deleted, err := tx.DeleteManualCombinations(ctx, propertyID)
		if err != nil {
			return err
		}
		stats.CombinationsDeleted = deleted

		ruleSet, err := tx.GetRuleSet(ctx, propertyID)
		if err != nil {
			return err
		}

		unassigned := make(map[int64]struct{})
		for _, rule := range ruleSet.Rules() {
			allowed, err := tx.IsCombinationAllowed(ctx, propertyID, rule.Levels)
			if err != nil {
				return err
			}
			if allowed {
				continue
			}

			if err := tx.DeleteRule(ctx, rule.ID); err != nil {
				return err
			}
			stats.RulesDeleted++

			if err := r.unassignRuleTransactions(ctx, tx, rule, unassigned); err != nil {
				return err
			}
		}
		stats.TransactionsUnassigned = len(unassigned)
		return nil
	})
	if err != nil {
		return service.ResetStats{}, fmt.Errorf("failed to reset combinations: %w", err)
	}

	slog.Info("Reset allowed combinations",
		"property_id", propertyID,
		"combinations_deleted", stats.CombinationsDeleted,
		"rules_deleted", stats.RulesDeleted,
		"transactions_unassigned", stats.TransactionsUnassigned)
	return stats, nil
}

// unassignRuleTransactions clears the classification of every transaction the rule
// matches and whose current levels are the rule's.
func (r *Registry) unassignRuleTransactions(ctx context.Context, tx service.Storage, rule model.MappingRule, seen map[int64]struct{}) error {
	txns, err := tx.GetTransactionsContaining(ctx, rule.PropertyID, rule.Pattern())
	if err != nil {
		return err
	}

	for _, txn := range txns {
		if _, done := seen[txn.ID]; done {
			continue
		}
		if !pattern.Matches(txn.Name, rule.Name, rule.IsPrefixMatch) {
			continue
		}

		current, err := tx.GetClassification(ctx, txn.ID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			return err
		}
		if current.Levels != rule.Levels {
			continue
		}

		cleared := model.NewClassification(txn, model.Levels{})
		if err := tx.SaveClassification(ctx, &cleared); err != nil {
			return err
		}
		seen[txn.ID] = struct{}{}

		if r.recalculator != nil {
			if _, err := r.recalculator.RecalculateWithStore(ctx, tx, txn.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// List returns every combination of the property ordered by level 1, 2 then 3.
func (r *Registry) List(ctx context.Context, propertyID int64) ([]model.AllowedCombination, error) {
	return r.store.GetCombinations(ctx, propertyID)
}

// Selection is a partial choice of levels. Empty fields are not chosen yet.
type Selection struct {
	Level1 string
	Level2 string
	Level3 model.Level3
}

// Options lists the values still reachable for each level.
type Options struct {
	Level1 []string
	Level2 []string
	Level3 []model.Level3 // Level3None is listed when some entry has no level 3
}

// Options answers incremental selection in any direction: the values offered for a
// level are those compatible with the other levels already chosen.
func (r *Registry) Options(ctx context.Context, propertyID int64, sel Selection) (Options, error) {
	combinations, err := r.store.GetCombinations(ctx, propertyID)
	if err != nil {
		return Options{}, err
	}

	l1 := make(map[string]struct{})
	l2 := make(map[string]struct{})
	l3 := make(map[model.Level3]struct{})
	for _, c := range combinations {
		lv := c.Levels
		m1 := sel.Level1 == "" || lv.Level1 == sel.Level1
		m2 := sel.Level2 == "" || lv.Level2 == sel.Level2
		m3 := !sel.Level3.IsSet() || lv.Level3 == sel.Level3

		if m2 && m3 {
			l1[lv.Level1] = struct{}{}
		}
		if m1 && m3 {
			l2[lv.Level2] = struct{}{}
		}
		if m1 && m2 {
			l3[lv.Level3] = struct{}{}
		}
	}

	opts := Options{
		Level1: sortedKeys(l1),
		Level2: sortedKeys(l2),
	}
	// Keep the enum's display order for level 3.
	if _, ok := l3[model.Level3None]; ok {
		opts.Level3 = append(opts.Level3, model.Level3None)
	}
	for _, v := range model.Level3Values {
		if _, ok := l3[v]; ok {
			opts.Level3 = append(opts.Level3, v)
		}
	}
	return opts, nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Seed installs hardcoded combinations from a reference list. Existing manual
// entries are promoted and existing hardcoded entries are skipped. The list is
// validated before anything is written.
func (r *Registry) Seed(ctx context.Context, propertyID int64, list []model.Levels) (service.SeedStats, error) {
	normalized := make([]model.Levels, len(list))
	for i, levels := range list {
		levels = levels.Normalize()
		if err := checkShape(levels); err != nil {
			return service.SeedStats{}, fmt.Errorf("entry %d (%s): %w", i+1, levels, err)
		}
		normalized[i] = levels
	}

	var stats service.SeedStats
	err := service.InTx(ctx, r.store, func(tx service.Storage) error {
		stats = service.SeedStats{}

		existing, err := tx.GetCombinations(ctx, propertyID)
		if err != nil {
			return err
		}
		index := make(map[model.Levels]model.AllowedCombination, len(existing))
		for _, c := range existing {
			index[c.Levels] = c
		}

		for _, levels := range normalized {
			current, ok := index[levels]
			switch {
			case ok && current.IsHardcoded:
				stats.Skipped++
			case ok:
				if err := tx.SetCombinationHardcoded(ctx, current.ID, true); err != nil {
					return err
				}
				current.IsHardcoded = true
				index[levels] = current
				stats.Promoted++
			default:
				c := model.AllowedCombination{PropertyID: propertyID, Levels: levels, IsHardcoded: true}
				if err := tx.CreateCombination(ctx, &c); err != nil {
					return err
				}
				index[levels] = c
				stats.Inserted++
			}
		}
		return nil
	})
	if err != nil {
		return service.SeedStats{}, fmt.Errorf("failed to seed combinations: %w", err)
	}

	slog.Info("Seeded allowed combinations",
		"property_id", propertyID,
		"inserted", stats.Inserted,
		"promoted", stats.Promoted,
		"skipped", stats.Skipped)
	return stats, nil
}
