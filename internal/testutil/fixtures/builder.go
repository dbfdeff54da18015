// Package fixtures provides a fluent API for seeding bookkeeping test data:
// allowed combinations, mapping rules, transactions and amortization types.
//
// Example usage:
//
//	set := fixtures.NewBuilder(t, 1).
//		WithBasicCombinations().
//		WithRule("PRLV SEPA EDF", fixtures.Electricity).
//		WithTransaction("PRLV SEPA EDF 0424", "-84.12", "2024-04-05").
//		MustBuild(ctx, store)
package fixtures

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-rent-must-flow/internal/model"
	"github.com/Veraticus/the-rent-must-flow/internal/service"
)

// Builder accumulates fixtures for one property and writes them in Build.
type Builder interface {
	// WithCombination whitelists a manual triple.
	WithCombination(levels model.Levels) Builder

	// WithHardcodedCombination whitelists a protected triple.
	WithHardcodedCombination(levels model.Levels) Builder

	// WithBasicCombinations whitelists the common triples below as manual entries.
	WithBasicCombinations() Builder

	// WithRule adds a prefix-matching rule.
	WithRule(name string, levels model.Levels) Builder

	// WithExactRule adds a rule with prefix matching disabled.
	WithExactRule(name string, levels model.Levels) Builder

	// WithTransaction adds an unclassified transaction. Amount and date are parsed
	// with decimal.RequireFromString and the YYYY-MM-DD layout.
	WithTransaction(name, amount, date string) Builder

	// WithClassifiedTransaction adds a transaction with a stored classification.
	WithClassifiedTransaction(name, amount, date string, levels model.Levels) Builder

	// WithAmortizationType adds a depreciation type.
	WithAmortizationType(amortType model.AmortizationType) Builder

	// Build writes everything to storage and returns the stored rows with their IDs.
	Build(ctx context.Context, storage service.Storage) (*Set, error)

	// MustBuild is Build that fails the test on error.
	MustBuild(ctx context.Context, storage service.Storage) *Set
}

// Common triples used across tests.
var (
	Rent        = model.Levels{Level1: "Loyer", Level2: "Revenus", Level3: model.Level3Produits}
	Electricity = model.Levels{Level1: "Electricite", Level2: "Charges", Level3: model.Level3ChargesDeductibles}
	Insurance   = model.Levels{Level1: "Assurance PNO", Level2: "Charges", Level3: model.Level3ChargesDeductibles}
	Roof        = model.Levels{Level1: "Toiture", Level2: "Immobilisations", Level3: model.Level3Actif}
	Loan        = model.Levels{Level1: "Pret immobilier", Level2: "Emprunt"}
)

// Set is the stored result of a Build.
type Set struct {
	Combinations      []model.AllowedCombination
	Rules             []model.MappingRule
	Transactions      []model.Transaction
	AmortizationTypes []model.AmortizationType
}

// Transaction returns the stored transaction with the given label or fails the test.
func (s *Set) Transaction(t *testing.T, name string) model.Transaction {
	t.Helper()
	for _, txn := range s.Transactions {
		if txn.Name == name {
			return txn
		}
	}
	t.Fatalf("transaction %q not found in fixtures", name)
	return model.Transaction{}
}

// Rule returns the stored rule with the given name or fails the test.
func (s *Set) Rule(t *testing.T, name string) model.MappingRule {
	t.Helper()
	for _, r := range s.Rules {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("rule %q not found in fixtures", name)
	return model.MappingRule{}
}

type pendingTransaction struct {
	levels model.Levels
	name   string
	amount string
	date   string
}

type builder struct {
	t                 *testing.T
	combinations      []model.AllowedCombination
	rules             []model.MappingRule
	transactions      []pendingTransaction
	amortizationTypes []model.AmortizationType
	propertyID        int64
}

// NewBuilder creates a builder for the given property.
func NewBuilder(t *testing.T, propertyID int64) Builder {
	t.Helper()
	return &builder{t: t, propertyID: propertyID}
}

func (b *builder) WithCombination(levels model.Levels) Builder {
	b.combinations = append(b.combinations, model.AllowedCombination{PropertyID: b.propertyID, Levels: levels})
	return b
}

func (b *builder) WithHardcodedCombination(levels model.Levels) Builder {
	b.combinations = append(b.combinations, model.AllowedCombination{PropertyID: b.propertyID, Levels: levels, IsHardcoded: true})
	return b
}

func (b *builder) WithBasicCombinations() Builder {
	for _, levels := range []model.Levels{Rent, Electricity, Insurance, Roof, Loan} {
		b.WithCombination(levels)
	}
	return b
}

func (b *builder) WithRule(name string, levels model.Levels) Builder {
	b.rules = append(b.rules, model.MappingRule{PropertyID: b.propertyID, Name: name, Levels: levels, IsPrefixMatch: true})
	return b
}

func (b *builder) WithExactRule(name string, levels model.Levels) Builder {
	b.rules = append(b.rules, model.MappingRule{PropertyID: b.propertyID, Name: name, Levels: levels})
	return b
}

func (b *builder) WithTransaction(name, amount, date string) Builder {
	b.transactions = append(b.transactions, pendingTransaction{name: name, amount: amount, date: date})
	return b
}

func (b *builder) WithClassifiedTransaction(name, amount, date string, levels model.Levels) Builder {
	b.transactions = append(b.transactions, pendingTransaction{name: name, amount: amount, date: date, levels: levels})
	return b
}

func (b *builder) WithAmortizationType(amortType model.AmortizationType) Builder {
	amortType.PropertyID = b.propertyID
	b.amortizationTypes = append(b.amortizationTypes, amortType)
	return b
}

func (b *builder) Build(ctx context.Context, storage service.Storage) (*Set, error) {
	set := &Set{}

	for _, c := range b.combinations {
		if err := storage.CreateCombination(ctx, &c); err != nil {
			return nil, fmt.Errorf("failed to seed combination %s: %w", c.Levels, err)
		}
		set.Combinations = append(set.Combinations, c)
	}

	for _, r := range b.rules {
		if err := storage.CreateRule(ctx, &r); err != nil {
			return nil, fmt.Errorf("failed to seed rule %q: %w", r.Name, err)
		}
		set.Rules = append(set.Rules, r)
	}

	for _, a := range b.amortizationTypes {
		if err := storage.CreateAmortizationType(ctx, &a); err != nil {
			return nil, fmt.Errorf("failed to seed amortization type %q: %w", a.Name, err)
		}
		set.AmortizationTypes = append(set.AmortizationTypes, a)
	}

	for _, p := range b.transactions {
		date, err := model.ParseDate(p.date)
		if err != nil {
			return nil, fmt.Errorf("invalid fixture date %q: %w", p.date, err)
		}
		amount, err := decimal.NewFromString(p.amount)
		if err != nil {
			return nil, fmt.Errorf("invalid fixture amount %q: %w", p.amount, err)
		}

		txn := model.Transaction{PropertyID: b.propertyID, Name: p.name, Amount: amount, Date: date}
		if err := storage.SaveTransaction(ctx, &txn); err != nil {
			return nil, fmt.Errorf("failed to seed transaction %q: %w", p.name, err)
		}
		if !p.levels.IsEmpty() {
			c := model.NewClassification(txn, p.levels)
			if err := storage.SaveClassification(ctx, &c); err != nil {
				return nil, fmt.Errorf("failed to seed classification of %q: %w", p.name, err)
			}
		}
		set.Transactions = append(set.Transactions, txn)
	}

	return set, nil
}

func (b *builder) MustBuild(ctx context.Context, storage service.Storage) *Set {
	b.t.Helper()
	set, err := b.Build(ctx, storage)
	if err != nil {
		b.t.Fatalf("failed to build fixtures: %v", err)
	}
	return set
}
