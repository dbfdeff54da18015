package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
	"github.com/Veraticus/the-rent-must-flow/internal/service"
	"github.com/Veraticus/the-rent-must-flow/internal/testutil"
	"github.com/Veraticus/the-rent-must-flow/internal/testutil/fixtures"
)

const property = testutil.DefaultProperty

func fastConfig() Config {
	return Config{Retry: service.RetryOptions{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}}
}

func levelsOf(t *testing.T, store service.Storage, txnID int64) model.Levels {
	t.Helper()
	c, err := store.GetClassification(context.Background(), txnID)
	if errors.Is(err, common.ErrNotFound) {
		return model.Levels{}
	}
	require.NoError(t, err)
	return c.Levels
}

func TestClassificationEngine_Classify(t *testing.T) {
	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.
			WithBasicCombinations().
			WithRule("PRLV SEPA EDF", fixtures.Electricity).
			WithRule("VIR STRIPE", fixtures.Rent).
			WithTransaction("PRLV SEPA EDF 0424", "-84.12", "2024-04-05").
			WithTransaction("VIR STRIPE REF998877", "950", "2024-04-01").
			WithTransaction("CB BRICO DEPOT", "-35", "2024-04-12")
	})
	eng := NewWithConfig(db.Storage, fastConfig())
	ctx := context.Background()

	t.Run("matching rule", func(t *testing.T) {
		txn := db.Fixtures.Transaction(t, "PRLV SEPA EDF 0424")
		res, err := eng.Classify(ctx, txn, nil)
		require.NoError(t, err)
		require.NotNil(t, res.Rule)
		assert.Equal(t, "PRLV SEPA EDF", res.Rule.Name)
		assert.True(t, res.Changed)
		assert.False(t, res.HadRecord)
		assert.Equal(t, fixtures.Electricity, levelsOf(t, db.Storage, txn.ID))

		c, err := db.Storage.GetClassification(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, 2024, c.Year)
		assert.Equal(t, 4, c.Month)
	})

	t.Run("idempotent", func(t *testing.T) {
		txn := db.Fixtures.Transaction(t, "PRLV SEPA EDF 0424")
		res, err := eng.Classify(ctx, txn, nil)
		require.NoError(t, err)
		assert.False(t, res.Changed)
		assert.True(t, res.HadRecord)
	})

	t.Run("no rule leaves the transaction unassigned", func(t *testing.T) {
		txn := db.Fixtures.Transaction(t, "CB BRICO DEPOT")
		res, err := eng.Classify(ctx, txn, nil)
		require.NoError(t, err)
		assert.Nil(t, res.Rule)
		assert.False(t, res.Changed)
		assert.True(t, levelsOf(t, db.Storage, txn.ID).IsEmpty())
	})

	t.Run("rules of another property are discarded", func(t *testing.T) {
		foreign, err := model.NewRuleSet(2, []model.MappingRule{{
			ID:            999,
			PropertyID:    2,
			Name:          "VIR STRIPE REF998877",
			Levels:        fixtures.Insurance,
			IsPrefixMatch: true,
		}})
		require.NoError(t, err)

		txn := db.Fixtures.Transaction(t, "VIR STRIPE REF998877")
		res, err := eng.Classify(ctx, txn, foreign)
		require.NoError(t, err)
		require.NotNil(t, res.Rule)
		assert.Equal(t, "VIR STRIPE", res.Rule.Name)
		assert.Equal(t, fixtures.Rent, levelsOf(t, db.Storage, txn.ID))
	})
}

func TestClassificationEngine_ClassifyAmbiguous(t *testing.T) {
	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.
			WithBasicCombinations().
			WithRule("ABCDEFGHIJ", fixtures.Electricity).
			WithExactRule("DEFGHIJ XY", fixtures.Insurance).
			WithClassifiedTransaction("ABCDEFGHIJ XYZ", "-10", "2024-01-01", fixtures.Rent)
	})
	eng := New(db.Storage)
	ctx := context.Background()

	txn := db.Fixtures.Transaction(t, "ABCDEFGHIJ XYZ")
	res, err := eng.Classify(ctx, txn, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Rule)
	assert.True(t, res.Changed)
	assert.True(t, levelsOf(t, db.Storage, txn.ID).IsEmpty())
}

func TestClassificationEngine_ReclassifyAll(t *testing.T) {
	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.
			WithBasicCombinations().
			WithRule("PRLV SEPA EDF", fixtures.Electricity).
			WithTransaction("PRLV SEPA EDF 0124", "-80", "2024-01-05").
			WithTransaction("PRLV SEPA EDF 0224", "-82", "2024-02-05").
			WithTransaction("CB BRICO DEPOT", "-35", "2024-02-12").
			WithClassifiedTransaction("AXA ASSURANCE PNO", "-120", "2024-03-01", fixtures.Insurance)
	})
	eng := New(db.Storage)
	ctx := context.Background()

	var calls []int
	stats, err := eng.ReclassifyAll(ctx, property, func(done, total int) {
		assert.Equal(t, 4, total)
		calls = append(calls, done)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, calls)
	assert.Equal(t, 2, stats.NewlyClassified)
	assert.Equal(t, 1, stats.Reclassified)
	// The stored Insurance row has no rule behind it any more.
	assert.Equal(t, 3, stats.Changed)

	again, err := eng.ReclassifyAll(ctx, property, nil)
	require.NoError(t, err)
	assert.Zero(t, again.Changed)
}

func TestClassificationEngine_ReclassifyAllIsAtomic(t *testing.T) {
	setup := func(t *testing.T) *testutil.TestDB {
		t.Helper()
		return testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
			return b.
				WithBasicCombinations().
				WithRule("PRLV SEPA EDF", fixtures.Electricity).
				WithTransaction("PRLV SEPA EDF 0124", "-80", "2024-01-05").
				WithTransaction("PRLV SEPA EDF 0224", "-82", "2024-02-05")
		})
	}

	t.Run("cancelled run writes nothing", func(t *testing.T) {
		db := setup(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		_, err := New(db.Storage).ReclassifyAll(ctx, property, func(done, _ int) {
			if done == 1 {
				cancel()
			}
		})
		require.ErrorIs(t, err, context.Canceled)

		for _, name := range []string{"PRLV SEPA EDF 0124", "PRLV SEPA EDF 0224"} {
			txn := db.Fixtures.Transaction(t, name)
			assert.Truef(t, levelsOf(t, db.Storage, txn.ID).IsEmpty(), "%s was classified", name)
		}
	})

	t.Run("storage failure rolls back then retries the whole run", func(t *testing.T) {
		db := setup(t)
		store := &flakyStore{Storage: db.Storage, failures: 1}

		stats, err := NewWithConfig(store, fastConfig()).ReclassifyAll(context.Background(), property, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.NewlyClassified)
		assert.Equal(t, 2, stats.Changed)
		assert.Equal(t, 3, store.attempts)

		for _, name := range []string{"PRLV SEPA EDF 0124", "PRLV SEPA EDF 0224"} {
			txn := db.Fixtures.Transaction(t, name)
			assert.Equal(t, fixtures.Electricity, levelsOf(t, db.Storage, txn.ID))
		}
	})
}

func TestClassificationEngine_CreateOrUpdateRuleFromClassification(t *testing.T) {
	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.
			WithBasicCombinations().
			WithTransaction("LOYER M DUPONT", "750", "2024-01-03").
			WithTransaction("LOYER M DUPONT", "750", "2024-02-03").
			WithTransaction("LOYER M DUPONT", "750", "2024-03-03").
			WithTransaction("LOYER MME MARTIN", "690", "2024-03-04")
	})
	eng := New(db.Storage)
	ctx := context.Background()

	t.Run("cascade classifies every transaction with that name", func(t *testing.T) {
		res, err := eng.CreateOrUpdateRuleFromClassification(ctx, "LOYER M DUPONT ", fixtures.Rent, property)
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.True(t, res.Rule.IsPrefixMatch)
		assert.Equal(t, 0, res.Rule.Priority)
		assert.Equal(t, 3, res.Reclassified)

		for _, txn := range db.Fixtures.Transactions {
			want := fixtures.Rent
			if txn.Name == "LOYER MME MARTIN" {
				want = model.Levels{}
			}
			assert.Equalf(t, want, levelsOf(t, db.Storage, txn.ID), "transaction %d %q", txn.ID, txn.Name)
		}
	})

	t.Run("existing rule is updated", func(t *testing.T) {
		res, err := eng.CreateOrUpdateRuleFromClassification(ctx, "LOYER M DUPONT", fixtures.Insurance, property)
		require.NoError(t, err)
		assert.False(t, res.Created)
		require.NotNil(t, res.Previous)
		assert.Equal(t, fixtures.Rent, res.Previous.Levels)
		assert.Equal(t, 3, res.Reclassified)

		ruleSet, err := db.Storage.GetRuleSet(ctx, property)
		require.NoError(t, err)
		assert.Equal(t, 1, ruleSet.Len())
	})

	t.Run("combination outside the whitelist", func(t *testing.T) {
		_, err := eng.CreateOrUpdateRuleFromClassification(ctx, "LOYER MME MARTIN",
			model.Levels{Level1: "Loyer", Level2: "Charges"}, property)
		assert.ErrorIs(t, err, common.ErrInvalidCombination)
		assert.True(t, common.IsUserFacing(err))

		_, err = db.Storage.GetRuleByName(ctx, property, "LOYER MME MARTIN")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("invalid level 3", func(t *testing.T) {
		_, err := eng.CreateOrUpdateRuleFromClassification(ctx, "LOYER MME MARTIN",
			model.Levels{Level1: "Loyer", Level2: "Revenus", Level3: "Recettes"}, property)
		assert.ErrorIs(t, err, common.ErrInvalidLevel3)
	})

	t.Run("whitelist of another property does not count", func(t *testing.T) {
		_, err := eng.CreateOrUpdateRuleFromClassification(ctx, "LOYER MME MARTIN", fixtures.Rent, 2)
		assert.ErrorIs(t, err, common.ErrInvalidCombination)
	})
}

func TestClassificationEngine_UpdateRule(t *testing.T) {
	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.
			WithBasicCombinations().
			WithRule("PRLV SEPA EDF", fixtures.Electricity).
			WithRule("AXA ASSURANCE PNO", fixtures.Insurance).
			WithClassifiedTransaction("PRLV SEPA EDF 0124", "-80", "2024-01-05", fixtures.Electricity).
			WithTransaction("PRLV SEPA ENGIE 0124", "-60", "2024-01-06")
	})
	eng := New(db.Storage)
	ctx := context.Background()
	rule := db.Fixtures.Rule(t, "PRLV SEPA EDF")
	edf := db.Fixtures.Transaction(t, "PRLV SEPA EDF 0124")
	engie := db.Fixtures.Transaction(t, "PRLV SEPA ENGIE 0124")

	t.Run("rename cascades over old and new matches", func(t *testing.T) {
		name := "PRLV SEPA ENGIE"
		res, err := eng.UpdateRule(ctx, rule.ID, RuleUpdate{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "PRLV SEPA EDF", res.Previous.Name)
		assert.Equal(t, 2, res.Reclassified)

		assert.True(t, levelsOf(t, db.Storage, edf.ID).IsEmpty())
		assert.Equal(t, fixtures.Electricity, levelsOf(t, db.Storage, engie.ID))
	})

	t.Run("levels change", func(t *testing.T) {
		levels := fixtures.Insurance
		res, err := eng.UpdateRule(ctx, rule.ID, RuleUpdate{Levels: &levels})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Reclassified)
		assert.Equal(t, fixtures.Insurance, levelsOf(t, db.Storage, engie.ID))
	})

	t.Run("rename onto an existing rule", func(t *testing.T) {
		name := "AXA ASSURANCE PNO"
		_, err := eng.UpdateRule(ctx, rule.ID, RuleUpdate{Name: &name})
		assert.ErrorIs(t, err, common.ErrDuplicateEntry)
	})

	t.Run("levels outside the whitelist", func(t *testing.T) {
		levels := model.Levels{Level1: "Inconnu", Level2: "Charges"}
		_, err := eng.UpdateRule(ctx, rule.ID, RuleUpdate{Levels: &levels})
		assert.ErrorIs(t, err, common.ErrInvalidCombination)

		got, err := db.Storage.GetRule(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, fixtures.Insurance, got.Levels)
	})

	t.Run("priority and prefix flag", func(t *testing.T) {
		prio, prefix := 5, false
		_, err := eng.UpdateRule(ctx, rule.ID, RuleUpdate{Priority: &prio, IsPrefixMatch: &prefix})
		require.NoError(t, err)

		got, err := db.Storage.GetRule(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, got.Priority)
		assert.False(t, got.IsPrefixMatch)
	})

	t.Run("unknown rule", func(t *testing.T) {
		_, err := eng.UpdateRule(ctx, 4242, RuleUpdate{})
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestClassificationEngine_DeleteRule(t *testing.T) {
	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.
			WithBasicCombinations().
			WithRule("PRLV SEPA", fixtures.Insurance).
			WithRule("PRLV SEPA EDF", fixtures.Electricity).
			WithClassifiedTransaction("PRLV SEPA EDF 0124", "-80", "2024-01-05", fixtures.Electricity).
			WithClassifiedTransaction("PRLV SEPA EDF 0224", "-80", "2024-02-05", fixtures.Electricity)
	})
	eng := New(db.Storage)
	ctx := context.Background()

	// The shorter PRLV SEPA rule takes over once the specific one is gone.
	res, err := eng.DeleteRule(ctx, db.Fixtures.Rule(t, "PRLV SEPA EDF").ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Reclassified)
	for _, txn := range db.Fixtures.Transactions {
		assert.Equal(t, fixtures.Insurance, levelsOf(t, db.Storage, txn.ID))
	}

	res, err = eng.DeleteRule(ctx, db.Fixtures.Rule(t, "PRLV SEPA").ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Reclassified)
	for _, txn := range db.Fixtures.Transactions {
		assert.True(t, levelsOf(t, db.Storage, txn.ID).IsEmpty())
	}

	_, err = eng.DeleteRule(ctx, 4242)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestClassificationEngine_SetManualClassification(t *testing.T) {
	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.
			WithBasicCombinations().
			WithTransaction("CB BRICO DEPOT", "-35", "2024-02-12")
	})
	eng := New(db.Storage)
	ctx := context.Background()
	txn := db.Fixtures.Transaction(t, "CB BRICO DEPOT")

	c, err := eng.SetManualClassification(ctx, txn.ID, fixtures.Roof)
	require.NoError(t, err)
	assert.Equal(t, fixtures.Roof, c.Levels)
	assert.Equal(t, fixtures.Roof, levelsOf(t, db.Storage, txn.ID))

	_, err = eng.SetManualClassification(ctx, txn.ID, model.Levels{Level1: "Bricolage", Level2: "Charges"})
	assert.ErrorIs(t, err, common.ErrInvalidCombination)
	assert.Equal(t, fixtures.Roof, levelsOf(t, db.Storage, txn.ID))

	_, err = eng.SetManualClassification(ctx, txn.ID, model.Levels{})
	require.NoError(t, err)
	assert.True(t, levelsOf(t, db.Storage, txn.ID).IsEmpty())

	_, err = eng.SetManualClassification(ctx, 4242, fixtures.Roof)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestClassificationEngine_IngestAndUpdate(t *testing.T) {
	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.
			WithBasicCombinations().
			WithRule("VIR STRIPE", fixtures.Rent).
			WithRule("PRLV SEPA EDF", fixtures.Electricity)
	})
	eng := New(db.Storage)
	ctx := context.Background()

	txn := &model.Transaction{
		PropertyID: property,
		Name:       "VIR STRIPE REF42",
		Amount:     decimal.NewFromInt(950),
		Date:       time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
	}
	res, err := eng.Ingest(ctx, txn)
	require.NoError(t, err)
	assert.NotZero(t, txn.ID)
	assert.Equal(t, fixtures.Rent, res.Levels)

	txn.Name = "PRLV SEPA EDF 0524"
	txn.Date = time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	res, err = eng.UpdateTransaction(ctx, txn)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, fixtures.Electricity, levelsOf(t, db.Storage, txn.ID))

	c, err := db.Storage.GetClassification(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, c.Month)
}

// flakyStore fails SaveClassification inside transactions a set number of times.
type flakyStore struct {
	service.Storage
	failures int
	attempts int
}

func (f *flakyStore) BeginTx(ctx context.Context) (service.Transaction, error) {
	tx, err := f.Storage.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &flakyTx{Transaction: tx, parent: f}, nil
}

type flakyTx struct {
	service.Transaction
	parent *flakyStore
}

func (t *flakyTx) SaveClassification(ctx context.Context, c *model.Classification) error {
	t.parent.attempts++
	if t.parent.failures > 0 {
		t.parent.failures--
		return errors.New("database is locked")
	}
	return t.Transaction.SaveClassification(ctx, c)
}

func TestClassificationEngine_RetriesStorageFailures(t *testing.T) {
	setup := func(t *testing.T, failures int) (*flakyStore, model.Transaction) {
		t.Helper()
		db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
			return b.
				WithBasicCombinations().
				WithRule("VIR STRIPE", fixtures.Rent).
				WithTransaction("VIR STRIPE REF1", "950", "2024-01-02")
		})
		return &flakyStore{Storage: db.Storage, failures: failures}, db.Fixtures.Transaction(t, "VIR STRIPE REF1")
	}
	ctx := context.Background()

	t.Run("one failure is retried", func(t *testing.T) {
		store, txn := setup(t, 1)
		res, err := NewWithConfig(store, fastConfig()).Classify(ctx, txn, nil)
		require.NoError(t, err)
		assert.True(t, res.Changed)
		assert.Equal(t, 2, store.attempts)
		assert.Equal(t, fixtures.Rent, levelsOf(t, store, txn.ID))
	})

	t.Run("second failure is surfaced", func(t *testing.T) {
		store, txn := setup(t, 2)
		_, err := NewWithConfig(store, fastConfig()).Classify(ctx, txn, nil)
		assert.ErrorIs(t, err, common.ErrMaxRetries)
		assert.Equal(t, 2, store.attempts)
		assert.True(t, levelsOf(t, store, txn.ID).IsEmpty())
	})
}

type countingRecalculator struct {
	calls map[int64]int
}

func (r *countingRecalculator) RecalculateWithStore(_ context.Context, store service.Storage, transactionID int64) (int, error) {
	if _, ok := store.(service.Transaction); !ok {
		return 0, errors.New("recalculation outside a transaction")
	}
	r.calls[transactionID]++
	return 0, nil
}

func TestClassificationEngine_TriggersAmortization(t *testing.T) {
	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.
			WithBasicCombinations().
			WithTransaction("TRAVAUX TOITURE", "-20000", "2022-01-01")
	})
	recalc := &countingRecalculator{calls: make(map[int64]int)}
	eng := New(db.Storage).WithRecalculator(recalc)
	ctx := context.Background()
	txn := db.Fixtures.Transaction(t, "TRAVAUX TOITURE")

	_, err := eng.SetManualClassification(ctx, txn.ID, fixtures.Roof)
	require.NoError(t, err)
	assert.Equal(t, 1, recalc.calls[txn.ID])

	_, err = eng.CreateOrUpdateRuleFromClassification(ctx, "TRAVAUX TOITURE", fixtures.Roof, property)
	require.NoError(t, err)
	// Same levels as the manual ones: nothing to rebuild.
	assert.Equal(t, 1, recalc.calls[txn.ID])

	txn.Amount = decimal.NewFromInt(-24000)
	_, err = eng.UpdateTransaction(ctx, &txn)
	require.NoError(t, err)
	assert.Equal(t, 2, recalc.calls[txn.ID])
}
