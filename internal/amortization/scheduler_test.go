package amortization

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/engine"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
	"github.com/Veraticus/the-rent-must-flow/internal/testutil"
	"github.com/Veraticus/the-rent-must-flow/internal/testutil/fixtures"
)

var roofType = model.AmortizationType{
	Name:          "Travaux toiture",
	Level2Value:   "Immobilisations",
	Level1Values:  []string{"Toiture", "Charpente"},
	DurationYears: 20,
}

func setupSchedulerDB(t *testing.T) *testutil.TestDB {
	t.Helper()
	return testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.
			WithBasicCombinations().
			WithAmortizationType(roofType).
			WithClassifiedTransaction("VIR COUVREUR DUPONT", "-200000", "2021-03-15", fixtures.Roof).
			WithClassifiedTransaction("PRLV SEPA EDF 0321", "-84.12", "2021-03-20", fixtures.Electricity).
			WithTransaction("CB BRICO DEPOT", "-35", "2021-04-02")
	})
}

func TestScheduler_RecalculateForTransaction(t *testing.T) {
	db := setupSchedulerDB(t)
	scheduler := NewScheduler(db.Storage)
	ctx := context.Background()

	t.Run("matching type writes one row per year", func(t *testing.T) {
		txn := db.Fixtures.Transaction(t, "VIR COUVREUR DUPONT")
		n, err := scheduler.RecalculateForTransaction(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, 21, n)

		results, err := scheduler.Schedule(ctx, txn.ID)
		require.NoError(t, err)
		require.Len(t, results, 21)
		assert.Equal(t, 2021, results[0].Year)
		assert.Equal(t, "-7944.44", results[0].Amount.StringFixed(2))
		assert.Equal(t, "-10000.00", results[1].Amount.StringFixed(2))
		assert.Equal(t, 2041, results[20].Year)
		assert.Equal(t, "-2055.56", results[20].Amount.StringFixed(2))
		for _, r := range results {
			assert.Equal(t, "Travaux toiture", r.Category)
			assert.Equal(t, txn.ID, r.TransactionID)
		}
	})

	t.Run("rerun replaces rather than appends", func(t *testing.T) {
		txn := db.Fixtures.Transaction(t, "VIR COUVREUR DUPONT")
		_, err := scheduler.RecalculateForTransaction(ctx, txn.ID)
		require.NoError(t, err)
		results, err := db.Storage.GetAmortizationResults(ctx, txn.ID)
		require.NoError(t, err)
		assert.Len(t, results, 21)
	})

	t.Run("no matching type", func(t *testing.T) {
		txn := db.Fixtures.Transaction(t, "PRLV SEPA EDF 0321")
		n, err := scheduler.RecalculateForTransaction(ctx, txn.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("unclassified", func(t *testing.T) {
		txn := db.Fixtures.Transaction(t, "CB BRICO DEPOT")
		n, err := scheduler.RecalculateForTransaction(ctx, txn.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("unassigning drops the schedule", func(t *testing.T) {
		txn := db.Fixtures.Transaction(t, "VIR COUVREUR DUPONT")
		c := model.NewClassification(txn, model.Levels{})
		require.NoError(t, db.Storage.SaveClassification(ctx, &c))

		n, err := scheduler.RecalculateForTransaction(ctx, txn.ID)
		require.NoError(t, err)
		assert.Zero(t, n)

		results, err := scheduler.Schedule(ctx, txn.ID)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		_, err := scheduler.RecalculateForTransaction(ctx, 424242)
		require.ErrorIs(t, err, common.ErrNotFound)

		_, err = scheduler.Schedule(ctx, 424242)
		require.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestScheduler_TypeMutationsRecalculate(t *testing.T) {
	db := setupSchedulerDB(t)
	scheduler := NewScheduler(db.Storage)
	ctx := context.Background()
	roof := db.Fixtures.Transaction(t, "VIR COUVREUR DUPONT")

	rows, err := scheduler.RecalculateAll(ctx, testutil.DefaultProperty, nil)
	require.NoError(t, err)
	assert.Equal(t, 21, rows)

	amortType := db.Fixtures.AmortizationTypes[0]

	t.Run("start date override", func(t *testing.T) {
		start, err := model.ParseDate("2022-01-01")
		require.NoError(t, err)
		amortType.StartDateOverride = &start
		amortType.DurationYears = 10

		rows, err := scheduler.UpdateType(ctx, &amortType)
		require.NoError(t, err)
		assert.Equal(t, 11, rows)

		results, err := scheduler.Schedule(ctx, roof.ID)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, 2022, results[0].Year)
		assert.Equal(t, "-20000.00", results[0].Amount.StringFixed(2))
	})

	t.Run("annual override", func(t *testing.T) {
		amortType.AnnualAmountOverride = decimal.NewNullDecimal(decimal.NewFromInt(25000))
		_, err := scheduler.UpdateType(ctx, &amortType)
		require.NoError(t, err)

		results, err := scheduler.Schedule(ctx, roof.ID)
		require.NoError(t, err)
		assert.Equal(t, "-25000.00", results[0].Amount.StringFixed(2))
	})

	t.Run("zero duration removes schedules", func(t *testing.T) {
		amortType.DurationYears = 0
		rows, err := scheduler.UpdateType(ctx, &amortType)
		require.NoError(t, err)
		assert.Zero(t, rows)

		results, err := scheduler.Schedule(ctx, roof.ID)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("new type applies to existing classifications", func(t *testing.T) {
		rows, err := scheduler.CreateType(ctx, &model.AmortizationType{
			PropertyID:    testutil.DefaultProperty,
			Name:          "Electricite immobilisee",
			Level2Value:   "Charges",
			Level1Values:  []string{"Electricite"},
			DurationYears: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, rows)

		types, err := scheduler.Types(ctx, testutil.DefaultProperty)
		require.NoError(t, err)
		assert.Len(t, types, 2)
	})

	t.Run("delete type", func(t *testing.T) {
		types, err := scheduler.Types(ctx, testutil.DefaultProperty)
		require.NoError(t, err)
		for _, at := range types {
			_, err := scheduler.DeleteType(ctx, at.ID)
			require.NoError(t, err)
		}

		edf := db.Fixtures.Transaction(t, "PRLV SEPA EDF 0321")
		results, err := scheduler.Schedule(ctx, edf.ID)
		require.NoError(t, err)
		assert.Empty(t, results)

		_, err = scheduler.DeleteType(ctx, amortType.ID)
		require.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestScheduler_RecalculateAllProgress(t *testing.T) {
	db := setupSchedulerDB(t)
	scheduler := NewScheduler(db.Storage)

	var calls, lastTotal int
	_, err := scheduler.RecalculateAll(context.Background(), testutil.DefaultProperty, func(done, total int) {
		calls++
		assert.LessOrEqual(t, done, total)
		lastTotal = total
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, lastTotal)
}

func TestScheduler_FollowsClassificationChanges(t *testing.T) {
	db := setupSchedulerDB(t)
	scheduler := NewScheduler(db.Storage)
	eng := engine.New(db.Storage).WithRecalculator(scheduler)
	ctx := context.Background()

	brico := db.Fixtures.Transaction(t, "CB BRICO DEPOT")

	_, err := eng.SetManualClassification(ctx, brico.ID, fixtures.Roof)
	require.NoError(t, err)
	results, err := scheduler.Schedule(ctx, brico.ID)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, 2021, results[0].Year)

	_, err = eng.SetManualClassification(ctx, brico.ID, model.Levels{})
	require.NoError(t, err)
	results, err = scheduler.Schedule(ctx, brico.ID)
	require.NoError(t, err)
	assert.Empty(t, results)

	t.Run("rule cascade", func(t *testing.T) {
		_, err := eng.CreateOrUpdateRuleFromClassification(ctx, "CB BRICO DEP", fixtures.Roof, testutil.DefaultProperty)
		require.NoError(t, err)
		results, err := scheduler.Schedule(ctx, brico.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, results)
	})
}
