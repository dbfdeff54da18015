package combinations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
	"github.com/Veraticus/the-rent-must-flow/internal/testutil"
	"github.com/Veraticus/the-rent-must-flow/internal/testutil/fixtures"
)

const property = testutil.DefaultProperty

func TestIsValidLevel3(t *testing.T) {
	tests := []struct {
		level3 model.Level3
		want   bool
	}{
		{level3: model.Level3Produits, want: true},
		{level3: model.Level3ChargesDeductibles, want: true},
		{level3: model.Level3None, want: true},
		{level3: "Foo", want: false},
		{level3: "produits", want: false},
	}
	for _, tt := range tests {
		t.Run(string(tt.level3), func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidLevel3(tt.level3))
		})
	}
}

func TestRegistry_Add(t *testing.T) {
	db := testutil.SetupTestDB(t)
	reg := NewRegistry(db.Storage)
	ctx := context.Background()

	c, err := reg.Add(ctx, property, model.Levels{Level1: " Loyer ", Level2: "Revenus", Level3: model.Level3Produits})
	require.NoError(t, err)
	assert.NotZero(t, c.ID)
	assert.False(t, c.IsHardcoded)
	assert.Equal(t, "Loyer", c.Levels.Level1)

	t.Run("duplicate", func(t *testing.T) {
		_, err := reg.Add(ctx, property, fixtures.Rent)
		assert.ErrorIs(t, err, common.ErrDuplicateEntry)
	})

	t.Run("invalid level 3", func(t *testing.T) {
		_, err := reg.Add(ctx, property, model.Levels{Level1: "Loyer", Level2: "Revenus", Level3: "Foo"})
		assert.ErrorIs(t, err, common.ErrInvalidLevel3)
		assert.True(t, common.IsUserFacing(err))
	})

	t.Run("missing level 2", func(t *testing.T) {
		_, err := reg.Add(ctx, property, model.Levels{Level1: "Loyer"})
		assert.Error(t, err)
		assert.True(t, common.IsUserFacing(err))
	})

	t.Run("null level 3 is distinct from a set one", func(t *testing.T) {
		_, err := reg.Add(ctx, property, model.Levels{Level1: "Loyer", Level2: "Revenus"})
		require.NoError(t, err)

		allowed, err := reg.IsAllowed(ctx, property, model.Levels{Level1: "Loyer", Level2: "Revenus"})
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = reg.IsAllowed(ctx, property, model.Levels{Level1: "Loyer", Level2: "Revenus", Level3: model.Level3Actif})
		require.NoError(t, err)
		assert.False(t, allowed)
	})
}

func TestRegistry_Remove(t *testing.T) {
	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.WithCombination(fixtures.Rent).WithHardcodedCombination(fixtures.Electricity)
	})
	reg := NewRegistry(db.Storage)
	ctx := context.Background()

	manual := db.Fixtures.Combinations[0]
	hardcoded := db.Fixtures.Combinations[1]

	t.Run("hardcoded entries are protected", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			ok, err := reg.Remove(ctx, hardcoded.ID)
			assert.ErrorIs(t, err, common.ErrProtectedEntry)
			assert.False(t, ok)
		}

		allowed, err := reg.IsAllowed(ctx, property, fixtures.Electricity)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("manual entry", func(t *testing.T) {
		ok, err := reg.Remove(ctx, manual.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = reg.Remove(ctx, manual.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRegistry_Reset(t *testing.T) {
	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.
			WithHardcodedCombination(fixtures.Rent).
			WithCombination(fixtures.Electricity).
			WithCombination(fixtures.Insurance).
			WithRule("VIR STRIPE", fixtures.Rent).
			WithRule("PRLV SEPA EDF", fixtures.Electricity).
			WithRule("AXA ASSURANCE PNO", fixtures.Insurance).
			WithClassifiedTransaction("VIR STRIPE REF998877", "950", "2024-01-05", fixtures.Rent).
			WithClassifiedTransaction("PRLV SEPA EDF 0124", "-80", "2024-01-07", fixtures.Electricity).
			WithClassifiedTransaction("PRLV SEPA EDF 0224", "-82", "2024-02-07", fixtures.Electricity).
			WithClassifiedTransaction("AXA ASSURANCE PNO", "-120", "2024-03-01", fixtures.Insurance).
			// Matches the deleted rule by label but was corrected by hand.
			WithClassifiedTransaction("PRLV SEPA EDF 0324", "-90", "2024-03-07", fixtures.Rent)
	})
	reg := NewRegistry(db.Storage)
	ctx := context.Background()

	stats, err := reg.Reset(ctx, property)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CombinationsDeleted)
	assert.Equal(t, 2, stats.RulesDeleted)
	assert.Equal(t, 3, stats.TransactionsUnassigned)

	combos, err := reg.List(ctx, property)
	require.NoError(t, err)
	require.Len(t, combos, 1)
	assert.Equal(t, fixtures.Rent, combos[0].Levels)

	ruleSet, err := db.Storage.GetRuleSet(ctx, property)
	require.NoError(t, err)
	require.Equal(t, 1, ruleSet.Len())
	assert.Equal(t, "VIR STRIPE", ruleSet.Rules()[0].Name)

	expect := map[string]model.Levels{
		"VIR STRIPE REF998877": fixtures.Rent,
		"PRLV SEPA EDF 0124":   {},
		"PRLV SEPA EDF 0224":   {},
		"AXA ASSURANCE PNO":    {},
		"PRLV SEPA EDF 0324":   fixtures.Rent,
	}
	for name, want := range expect {
		txn := db.Fixtures.Transaction(t, name)
		c, err := db.Storage.GetClassification(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equalf(t, want, c.Levels, "classification of %q", name)
	}
}

func TestRegistry_Options(t *testing.T) {
	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.WithBasicCombinations()
	})
	reg := NewRegistry(db.Storage)
	ctx := context.Background()

	t.Run("nothing chosen", func(t *testing.T) {
		opts, err := reg.Options(ctx, property, Selection{})
		require.NoError(t, err)
		assert.Equal(t, []string{"Assurance PNO", "Electricite", "Loyer", "Pret immobilier", "Toiture"}, opts.Level1)
		assert.Equal(t, []string{"Charges", "Emprunt", "Immobilisations", "Revenus"}, opts.Level2)
		assert.Equal(t, []model.Level3{model.Level3None, model.Level3Produits, model.Level3ChargesDeductibles, model.Level3Actif}, opts.Level3)
	})

	t.Run("level 2 narrows the others", func(t *testing.T) {
		opts, err := reg.Options(ctx, property, Selection{Level2: "Charges"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Assurance PNO", "Electricite"}, opts.Level1)
		assert.Equal(t, []model.Level3{model.Level3ChargesDeductibles}, opts.Level3)
		// The chosen level still lists its alternatives.
		assert.Len(t, opts.Level2, 4)
	})

	t.Run("level 3 narrows upwards", func(t *testing.T) {
		opts, err := reg.Options(ctx, property, Selection{Level3: model.Level3Actif})
		require.NoError(t, err)
		assert.Equal(t, []string{"Toiture"}, opts.Level1)
		assert.Equal(t, []string{"Immobilisations"}, opts.Level2)
	})

	t.Run("other property", func(t *testing.T) {
		opts, err := reg.Options(ctx, 2, Selection{})
		require.NoError(t, err)
		assert.Empty(t, opts.Level1)
	})
}

func TestRegistry_Seed(t *testing.T) {
	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.WithCombination(fixtures.Rent).WithHardcodedCombination(fixtures.Loan)
	})
	reg := NewRegistry(db.Storage)
	ctx := context.Background()

	stats, err := reg.Seed(ctx, property, []model.Levels{
		fixtures.Rent,
		fixtures.Loan,
		fixtures.Roof,
		fixtures.Roof,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.Promoted)
	assert.Equal(t, 2, stats.Skipped)

	combos, err := reg.List(ctx, property)
	require.NoError(t, err)
	require.Len(t, combos, 3)
	for _, c := range combos {
		assert.Truef(t, c.IsHardcoded, "%s should be hardcoded", c.Levels)
	}

	t.Run("invalid entry writes nothing", func(t *testing.T) {
		_, err := reg.Seed(ctx, property, []model.Levels{
			fixtures.Electricity,
			{Level1: "X", Level2: "Y", Level3: "Nope"},
		})
		assert.ErrorIs(t, err, common.ErrInvalidLevel3)

		allowed, err := reg.IsAllowed(ctx, property, fixtures.Electricity)
		require.NoError(t, err)
		assert.False(t, allowed)
	})
}

func TestRegistry_Validate(t *testing.T) {
	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.WithCombination(fixtures.Rent)
	})
	reg := NewRegistry(db.Storage)
	ctx := context.Background()

	require.NoError(t, reg.Validate(ctx, property, fixtures.Rent))

	err := reg.Validate(ctx, property, fixtures.Electricity)
	assert.ErrorIs(t, err, common.ErrInvalidCombination)
	assert.Contains(t, err.Error(), "Electricite / Charges")

	err = reg.Validate(ctx, 2, fixtures.Rent)
	assert.ErrorIs(t, err, common.ErrInvalidCombination)
}
