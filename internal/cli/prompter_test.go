package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-rent-must-flow/internal/combinations"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
	"github.com/Veraticus/the-rent-must-flow/internal/testutil"
	"github.com/Veraticus/the-rent-must-flow/internal/testutil/fixtures"
)

func TestLineReader_ReadLine(t *testing.T) {
	r := NewLineReader(strings.NewReader("  first \nlast"))
	ctx := context.Background()

	line, err := r.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", line)

	line, err = r.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "last", line)

	_, err = r.ReadLine(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestLineReader_Cancelled(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLineReader(pr).ReadLine(ctx)
	require.ErrorIs(t, err, ErrInputCancelled)
}

func TestPrompter_Confirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "n\n", want: false},
		{input: "\n", want: false},
		{input: "maybe\n", want: false},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			got, err := NewPrompter(strings.NewReader(tt.input), &out).Confirm(context.Background(), "Reset property 1?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Reset property 1? [y/N]")
		})
	}
}

func TestPrompter_Choose(t *testing.T) {
	ctx := context.Background()

	t.Run("retries invalid answers", func(t *testing.T) {
		var out bytes.Buffer
		p := NewPrompter(strings.NewReader("0\nabc\n2\n"), &out)
		i, err := p.Choose(ctx, "Level 1", []string{"Loyer", "Toiture"})
		require.NoError(t, err)
		assert.Equal(t, 1, i)
		assert.Equal(t, 2, strings.Count(out.String(), "Pick a number between 1 and 2"))
		assert.Contains(t, out.String(), "[2] Toiture")
	})

	t.Run("single choice is implicit", func(t *testing.T) {
		var out bytes.Buffer
		i, err := NewPrompter(strings.NewReader(""), &out).Choose(ctx, "Level 2", []string{"Revenus"})
		require.NoError(t, err)
		assert.Zero(t, i)
		assert.Contains(t, out.String(), "Revenus")
	})

	t.Run("no choices", func(t *testing.T) {
		_, err := NewPrompter(strings.NewReader(""), io.Discard).Choose(ctx, "Level 1", nil)
		require.ErrorIs(t, err, ErrNoChoices)
	})

	t.Run("input ends", func(t *testing.T) {
		_, err := NewPrompter(strings.NewReader(""), io.Discard).Choose(ctx, "Level 1", []string{"a", "b"})
		require.ErrorIs(t, err, io.EOF)
	})
}

func TestPrompter_ChooseLevels(t *testing.T) {
	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.
			WithBasicCombinations().
			WithCombination(model.Levels{Level1: "Loyer", Level2: "Revenus"}).
			WithCombination(model.Levels{Level1: "Toiture", Level2: "Charges", Level3: model.Level3ChargesDeductibles})
	})
	registry := combinations.NewRegistry(db.Storage)
	ctx := context.Background()

	tests := []struct {
		name  string
		input string
		want  model.Levels
	}{
		{
			// Level 1 choices: Assurance PNO, Electricite, Loyer, Pret immobilier, Toiture.
			name:  "level 3 narrowed by level 1 and 2",
			input: "3\n2\n",
			want:  fixtures.Rent,
		},
		{
			name:  "no level 3",
			input: "3\n1\n",
			want:  model.Levels{Level1: "Loyer", Level2: "Revenus"},
		},
		{
			name:  "level 2 offered only when reachable",
			input: "5\n2\n",
			want:  fixtures.Roof,
		},
		{
			name:  "single paths are implicit",
			input: "4\n",
			want:  fixtures.Loan,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPrompter(strings.NewReader(tt.input), io.Discard)
			got, err := p.ChooseLevels(ctx, registry, testutil.DefaultProperty)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderTable(t *testing.T) {
	out := RenderTable([]string{"ID", "Level 1"}, [][]string{{"1", "Loyer"}, {"2", "Toiture"}})
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "Loyer")
	assert.Contains(t, out, "Toiture")
}

func TestLevel3Label(t *testing.T) {
	assert.Equal(t, "(none)", Level3Label(model.Level3None))
	assert.Equal(t, "Actif", Level3Label(model.Level3Actif))
}
