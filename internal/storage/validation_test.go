package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
)

func TestValidateContext(t *testing.T) {
	tests := []struct {
		ctx     context.Context
		name    string
		wantErr bool
	}{
		{
			name:    "valid context",
			ctx:     context.Background(),
			wantErr: false,
		},
		{
			name:    "nil context",
			ctx:     nil,
			wantErr: true,
		},
		{
			name: "canceled context still valid",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			}(),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateContext(tt.ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateContext() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTransaction(t *testing.T) {
	valid := func() *model.Transaction {
		return &model.Transaction{
			PropertyID: 1,
			Name:       "PRLV SEPA EDF",
			Amount:     decimal.RequireFromString("-84.12"),
			Date:       time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		}
	}

	tests := []struct {
		txn     *model.Transaction
		wantErr error
		name    string
	}{
		{name: "valid", txn: valid()},
		{name: "nil", txn: nil, wantErr: ErrNilParameter},
		{
			name:    "missing property",
			txn:     func() *model.Transaction { txn := valid(); txn.PropertyID = 0; return txn }(),
			wantErr: ErrInvalidTransaction,
		},
		{
			name:    "missing date",
			txn:     func() *model.Transaction { txn := valid(); txn.Date = time.Time{}; return txn }(),
			wantErr: ErrInvalidTransaction,
		},
		{
			name:    "blank label",
			txn:     func() *model.Transaction { txn := valid(); txn.Name = "   "; return txn }(),
			wantErr: ErrInvalidTransaction,
		},
		{
			name: "zero amount is allowed",
			txn:  func() *model.Transaction { txn := valid(); txn.Amount = decimal.Zero; return txn }(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTransaction(tt.txn)
			if tt.wantErr == nil && err != nil {
				t.Errorf("validateTransaction() unexpected error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("validateTransaction() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateClassification(t *testing.T) {
	tests := []struct {
		wantErr error
		c       *model.Classification
		name    string
	}{
		{
			name: "unassigned",
			c:    &model.Classification{TransactionID: 1},
		},
		{
			name: "levels without level 3",
			c:    &model.Classification{TransactionID: 1, Levels: model.Levels{Level1: "Pret immobilier", Level2: "Emprunt"}},
		},
		{
			name:    "nil",
			wantErr: ErrNilParameter,
		},
		{
			name:    "missing transaction",
			c:       &model.Classification{Levels: model.Levels{Level1: "Loyer", Level2: "Revenus"}},
			wantErr: ErrInvalidClassification,
		},
		{
			name:    "level 1 only",
			c:       &model.Classification{TransactionID: 1, Levels: model.Levels{Level1: "Loyer"}},
			wantErr: ErrInvalidClassification,
		},
		{
			name:    "level 3 only",
			c:       &model.Classification{TransactionID: 1, Levels: model.Levels{Level3: model.Level3Produits}},
			wantErr: ErrInvalidClassification,
		},
		{
			name:    "unknown level 3",
			c:       &model.Classification{TransactionID: 1, Levels: model.Levels{Level1: "Loyer", Level2: "Revenus", Level3: "Recettes"}},
			wantErr: common.ErrInvalidLevel3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateClassification(tt.c)
			if tt.wantErr == nil && err != nil {
				t.Errorf("validateClassification() unexpected error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("validateClassification() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRuleAndCombination(t *testing.T) {
	levels := model.Levels{Level1: "Electricite", Level2: "Charges", Level3: model.Level3ChargesDeductibles}

	if err := validateRule(&model.MappingRule{PropertyID: 1, Name: "PRLV SEPA EDF", Levels: levels}); err != nil {
		t.Errorf("validateRule() unexpected error = %v", err)
	}
	if err := validateRule(&model.MappingRule{PropertyID: 1, Name: "  ", Levels: levels}); !errors.Is(err, ErrEmptyString) {
		t.Errorf("validateRule() blank name error = %v", err)
	}
	if err := validateRule(&model.MappingRule{PropertyID: 1, Name: "EDF", Levels: model.Levels{Level1: "Electricite"}}); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("validateRule() partial levels error = %v", err)
	}

	if err := validateCombination(&model.AllowedCombination{PropertyID: 1, Levels: levels}); err != nil {
		t.Errorf("validateCombination() unexpected error = %v", err)
	}
	if err := validateCombination(&model.AllowedCombination{Levels: levels}); !errors.Is(err, ErrInvalidCombination) {
		t.Errorf("validateCombination() missing property error = %v", err)
	}
	if err := validateCombination(nil); !errors.Is(err, ErrNilParameter) {
		t.Errorf("validateCombination() nil error = %v", err)
	}
}

func TestValidateAmortizationType(t *testing.T) {
	tests := []struct {
		wantErr error
		at      model.AmortizationType
		name    string
	}{
		{
			name: "valid",
			at:   model.AmortizationType{PropertyID: 1, Name: "Travaux", Level2Value: "Immobilisations", DurationYears: 10},
		},
		{
			name: "zero duration is not depreciable but valid",
			at:   model.AmortizationType{PropertyID: 1, Name: "Travaux", Level2Value: "Immobilisations"},
		},
		{
			name:    "negative duration",
			at:      model.AmortizationType{PropertyID: 1, Name: "Travaux", Level2Value: "Immobilisations", DurationYears: -1},
			wantErr: ErrInvalidAmortization,
		},
		{
			name:    "missing level 2",
			at:      model.AmortizationType{PropertyID: 1, Name: "Travaux", DurationYears: 10},
			wantErr: ErrEmptyString,
		},
		{
			name:    "missing property",
			at:      model.AmortizationType{Name: "Travaux", Level2Value: "Immobilisations"},
			wantErr: ErrInvalidAmortization,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAmortizationType(&tt.at)
			if tt.wantErr == nil && err != nil {
				t.Errorf("validateAmortizationType() unexpected error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("validateAmortizationType() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
