package tui

import (
	"github.com/Veraticus/the-rent-must-flow/internal/combinations"
	"github.com/Veraticus/the-rent-must-flow/internal/engine"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
)

type optionsLoadedMsg struct {
	err  error
	opts combinations.Options
}

type classificationSavedMsg struct {
	err     error
	ruleErr error // classification stored, rule not
	rule    *engine.RuleResult
	levels  model.Levels
}
