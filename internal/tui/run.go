package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/the-rent-must-flow/internal/model"
)

// Config holds what a review session needs.
type Config struct {
	Classifier Classifier
	Options    OptionSource
	Input      io.Reader
	Output     io.Writer
	Queue      []model.Transaction
	PropertyID int64
	SaveRules  bool
}

// Run shows the review screen until the queue is exhausted or the user quits.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	if cfg.Classifier == nil || cfg.Options == nil {
		return Stats{}, errors.New("review needs a classifier and an option source")
	}
	if len(cfg.Queue) == 0 {
		return Stats{}, nil
	}

	m := NewModel(ctx, cfg.Classifier, cfg.Options, cfg.PropertyID, cfg.Queue, cfg.SaveRules)
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if cfg.Input != nil {
		opts = append(opts, tea.WithInput(cfg.Input))
	}
	if cfg.Output != nil {
		opts = append(opts, tea.WithOutput(cfg.Output))
	}

	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return Stats{}, fmt.Errorf("review failed: %w", err)
	}

	result, ok := final.(Model)
	if !ok {
		return Stats{}, nil
	}
	stats := result.Stats()
	slog.Info("Review finished",
		"classified", stats.Classified,
		"skipped", stats.Skipped,
		"rules", stats.RulesSaved)
	return stats, result.Err()
}
