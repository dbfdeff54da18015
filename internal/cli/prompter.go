package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Veraticus/the-rent-must-flow/internal/combinations"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
)

// ErrNoChoices is returned when there is nothing to pick from.
var ErrNoChoices = errors.New("no choices available")

// OptionSource answers incremental level selection.
type OptionSource interface {
	Options(ctx context.Context, propertyID int64, sel combinations.Selection) (combinations.Options, error)
}

// Prompter asks questions on a terminal.
type Prompter struct {
	reader *LineReader
	writer io.Writer
}

// NewPrompter creates a prompter. Nil arguments default to stdin and stdout.
func NewPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Prompter{reader: NewLineReader(reader), writer: writer}
}

// Confirm asks a yes/no question. Anything but y or yes is a no.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	if _, err := fmt.Fprint(p.writer, FormatPrompt(question+" [y/N]")); err != nil {
		return false, fmt.Errorf("failed to write prompt: %w", err)
	}
	answer, err := p.reader.ReadLine(ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Choose shows a numbered list and returns the index picked. A single choice
// is taken without asking. Invalid answers are asked again.
func (p *Prompter) Choose(ctx context.Context, label string, choices []string) (int, error) {
	switch len(choices) {
	case 0:
		return 0, fmt.Errorf("%w for %s", ErrNoChoices, label)
	case 1:
		if _, err := fmt.Fprintf(p.writer, "%s: %s\n", label, BoldStyle.Render(choices[0])); err != nil {
			return 0, fmt.Errorf("failed to write choice: %w", err)
		}
		return 0, nil
	}

	if _, err := fmt.Fprintln(p.writer, BoldStyle.Render(label)); err != nil {
		return 0, fmt.Errorf("failed to write label: %w", err)
	}
	for i, c := range choices {
		if _, err := fmt.Fprintf(p.writer, "  [%d] %s\n", i+1, c); err != nil {
			return 0, fmt.Errorf("failed to write choice: %w", err)
		}
	}

	for {
		if _, err := fmt.Fprint(p.writer, FormatPrompt("Choice")); err != nil {
			return 0, fmt.Errorf("failed to write prompt: %w", err)
		}
		answer, err := p.reader.ReadLine(ctx)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(answer)
		if err == nil && n >= 1 && n <= len(choices) {
			return n - 1, nil
		}
		if _, err := fmt.Fprintln(p.writer, FormatError(fmt.Sprintf("Pick a number between 1 and %d", len(choices)))); err != nil {
			return 0, fmt.Errorf("failed to write error: %w", err)
		}
	}
}

// ChooseLevels walks the user through level 1, level 2 and level 3, offering
// only values that still lead to an allowed combination.
func (p *Prompter) ChooseLevels(ctx context.Context, source OptionSource, propertyID int64) (model.Levels, error) {
	var sel combinations.Selection

	opts, err := source.Options(ctx, propertyID, sel)
	if err != nil {
		return model.Levels{}, err
	}
	i, err := p.Choose(ctx, "Level 1", opts.Level1)
	if err != nil {
		return model.Levels{}, err
	}
	sel.Level1 = opts.Level1[i]

	if opts, err = source.Options(ctx, propertyID, sel); err != nil {
		return model.Levels{}, err
	}
	if i, err = p.Choose(ctx, "Level 2", opts.Level2); err != nil {
		return model.Levels{}, err
	}
	sel.Level2 = opts.Level2[i]

	if opts, err = source.Options(ctx, propertyID, sel); err != nil {
		return model.Levels{}, err
	}
	labels := make([]string, len(opts.Level3))
	for j, l3 := range opts.Level3 {
		labels[j] = Level3Label(l3)
	}
	if i, err = p.Choose(ctx, "Level 3", labels); err != nil {
		return model.Levels{}, err
	}

	return model.Levels{Level1: sel.Level1, Level2: sel.Level2, Level3: opts.Level3[i]}, nil
}

// Level3Label renders a level 3 value for display.
func Level3Label(l model.Level3) string {
	if !l.IsSet() {
		return "(none)"
	}
	return l.String()
}
