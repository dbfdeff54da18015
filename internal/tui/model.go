// Package tui implements the interactive review of unassigned transactions.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/the-rent-must-flow/internal/combinations"
	"github.com/Veraticus/the-rent-must-flow/internal/engine"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
)

// Classifier records the choices made during a review.
type Classifier interface {
	SetManualClassification(ctx context.Context, transactionID int64, levels model.Levels) (*model.Classification, error)
	CreateOrUpdateRuleFromClassification(ctx context.Context, name string, levels model.Levels, propertyID int64) (*engine.RuleResult, error)
}

// OptionSource answers incremental level selection.
type OptionSource interface {
	Options(ctx context.Context, propertyID int64, sel combinations.Selection) (combinations.Options, error)
}

// Stats summarizes a review session.
type Stats struct {
	Classified   int
	Skipped      int
	RulesSaved   int
	Reclassified int // other transactions picked up by the saved rules
}

// step is the level being chosen.
type step int

const (
	stepLevel1 step = iota
	stepLevel2
	stepLevel3
	stepSaving
)

// Model holds the review state.
type Model struct {
	ctx          context.Context
	classifier   Classifier
	options      OptionSource
	lastError    error
	help         help.Model
	progress     progress.Model
	keymap       KeyMap
	sel          combinations.Selection
	queue        []model.Transaction
	choices      []string
	level3       []model.Level3
	stats        Stats
	propertyID   int64
	index        int
	cursor       int
	width        int
	step         step
	saveRule     bool
	loading      bool
	quitting     bool
	showFullHelp bool
}

// NewModel creates a review over queue. saveRule sets the initial state of
// rule creation.
func NewModel(ctx context.Context, classifier Classifier, options OptionSource, propertyID int64, queue []model.Transaction, saveRule bool) Model {
	return Model{
		ctx:        ctx,
		classifier: classifier,
		options:    options,
		propertyID: propertyID,
		queue:      queue,
		saveRule:   saveRule,
		keymap:     DefaultKeyMap(),
		help:       help.New(),
		progress:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		loading:    true,
	}
}

// Stats returns the session summary.
func (m Model) Stats() Stats {
	return m.stats
}

// Err returns the last storage error, if any.
func (m Model) Err() error {
	return m.lastError
}

// Done reports whether every transaction has been handled.
func (m Model) Done() bool {
	return m.index >= len(m.queue)
}

func (m Model) current() model.Transaction {
	return m.queue[m.index]
}

// Init loads the level 1 options of the first transaction.
func (m Model) Init() tea.Cmd {
	if m.Done() {
		return tea.Quit
	}
	return m.loadOptions()
}

func (m Model) loadOptions() tea.Cmd {
	sel := m.sel
	return func() tea.Msg {
		opts, err := m.options.Options(m.ctx, m.propertyID, sel)
		return optionsLoadedMsg{opts: opts, err: err}
	}
}

func (m Model) save(levels model.Levels) tea.Cmd {
	txn := m.current()
	saveRule := m.saveRule
	return func() tea.Msg {
		if _, err := m.classifier.SetManualClassification(m.ctx, txn.ID, levels); err != nil {
			return classificationSavedMsg{err: err}
		}
		msg := classificationSavedMsg{levels: levels}
		if saveRule {
			res, err := m.classifier.CreateOrUpdateRuleFromClassification(m.ctx, txn.NormalizedName(), levels, m.propertyID)
			if err != nil {
				msg.ruleErr = fmt.Errorf("classification saved but rule %q was not: %w", txn.NormalizedName(), err)
				return msg
			}
			msg.rule = res
		}
		return msg
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case optionsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.lastError = msg.err
			m.quitting = true
			return m, tea.Quit
		}
		return m.showOptions(msg.opts)

	case classificationSavedMsg:
		m.loading = false
		if msg.err != nil {
			m.lastError = msg.err
			m.step = stepLevel1
			m.sel = combinations.Selection{}
			m.loading = true
			return m, m.loadOptions()
		}
		m.stats.Classified++
		if msg.ruleErr != nil {
			m.lastError = msg.ruleErr
		}
		if msg.rule != nil {
			m.stats.RulesSaved++
			m.stats.Reclassified += msg.rule.Reclassified
		}
		return m.next()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Help):
		m.showFullHelp = !m.showFullHelp
		return m, nil
	}

	if m.loading || m.step == stepSaving {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keymap.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keymap.Down):
		if m.cursor < len(m.choices)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keymap.ToggleRule):
		m.saveRule = !m.saveRule
	case key.Matches(msg, m.keymap.Skip):
		m.stats.Skipped++
		return m.next()
	case key.Matches(msg, m.keymap.Back):
		return m.back()
	case key.Matches(msg, m.keymap.Select):
		return m.choose(m.cursor)
	}
	return m, nil
}

// showOptions offers the values of the current step, taking a lone value
// without asking.
func (m Model) showOptions(opts combinations.Options) (tea.Model, tea.Cmd) {
	m.cursor = 0
	m.level3 = nil
	switch m.step {
	case stepLevel1:
		m.choices = opts.Level1
	case stepLevel2:
		m.choices = opts.Level2
	case stepLevel3:
		m.level3 = opts.Level3
		m.choices = make([]string, len(opts.Level3))
		for i, l3 := range opts.Level3 {
			m.choices[i] = level3Label(l3)
		}
	}

	if len(m.choices) == 0 {
		m.lastError = fmt.Errorf("no allowed combination for property %d", m.propertyID)
		m.quitting = true
		return m, tea.Quit
	}
	if len(m.choices) == 1 && m.step != stepLevel1 {
		return m.choose(0)
	}
	return m, nil
}

func (m Model) choose(i int) (tea.Model, tea.Cmd) {
	if i < 0 || i >= len(m.choices) {
		return m, nil
	}
	switch m.step {
	case stepLevel1:
		m.sel.Level1 = m.choices[i]
	case stepLevel2:
		m.sel.Level2 = m.choices[i]
	case stepLevel3:
		levels := model.Levels{Level1: m.sel.Level1, Level2: m.sel.Level2, Level3: m.level3[i]}
		m.step = stepSaving
		m.loading = true
		return m, m.save(levels)
	}
	m.step++
	m.loading = true
	return m, m.loadOptions()
}

func (m Model) back() (tea.Model, tea.Cmd) {
	switch m.step {
	case stepLevel2:
		m.sel.Level1 = ""
	case stepLevel3:
		m.sel.Level2 = ""
	default:
		return m, nil
	}
	m.step--
	m.loading = true
	return m, m.loadOptions()
}

func (m Model) next() (tea.Model, tea.Cmd) {
	m.index++
	m.step = stepLevel1
	m.sel = combinations.Selection{}
	m.choices = nil
	m.cursor = 0
	if m.Done() {
		m.quitting = true
		return m, tea.Quit
	}
	m.loading = true
	return m, m.loadOptions()
}

func level3Label(l model.Level3) string {
	if !l.IsSet() {
		return "(none)"
	}
	return l.String()
}
