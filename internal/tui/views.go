package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/the-rent-must-flow/internal/cli"
)

var (
	cursorStyle   = lipgloss.NewStyle().Foreground(cli.PrimaryColor).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(cli.PrimaryColor)
	labelStyle    = lipgloss.NewStyle().Bold(true)
	amountStyle   = lipgloss.NewStyle().Foreground(cli.WarningColor)
)

var stepTitles = map[step]string{
	stepLevel1: "Level 1",
	stepLevel2: "Level 2",
	stepLevel3: "Level 3",
}

// View renders the current state.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.Done() {
		return cli.FormatSuccess("Nothing left to review.") + "\n"
	}

	var b strings.Builder
	b.WriteString(cli.TitleStyle.Render(fmt.Sprintf("%s Review %d/%d", cli.HouseIcon, m.index+1, len(m.queue))))
	b.WriteString("\n")
	b.WriteString(m.progress.ViewAs(float64(m.index) / float64(len(m.queue))))
	b.WriteString("\n\n")
	b.WriteString(m.transactionView())
	b.WriteString("\n\n")

	switch {
	case m.step == stepSaving:
		b.WriteString(cli.SubtleStyle.Render("Saving..."))
	case m.loading:
		b.WriteString(cli.SubtleStyle.Render("Loading options..."))
	default:
		b.WriteString(m.choicesView())
	}
	b.WriteString("\n\n")

	b.WriteString(m.statusLine())
	if m.lastError != nil {
		b.WriteString("\n")
		b.WriteString(cli.FormatError(m.lastError.Error()))
	}
	b.WriteString("\n\n")

	if m.showFullHelp {
		b.WriteString(m.help.FullHelpView(m.keymap.FullHelp()))
	} else {
		b.WriteString(m.help.ShortHelpView(m.keymap.ShortHelp()))
	}
	return b.String()
}

func (m Model) transactionView() string {
	txn := m.current()
	lines := []string{
		labelStyle.Render(txn.Name),
		fmt.Sprintf("%s  %s", txn.Date.Format(time.DateOnly), amountStyle.Render(txn.Amount.StringFixed(2))),
	}
	var chosen []string
	if m.sel.Level1 != "" {
		chosen = append(chosen, m.sel.Level1)
	}
	if m.sel.Level2 != "" {
		chosen = append(chosen, m.sel.Level2)
	}
	if len(chosen) > 0 {
		lines = append(lines, cli.SubtleStyle.Render(strings.Join(chosen, " / ")))
	}
	return cli.BoxStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) choicesView() string {
	var b strings.Builder
	b.WriteString(cli.PromptStyle.Render(stepTitles[m.step]))
	b.WriteString("\n")
	for i, choice := range m.choices {
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> "))
			b.WriteString(selectedStyle.Render(choice))
		} else {
			b.WriteString("  ")
			b.WriteString(choice)
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) statusLine() string {
	rule := "off"
	if m.saveRule {
		rule = "on"
	}
	return cli.SubtleStyle.Render(fmt.Sprintf("Rule creation: %s  ·  classified %d  ·  skipped %d  ·  rules %d",
		rule, m.stats.Classified, m.stats.Skipped, m.stats.RulesSaved))
}
