package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SummaryModel displays what was asked once the ask screen closes
type SummaryModel struct {
	session  *Session
	styles   *Styles
	width    int
	height   int
	quitting bool
}

// NewSummaryModel creates a new summary screen
func NewSummaryModel(session *Session) SummaryModel {
	return SummaryModel{
		session: session,
		styles:  DefaultStyles(),
	}
}

// Init implements tea.Model
func (m SummaryModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m SummaryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "enter", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model
func (m SummaryModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Session Summary"))
	b.WriteString("\n\n")

	stats := m.session.Stats()
	b.WriteString(m.renderStatsTable(stats))
	b.WriteString("\n")

	if len(stats.Sources) > 0 {
		b.WriteString(m.styles.Subtitle.Render("Sources cited:"))
		b.WriteString("\n")
		for _, src := range stats.Sources {
			b.WriteString("  • ")
			b.WriteString(m.styles.Source.Render(src))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if stats.Failed > 0 {
		b.WriteString(m.styles.Subtitle.Render("Failed questions:"))
		b.WriteString("\n")
		for _, ex := range m.session.Exchanges {
			if ex.Failed() {
				b.WriteString(m.renderFailure(ex))
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(m.styles.Help.Render("Press enter to exit"))
	return b.String()
}

func (m SummaryModel) renderStatsTable(st SessionStats) string {
	var b strings.Builder

	answered := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGreen)).Bold(true)
	failed := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)).Bold(true)

	b.WriteString(fmt.Sprintf("  Questions:   %d\n", st.Questions))
	b.WriteString(fmt.Sprintf("  Answered:    %s\n", answered.Render(fmt.Sprintf("%d", st.Answered))))
	b.WriteString(fmt.Sprintf("  Failed:      %s\n", failed.Render(fmt.Sprintf("%d", st.Failed))))
	return b.String()
}

func (m SummaryModel) renderFailure(ex *Exchange) string {
	return fmt.Sprintf("  %s %s\n    %s\n",
		m.styles.StatusFailed.Render("FAILED"),
		ex.Question,
		m.styles.Help.Render(ex.Err.Error()),
	)
}
