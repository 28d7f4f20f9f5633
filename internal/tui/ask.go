package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/efebarandurmaz/docrag/internal/rag"
)

type field int

const (
	fieldQuestion field = iota
	fieldTopK
)

// answerMsg carries a finished query back into the update loop.
type answerMsg struct {
	result rag.QueryResult
	err    error
	took   time.Duration
}

// AskModel is the question screen: a question, a top_k between 1 and 20,
// and the last answer with its sources.
type AskModel struct {
	asker   Asker
	session *Session
	timeout time.Duration

	styles   *Styles
	question textinput.Model
	topK     textinput.Model
	focus    field
	spinner  spinner.Model
	viewport viewport.Model
	help     help.Model
	keys     keyMap

	asking   bool
	pending  *Exchange
	status   string
	width    int
	height   int
	quitting bool
}

type keyMap struct {
	Submit key.Binding
	Switch key.Binding
	Scroll key.Binding
	Quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "ask"),
		),
		Switch: key.NewBinding(
			key.WithKeys("tab", "shift+tab"),
			key.WithHelp("tab", "question/top_k"),
		),
		Scroll: key.NewBinding(
			key.WithKeys("pgup", "pgdown"),
			key.WithHelp("pgup/pgdn", "scroll answer"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "quit"),
		),
	}
}

// NewAskModel creates the ask screen. defaultTopK is clamped to [1, 20];
// timeout bounds each query, zero for none.
func NewAskModel(asker Asker, session *Session, defaultTopK int, timeout time.Duration) AskModel {
	q := textinput.New()
	q.Placeholder = "Ask a question about your documents..."
	q.Prompt = "> "
	q.Width = 60
	q.Focus()

	k := textinput.New()
	k.Prompt = "top_k: "
	k.CharLimit = 2
	k.Width = 4
	k.SetValue(strconv.Itoa(clampTopK(defaultTopK)))

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	styles := DefaultStyles()
	sp.Style = styles.Spinner

	if session == nil {
		session = NewSession()
	}

	return AskModel{
		asker:    asker,
		session:  session,
		timeout:  timeout,
		styles:   styles,
		question: q,
		topK:     k,
		spinner:  sp,
		viewport: viewport.New(80, 12),
		help:     help.New(),
		keys:     newKeyMap(),
		width:    80,
		height:   24,
	}
}

// Session returns the exchanges recorded so far.
func (m AskModel) Session() *Session { return m.session }

func (m AskModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m AskModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 6
		m.viewport.Height = max(3, msg.Height-14)
		m.viewport.SetContent(m.renderAnswer())
		return m, nil

	case answerMsg:
		m.asking = false
		ex := m.pending
		m.pending = nil
		if ex == nil {
			return m, nil
		}
		ex.Took = msg.took
		if msg.err != nil {
			ex.Err = msg.err
			m.status = "Error: " + msg.err.Error()
		} else {
			ex.Answer = msg.result.Answer
			ex.Sources = msg.result.Sources
			ex.NumContexts = msg.result.NumContexts
			m.status = fmt.Sprintf("Answered from %d contexts in %s", ex.NumContexts, ex.Took.Round(time.Millisecond))
		}
		m.session.Exchanges = append(m.session.Exchanges, ex)
		m.viewport.SetContent(m.renderAnswer())
		m.viewport.GotoTop()
		return m, nil

	case spinner.TickMsg:
		if !m.asking {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case m.asking:
			// Input is locked until the answer arrives.
			return m, nil
		case key.Matches(msg, m.keys.Switch):
			return m.toggleFocus(), nil
		case key.Matches(msg, m.keys.Scroll):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case key.Matches(msg, m.keys.Submit):
			return m.submit()
		}
	}

	var cmd tea.Cmd
	if m.focus == fieldQuestion {
		m.question, cmd = m.question.Update(msg)
	} else {
		m.topK, cmd = m.topK.Update(msg)
	}
	return m, cmd
}

func (m AskModel) toggleFocus() AskModel {
	if m.focus == fieldQuestion {
		m.focus = fieldTopK
		m.question.Blur()
		m.topK.Focus()
	} else {
		m.focus = fieldQuestion
		m.topK.Blur()
		m.question.Focus()
	}
	return m
}

func (m AskModel) submit() (tea.Model, tea.Cmd) {
	question := strings.TrimSpace(m.question.Value())
	if question == "" {
		m.status = "Type a question first."
		return m, nil
	}
	topK, err := parseTopK(m.topK.Value())
	if err != nil {
		m.status = err.Error()
		return m, nil
	}

	m.asking = true
	m.pending = &Exchange{Question: question, TopK: topK, AskedAt: time.Now()}
	m.status = ""
	return m, tea.Batch(m.spinner.Tick, m.ask(rag.QueryEvent{Question: question, TopK: topK}))
}

func (m AskModel) ask(ev rag.QueryEvent) tea.Cmd {
	asker, timeout := m.asker, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		start := time.Now()
		res, err := asker.Query(ctx, ev)
		return answerMsg{result: res, err: err, took: time.Since(start)}
	}
}

func (m AskModel) View() string {
	if m.quitting {
		return ""
	}

	var sections []string
	sections = append(sections, m.styles.Title.Render("docrag ask"))
	sections = append(sections, m.renderInputs())

	if m.asking {
		sections = append(sections, m.spinner.View()+" thinking...")
	} else if m.status != "" {
		style := m.styles.Subtitle
		if last := m.session.Last(); last != nil && last.Failed() {
			style = m.styles.Error
		}
		sections = append(sections, style.Render(m.status))
	}

	if m.session.Last() != nil {
		sections = append(sections, m.styles.AnswerBlock.Width(max(20, m.width-2)).Render(m.viewport.View()))
	}

	sections = append(sections, m.styles.Help.Render(m.help.ShortHelpView([]key.Binding{
		m.keys.Submit, m.keys.Switch, m.keys.Scroll, m.keys.Quit,
	})))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m AskModel) renderInputs() string {
	qStyle, kStyle := m.styles.ActiveBorder, m.styles.Border
	if m.focus == fieldTopK {
		qStyle, kStyle = m.styles.Border, m.styles.ActiveBorder
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		qStyle.Render(m.question.View()),
		" ",
		kStyle.Render(m.topK.View()),
	)
}

// renderAnswer renders the most recent exchange for the viewport.
func (m AskModel) renderAnswer() string {
	ex := m.session.Last()
	if ex == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Label.Render("Q: "))
	b.WriteString(ex.Question)
	b.WriteString("\n\n")

	if ex.Failed() {
		b.WriteString(m.styles.StatusFailed.Render("failed"))
		b.WriteString(" ")
		b.WriteString(ex.Err.Error())
		return b.String()
	}

	b.WriteString(ex.Answer)
	b.WriteString("\n\n")
	b.WriteString(m.styles.Label.Render(fmt.Sprintf("Sources (%d contexts):", ex.NumContexts)))
	b.WriteString("\n")
	if len(ex.Sources) == 0 {
		b.WriteString(m.styles.Help.Render("  none"))
	}
	// One line per retrieved context, best first.
	for i, src := range ex.Sources {
		fmt.Fprintf(&b, "  %d. ", i+1)
		b.WriteString(m.styles.Source.Render(src))
		b.WriteString("\n")
	}
	return b.String()
}

func parseTopK(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < MinTopK || n > MaxTopK {
		return 0, fmt.Errorf("top_k must be a number between %d and %d", MinTopK, MaxTopK)
	}
	return n, nil
}

func clampTopK(n int) int {
	return min(max(n, MinTopK), MaxTopK)
}
