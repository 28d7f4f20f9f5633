package tui

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// RunAsk starts the interactive ask screen, then shows the session summary.
// Returns the session with every exchange.
func RunAsk(asker Asker, defaultTopK int, timeout time.Duration) (*Session, error) {
	askModel := NewAskModel(asker, NewSession(), defaultTopK, timeout)
	p := tea.NewProgram(askModel, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("TUI error: %w", err)
	}

	final := finalModel.(AskModel)
	if len(final.session.Exchanges) == 0 {
		return final.session, nil
	}

	sp := tea.NewProgram(NewSummaryModel(final.session), tea.WithAltScreen())
	if _, err := sp.Run(); err != nil {
		return nil, fmt.Errorf("summary error: %w", err)
	}

	return final.session, nil
}

// Transcript is the JSON form of a session.
type Transcript struct {
	StartedAt string            `json:"started_at"`
	Exchanges []TranscriptItem  `json:"exchanges"`
	Summary   TranscriptSummary `json:"summary"`
}

// TranscriptItem is one exchange in a transcript.
type TranscriptItem struct {
	Question    string   `json:"question"`
	TopK        int      `json:"top_k"`
	Answer      string   `json:"answer,omitempty"`
	Sources     []string `json:"sources"`
	NumContexts int      `json:"num_contexts"`
	Error       string   `json:"error,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
}

// TranscriptSummary holds the session counts.
type TranscriptSummary struct {
	Questions int      `json:"questions"`
	Answered  int      `json:"answered"`
	Failed    int      `json:"failed"`
	Sources   []string `json:"sources"`
}

// NewTranscript converts a session.
func NewTranscript(session *Session) Transcript {
	items := make([]TranscriptItem, 0, len(session.Exchanges))
	for _, ex := range session.Exchanges {
		item := TranscriptItem{
			Question:    ex.Question,
			TopK:        ex.TopK,
			Answer:      ex.Answer,
			Sources:     ex.Sources,
			NumContexts: ex.NumContexts,
			DurationMS:  ex.Took.Milliseconds(),
		}
		if item.Sources == nil {
			item.Sources = []string{}
		}
		if ex.Err != nil {
			item.Error = ex.Err.Error()
		}
		items = append(items, item)
	}

	st := session.Stats()
	if st.Sources == nil {
		st.Sources = []string{}
	}
	return Transcript{
		StartedAt: session.StartedAt.UTC().Format(time.RFC3339),
		Exchanges: items,
		Summary: TranscriptSummary{
			Questions: st.Questions,
			Answered:  st.Answered,
			Failed:    st.Failed,
			Sources:   st.Sources,
		},
	}
}

// SaveTranscript writes the session as indented JSON.
func SaveTranscript(session *Session, outputPath string) error {
	data, err := json.MarshalIndent(NewTranscript(session), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}

	return nil
}
