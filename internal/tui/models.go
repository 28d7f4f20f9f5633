package tui

import (
	"context"
	"time"

	"github.com/efebarandurmaz/docrag/internal/rag"
)

// MinTopK and MaxTopK bound the number of contexts a question may request.
const (
	MinTopK = 1
	MaxTopK = 20
)

// Asker runs a query event. trigger.Backend satisfies it.
type Asker interface {
	Query(ctx context.Context, ev rag.QueryEvent) (rag.QueryResult, error)
}

// Exchange is one question and what came back for it.
type Exchange struct {
	Question    string
	TopK        int
	Answer      string
	Sources     []string
	NumContexts int
	Err         error
	AskedAt     time.Time
	Took        time.Duration
}

// Failed reports whether the query returned an error.
func (e *Exchange) Failed() bool { return e.Err != nil }

// Session holds every exchange of one ask run, oldest first.
type Session struct {
	Exchanges []*Exchange
	StartedAt time.Time
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{StartedAt: time.Now()}
}

// Last returns the most recent exchange, or nil.
func (s *Session) Last() *Exchange {
	if len(s.Exchanges) == 0 {
		return nil
	}
	return s.Exchanges[len(s.Exchanges)-1]
}

// SessionStats summarizes a session.
type SessionStats struct {
	Questions int
	Answered  int
	Failed    int
	Sources   []string // distinct, first seen first
}

// Stats counts answered and failed exchanges and collects the sources cited.
func (s *Session) Stats() SessionStats {
	var st SessionStats
	seen := make(map[string]bool)
	for _, ex := range s.Exchanges {
		st.Questions++
		if ex.Failed() {
			st.Failed++
			continue
		}
		st.Answered++
		for _, src := range ex.Sources {
			if !seen[src] {
				seen[src] = true
				st.Sources = append(st.Sources, src)
			}
		}
	}
	return st
}
