package transcript

import (
	"sync"
	"time"
)

type Origin string

const (
	OriginAIInterviewer Origin = "ai_interviewer"
	OriginCandidate     Origin = "candidate"
	OriginSystem        Origin = "system"
)

type Kind string

const (
	KindContent            Kind = "content"
	KindTypingIndicatorOn  Kind = "typing_on"
	KindTypingIndicatorOff Kind = "typing_off"
)

// Message is one conversational turn. Text is set only for KindContent.
type Message struct {
	Origin Origin    `json:"origin"`
	Kind   Kind      `json:"kind"`
	Text   string    `json:"text,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

// Log is an append-only, ordered record of a single session's messages.
// Entries are never edited or removed once appended.
type Log struct {
	mu   sync.RWMutex
	msgs []Message
}

func New() *Log { return &Log{} }

// Append stores m at the end of the log and returns its position.
func (l *Log) Append(m Message) int {
	if m.Kind != KindContent {
		m.Text = ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, m)
	return len(l.msgs) - 1
}

// Snapshot returns a copy of the full ordered sequence.
func (l *Log) Snapshot() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}

// CountContent counts Content messages from origin.
func (l *Log) CountContent(origin Origin) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, m := range l.msgs {
		if m.Origin == origin && m.Kind == KindContent {
			n++
		}
	}
	return n
}
