package engine

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/yoointerview/internal/cache"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/protocol"
)

const DefaultStateTTL = 2 * time.Hour

var ErrUnknownSession = errors.New("unknown session token")

// Turn is one entry of the engine-side conversation history.
type Turn struct {
	Role       string      `json:"role"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
}

// State is everything the engine keeps about a live interview, addressed by
// its session token.
type State struct {
	Token         string    `json:"token"`
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	InterviewType string    `json:"interview_type"`
	Status        string    `json:"status"`
	Questions     []string  `json:"questions"`
	Current       int       `json:"current_question_index"`
	History       []Turn    `json:"conversation_history"`
	StartedAt     time.Time `json:"started_at"`

	EndedAt  *time.Time         `json:"ended_at,omitempty"`
	Feedback *protocol.Feedback `json:"feedback,omitempty"`
}

func (s *State) Completed() bool { return s.Status == models.SessionCompleted }

// Responses counts candidate turns.
func (s *State) Responses() int {
	n := 0
	for _, t := range s.History {
		if t.Role == models.RoleCandidate {
			n++
		}
	}
	return n
}

// lastQuestionBefore returns the latest interviewer turn preceding index i.
func (s *State) lastQuestionBefore(i int) (string, bool) {
	for j := i - 1; j >= 0; j-- {
		if s.History[j].Role == models.RoleInterviewer {
			return s.History[j].Content, true
		}
	}
	return "", false
}

// Store persists State documents in a cache, refreshing the TTL on every save.
type Store struct {
	c   cache.Cache
	ttl time.Duration
}

func NewStore(c cache.Cache, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &Store{c: c, ttl: ttl}
}

func (s *Store) Load(ctx context.Context, token string) (*State, error) {
	if token == "" {
		return nil, ErrUnknownSession
	}
	var st State
	hit, err := s.c.GetJSON(ctx, token, &st)
	if err != nil {
		return nil, err
	}
	if !hit {
		return nil, ErrUnknownSession
	}
	return &st, nil
}

func (s *Store) Save(ctx context.Context, st *State) error {
	return s.c.SetJSON(ctx, st.Token, st, s.ttl)
}

func (s *Store) Delete(ctx context.Context, token string) error {
	return s.c.Del(ctx, token)
}
