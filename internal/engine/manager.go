package engine

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/interview"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/protocol"
	"github.com/yoockh/yoointerview/internal/services"
)

const minAnswerChars = 5

// Peer is the engine's end of a client connection.
type Peer interface {
	Send(f protocol.Frame) error
}

// ReportSink receives the report of every completed interview.
type ReportSink interface {
	Enqueue(ctx context.Context, r models.Report) error
}

// SessionRecorder is the durable session store the engine reports to.
type SessionRecorder interface {
	Start(ctx context.Context, p services.StartSessionParams) (*models.InterviewSession, error)
	SetStatus(ctx context.Context, sessionID, status string) error
}

type CreateParams struct {
	UserID        string
	InterviewType interview.Type
	ResumeID      string
	ResumeText    string
}

type Created struct {
	Token     string
	SessionID string
	Questions int
}

// StatusView is the polling view of a session.
type StatusView struct {
	Status             string    `json:"status"`
	CurrentQuestion    int       `json:"current_question_index"`
	TotalQuestions     int       `json:"total_questions"`
	ConversationLength int       `json:"conversation_length"`
	StartedAt          time.Time `json:"started_at"`
}

type ManagerConfig struct {
	Store     *Store
	Sessions  SessionRecorder
	Questions *QuestionGenerator
	Evaluator Evaluator
	Responder *Responder
	Reports   ReportSink
	Log       logrus.FieldLogger

	NumQuestions int
	Now          func() time.Time
}

// Manager runs the interviewer side of every realtime session. Frames for one
// token are handled one at a time; different tokens proceed in parallel.
type Manager struct {
	cfg ManagerConfig
	log logrus.FieldLogger

	locks [64]sync.Mutex

	mu    sync.Mutex
	peers map[string]Peer
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Evaluator == nil {
		cfg.Evaluator = Heuristic{}
	}
	if cfg.Responder == nil {
		cfg.Responder = &Responder{}
	}
	if cfg.NumQuestions <= 0 {
		cfg.NumQuestions = DefaultNumQuestions
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = logrus.New()
	}
	return &Manager{cfg: cfg, log: cfg.Log, peers: map[string]Peer{}}
}

func (m *Manager) lock(token string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	l := &m.locks[h.Sum32()%uint32(len(m.locks))]
	l.Lock()
	return l.Unlock
}

// Create prepares questions, records the session and stores its realtime
// state under a fresh token.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*Created, error) {
	token := uuid.NewString()
	questions := m.cfg.Questions.Generate(ctx, p.InterviewType, p.ResumeText, m.cfg.NumQuestions)

	sessionID := uuid.NewString()
	startedAt := m.cfg.Now().UTC()
	if m.cfg.Sessions != nil {
		rec, err := m.cfg.Sessions.Start(ctx, services.StartSessionParams{
			UserID:        p.UserID,
			InterviewType: string(p.InterviewType),
			ResumeID:      p.ResumeID,
			Token:         token,
			Questions:     questions,
		})
		if err != nil {
			return nil, err
		}
		sessionID = rec.SessionID
		startedAt = rec.CreatedAt
	}

	st := &State{
		Token:         token,
		SessionID:     sessionID,
		UserID:        p.UserID,
		InterviewType: string(p.InterviewType),
		Status:        models.SessionReady,
		Questions:     questions,
		StartedAt:     startedAt,
	}
	if err := m.cfg.Store.Save(ctx, st); err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"session_id":     sessionID,
		"interview_type": p.InterviewType,
		"questions":      len(questions),
	}).Info("interview session created")
	return &Created{Token: token, SessionID: sessionID, Questions: len(questions)}, nil
}

// Attach binds peer to token and greets the candidate. A second attach for
// the same token replaces the earlier peer.
func (m *Manager) Attach(ctx context.Context, token string, peer Peer) error {
	unlock := m.lock(token)
	defer unlock()

	st, err := m.cfg.Store.Load(ctx, token)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.peers[token] = peer
	m.mu.Unlock()

	if st.Completed() && st.Feedback != nil {
		return peer.Send(protocol.InterviewCompleted(*st.Feedback, CompletedMessage))
	}
	return peer.Send(protocol.AIMessage(WelcomeMessage, m.cfg.Now()))
}

// Detach forgets peer if it is still the one bound to token.
func (m *Manager) Detach(token string, peer Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.peers[token] == peer {
		delete(m.peers, token)
	}
}

func (m *Manager) send(token string, f protocol.Frame) {
	m.mu.Lock()
	p := m.peers[token]
	m.mu.Unlock()
	if p == nil {
		return
	}
	if err := p.Send(f); err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{"token_prefix": prefix(token), "type": f.Type}).Debug("send to peer failed")
	}
}

// Handle processes one client frame. Unknown frame types are ignored.
func (m *Manager) Handle(ctx context.Context, token string, f protocol.Frame) error {
	switch f.Type {
	case protocol.TypeEndInterview:
		_, err := m.End(ctx, token)
		return err
	case protocol.TypeConnectionReady, protocol.TypeUserText, protocol.TypeRequestNextQuestion:
	default:
		m.log.WithField("type", f.Type).Debug("ignoring frame")
		return nil
	}

	unlock := m.lock(token)
	defer unlock()

	st, err := m.cfg.Store.Load(ctx, token)
	if err != nil {
		return err
	}

	switch f.Type {
	case protocol.TypeConnectionReady:
		return m.onReady(ctx, st)
	case protocol.TypeUserText:
		return m.onUserText(ctx, st, f.Text)
	default:
		return m.onNextQuestion(ctx, st)
	}
}

func (m *Manager) onReady(ctx context.Context, st *State) error {
	if !st.Completed() {
		st.Status = models.SessionActive
		if err := m.cfg.Store.Save(ctx, st); err != nil {
			return err
		}
		if m.cfg.Sessions != nil {
			if err := m.cfg.Sessions.SetStatus(ctx, st.SessionID, models.SessionActive); err != nil {
				m.log.WithError(err).WithField("session_id", st.SessionID).Warn("failed to mark session active")
			}
		}
	}
	m.send(st.Token, protocol.SessionStatus(protocol.StatusActive, ReadyMessage))
	return nil
}

func (m *Manager) onUserText(ctx context.Context, st *State, text string) error {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minAnswerChars || st.Completed() {
		return nil
	}

	st.History = append(st.History, Turn{Role: models.RoleCandidate, Content: text, Timestamp: m.cfg.Now().UTC()})
	m.send(st.Token, protocol.TypingIndicator(true))

	last := len(st.History) - 1
	if q, ok := st.lastQuestionBefore(last); ok {
		ev := m.cfg.Evaluator.Evaluate(ctx, q, text, interview.Type(st.InterviewType))
		st.History[last].Evaluation = &ev
	}

	reply := m.cfg.Responder.Reply(st, text)
	now := m.cfg.Now()
	st.History = append(st.History, Turn{Role: models.RoleInterviewer, Content: reply, Timestamp: now.UTC()})

	err := m.cfg.Store.Save(ctx, st)
	m.send(st.Token, protocol.TypingIndicator(false))
	if err != nil {
		return err
	}
	m.send(st.Token, protocol.AIMessage(reply, now))
	return nil
}

func (m *Manager) onNextQuestion(ctx context.Context, st *State) error {
	if st.Completed() {
		return nil
	}
	q := m.cfg.Responder.NextQuestion(st)
	now := m.cfg.Now()
	st.History = append(st.History, Turn{Role: models.RoleInterviewer, Content: q, Timestamp: now.UTC()})
	if err := m.cfg.Store.Save(ctx, st); err != nil {
		return err
	}
	m.send(st.Token, protocol.AIMessage(q, now))
	return nil
}

// End completes the interview and sends the feedback to the connected peer.
// Ending an already completed interview resends the stored feedback.
func (m *Manager) End(ctx context.Context, token string) (*protocol.Feedback, error) {
	unlock := m.lock(token)
	defer unlock()

	st, err := m.cfg.Store.Load(ctx, token)
	if err != nil {
		return nil, err
	}

	if !st.Completed() || st.Feedback == nil {
		now := m.cfg.Now().UTC()
		fb := BuildFeedback(st, now)
		st.Status = models.SessionCompleted
		st.EndedAt = &now
		st.Feedback = &fb
		if err := m.cfg.Store.Save(ctx, st); err != nil {
			return nil, err
		}
		m.enqueueReport(ctx, st)
	}

	m.send(token, protocol.InterviewCompleted(*st.Feedback, CompletedMessage))
	return st.Feedback, nil
}

func (m *Manager) enqueueReport(ctx context.Context, st *State) {
	if m.cfg.Reports == nil {
		return
	}
	r, err := BuildReport(st)
	if err == nil {
		err = m.cfg.Reports.Enqueue(ctx, r)
	}
	if err != nil {
		m.log.WithError(err).WithField("session_id", st.SessionID).Error("failed to enqueue interview report")
	}
}

func (m *Manager) Status(ctx context.Context, token string) (*StatusView, error) {
	st, err := m.cfg.Store.Load(ctx, token)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		Status:             st.Status,
		CurrentQuestion:    st.Current,
		TotalQuestions:     len(st.Questions),
		ConversationLength: len(st.History),
		StartedAt:          st.StartedAt,
	}, nil
}

// BuildReport turns a completed state into the archived report.
func BuildReport(st *State) (models.Report, error) {
	if st.Feedback == nil || st.EndedAt == nil {
		return models.Report{}, errors.New("interview not completed")
	}
	fb, err := json.Marshal(st.Feedback)
	if err != nil {
		return models.Report{}, err
	}

	r := models.Report{
		SessionID:     st.SessionID,
		UserID:        st.UserID,
		InterviewType: st.InterviewType,
		StartedAt:     st.StartedAt,
		EndedAt:       *st.EndedAt,
		Feedback:      fb,
		OverallScore:  st.Feedback.OverallScore,
		Responses:     st.Feedback.TotalResponses,
		Turns:         make([]models.ReportTurn, 0, len(st.History)),
	}
	for _, t := range st.History {
		rt := models.ReportTurn{Role: t.Role, Content: t.Content, Timestamp: t.Timestamp}
		if t.Evaluation != nil {
			if rt.Evaluation, err = json.Marshal(t.Evaluation); err != nil {
				return models.Report{}, err
			}
		}
		r.Turns = append(r.Turns, rt)
	}
	return r, nil
}

func prefix(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
