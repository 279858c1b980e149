package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/capture"
	"github.com/yoockh/yoointerview/internal/channel"
	"github.com/yoockh/yoointerview/internal/protocol"
	"github.com/yoockh/yoointerview/internal/synthesis"
	"github.com/yoockh/yoointerview/internal/transcript"
)

const (
	DefaultConnectTimeout    = 30 * time.Second
	DefaultMinUtteranceChars = 5
)

var (
	ErrConnectionTimeout = errors.New("timed out waiting for the interview to become active")
	ErrConnectionLost    = errors.New("connection lost")
	ErrNotActive         = errors.New("interview is not active")
	ErrAlreadyStarted    = errors.New("session already started")
	ErrSessionClosed     = errors.New("session closed")
	ErrAlreadyCompleted  = errors.New("interview already completed")
)

type Status int32

const (
	StatusConnecting Status = iota
	StatusActive
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

type Config struct {
	Token             string
	InterviewType     Type
	ConnectTimeout    time.Duration
	MinUtteranceChars int
	SpeakerOff        bool
	AudioOff          bool
	VideoOff          bool
}

// Observer receives UI notifications. Callbacks run on the session's event
// loop; they must return promptly.
type Observer struct {
	OnMessagesChanged   func([]transcript.Message)
	OnStatusChanged     func(Status)
	OnFeedback          func(protocol.Feedback)
	OnTyping            func(bool)
	OnInterim           func(string)
	OnNotice            func(string)
	OnFailure           func(error)
	OnTranscriptFlushed func([]transcript.Message)
}

// Opener hands out the duplex channel for a token; *channel.Registry satisfies it.
type Opener interface {
	Open(ctx context.Context, token string) (*channel.Channel, error)
}

// Session is one interview attempt: it owns the channel handle, the capture and
// synthesis adapters and the transcript. All protocol events are handled on a
// single goroutine in arrival order.
type Session struct {
	cfg     Config
	log     logrus.FieldLogger
	opener  Opener
	capture capture.Adapter
	synth   synthesis.Adapter
	obs     Observer
	tlog    *transcript.Log

	started atomic.Bool
	cmds    chan func()
	quit    chan struct{}
	settled chan struct{}

	settleOnce  sync.Once
	cleanupOnce sync.Once

	mu             sync.Mutex
	status         Status
	failure        error
	feedback       *protocol.Feedback
	typing         bool
	startedAt      time.Time
	endedAt        time.Time
	audioOn        bool
	videoOn        bool
	speakerOn      bool
	endRequested   bool
	activated      bool
	ch             *channel.Channel
	channelClosed  bool
	captureRunning bool
	captureCancel  context.CancelFunc // set while a capture start is pending or running
	synthClosed    bool
	cleaned        bool
}

// New builds a Session in Connecting. capt and synth may be nil, in which case
// only typed input is available and nothing is spoken.
func New(cfg Config, opener Opener, capt capture.Adapter, synth synthesis.Adapter, obs Observer, log logrus.FieldLogger) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.MinUtteranceChars <= 0 {
		cfg.MinUtteranceChars = DefaultMinUtteranceChars
	}
	if cfg.InterviewType == "" {
		cfg.InterviewType = TypeGeneral
	}
	if synth == nil {
		synth = synthesis.Nop{}
	}
	if log == nil {
		log = logrus.New()
	}
	return &Session{
		cfg:       cfg,
		log:       log.WithFields(logrus.Fields{"token": cfg.Token, "interview_type": string(cfg.InterviewType)}),
		opener:    opener,
		capture:   capt,
		synth:     synth,
		obs:       obs,
		tlog:      transcript.New(),
		cmds:      make(chan func(), 16),
		quit:      make(chan struct{}),
		settled:   make(chan struct{}),
		status:    StatusConnecting,
		startedAt: time.Now(),
		audioOn:   !cfg.AudioOff,
		videoOn:   !cfg.VideoOff,
		speakerOn: !cfg.SpeakerOff,
	}
}

// Start opens the channel and blocks until the engine declares the session
// active, the session fails, or ConnectTimeout elapses (ErrConnectionTimeout).
// A session the engine reports as already finished returns ErrAlreadyCompleted
// after OnFeedback has run. On any other error the session is cleaned up;
// retry with a fresh Session.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	ch, err := s.opener.Open(ctx, s.cfg.Token)
	if ch != nil {
		s.mu.Lock()
		s.ch = ch
		s.mu.Unlock()
	}
	if err != nil {
		s.Cleanup()
		return s.setupError(err)
	}

	go s.loop(ch.Events())

	select {
	case <-s.settled:
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case s.failure != nil:
			return s.failure
		case s.status == StatusConnecting:
			return ErrSessionClosed
		case s.status == StatusCompleted && !s.activated:
			return ErrAlreadyCompleted
		}
		return nil
	case <-ctx.Done():
		s.Cleanup()
		return s.setupError(ctx.Err())
	}
}

func (s *Session) setupError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		s.log.WithField("timeout", s.cfg.ConnectTimeout.String()).Warn("interview did not become active in time")
		return ErrConnectionTimeout
	}
	return err
}

func (s *Session) Token() string { return s.cfg.Token }

func (s *Session) Type() Type { return s.cfg.InterviewType }

func (s *Session) StartedAt() time.Time { return s.startedAt }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Failed reports the terminal transport failure, if any.
func (s *Session) Failed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *Session) Feedback() (protocol.Feedback, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feedback == nil {
		return protocol.Feedback{}, false
	}
	return *s.feedback, true
}

func (s *Session) EndedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt, !s.endedAt.IsZero()
}

func (s *Session) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

func (s *Session) Transcript() []transcript.Message { return s.tlog.Snapshot() }

// ToggleAudio mutes or unmutes capture and returns whether audio is now on.
func (s *Session) ToggleAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioOn = !s.audioOn
	if s.capture != nil {
		s.capture.SetMuted(!s.audioOn)
	}
	return s.audioOn
}

// ToggleSpeaker turns spoken output on or off; turning it off cancels the
// current utterance.
func (s *Session) ToggleSpeaker() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speakerOn = !s.speakerOn
	if !s.speakerOn && !s.synthClosed {
		s.synth.Cancel()
	}
	return s.speakerOn
}

// ToggleVideo flips the camera flag. Video is presentational only.
func (s *Session) ToggleVideo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoOn = !s.videoOn
	return s.videoOn
}

// SubmitText sends typed input. Unlike speech it bypasses the noise filter.
func (s *Session) SubmitText(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if s.Status() != StatusActive || s.Failed() != nil {
		return ErrNotActive
	}
	return s.post(func() { s.submit(text) })
}

// EndInterview asks the engine to finish. The session stays Active until the
// engine answers with interview_completed.
func (s *Session) EndInterview() error {
	if s.Status() != StatusActive || s.Failed() != nil {
		return ErrNotActive
	}
	return s.post(func() {
		s.mu.Lock()
		ch, already := s.ch, s.endRequested
		s.endRequested = true
		s.mu.Unlock()
		if already || ch == nil {
			return
		}
		if err := ch.Send(protocol.EndInterview()); err != nil {
			s.log.WithError(err).Warn("failed to send end_interview")
		}
	})
}

// Cleanup releases the channel, capture and synthesis, each at most once, and
// flushes the transcript. Safe to call repeatedly and from any goroutine.
func (s *Session) Cleanup() {
	s.cleanupOnce.Do(func() {
		s.mu.Lock()
		s.cleaned = true
		s.mu.Unlock()

		s.stopCapture()
		s.closeSynth()
		s.closeChannel()
		close(s.quit)
		s.settle()

		if s.obs.OnTranscriptFlushed != nil {
			s.obs.OnTranscriptFlushed(s.tlog.Snapshot())
		}
		s.log.WithField("messages", s.tlog.Len()).Info("session cleaned up")
	})
}

func (s *Session) post(fn func()) error {
	select {
	case <-s.quit:
		return ErrSessionClosed
	default:
	}
	select {
	case s.cmds <- fn:
		return nil
	case <-s.quit:
		return ErrSessionClosed
	}
}

func (s *Session) loop(events <-chan channel.Event) {
	var fragments <-chan capture.Fragment
	if s.capture != nil {
		fragments = s.capture.Fragments()
	}
	for {
		select {
		case <-s.quit:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ev)
		case fr := <-fragments:
			s.handleFragment(fr)
		case fn := <-s.cmds:
			fn()
		}
	}
}

func (s *Session) handleEvent(ev channel.Event) {
	switch ev.Kind {
	case channel.EventOpen:
		s.mu.Lock()
		ch := s.ch
		s.mu.Unlock()
		if ch == nil {
			return
		}
		if err := ch.Send(protocol.ConnectionReady()); err != nil {
			s.log.WithError(err).Warn("failed to send connection_ready")
		}
	case channel.EventFrame:
		s.handleFrame(ev.Frame)
	case channel.EventDisconnected, channel.EventTransportError:
		if s.Status() == StatusCompleted {
			s.log.Debug("channel closed after completion")
			return
		}
		s.fail(fmt.Errorf("%w: %w", ErrConnectionLost, ev.Err))
	}
}

func (s *Session) handleFrame(f protocol.Frame) {
	switch f.Type {
	case protocol.TypeSessionStatus:
		if f.Status != protocol.StatusActive {
			s.log.WithField("status", f.Status).Debug("ignoring session_status")
			return
		}
		s.activate()
	case protocol.TypeTypingIndicator:
		s.setTyping(f.Typing())
	case protocol.TypeAIMessage:
		s.receiveAIMessage(f)
	case protocol.TypeInterviewCompleted:
		s.complete(f)
	case protocol.TypeError:
		s.log.WithField("message", f.Message).Warn("engine reported an error")
		if s.obs.OnNotice != nil {
			s.obs.OnNotice(f.Message)
		}
	default:
		s.log.WithField("type", f.Type).Debug("ignoring unknown frame")
	}
}

func (s *Session) activate() {
	s.mu.Lock()
	if s.status != StatusConnecting || s.failure != nil {
		s.mu.Unlock()
		return
	}
	s.status = StatusActive
	s.activated = true
	s.mu.Unlock()

	s.log.Info("interview active")
	if s.obs.OnStatusChanged != nil {
		s.obs.OnStatusChanged(StatusActive)
	}
	s.settle()
	s.startCapture()
}

func (s *Session) setTyping(on bool) {
	s.mu.Lock()
	if s.typing == on {
		s.mu.Unlock()
		return
	}
	s.typing = on
	s.mu.Unlock()
	if s.obs.OnTyping != nil {
		s.obs.OnTyping(on)
	}
}

func (s *Session) receiveAIMessage(f protocol.Frame) {
	if s.Status() == StatusCompleted {
		s.log.Debug("dropping ai_message after completion")
		return
	}
	s.tlog.Append(transcript.Message{
		Origin: transcript.OriginAIInterviewer,
		Kind:   transcript.KindContent,
		Text:   f.Content,
		SentAt: time.Now(),
	})
	s.setTyping(false)

	s.mu.Lock()
	if s.speakerOn && !s.synthClosed {
		s.synth.Speak(f.Content)
	}
	s.mu.Unlock()

	s.messagesChanged()
}

func (s *Session) complete(f protocol.Frame) {
	s.mu.Lock()
	if s.status == StatusCompleted {
		s.mu.Unlock()
		return
	}
	var fb protocol.Feedback
	if f.Feedback != nil {
		fb = *f.Feedback
	} else {
		s.log.Warn("interview_completed without feedback")
	}
	s.feedback = &fb
	s.status = StatusCompleted
	s.endedAt = time.Now()
	s.mu.Unlock()

	s.setTyping(false)
	s.stopCapture()
	s.mu.Lock()
	if !s.synthClosed {
		s.synth.Cancel()
	}
	s.mu.Unlock()

	s.log.WithField("overall_score", fb.OverallScore).Info("interview completed")
	if s.obs.OnStatusChanged != nil {
		s.obs.OnStatusChanged(StatusCompleted)
	}
	if s.obs.OnFeedback != nil {
		s.obs.OnFeedback(fb)
	}
	s.settle()
}

func (s *Session) handleFragment(fr capture.Fragment) {
	s.mu.Lock()
	audioOn, status := s.audioOn, s.status
	s.mu.Unlock()
	if !audioOn || status != StatusActive {
		return
	}

	if !fr.Final {
		if s.obs.OnInterim != nil {
			s.obs.OnInterim(fr.Text)
		}
		return
	}
	if s.obs.OnInterim != nil {
		s.obs.OnInterim("")
	}
	text := strings.TrimSpace(fr.Text)
	if utf8.RuneCountInString(text) < s.cfg.MinUtteranceChars {
		s.log.WithField("chars", utf8.RuneCountInString(text)).Debug("dropping short utterance")
		return
	}
	s.submit(text)
}

// submit records a candidate turn and forwards it as user_text.
func (s *Session) submit(text string) {
	text = strings.TrimSpace(text)
	if text == "" || s.Status() != StatusActive {
		return
	}
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()

	s.tlog.Append(transcript.Message{
		Origin: transcript.OriginCandidate,
		Kind:   transcript.KindContent,
		Text:   text,
		SentAt: time.Now(),
	})
	s.messagesChanged()

	if err := ch.Send(protocol.UserText(text)); err != nil {
		s.log.WithError(err).Warn("failed to send user_text")
		if s.obs.OnNotice != nil {
			s.obs.OnNotice("message could not be delivered")
		}
	}
}

func (s *Session) messagesChanged() {
	if s.obs.OnMessagesChanged != nil {
		s.obs.OnMessagesChanged(s.tlog.Snapshot())
	}
}

// fail marks the session as terminally failed and releases its resources.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.failure != nil {
		s.mu.Unlock()
		return
	}
	s.failure = err
	s.mu.Unlock()

	s.log.WithError(err).Error("interview session failed")
	s.stopCapture()
	s.mu.Lock()
	if !s.synthClosed {
		s.synth.Cancel()
	}
	s.mu.Unlock()
	s.closeChannel()

	if s.obs.OnFailure != nil {
		s.obs.OnFailure(err)
	}
	s.settle()
}

func (s *Session) settle() { s.settleOnce.Do(func() { close(s.settled) }) }

// startCapture kicks off capture without blocking the loop: acquiring the
// input may wait on a permission prompt.
func (s *Session) startCapture() {
	s.mu.Lock()
	if s.capture == nil || s.cleaned || s.captureCancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.captureCancel = cancel
	s.capture.SetMuted(!s.audioOn)
	s.mu.Unlock()

	go func() { s.captureStarted(cancel, s.capture.Start(ctx)) }()
}

// captureStarted records the outcome of a capture start. A start that
// finishes after the session has moved on is undone.
func (s *Session) captureStarted(cancel context.CancelFunc, err error) {
	s.mu.Lock()
	// stopCapture clears captureCancel when it abandons the pending start
	abandoned := s.cleaned || s.status != StatusActive || s.failure != nil || s.captureCancel == nil
	if err == nil && !abandoned {
		s.captureRunning = true
	}
	if err != nil && !abandoned {
		s.captureCancel = nil
	}
	s.mu.Unlock()

	switch {
	case err == nil && abandoned:
		s.capture.Stop()
		cancel()
	case err != nil:
		cancel()
		if abandoned {
			return
		}
		s.log.WithError(err).Warn("voice capture unavailable; typed input only")
		_ = s.post(func() {
			if s.obs.OnNotice != nil {
				s.obs.OnNotice(fmt.Sprintf("voice input unavailable: %v", err))
			}
		})
	}
}

func (s *Session) stopCapture() {
	s.mu.Lock()
	cancel, running := s.captureCancel, s.captureRunning
	s.captureCancel = nil
	s.captureRunning = false
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	// a pending start is only cancelled here; captureStarted stops it if it succeeds
	if running {
		s.capture.Stop()
	}
	cancel()
}

func (s *Session) closeSynth() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.synthClosed {
		return
	}
	s.synthClosed = true
	if err := s.synth.Close(); err != nil {
		s.log.WithError(err).Debug("synthesis close failed")
	}
}

func (s *Session) closeChannel() {
	s.mu.Lock()
	ch := s.ch
	if ch == nil || s.channelClosed {
		s.mu.Unlock()
		return
	}
	s.channelClosed = true
	s.mu.Unlock()
	if err := ch.Close(); err != nil {
		s.log.WithError(err).Debug("channel close failed")
	}
}
