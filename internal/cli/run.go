package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/capture"
	"github.com/yoockh/yoointerview/internal/channel"
	"github.com/yoockh/yoointerview/internal/interview"
	"github.com/yoockh/yoointerview/internal/logger"
	"github.com/yoockh/yoointerview/internal/protocol"
	"github.com/yoockh/yoointerview/internal/providers/stt"
	"github.com/yoockh/yoointerview/internal/synthesis"
	"github.com/yoockh/yoointerview/internal/tokenissuer"
	"github.com/yoockh/yoointerview/internal/transcript"
)

type Options struct {
	APIBaseURL  string
	AuthToken   string
	SessionType string
	ResumeText  string
	ResumeFile  string

	Voice   string
	TTS     string
	TTSOut  string
	Script  bool
	Verbose bool

	ConnectTimeout    time.Duration
	MinUtteranceChars int
	Language          string
	DeepgramAPIKey    string
	DeepgramModel     string
	SettleTimeout     time.Duration
}

// Run creates a session, drives it from s.In and prints the conversation to
// s.Out until the interview completes, fails or input ends.
func Run(ctx context.Context, opts Options, s Streams) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.NewCLI(s.Err, opts.Verbose)

	resume := opts.ResumeText
	if resume == "" && opts.ResumeFile != "" {
		b, err := os.ReadFile(opts.ResumeFile)
		if err != nil {
			return fmt.Errorf("read resume: %w", err)
		}
		resume = string(b)
	}

	issuer := &tokenissuer.Client{BaseURL: opts.APIBaseURL, AuthToken: opts.AuthToken}
	tok, err := issuer.Create(ctx, tokenissuer.CreateRequest{SessionType: opts.SessionType, ResumeText: resume})
	if err != nil {
		return err
	}
	base, err := tokenissuer.DialBase(opts.APIBaseURL, tok)
	if err != nil {
		return err
	}
	log.WithField("session_id", tok.SessionID).Debug("session issued")

	stdin := s.In
	if opts.Voice == "-" {
		stdin = nil
	}
	input := newInputPump(stdin)
	defer input.closeScript()

	capt, closeCapture, err := buildCapture(ctx, opts, input, log)
	if err != nil {
		return err
	}
	defer closeCapture()

	synth, closeSynth, err := buildSynthesis(opts, s.Out, log)
	if err != nil {
		return err
	}
	defer closeSynth()

	p := &printer{w: s.Out}
	done := make(chan struct{})
	var doneOnce sync.Once
	finish := func() { doneOnce.Do(func() { close(done) }) }

	typ, _ := interview.ParseType(opts.SessionType)
	sess := interview.New(interview.Config{
		Token:             tok.SessionToken,
		InterviewType:     typ,
		ConnectTimeout:    opts.ConnectTimeout,
		MinUtteranceChars: opts.MinUtteranceChars,
		SpeakerOff:        opts.TTS == "off",
		AudioOff:          capt == nil,
	}, channel.NewRegistry(channel.WSDialer{BaseURL: base}, log), capt, synth, interview.Observer{
		OnMessagesChanged: p.messages,
		OnTyping:          p.typing,
		OnInterim:         p.interim,
		OnNotice:          func(msg string) { p.line("! %s", msg) },
		OnFeedback: func(fb protocol.Feedback) {
			p.feedback(fb)
			finish()
		},
		OnFailure: func(err error) {
			p.line("! session failed: %v", err)
			finish()
		},
	}, log)
	defer sess.Cleanup()

	if err := sess.Start(ctx); err != nil {
		if errors.Is(err, interview.ErrAlreadyCompleted) {
			// feedback has been printed by OnFeedback
			return nil
		}
		return err
	}
	p.line("-- connected (%s interview). Type your answers, /end to finish.", typ)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return sess.Failed()
		case line, ok := <-input.lines:
			if !ok {
				return endAfterSettle(ctx, sess, done, opts.SettleTimeout, p)
			}
			if quit := handleLine(ctx, sess, line, input, opts.Script, done, p); quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, sess *interview.Session, line string, input *inputPump, script bool, done <-chan struct{}, p *printer) (quit bool) {
	switch strings.TrimSpace(line) {
	case "":
		return false
	case "/end":
		if err := sess.EndInterview(); err != nil {
			p.line("! %v", err)
		}
	case "/mute":
		p.line("-- microphone %s", onOff(sess.ToggleAudio()))
	case "/speaker":
		p.line("-- speaker %s", onOff(sess.ToggleSpeaker()))
	case "/video":
		p.line("-- camera %s", onOff(sess.ToggleVideo()))
	case "/quit":
		return true
	default:
		if script {
			if !input.forward(ctx, line, done) {
				p.line("! answer not delivered: %s", line)
			}
			return false
		}
		if err := sess.SubmitText(line); err != nil {
			p.line("! %v", err)
		}
	}
	return false
}

const quietPeriod = time.Second

// endAfterSettle waits until the interviewer has answered the last turn and
// the transcript has been quiet for a moment, then ends the interview and
// waits for the feedback.
func endAfterSettle(ctx context.Context, sess *interview.Session, done <-chan struct{}, settle time.Duration, p *printer) error {
	deadline := time.Now().Add(settle)
	seen, changed := -1, time.Now()
	for time.Now().Before(deadline) {
		if n := len(sess.Transcript()); n != seen {
			seen, changed = n, time.Now()
		}
		if time.Since(changed) >= quietPeriod && settled(sess) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return sess.Failed()
		case <-time.After(50 * time.Millisecond):
		}
	}
	if err := sess.EndInterview(); err != nil {
		if errors.Is(err, interview.ErrNotActive) {
			return sess.Failed()
		}
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return sess.Failed()
	case <-time.After(settle):
		p.line("! no feedback received")
		return nil
	}
}

// settled reports whether the interviewer has had the last word.
func settled(sess *interview.Session) bool {
	if sess.Typing() {
		return false
	}
	msgs := sess.Transcript()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Kind == transcript.KindContent {
			return msgs[i].Origin == transcript.OriginAIInterviewer
		}
	}
	return false
}

func buildCapture(ctx context.Context, opts Options, input *inputPump, log logrus.FieldLogger) (capture.Adapter, func(), error) {
	switch {
	case opts.Voice != "":
		provider, err := stt.NewGoogleSpeech(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("speech client: %w", err)
		}
		open := func(context.Context) (io.ReadCloser, error) {
			if opts.Voice == "-" {
				return io.NopCloser(os.Stdin), nil
			}
			return os.Open(opts.Voice)
		}
		sc := capture.NewSpeechCapture(provider, open, stt.StreamConfig{Language: opts.Language}, log)
		return sc, func() { _ = provider.Close() }, nil
	case opts.Script:
		return capture.NewLineCapture(input.scriptReader(), log), input.closeScript, nil
	default:
		return nil, func() {}, nil
	}
}

func buildSynthesis(opts Options, out io.Writer, log logrus.FieldLogger) (synthesis.Adapter, func(), error) {
	switch opts.TTS {
	case "deepgram":
		w := io.Discard
		closeOut := func() {}
		if opts.TTSOut != "" {
			f, err := os.Create(opts.TTSOut)
			if err != nil {
				return nil, nil, err
			}
			w, closeOut = f, func() { _ = f.Close() }
		}
		r := synthesis.NewDeepgramRenderer(opts.DeepgramAPIKey, opts.DeepgramModel, &synthesis.WriterSink{W: w, Log: log}, log)
		return synthesis.NewSpeaker(r, log), closeOut, nil
	case "console":
		r := synthesis.ConsoleRenderer{W: out, Prefix: "   (voice) ", WordDelay: 60 * time.Millisecond}
		return synthesis.NewSpeaker(r, log), func() {}, nil
	default:
		return nil, func() {}, nil
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// inputPump reads s.In line by line. In script mode answer lines are
// re-fed to a LineCapture through a pipe, in order.
type inputPump struct {
	lines  chan string
	script chan string

	// closed once the script writer has stopped feeding the pipe
	written chan struct{}

	once sync.Once
	pr   *io.PipeReader
	pw   *io.PipeWriter
}

// newInputPump with a nil reader yields no lines and never ends; used when
// stdin carries audio.
func newInputPump(r io.Reader) *inputPump {
	in := &inputPump{lines: make(chan string), script: make(chan string, 64), written: make(chan struct{})}
	in.pr, in.pw = io.Pipe()
	go func() {
		defer close(in.written)
		for line := range in.script {
			if _, err := io.WriteString(in.pw, line+"\n"); err != nil {
				return
			}
		}
		_ = in.pw.Close()
	}()
	if r == nil {
		return in
	}
	go func() {
		defer close(in.lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			in.lines <- sc.Text()
		}
	}()
	return in
}

func (in *inputPump) scriptReader() io.Reader { return in.pr }

// forward hands a line to the script capture, waiting while it lags behind.
// It gives up only when the session is over or the pipe is gone.
func (in *inputPump) forward(ctx context.Context, line string, stop <-chan struct{}) bool {
	select {
	case in.script <- line:
		return true
	case <-in.written:
	case <-stop:
	case <-ctx.Done():
	}
	return false
}

func (in *inputPump) closeScript() { in.once.Do(func() { close(in.script) }) }

type printer struct {
	mu      sync.Mutex
	w       io.Writer
	printed int
	interimShown bool
}

func (p *printer) line(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearInterimLocked()
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) clearInterimLocked() {
	if p.interimShown {
		fmt.Fprintln(p.w)
		p.interimShown = false
	}
}

func (p *printer) messages(msgs []transcript.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearInterimLocked()
	for _, m := range msgs[p.printed:] {
		switch m.Origin {
		case transcript.OriginAIInterviewer:
			fmt.Fprintf(p.w, "Interviewer: %s\n", m.Text)
		case transcript.OriginCandidate:
			fmt.Fprintf(p.w, "You: %s\n", m.Text)
		default:
			fmt.Fprintf(p.w, "-- %s\n", m.Text)
		}
	}
	p.printed = len(msgs)
}

func (p *printer) typing(on bool) {
	if on {
		p.line("   (interviewer is typing...)")
	}
}

func (p *printer) interim(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if text == "" {
		p.clearInterimLocked()
		return
	}
	fmt.Fprintf(p.w, "\r   ... %s", text)
	p.interimShown = true
}

func (p *printer) feedback(fb protocol.Feedback) {
	var b strings.Builder
	fmt.Fprintf(&b, "== Interview complete ==\nOverall score: %.1f/10\n%s\n", fb.OverallScore, fb.Summary)
	writeList(&b, "Strengths", fb.Strengths)
	writeList(&b, "To improve", fb.Improvements)
	if fb.ConversationDuration > 0 {
		fmt.Fprintf(&b, "Duration: %.1f min\n", fb.ConversationDuration)
	}
	p.line("%s", strings.TrimRight(b.String(), "\n"))
}

func writeList(b *strings.Builder, title string, xs []string) {
	if len(xs) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, x := range xs {
		fmt.Fprintf(b, "  - %s\n", x)
	}
}
