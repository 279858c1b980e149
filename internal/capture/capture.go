package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrPermissionDenied  = errors.New("capture permission denied")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// Fragment is one speech-to-text result. Interim fragments may be superseded
// by later ones for the same utterance; exactly one Final closes it.
type Fragment struct {
	UtteranceID int
	Text        string
	Final       bool
	At          time.Time
}

// Adapter acquires candidate speech and produces transcript fragments.
type Adapter interface {
	// Start begins capture. Returns ErrPermissionDenied or ErrDeviceUnavailable
	// (possibly wrapped) when the input cannot be acquired.
	Start(ctx context.Context) error
	// Stop halts capture; a no-op when not started.
	Stop()
	// Fragments stays valid across Stop/Start cycles.
	Fragments() <-chan Fragment
	// SetMuted halts emission synchronously without ending the capture session.
	SetMuted(muted bool)
}

// emitter is the shared fragment sink. Interims are sent without blocking and
// may be lost to a slow consumer; a final blocks until it is delivered or
// emission is disabled by mute or stop. Nothing is emitted once setMuted(true)
// or setRunning(false) returns.
type emitter struct {
	log logrus.FieldLogger
	out chan Fragment

	// send is held for the whole of one delivery; mu only guards the fields.
	send sync.Mutex

	mu        sync.Mutex
	muted     bool
	running   bool
	gate      chan struct{} // closed while emission is disabled
	gateOpen  bool
	utterance int
}

func newEmitter(log logrus.FieldLogger, buffer int) *emitter {
	if log == nil {
		log = logrus.New()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &emitter{log: log, out: make(chan Fragment, buffer)}
}

func (e *emitter) setMuted(m bool) {
	e.mu.Lock()
	e.muted = m
	disabled := e.refreshGateLocked()
	e.mu.Unlock()
	if disabled {
		e.drainSend()
	}
}

func (e *emitter) isMuted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

func (e *emitter) setRunning(r bool) {
	e.mu.Lock()
	e.running = r
	disabled := e.refreshGateLocked()
	e.mu.Unlock()
	if disabled {
		e.drainSend()
	}
}

// refreshGateLocked reports whether emission was just disabled.
func (e *emitter) refreshGateLocked() bool {
	open := e.running && !e.muted
	switch {
	case open && !e.gateOpen:
		e.gate = make(chan struct{})
		e.gateOpen = true
	case !open && e.gateOpen:
		close(e.gate)
		e.gateOpen = false
		return true
	}
	return false
}

// drainSend waits out a delivery that started before the gate closed.
func (e *emitter) drainSend() {
	e.send.Lock()
	e.send.Unlock()
}

// emit returns false when the fragment was suppressed or, for an interim,
// when the buffer was full.
func (e *emitter) emit(text string, final bool) bool {
	e.send.Lock()
	defer e.send.Unlock()

	e.mu.Lock()
	if !e.gateOpen {
		e.mu.Unlock()
		return false
	}
	gate := e.gate
	fr := Fragment{UtteranceID: e.utterance, Text: text, Final: final, At: time.Now()}
	if final {
		e.utterance++
	}
	e.mu.Unlock()

	if !final {
		select {
		case e.out <- fr:
			return true
		default:
			return false
		}
	}
	select {
	case e.out <- fr:
		return true
	case <-gate:
		e.log.WithField("utterance", fr.UtteranceID).Debug("capture halted before final was delivered")
		return false
	}
}
