package capture

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LineCapture turns each line of an io.Reader into one utterance: an interim
// per growing word prefix, then a single final. Used for scripted sessions
// and terminals without a microphone.
type LineCapture struct {
	src io.Reader
	log logrus.FieldLogger
	em  *emitter

	once  sync.Once
	lines chan string

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewLineCapture(src io.Reader, log logrus.FieldLogger) *LineCapture {
	return &LineCapture{src: src, log: log, em: newEmitter(log, 0)}
}

func (c *LineCapture) Fragments() <-chan Fragment { return c.em.out }

func (c *LineCapture) SetMuted(muted bool) { c.em.setMuted(muted) }

func (c *LineCapture) Start(ctx context.Context) error {
	if c.src == nil {
		return ErrDeviceUnavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	// the reader is scanned once for the life of the capture; Stop/Start only gate emission
	c.once.Do(func() {
		c.lines = make(chan string)
		go c.scan()
	})
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.em.setRunning(true)
	go c.run(runCtx)
	return nil
}

func (c *LineCapture) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	c.em.setRunning(false)
	cancel()
}

func (c *LineCapture) scan() {
	defer close(c.lines)
	sc := bufio.NewScanner(c.src)
	for sc.Scan() {
		c.lines <- sc.Text()
	}
	if err := sc.Err(); err != nil && c.log != nil {
		c.log.WithError(err).Warn("line capture: read failed")
	}
}

func (c *LineCapture) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-c.lines:
			if !ok {
				return
			}
			c.utter(line)
		}
	}
}

func (c *LineCapture) utter(line string) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return
	}
	for i := 1; i < len(words); i++ {
		c.em.emit(strings.Join(words[:i], " "), false)
	}
	c.em.emit(strings.Join(words, " "), true)
}
