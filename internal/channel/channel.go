package channel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/protocol"
)

var (
	ErrConnection   = errors.New("connection error")
	ErrNotConnected = errors.New("channel not connected")
	ErrTransport    = errors.New("transport error")
)

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type EventKind int

const (
	EventOpen EventKind = iota
	EventFrame
	EventTransportError
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventFrame:
		return "frame"
	case EventTransportError:
		return "transport_error"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is one item of the inbound stream. Frame is set for EventFrame,
// Err for EventTransportError and EventDisconnected.
type Event struct {
	Kind  EventKind
	Frame protocol.Frame
	Err   error
}

// Channel is the single duplex connection bound to one session token.
// Obtain one through Registry.Open.
type Channel struct {
	token string
	gen   uint64
	log   logrus.FieldLogger

	// Writes happen outside mu. Each write takes a ticket under mu and waits
	// its turn on wmu, so frames leave in Send order.
	wmu   sync.Mutex
	wturn *sync.Cond
	turn  uint64

	mu             sync.Mutex
	nextTicket     uint64
	state          State
	conn           Conn
	pending        [][]byte
	closeRequested bool
	closedByCaller bool
	writeErr       error

	settled chan struct{}
	dialErr error

	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once

	onClosed func(*Channel)
}

func newChannel(token string, gen uint64, log logrus.FieldLogger, buffer int) *Channel {
	if buffer <= 0 {
		buffer = 64
	}
	c := &Channel{
		token:   token,
		gen:     gen,
		log:     log.WithFields(logrus.Fields{"token": token, "generation": gen}),
		state:   StateConnecting,
		settled: make(chan struct{}),
		events:  make(chan Event, buffer),
		stop:    make(chan struct{}),
	}
	c.wturn = sync.NewCond(&c.wmu)
	return c
}

func (c *Channel) Token() string { return c.token }

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events delivers inbound events in receipt order. It is closed once the
// channel reaches Closed. Intended for a single consumer.
func (c *Channel) Events() <-chan Event { return c.events }

// Send writes f, queueing it while the transport is still connecting.
// Queued frames are flushed in FIFO order once open.
func (c *Channel) Send(f protocol.Frame) error {
	b, err := protocol.Encode(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	switch c.state {
	case StateConnecting:
		c.pending = append(c.pending, b)
		c.mu.Unlock()
		return nil
	case StateOpen:
	default:
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn, ticket := c.conn, c.takeTicketLocked()
	c.mu.Unlock()

	err = c.writeInTurn(ticket, conn, [][]byte{b})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotConnected):
		return err
	}
	c.failWrite(conn, err)
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func (c *Channel) takeTicketLocked() uint64 {
	t := c.nextTicket
	c.nextTicket++
	return t
}

// writeInTurn waits for ticket t, then writes frames in order. A channel that
// closed while waiting yields ErrNotConnected.
func (c *Channel) writeInTurn(t uint64, conn Conn, frames [][]byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	for c.turn != t {
		c.wturn.Wait()
	}
	defer func() {
		c.turn++
		c.wturn.Broadcast()
	}()

	if c.State() == StateClosed {
		return ErrNotConnected
	}
	for _, b := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return err
		}
	}
	return nil
}

// Close moves the channel to Closed. Safe to call repeatedly. While the
// transport is connecting the close is deferred until the dial settles.
func (c *Channel) Close() error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		c.halt()
		return nil
	case StateConnecting:
		c.closeRequested = true
		c.mu.Unlock()
		c.log.Debug("close requested while connecting; deferred")
		return nil
	}
	c.state = StateClosed
	c.closedByCaller = true
	conn := c.conn
	c.mu.Unlock()

	c.halt()
	err := conn.Close()
	c.notifyClosed()
	return err
}

// Settled is closed once the dial attempt resolved (open or failed).
func (c *Channel) Settled() <-chan struct{} { return c.settled }

func (c *Channel) dial(d Dialer) {
	conn, err := d.Dial(dialContext(), c.token)

	c.mu.Lock()
	if err != nil {
		c.state = StateClosed
		c.dialErr = fmt.Errorf("%w: %v", ErrConnection, err)
		c.pending = nil
		c.mu.Unlock()
		close(c.settled)
		c.halt()
		close(c.events)
		c.log.WithError(err).Warn("channel dial failed")
		c.notifyClosed()
		return
	}

	if c.closeRequested {
		c.state = StateClosed
		c.closedByCaller = true
		c.pending = nil
		c.mu.Unlock()
		close(c.settled)
		c.halt()
		_ = conn.Close()
		close(c.events)
		c.log.Debug("deferred close applied after dial")
		c.notifyClosed()
		return
	}

	c.conn = conn
	pending := c.pending
	c.pending = nil
	c.state = StateOpen
	ticket := c.takeTicketLocked()
	c.mu.Unlock()
	close(c.settled)

	// queued frames hold the first ticket, so they precede any Send made after open
	writeErr := c.writeInTurn(ticket, conn, pending)

	c.log.Info("channel open")
	c.emit(Event{Kind: EventOpen})
	if writeErr != nil && !errors.Is(writeErr, ErrNotConnected) {
		c.failWrite(conn, writeErr)
	}
	c.readLoop(conn)
}

func (c *Channel) readLoop(conn Conn) {
	defer close(c.events)
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			c.finishRead(err)
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		f, derr := protocol.Decode(data)
		if derr != nil {
			c.log.WithError(derr).Warn("dropping malformed frame")
			continue
		}
		if !c.emit(Event{Kind: EventFrame, Frame: f}) {
			return
		}
	}
}

func (c *Channel) finishRead(err error) {
	c.mu.Lock()
	byCaller := c.closedByCaller
	writeErr := c.writeErr
	c.state = StateClosed
	c.mu.Unlock()

	if byCaller {
		return
	}

	ev := Event{Kind: EventDisconnected, Err: err}
	switch {
	case writeErr != nil:
		ev = Event{Kind: EventTransportError, Err: fmt.Errorf("%w: %v", ErrTransport, writeErr)}
	case !isCloseError(err):
		ev = Event{Kind: EventTransportError, Err: fmt.Errorf("%w: %v", ErrTransport, err)}
	}
	c.log.WithError(err).WithField("event", ev.Kind.String()).Warn("channel closed unexpectedly")
	c.emit(ev)
	c.halt()
	c.notifyClosed()
}

func (c *Channel) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.stop:
		return false
	}
}

// halt releases any emit blocked on a consumer that went away.
func (c *Channel) halt() { c.stopOnce.Do(func() { close(c.stop) }) }

func (c *Channel) failWrite(conn Conn, err error) {
	c.mu.Lock()
	if c.writeErr == nil {
		c.writeErr = err
	}
	c.mu.Unlock()
	// closing the conn unblocks the reader, which reports the failure
	_ = conn.Close()
}

func (c *Channel) notifyClosed() {
	if c.onClosed != nil {
		c.onClosed(c)
	}
}

func isCloseError(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce)
}
