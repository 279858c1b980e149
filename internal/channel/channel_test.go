package channel

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/protocol"
)

type fakeConn struct {
	mu     sync.Mutex
	writes []string
	in     chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-f.in:
		return websocket.TextMessage, b, nil
	case <-f.closed:
		return 0, nil, io.EOF
	}
}

func (f *fakeConn) WriteMessage(_ int, b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.closed:
		return errors.New("write on closed conn")
	default:
	}
	f.writes = append(f.writes, string(b))
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	copy(out, f.writes)
	return out
}

type gatedDialer struct {
	release chan struct{}
	dials   int32
	conn    *fakeConn
	err     error
}

func (d *gatedDialer) Dial(ctx context.Context, token string) (Conn, error) {
	atomic.AddInt32(&d.dials, 1)
	if d.release != nil {
		<-d.release
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func cancelledCtx() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func TestRegistry_DuplicateOpenWhileConnectingDialsOnce(t *testing.T) {
	d := &gatedDialer{release: make(chan struct{}), conn: newFakeConn()}
	reg := NewRegistry(d, quietLogger())

	var wg sync.WaitGroup
	handles := make([]*Channel, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch, err := reg.Open(context.Background(), "abc123")
			if err != nil {
				t.Errorf("open %d: %v", i, err)
				return
			}
			handles[i] = ch
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(d.release)
	wg.Wait()

	if n := atomic.LoadInt32(&d.dials); n != 1 {
		t.Fatalf("expected exactly one dial, got %d", n)
	}
	if handles[0] == nil || handles[0] != handles[1] {
		t.Fatalf("expected both opens to return the same handle")
	}
	if handles[0].State() != StateOpen {
		t.Fatalf("expected open, got %s", handles[0].State())
	}
}

func TestChannel_SendQueuesUntilOpenInFIFOOrder(t *testing.T) {
	conn := newFakeConn()
	d := &gatedDialer{release: make(chan struct{}), conn: conn}
	reg := NewRegistry(d, quietLogger())

	ch, err := reg.Open(cancelledCtx(), "tok")
	if !errors.Is(err, context.Canceled) || ch == nil {
		t.Fatalf("expected connecting handle with ctx error, got %v %v", ch, err)
	}
	if ch.State() != StateConnecting {
		t.Fatalf("expected connecting, got %s", ch.State())
	}
	for _, txt := range []string{"one", "two", "three"} {
		if err := ch.Send(protocol.UserText(txt)); err != nil {
			t.Fatalf("send while connecting: %v", err)
		}
	}
	close(d.release)
	<-ch.Settled()
	if err := ch.Send(protocol.UserText("four")); err != nil {
		t.Fatalf("send after open: %v", err)
	}

	got := conn.written()
	want := []string{"one", "two", "three", "four"}
	if len(got) != len(want) {
		t.Fatalf("expected %d writes, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if !strings.Contains(got[i], `"text":"`+want[i]+`"`) {
			t.Fatalf("write %d out of order: %s", i, got[i])
		}
	}
}

func TestChannel_CloseIsIdempotent(t *testing.T) {
	d := &gatedDialer{conn: newFakeConn()}
	reg := NewRegistry(d, quietLogger())
	ch, err := reg.Open(context.Background(), "tok")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if ch.State() != StateClosed {
		t.Fatalf("expected closed")
	}
	if err := ch.Send(protocol.EndInterview()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	// caller-initiated close produces no disconnect event
	for ev := range ch.Events() {
		if ev.Kind == EventDisconnected || ev.Kind == EventTransportError {
			t.Fatalf("unexpected %s after caller close", ev.Kind)
		}
	}
}

func TestChannel_CloseWhileConnectingIsDeferred(t *testing.T) {
	conn := newFakeConn()
	d := &gatedDialer{release: make(chan struct{}), conn: conn}
	reg := NewRegistry(d, quietLogger())

	ch, _ := reg.Open(cancelledCtx(), "tok")
	if err := ch.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if ch.State() != StateConnecting {
		t.Fatalf("close must not interrupt a pending dial, state=%s", ch.State())
	}
	close(d.release)
	<-ch.Settled()

	select {
	case <-conn.closed:
	case <-time.After(time.Second):
		t.Fatalf("expected transport closed after dial settled")
	}
	if ch.State() != StateClosed {
		t.Fatalf("expected closed, got %s", ch.State())
	}
	if _, ok := <-ch.Events(); ok {
		t.Fatalf("expected events channel closed without events")
	}
	if _, ok := reg.Lookup("tok"); ok {
		t.Fatalf("closed channel must leave the registry")
	}
}

func TestRegistry_DialFailureAllowsRetry(t *testing.T) {
	d := &gatedDialer{err: errors.New("refused")}
	reg := NewRegistry(d, quietLogger())
	if _, err := reg.Open(context.Background(), "tok"); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	d.err = nil
	d.conn = newFakeConn()
	ch, err := reg.Open(context.Background(), "tok")
	if err != nil {
		t.Fatalf("retry open: %v", err)
	}
	defer ch.Close()
	if n := atomic.LoadInt32(&d.dials); n != 2 {
		t.Fatalf("expected a fresh dial on retry, got %d dials", n)
	}
}

func TestChannel_UnexpectedCloseSurfacesDisconnected(t *testing.T) {
	conn := newFakeConn()
	reg := NewRegistry(&gatedDialer{conn: conn}, quietLogger())
	ch, err := reg.Open(context.Background(), "tok")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	conn.in <- []byte(`{"type":"typing_indicator","is_typing":true}`)
	conn.in <- []byte(`garbage`)
	conn.in <- []byte(`{"type":"ai_message","content":"hello"}`)
	time.Sleep(20 * time.Millisecond)
	_ = conn.Close()

	var kinds []EventKind
	var frames []string
	for ev := range ch.Events() {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventFrame {
			frames = append(frames, ev.Frame.Type)
		}
	}
	if len(kinds) == 0 || kinds[0] != EventOpen {
		t.Fatalf("expected open first, got %v", kinds)
	}
	if last := kinds[len(kinds)-1]; last != EventTransportError && last != EventDisconnected {
		t.Fatalf("expected terminal failure event, got %v", kinds)
	}
	if len(frames) != 2 || frames[0] != protocol.TypeTypingIndicator || frames[1] != protocol.TypeAIMessage {
		t.Fatalf("frames out of order or malformed frame leaked: %v", frames)
	}
}

func TestWSDialer_RoundTripAgainstServer(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		f, _ := protocol.Decode(data)
		if f.Type == protocol.TypeConnectionReady {
			_ = c.WriteJSON(protocol.SessionStatus(protocol.StatusActive, "ready"))
		}
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	reg := NewRegistry(WSDialer{BaseURL: srv.URL + "/interview/realtime/ws"}, quietLogger())
	ch, err := reg.Open(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := ch.Send(protocol.ConnectionReady()); err != nil {
		t.Fatalf("send: %v", err)
	}

	var statuses []string
	var last EventKind
	for ev := range ch.Events() {
		last = ev.Kind
		if ev.Kind == EventFrame && ev.Frame.Type == protocol.TypeSessionStatus {
			statuses = append(statuses, ev.Frame.Status)
		}
	}
	if len(statuses) != 1 || statuses[0] != protocol.StatusActive {
		t.Fatalf("expected one active status, got %v", statuses)
	}
	if last != EventDisconnected {
		t.Fatalf("expected disconnected on server close, got %s", last)
	}
	if p, _ := gotPath.Load().(string); p != "/interview/realtime/ws/abc123" {
		t.Fatalf("unexpected path %q", p)
	}
}

// stallConn blocks writes until the conn is closed.
type stallConn struct {
	*fakeConn
	entered chan struct{}
	once    sync.Once
}

func (s *stallConn) WriteMessage(_ int, b []byte) error {
	s.once.Do(func() { close(s.entered) })
	<-s.closed
	return errors.New("write on closed conn")
}

type connDialer struct{ conn Conn }

func (d connDialer) Dial(context.Context, string) (Conn, error) { return d.conn, nil }

func TestChannel_StalledWriteDoesNotBlockCloseOrState(t *testing.T) {
	conn := &stallConn{fakeConn: newFakeConn(), entered: make(chan struct{})}
	reg := NewRegistry(connDialer{conn: conn}, quietLogger())
	ch, err := reg.Open(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	first := make(chan error, 1)
	go func() { first <- ch.Send(protocol.UserText("stuck on the wire")) }()
	<-conn.entered
	second := make(chan error, 1)
	go func() { second <- ch.Send(protocol.UserText("waiting its turn")) }()
	time.Sleep(20 * time.Millisecond)

	within := func(what string, fn func()) {
		t.Helper()
		done := make(chan struct{})
		go func() { fn(); close(done) }()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("%s blocked behind a stalled write", what)
		}
	}
	within("State", func() { _ = ch.State() })
	within("Lookup", func() { _, _ = reg.Lookup("abc123") })
	within("Close", func() { _ = ch.Close() })

	select {
	case err := <-first:
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("stalled send: expected ErrTransport, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("stalled send never returned after close")
	}
	select {
	case err := <-second:
		if !errors.Is(err, ErrNotConnected) {
			t.Fatalf("queued send: expected ErrNotConnected, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("queued send never returned after close")
	}
}
