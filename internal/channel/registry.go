package channel

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

func dialContext() context.Context { return context.Background() }

// Registry hands out at most one live Channel per token. Repeated Open calls
// for a token whose channel is connecting or open return that same channel
// instead of dialing again.
type Registry struct {
	dialer Dialer
	log    logrus.FieldLogger
	buffer int

	mu      sync.Mutex
	gen     uint64
	handles map[string]*Channel
}

func NewRegistry(d Dialer, log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{dialer: d, log: log, handles: map[string]*Channel{}}
}

// WithEventBuffer sets the inbound event buffer size for new channels.
func (r *Registry) WithEventBuffer(n int) *Registry {
	r.buffer = n
	return r
}

// Open returns the channel for token, dialing only if no live channel exists.
// It waits until the transport settles. On ctx cancellation the (still
// connecting) channel is returned together with ctx.Err() so the caller can
// mark it for close. A failed dial returns an error wrapping ErrConnection.
func (r *Registry) Open(ctx context.Context, token string) (*Channel, error) {
	r.mu.Lock()
	ch, ok := r.handles[token]
	if !ok || ch.State() == StateClosed {
		r.gen++
		ch = newChannel(token, r.gen, r.log, r.buffer)
		ch.onClosed = r.forget
		r.handles[token] = ch
		go ch.dial(r.dialer)
	} else {
		r.log.WithFields(logrus.Fields{"token": token, "generation": ch.gen}).Debug("reusing live channel")
	}
	r.mu.Unlock()

	select {
	case <-ch.settled:
	case <-ctx.Done():
		return ch, ctx.Err()
	}
	ch.mu.Lock()
	err := ch.dialErr
	ch.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Lookup returns the live channel for token, if any.
func (r *Registry) Lookup(token string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.handles[token]
	if !ok || ch.State() == StateClosed {
		return nil, false
	}
	return ch, true
}

func (r *Registry) forget(ch *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.handles[ch.token]; ok && cur == ch {
		delete(r.handles, ch.token)
	}
}
