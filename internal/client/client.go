// Package client dials a protocol endpoint and runs a message filter over
// the connection, issuing correlated requests through it.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/edgefilter/internal/filter"
	"github.com/danmuck/edgefilter/internal/logging"
	"github.com/danmuck/edgefilter/internal/protocol"
	"github.com/danmuck/edgefilter/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrClosed = errors.New("client: connection closed")

// Conn is a live connection with its filter running.
type Conn struct {
	id     string
	cfg    Config
	tc     transport.Conn
	filter *filter.Filter
	cancel context.CancelFunc
	log    zerolog.Logger

	nextID    atomic.Uint64
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to cfg.Address, retrying with backoff, and starts the
// filter. ctx bounds dialing only; the connection lives until Close or
// until the peer goes away.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	cfg = cfg.WithDefaults()
	ep, err := parseEndpoint(cfg.Address)
	if err != nil {
		return nil, err
	}
	if ep.secure() {
		cfg.TLS.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	l := logging.Component("client").With().Str("conn_id", id).Logger()
	d := &dialer{
		cfg: cfg,
		ep:  ep,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		log: l,
	}
	tc, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}
	return newConn(ctx, id, cfg, tc, l), nil
}

func newConn(ctx context.Context, id string, cfg Config, tc transport.Conn, l zerolog.Logger) *Conn {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Conn{
		id:     id,
		cfg:    cfg,
		tc:     tc,
		cancel: cancel,
		log:    l.With().Str("remote", tc.RemoteAddr()).Logger(),
	}
	c.filter = filter.New(runCtx, tc.Messages(), cfg.Filter)
	go func() {
		select {
		case <-runCtx.Done():
			// Unblocks the reader so the filter observes cancellation.
			_ = tc.Close()
		case <-c.filter.Done():
		}
	}()
	c.log.Info().Msg("connected")
	return c
}

func (c *Conn) ID() string {
	return c.id
}

// Filter exposes the connection's filter for subscriptions.
func (c *Conn) Filter() *filter.Filter {
	return c.filter
}

// Send writes msg without registering for a reply.
func (c *Conn) Send(ctx context.Context, msg *protocol.Message) error {
	select {
	case <-c.filter.Done():
		return ErrClosed
	default:
	}
	if err := c.tc.Write(ctx, msg); err != nil {
		return fmt.Errorf("client: send %s: %w", msg.Kind(), err)
	}
	return nil
}

// Call sends msg tagged with a fresh request id and waits for the reply
// correlated to it. Error replies are returned together with a
// *protocol.RemoteError.
func (c *Conn) Call(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	id := c.allocateID()
	reply := c.filter.AwaitByID(id)
	if err := c.Send(ctx, msg.WithSource(id)); err != nil {
		c.filter.CancelByID(id)
		return nil, err
	}

	select {
	case m, ok := <-reply:
		if !ok {
			return nil, ErrClosed
		}
		if m.IsError() || m.Kind().Type == protocol.MsgError {
			var rerr protocol.RemoteError
			if err := m.Decode(&rerr); err != nil {
				return m, err
			}
			return m, &rerr
		}
		return m, nil
	case <-ctx.Done():
		c.filter.CancelByID(id)
		c.log.Debug().Stringer("job_id", id).Stringer("kind", msg.Kind()).Msg("call abandoned")
		return nil, ctx.Err()
	}
}

// CallStream sends msg tagged with a fresh request id and returns the
// stream of correlated replies. The caller closes the stream.
func (c *Conn) CallStream(ctx context.Context, msg *protocol.Message) (*filter.Stream, error) {
	id := c.allocateID()
	s := c.filter.AwaitManyByID(id)
	if err := c.Send(ctx, msg.WithSource(id)); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (c *Conn) allocateID() protocol.CorrelationID {
	for {
		id := protocol.CorrelationID(c.nextID.Add(1))
		if !id.IsNone() {
			return id
		}
	}
}

// Close closes the connection and waits for the filter to finish its
// terminal sweep.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.tc.Close()
		<-c.filter.Done()
		c.log.Info().Err(c.filter.Err()).Msg("closed")
	})
	return c.closeErr
}
