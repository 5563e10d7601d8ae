package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/danmuck/edgefilter/internal/observability"
	"github.com/danmuck/edgefilter/internal/transport"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	ErrAddressRequired   = errors.New("client: address required")
	ErrUnsupportedScheme = errors.New("client: unsupported address scheme")
)

const (
	schemeTCP = "tcp"
	schemeTLS = "tls"
	schemeWS  = "ws"
	schemeWSS = "wss"
)

type endpoint struct {
	scheme string
	// host is host:port for stream schemes and the full URL for WebSocket.
	host string
}

func parseEndpoint(addr string) (endpoint, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return endpoint{}, ErrAddressRequired
	}
	if !strings.Contains(addr, "://") {
		return endpoint{scheme: schemeTCP, host: addr}, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return endpoint{}, fmt.Errorf("client: parse address %q: %w", addr, err)
	}
	switch scheme := strings.ToLower(u.Scheme); scheme {
	case schemeTCP, schemeTLS:
		return endpoint{scheme: scheme, host: u.Host}, nil
	case schemeWS, schemeWSS:
		return endpoint{scheme: scheme, host: u.String()}, nil
	default:
		return endpoint{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func (e endpoint) secure() bool {
	return e.scheme == schemeTLS || e.scheme == schemeWSS
}

type dialer struct {
	cfg Config
	ep  endpoint
	rng *rand.Rand
	log zerolog.Logger
}

// connect dials until it succeeds, the attempt budget is spent, or ctx is
// done.
func (d *dialer) connect(ctx context.Context) (transport.Conn, error) {
	var attempt int
	for {
		attempt++
		conn, err := d.dial(ctx)
		observability.RecordConnectAttempt(d.label(), err == nil)
		if err == nil {
			return conn, nil
		}
		d.log.Warn().Err(err).Int("attempt", attempt).Str("addr", d.cfg.Address).Msg("dial failed")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !d.shouldRetry(attempt) {
			return nil, fmt.Errorf("client: dial %s after %d attempts: %w", d.cfg.Address, attempt, err)
		}
		if err := d.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (d *dialer) label() string {
	if d.ep.scheme == schemeTCP && d.cfg.TLS.Enabled {
		return schemeTLS
	}
	return d.ep.scheme
}

func (d *dialer) dial(ctx context.Context) (transport.Conn, error) {
	switch d.ep.scheme {
	case schemeWS, schemeWSS:
		return d.dialWebSocket(ctx)
	default:
		return d.dialStream(ctx)
	}
}

func (d *dialer) dialStream(ctx context.Context) (transport.Conn, error) {
	nd := net.Dialer{Timeout: d.cfg.ConnectTimeout}
	rawConn, err := nd.DialContext(ctx, "tcp", d.ep.host)
	if err != nil {
		return nil, err
	}
	if !d.cfg.TLS.Enabled {
		return transport.NewStreamConn(rawConn, d.cfg.Limits, d.cfg.WriteTimeout), nil
	}

	host, _, err := net.SplitHostPort(d.ep.host)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	tlsCfg, err := d.cfg.TLS.clientConfig(host)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, d.cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return transport.NewStreamConn(conn, d.cfg.Limits, d.cfg.WriteTimeout), nil
}

func (d *dialer) dialWebSocket(ctx context.Context) (transport.Conn, error) {
	nd := &net.Dialer{Timeout: d.cfg.ConnectTimeout}
	wsd := websocket.Dialer{
		NetDialContext:   nd.DialContext,
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}
	if d.ep.scheme == schemeWSS {
		u, err := url.Parse(d.ep.host)
		if err != nil {
			return nil, err
		}
		tlsCfg, err := d.cfg.TLS.clientConfig(u.Hostname())
		if err != nil {
			return nil, err
		}
		wsd.TLSClientConfig = tlsCfg
	}

	conn, resp, err := wsd.DialContext(ctx, d.ep.host, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if d.cfg.Limits.MaxPayloadBytes > 0 {
		conn.SetReadLimit(websocketReadLimit(d.cfg.Limits.MaxMethodBytes, d.cfg.Limits.MaxPayloadBytes))
	}
	return transport.NewWebSocketConn(conn, d.cfg.Limits, d.cfg.WriteTimeout), nil
}

func websocketReadLimit(method, payload uint64) int64 {
	total := method + payload + 64
	if total > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(total)
}

func (d *dialer) shouldRetry(attempt int) bool {
	if d.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < d.cfg.MaxConnectAttempts
}

func (d *dialer) sleepBackoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(NextBackoffDelay(d.cfg.Backoff, attempt, d.rng))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}
