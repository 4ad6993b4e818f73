package telemetry

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/atriumlabs/twinctl/internal/observability"
)

// ClientConfig configures the persistent websocket connection to the
// telemetry backend.
type ClientConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Backoff          BackoffConfig
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     15 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// HandlerFunc receives every inbound envelope, on the read goroutine.
type HandlerFunc func(env Envelope)

// Client maintains the persistent connection with reconnect backoff.
// It implements Transport. Results of in-flight requests are the
// coordinator's problem on disconnect; the client just reports the
// drop through the disconnect hook.
type Client struct {
	cfg      ClientConfig
	clientID string
	handler  HandlerFunc
	onDown   func(error)

	writeMu   sync.Mutex
	connMu    sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
	rng       *rand.Rand
}

func NewClient(cfg ClientConfig, handler HandlerFunc) *Client {
	def := DefaultClientConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Backoff.InitialDelay <= 0 {
		cfg.Backoff = def.Backoff
	}
	return &Client{
		cfg:      cfg,
		clientID: uuid.NewString(),
		handler:  handler,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ClientID is the stable session identity sent in the hello message.
func (c *Client) ClientID() string {
	return c.clientID
}

// SetDisconnectHook installs fn, called once per lost connection with
// the read error. Wire this to Coordinator.FailAllPending.
func (c *Client) SetDisconnectHook(fn func(error)) {
	c.onDown = fn
}

// Connected reports whether the session is currently up.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Send writes one envelope to the backend. Fails fast with
// ErrNotConnected while the session is down.
func (c *Client) Send(env Envelope) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	data, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	observability.RecordWireMessage("out", env.Type)
	return nil
}

// Run dials the backend and keeps the session alive until ctx is
// cancelled, reconnecting with exponential backoff after each drop.
func (c *Client) Run(ctx context.Context) error {
	if c.cfg.URL == "" {
		return fmt.Errorf("%w: missing url", ErrNotConnected)
	}
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn, err := c.dial(ctx)
		if err != nil {
			attempt++
			log.Warn().Int("attempt", attempt).Str("url", c.cfg.URL).Err(err).Msg("telemetry.connect_failed")
			if err := c.waitBackoff(ctx, attempt); err != nil {
				return nil
			}
			continue
		}
		attempt = 0
		log.Info().Str("url", c.cfg.URL).Str("client_id", c.clientID).Msg("telemetry.connected")

		readErr := c.serveConn(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(readErr).Msg("telemetry.connection_lost")
		if c.onDown != nil {
			c.onDown(readErr)
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	hello := Envelope{
		Type:  MsgHello,
		Hello: &Hello{ClientID: c.clientID, ProtocolVersion: ProtocolVersion},
	}
	data, err := EncodeEnvelope(hello)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		conn.Close()
		return nil, err
	}
	observability.RecordWireMessage("out", MsgHello)
	return conn, nil
}

// serveConn pumps inbound envelopes until the connection breaks or
// ctx is cancelled.
func (c *Client) serveConn(ctx context.Context, conn *websocket.Conn) error {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.connected.Store(true)

	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-connDone:
		}
	}()

	defer func() {
		c.connected.Store(false)
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		env, err := DecodeEnvelope(data)
		if err != nil {
			log.Warn().Err(err).Msg("telemetry.bad_envelope")
			continue
		}
		observability.RecordWireMessage("in", env.Type)
		if c.handler != nil {
			c.handler(env)
		}
	}
}

func (c *Client) waitBackoff(ctx context.Context, attempt int) error {
	delay := c.cfg.Backoff.NextDelay(attempt, c.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
