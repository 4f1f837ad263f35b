package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/pithecene-io/docbroker/log"
	"github.com/pithecene-io/docbroker/metrics"
	"github.com/pithecene-io/docbroker/types"
)

// DefaultAttempts is the number of connection attempts per EnsureHealthy.
const DefaultAttempts = 3

// DefaultRetryDelay is the fixed delay between connection attempts.
const DefaultRetryDelay = 3 * time.Second

// Config configures a Client.
type Config struct {
	// Attempts is the number of dial attempts before giving up (default 3).
	Attempts int
	// RetryDelay is the fixed delay between attempts (default 3s).
	RetryDelay time.Duration
}

// Client owns the engine connection.
// Safe for concurrent use; document sessions are serialized.
type Client struct {
	dial    Dialer
	config  Config
	logger  *log.Logger
	metrics *metrics.Collector

	// session admits one document session at a time.
	session *semaphore.Weighted

	// connMu guards conn and serializes (re)connection.
	connMu sync.Mutex
	conn   Conn
	state  atomic.Int32
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a disconnected client. No connection is attempted
// until the first EnsureHealthy or Do.
func NewClient(dial Dialer, cfg Config, opts ...Option) *Client {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	c := &Client{
		dial:    dial,
		config:  cfg,
		logger:  log.Nop(),
		session: semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// EnsureHealthy returns immediately when connected. Otherwise it dials up
// to Config.Attempts times with Config.RetryDelay between attempts and
// fails with types.ErrNoConnection when every attempt failed. Nothing is
// carried over between calls: the next call starts a fresh set of attempts.
func (c *Client) EnsureHealthy(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return nil
	}

	c.state.Store(int32(StateConnecting))
	attempt := 0
	dialOnce := func() error {
		attempt++
		c.metrics.IncEngineDialAttempt()
		conn, err := c.dial(ctx)
		if err != nil {
			c.metrics.IncEngineDialFailure()
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		c.conn = conn
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.config.RetryDelay), uint64(c.config.Attempts-1)),
		ctx,
	)
	err := backoff.RetryNotify(dialOnce, policy, func(err error, next time.Duration) {
		c.logger.Debug("engine connection attempt failed", map[string]any{
			"attempt":  attempt,
			"retry_in": next.String(),
			"error":    err.Error(),
		})
	})
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("engine: connect: %w", ctxErr)
		}
		c.logger.Warn("failed to connect to conversion engine", map[string]any{
			"attempts": attempt,
			"error":    err.Error(),
		})
		return types.NewBrokerError(types.ErrNoConnection, "connect",
			fmt.Errorf("%d attempts in a row: %w", attempt, err))
	}

	c.state.Store(int32(StateConnected))
	c.logger.Debug("engine connected", map[string]any{"attempts": attempt})
	return nil
}

// Do runs fn inside a document session. Sessions are serialized: Do waits
// (respecting ctx) until no other session is active, then ensures the
// connection is healthy.
//
// Once fn has called Session.Load, the document is closed exactly once
// after fn returns, whether fn failed or not. fn's error is returned
// unchanged; a close failure after a failed fn is logged, a close failure
// after a successful fn is returned.
func (c *Client) Do(ctx context.Context, fn func(ctx context.Context, s *Session) error) (err error) {
	if err := c.session.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("engine: wait for session: %w", err)
	}
	defer c.session.Release(1)

	if err := c.EnsureHealthy(ctx); err != nil {
		return err
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return types.NewBrokerError(types.ErrNoConnection, "session", ErrConnectionLost)
	}

	s := &Session{client: c, conn: conn}
	defer func() { err = c.endSession(ctx, s, err) }()
	return fn(ctx, s)
}

// endSession closes the session's document if one was opened.
func (c *Client) endSession(ctx context.Context, s *Session, err error) error {
	if !s.opened {
		return err
	}
	if s.lost {
		// The document went away with the connection.
		return err
	}

	closeErr := s.conn.CloseDocument(context.WithoutCancel(ctx))
	c.observe(s, closeErr)
	if closeErr == nil {
		c.logger.Debug("close document", nil)
		return err
	}

	c.metrics.IncEngineCloseFailure()
	if err != nil {
		c.logger.Warn("emergency close document failed", map[string]any{
			"error":       closeErr.Error(),
			"cause_error": err.Error(),
		})
		return err
	}
	return fmt.Errorf("engine: close document: %w", closeErr)
}

// observe drops the connection when err indicates it is gone, so the next
// session reconnects.
func (c *Client) observe(s *Session, err error) {
	if !IsConnectionLoss(err) {
		return
	}
	s.lost = true

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != s.conn {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.state.Store(int32(StateDisconnected))
	c.metrics.IncEngineConnectionLost()
	c.logger.Warn("engine connection lost", map[string]any{"error": err.Error()})
}

// Close releases the engine connection, if any.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.state.Store(int32(StateDisconnected))
	return err
}
