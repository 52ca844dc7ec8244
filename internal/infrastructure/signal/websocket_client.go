package signal

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	callerrors "telecare/pkg/errors"
	"telecare/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options configures one signaling connection. Every connection is scoped to
// a single call and a single user.
type Options struct {
	BaseURL string
	CallID  domain.CallID
	UserID  domain.UserID
	Token   string

	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration

	MessagesPerSecond float64
	Burst             int
}

func (o *Options) applyDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = 20 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 30 * time.Second
	}
	if o.MessagesPerSecond <= 0 {
		o.MessagesPerSecond = 50
	}
	if o.Burst <= 0 {
		o.Burst = 100
	}
}

// WebSocketClient is the SignalingTransport over one WebSocket connection.
// A reader goroutine decodes inbound frames and a writer goroutine owns all
// writes, including keep-alive pings, so the connection is never written to
// concurrently.
type WebSocketClient struct {
	opts     Options
	listener ports.TransportListener
	limiter  *rate.Limiter

	mu      sync.Mutex
	conn    *websocket.Conn
	open    bool
	sendCh  chan []byte
	done    chan struct{}
	closing sync.Once
	closed  sync.Once

	logger *zap.SugaredLogger
}

var _ ports.SignalingTransport = (*WebSocketClient)(nil)

func NewWebSocketClient(opts Options, listener ports.TransportListener, logger *zap.Logger) *WebSocketClient {
	opts.applyDefaults()
	return &WebSocketClient{
		opts:     opts,
		listener: listener,
		limiter:  rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), opts.Burst),
		sendCh:   make(chan []byte, 32),
		done:     make(chan struct{}),
		logger:   logger.Sugar(),
	}
}

// endpoint builds the per-call signaling URL.
func (c *WebSocketClient) endpoint() (string, error) {
	base, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid signaling base url: %w", err)
	}
	base.Path = fmt.Sprintf("/ws/webrtc/%s", c.opts.CallID)

	q := url.Values{}
	q.Set("userId", string(c.opts.UserID))
	if c.opts.Token != "" {
		q.Set("token", c.opts.Token)
	}
	base.RawQuery = q.Encode()

	return base.String(), nil
}

// Connect dials the signaling endpoint and starts the reader and writer
// goroutines. Failures after the dial succeeds are reported through the
// listener.
func (c *WebSocketClient) Connect(ctx context.Context) error {
	if err := validation.ValidateSignalingURL(c.opts.BaseURL); err != nil {
		return err
	}

	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.opts.DialTimeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("signaling dial failed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.open = true
	c.mu.Unlock()

	c.logger.Infow("signaling connected", "call_id", c.opts.CallID, "user_id", c.opts.UserID)

	go c.readLoop(conn)
	go c.writeLoop(conn)

	c.listener.OnOpened()
	return nil
}

// Send serializes one outbound message and hands it to the writer goroutine.
func (c *WebSocketClient) Send(msg domain.SignalingMessage) error {
	c.mu.Lock()
	open := c.open
	c.mu.Unlock()
	if !open {
		return domain.ErrTransportClosed
	}

	data, err := domain.EncodeSignalingMessage(msg)
	if err != nil {
		return err
	}

	select {
	case c.sendCh <- data:
		return nil
	case <-c.done:
		return domain.ErrTransportClosed
	default:
		return fmt.Errorf("signaling send queue full, dropping %s", msg.MessageType())
	}
}

// Close shuts the connection down with a normal closure frame. Safe to call
// more than once and before Connect.
func (c *WebSocketClient) Close() error {
	c.closing.Do(func() {
		close(c.done)

		c.mu.Lock()
		conn := c.conn
		c.open = false
		c.mu.Unlock()

		if conn != nil {
			deadline := time.Now().Add(c.opts.WriteTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
			_ = conn.Close()
		}

		c.notifyClosed()
	})
	return nil
}

// notifyClosed guarantees the listener sees exactly one OnClosed.
func (c *WebSocketClient) notifyClosed() {
	c.closed.Do(func() {
		c.listener.OnClosed()
	})
}

func (c *WebSocketClient) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Local close already in progress
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Warnw("signaling read failed", "call_id", c.opts.CallID, "error", err)
				}
				c.listener.OnTransportError(err)
				c.teardown(conn)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))

		msg, err := domain.DecodeSignalingMessage(data)
		if err != nil {
			c.logger.Warnw("dropping malformed signaling frame", "call_id", c.opts.CallID, "error", err)
			c.listener.OnTransportError(callerrors.NewProtocolError(err))
			continue
		}

		c.listener.OnMessage(msg)
	}
}

func (c *WebSocketClient) writeLoop(conn *websocket.Conn) {
	pingTicker := time.NewTicker(c.opts.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case data := <-c.sendCh:
			if err := c.limiter.Wait(context.Background()); err != nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warnw("signaling write failed", "call_id", c.opts.CallID, "error", err)
				c.listener.OnTransportError(err)
				c.teardown(conn)
				return
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warnw("signaling ping failed", "call_id", c.opts.CallID, "error", err)
				c.listener.OnTransportError(err)
				c.teardown(conn)
				return
			}

		case <-c.done:
			return
		}
	}
}

// teardown closes the connection after a transport failure and stops the
// peer goroutine.
func (c *WebSocketClient) teardown(conn *websocket.Conn) {
	c.closing.Do(func() {
		close(c.done)
	})

	c.mu.Lock()
	c.open = false
	c.mu.Unlock()

	_ = conn.Close()
	c.notifyClosed()
}
