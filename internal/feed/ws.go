// Package feed consumes the external market data and attestation websocket.
// The core never fetches odds itself; everything arrives through here.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/flashverse/flashcore/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
)

// MarketEventHandler receives one market update per frame.
type MarketEventHandler func(ctx context.Context, marketID string, ev domain.MarketEvent)

// AttestationHandler receives one signed outcome claim per frame.
type AttestationHandler func(ctx context.Context, att domain.Attestation)

// Client is a websocket client for the upstream feed. It holds one
// connection at a time; reconnection policy belongs to the caller (see
// Consumer.Run).
type Client struct {
	url    string
	logger *slog.Logger

	// commandRate throttles outbound subscribe commands so a reconnect
	// storm cannot hammer the upstream.
	commandRate *rate.Limiter

	mu            sync.Mutex
	conn          *websocket.Conn
	subscriptions []string

	onMarket      MarketEventHandler
	onAttestation AttestationHandler
}

// NewClient creates a feed client for the given websocket endpoint.
func NewClient(url string, onMarket MarketEventHandler, onAttestation AttestationHandler, logger *slog.Logger) *Client {
	return &Client{
		url:           url,
		onMarket:      onMarket,
		onAttestation: onAttestation,
		commandRate:   rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
		logger:        logger.With(slog.String("component", "feed_ws")),
	}
}

// Dial establishes the websocket connection and restores any previous
// subscriptions.
func (c *Client) Dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", c.url, err)
	}
	c.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for _, id := range c.subscriptions {
		if err := c.sendSubscribe(ctx, id); err != nil {
			conn.Close()
			c.conn = nil
			return fmt.Errorf("feed: restore subscription %s: %w", id, err)
		}
	}
	return nil
}

// Subscribe registers interest in the given markets. Subscriptions survive
// reconnects.
func (c *Client) Subscribe(ctx context.Context, marketIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("feed: subscribe: %w", domain.ErrWSDisconnect)
	}
	for _, id := range marketIDs {
		if err := c.sendSubscribe(ctx, id); err != nil {
			return fmt.Errorf("feed: subscribe %s: %w", id, err)
		}
		c.subscriptions = append(c.subscriptions, id)
	}
	return nil
}

// sendSubscribe writes one subscribe command. Caller holds c.mu.
func (c *Client) sendSubscribe(ctx context.Context, marketID string) error {
	if err := c.commandRate.Wait(ctx); err != nil {
		return err
	}
	cmd := struct {
		Type     string `json:"type"`
		MarketID string `json:"market_id"`
	}{Type: "subscribe", MarketID: marketID}
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Listen reads frames and dispatches them to the handlers until the
// connection drops or ctx is cancelled. It always returns a non-nil error.
func (c *Client) Listen(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("feed: listen: %w", domain.ErrWSDisconnect)
	}

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.pingLoop(conn, pingDone)

	// Unblock ReadMessage when the caller cancels.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: read: %w: %w", domain.ErrWSDisconnect, err)
		}
		c.dispatch(ctx, raw)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one raw frame. Unparseable frames are dropped with a debug
// log; a noisy upstream must not kill the read loop.
func (c *Client) dispatch(ctx context.Context, raw []byte) {
	msgType, err := parseEnvelope(raw)
	if err != nil {
		c.logger.Debug("dropping unparseable frame", slog.Int("len", len(raw)))
		return
	}
	switch msgType {
	case msgTypeMarketUpdate:
		var msg MarketUpdateMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.MarketID == "" {
			return
		}
		if c.onMarket != nil {
			c.onMarket(ctx, msg.MarketID, msg.ToDomain())
		}
	case msgTypeAttestation:
		var msg AttestationMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.MarketID == "" {
			return
		}
		if c.onAttestation != nil {
			c.onAttestation(ctx, msg.ToDomain())
		}
	default:
		c.logger.Debug("unknown frame type", slog.String("type", msgType))
	}
}

// Close tears down the current connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	err := c.conn.Close()
	c.conn = nil
	return err
}
