package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"FlowCast/internal/domain/models"
	drepo "FlowCast/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Indicator names on the wire.
const (
	IndicatorVIX    = "VIX"
	IndicatorSpread = "IG_OAS" // investment-grade option-adjusted spread, bp
)

// Client implements an IndicatorStream backed by a market data WebSocket.
// It tracks the latest VIX and credit spread and emits a merged snapshot
// whenever either updates.
type Client struct {
	apiKey         string
	websocketURL   string
	indicators     []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool

	mu     sync.Mutex
	latest models.IndicatorSnapshot
}

// New creates a new market data IndicatorStream.
func New(apiKey, websocketURL string, indicators []string, reconnectDelay, pingInterval time.Duration) drepo.IndicatorStream {
	if len(indicators) == 0 {
		indicators = []string{IndicatorVIX, IndicatorSpread}
	}
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		indicators:     indicators,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("marketdata connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	log.Printf("marketdata: connected")
	return nil
}

// Subscribe subscribes to configured indicators.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("marketdata not connected")
	}
	for _, ind := range c.indicators {
		msg := map[string]string{"type": "subscribe", "symbol": ind}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", ind, err)
		}
		log.Printf("marketdata: subscribed %s", ind)
	}
	return nil
}

type wireTick struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	T int64   `json:"t"` // ms
}

type wireMessage struct {
	Type string     `json:"type"`
	Data []wireTick `json:"data"`
}

// Read streams merged indicator snapshots and errors. A snapshot is emitted
// on every accepted tick carrying the latest known value of both indicators.
func (c *Client) Read(ctx context.Context) (<-chan *models.IndicatorSnapshot, <-chan error) {
	snaps := make(chan *models.IndicatorSnapshot, 256)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(snaps)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("marketdata conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("marketdata read: %w", err)
					return
				}
				var m wireMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-tick frames
					continue
				}
				if m.Type != "trade" && m.Type != "indicator" {
					continue
				}
				for _, d := range m.Data {
					snap, ok := c.apply(d)
					if !ok {
						continue
					}
					select {
					case snaps <- snap:
					default:
						// drop on backpressure; detection only needs latest
					}
				}
			}
		}
	}()

	return snaps, errs
}

// apply folds a tick into the latest snapshot. Unknown indicators and
// non-positive values are rejected.
func (c *Client) apply(t wireTick) (*models.IndicatorSnapshot, bool) {
	if t.P <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case strings.EqualFold(t.S, IndicatorVIX):
		c.latest.VIX = t.P
	case strings.EqualFold(t.S, IndicatorSpread):
		c.latest.Spread = t.P
	default:
		return nil, false
	}
	c.latest.ObservedAt = time.Unix(t.T/1000, 0).UTC()

	snap := c.latest
	return &snap, true
}

// Latest returns the most recent merged snapshot.
func (c *Client) Latest() models.IndicatorSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected }
