package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"LiqPulse/internal/domain/models"
	drepo "LiqPulse/internal/domain/repository"
	"LiqPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// allForceOrders is the all-market liquidation order stream on USD-M
// futures; one subscription covers every symbol.
const allForceOrders = "!forceOrder@arr"

// Client implements a LiquidationStream backed by the Binance futures
// WebSocket. It normalizes forceOrder frames into TradeEvents; everything
// venue-specific stays inside this package.
type Client struct {
	websocketURL   string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	multiplier     float64
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	pingStop  chan struct{}
}

// New creates a new Binance LiquidationStream.
func New(websocketURL string, reconnectDelay, pingInterval time.Duration, contractMultiplier float64, log *logger.Logger) drepo.LiquidationStream {
	if contractMultiplier <= 0 {
		contractMultiplier = 1
	}
	return &Client{
		websocketURL:   websocketURL,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		multiplier:     contractMultiplier,
		log:            log,
	}
}

// Connect establishes the WebSocket connection and starts a keepalive
// loop scoped to it. Any previous keepalive is stopped first.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	c.mu.Lock()
	if c.pingStop != nil {
		close(c.pingStop)
	}
	c.conn = conn
	c.connected = true
	c.pingStop = make(chan struct{})
	go c.keepalive(conn, c.pingStop)
	c.mu.Unlock()
	c.log.Info("binance: connected", logger.String("url", c.websocketURL))
	return nil
}

// keepalive answers the venue's liveness pings for one connection. It
// exits when that connection is torn down; the mutex keeps its writes
// from interleaving with Subscribe (gorilla permits one writer).
func (c *Client) keepalive(conn *websocket.Conn, stop chan struct{}) {
	if c.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn == conn {
				_ = conn.WriteMessage(websocket.PongMessage, nil)
			}
			c.mu.Unlock()
		}
	}
}

// Subscribe subscribes to the all-market liquidation stream.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("binance not connected")
	}
	msg := map[string]any{
		"method": "SUBSCRIBE",
		"params": []string{allForceOrders},
		"id":     1,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe %s: %w", allForceOrders, err)
	}
	c.log.Info("binance: subscribed", logger.String("stream", allForceOrders))
	return nil
}

// forceOrder is the liquidation order payload inside a forceOrder event.
// Numeric fields arrive as strings.
type forceOrder struct {
	Symbol   string `json:"s"`
	Side     string `json:"S"` // SELL = long liquidated, BUY = short liquidated
	Quantity string `json:"q"`
	Price    string `json:"p"`
	AvgPrice string `json:"ap"`
	Status   string `json:"X"`
	TradeT   int64  `json:"T"`
}

type forceOrderEvent struct {
	EventType string     `json:"e"`
	EventTime int64      `json:"E"`
	Order     forceOrder `json:"o"`
}

// Read streams TradeEvents and errors until the connection drops or ctx is
// done. Both channels close on exit.
func (c *Client) Read(ctx context.Context) (<-chan *models.TradeEvent, <-chan error) {
	events := make(chan *models.TradeEvent, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	// read loop; the keepalive for this connection was started by Connect
	go func() {
		defer close(events)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if conn == nil {
					errs <- fmt.Errorf("binance conn nil")
					return
				}
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("binance read: %w", err)
					return
				}
				var m forceOrderEvent
				if err := json.Unmarshal(b, &m); err != nil {
					// subscription acks and other non-event frames
					continue
				}
				if m.EventType != "forceOrder" {
					continue
				}
				e := c.normalize(m.Order)
				if e == nil {
					continue
				}
				select {
				case events <- e:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return events, errs
}

// normalize converts one forceOrder into a TradeEvent. Arrival time, not
// exchange event time, stamps ObservedAt: the window is a wall-clock
// bound on our side regardless of feed delay or burst replay.
func (c *Client) normalize(o forceOrder) *models.TradeEvent {
	price, err := strconv.ParseFloat(o.AvgPrice, 64)
	if err != nil || price <= 0 {
		price, err = strconv.ParseFloat(o.Price, 64)
		if err != nil {
			return nil
		}
	}
	qty, err := strconv.ParseFloat(o.Quantity, 64)
	if err != nil {
		return nil
	}
	side := models.Sell
	if o.Side == "BUY" {
		side = models.Buy
	}
	return &models.TradeEvent{
		Instrument: o.Symbol,
		Side:       side,
		Price:      price,
		Quantity:   qty,
		Notional:   price * qty * c.multiplier,
		ObservedAt: time.Now(),
	}
}

// Reconnect closes and reconnects after the configured delay.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close stops the keepalive and closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
