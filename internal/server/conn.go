package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linhhnbkdn/brokerage/internal/domain"
	"github.com/linhhnbkdn/brokerage/internal/infra"
	"github.com/linhhnbkdn/brokerage/internal/ledger"
	"github.com/linhhnbkdn/brokerage/internal/session"
)

const (
	outboundBuffer = 64
	writeTimeout   = 10 * time.Second
)

// rawMessage marks a pre-serialized payload for the write pump.
type rawMessage []byte

// ConnectionSession drives one websocket connection: a read loop that decodes
// and handles commands, and a write pump that serializes every outbound send
// onto the socket. Pushes from the dispatcher and command replies share the
// same outbound queue, so the connection only ever has one writer.
type ConnectionSession struct {
	id       string
	conn     *websocket.Conn
	registry *session.Registry
	ledger   *ledger.Ledger
	limiter  *infra.RateLimiter
	logger   *slog.Logger

	out       chan any
	closeOnce sync.Once
	closed    chan struct{}

	mu     sync.Mutex
	userID int64
}

func newConnectionSession(id string, conn *websocket.Conn, registry *session.Registry,
	l *ledger.Ledger, limiter *infra.RateLimiter, logger *slog.Logger) *ConnectionSession {
	return &ConnectionSession{
		id:       id,
		conn:     conn,
		registry: registry,
		ledger:   l,
		limiter:  limiter,
		logger:   logger.With("session_id", id),
		out:      make(chan any, outboundBuffer),
		closed:   make(chan struct{}),
	}
}

// ID returns the registry session id.
func (c *ConnectionSession) ID() string {
	return c.id
}

// Run services the connection until the peer disconnects or ctx is cancelled.
func (c *ConnectionSession) Run(ctx context.Context) {
	defer func() {
		c.registry.Disconnect(c.id)
		c.shutdown()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()

	go func() {
		select {
		case <-ctx.Done():
			c.shutdown()
		case <-c.closed:
		}
	}()

	c.send(newWelcome(c.id))
	c.readLoop(ctx)

	c.shutdown()
	wg.Wait()
}

// Push enqueues a pre-serialized payload from the dispatcher. A session whose
// queue is full loses the push rather than blocking the fan-out.
func (c *ConnectionSession) Push(payload []byte) {
	select {
	case <-c.closed:
	case c.out <- rawMessage(payload):
	default:
		c.logger.Warn("session outbound queue full, push dropped")
	}
}

func (c *ConnectionSession) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("connection closed", "error", err)
			}
			return
		}
		c.registry.Touch(c.id)

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.send(newError("Invalid JSON format"))
			continue
		}
		if !c.limiter.TryAcquire() {
			c.send(newError("Rate limit exceeded"))
			continue
		}
		c.handle(ctx, cmd)
	}
}

func (c *ConnectionSession) handle(ctx context.Context, cmd Command) {
	switch cmd.Type {
	case "auth":
		c.handleAuth(cmd)
	case "subscribe":
		c.handleSubscribe(cmd)
	case "unsubscribe":
		c.handleUnsubscribe(cmd)
	case "place_order":
		c.handlePlaceOrder(ctx, cmd)
	case "cancel_order":
		c.handleCancelOrder(ctx, cmd)
	case "ping":
		c.send(pongMsg{Type: "pong", Timestamp: nowTimestamp()})
	default:
		c.send(newError(fmt.Sprintf("Unknown message type: %s", cmd.Type)))
	}
}

func (c *ConnectionSession) handleAuth(cmd Command) {
	userID, err := c.registry.Authenticate(c.id, cmd.Token)
	if err != nil {
		if errors.Is(err, domain.ErrAuth) {
			c.send(newError("Invalid token"))
		} else {
			c.logger.Error("authentication failed", "error", err)
			c.send(newError("Authentication failed"))
		}
		return
	}

	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()

	c.send(newAuthSuccess(userID))
	c.logger.Info("session authenticated", "user_id", userID)
}

func (c *ConnectionSession) handleSubscribe(cmd Command) {
	if !c.authenticated() {
		c.send(newError("Authentication required"))
		return
	}
	if len(cmd.Symbols) == 0 {
		c.send(newError("symbols: is required"))
		return
	}

	count, err := c.registry.Subscribe(c.id, cmd.Symbols)
	if err != nil {
		if errors.Is(err, domain.ErrLimitExceeded) {
			c.send(newError("Subscription limit exceeded"))
		} else {
			c.send(newError("Subscribe failed"))
		}
		return
	}
	c.send(subscribedMsg{Type: "subscribed", Symbols: normalize(cmd.Symbols), Count: count})
}

func (c *ConnectionSession) handleUnsubscribe(cmd Command) {
	if !c.authenticated() {
		c.send(newError("Authentication required"))
		return
	}

	count, err := c.registry.Unsubscribe(c.id, cmd.Symbols)
	if err != nil {
		c.send(newError("Unsubscribe failed"))
		return
	}
	c.send(unsubscribedMsg{Type: "unsubscribed", Symbols: normalize(cmd.Symbols), Count: count})
}

func (c *ConnectionSession) handlePlaceOrder(ctx context.Context, cmd Command) {
	if !c.authenticated() {
		c.send(newError("Authentication required"))
		return
	}

	o, err := c.ledger.Place(ctx, c.currentUserID(), ledger.PlaceRequest{
		Symbol:      cmd.Symbol,
		Side:        cmd.Side,
		Type:        cmd.OrderType,
		Quantity:    cmd.Quantity,
		Price:       cmd.Price,
		StopPrice:   cmd.StopPrice,
		TimeInForce: cmd.TimeInForce,
	})
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			c.send(newError(verr.Error()))
		} else {
			c.logger.Error("order placement failed", "error", err)
			c.send(newError("Order placement failed"))
		}
		return
	}
	c.send(newOrderPlaced(o))
}

func (c *ConnectionSession) handleCancelOrder(ctx context.Context, cmd Command) {
	if !c.authenticated() {
		c.send(newError("Authentication required"))
		return
	}
	if cmd.OrderID == "" {
		c.send(newError("order_id: is required"))
		return
	}

	o, err := c.ledger.Cancel(ctx, c.currentUserID(), cmd.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			c.send(newError("Order is not active"))
		} else {
			c.send(newError("Order not found"))
		}
		return
	}
	c.send(orderCancelledMsg{
		Type:      "order_cancelled",
		OrderID:   o.ID,
		Status:    o.Status,
		Timestamp: domain.FormatUnixM(o.CancelledUnixM),
	})
}

func (c *ConnectionSession) authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID != 0
}

func (c *ConnectionSession) currentUserID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// send enqueues a command reply. Replies are never dropped while the session
// lives; a full queue here means the peer stopped reading, so the connection
// is torn down instead.
func (c *ConnectionSession) send(msg any) {
	select {
	case <-c.closed:
	case c.out <- msg:
	default:
		c.logger.Warn("session outbound queue stuck, closing")
		c.shutdown()
	}
}

func (c *ConnectionSession) writePump() {
	for {
		select {
		case <-c.closed:
			c.drainClose()
			return
		case msg := <-c.out:
			if err := c.write(msg); err != nil {
				c.logger.Info("write failed, closing session", "error", err)
				c.shutdown()
				c.conn.Close()
				return
			}
		}
	}
}

func (c *ConnectionSession) write(msg any) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if raw, ok := msg.(rawMessage); ok {
		return c.conn.WriteMessage(websocket.TextMessage, raw)
	}
	return c.conn.WriteJSON(msg)
}

// drainClose flushes queued replies, then sends a close frame and closes the
// socket.
func (c *ConnectionSession) drainClose() {
	for {
		select {
		case msg := <-c.out:
			if err := c.write(msg); err != nil {
				c.conn.Close()
				return
			}
		default:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			c.conn.Close()
			return
		}
	}
}

func (c *ConnectionSession) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

func normalize(symbols []string) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = strings.ToUpper(s)
	}
	return out
}
