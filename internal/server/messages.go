package server

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/linhhnbkdn/brokerage/internal/domain"
)

// Command is one inbound client message. Decimal fields accept JSON numbers
// and strings alike.
type Command struct {
	Type string `json:"type"`

	// auth
	Token string `json:"token,omitempty"`

	// subscribe / unsubscribe
	Symbols []string `json:"symbols,omitempty"`

	// place_order
	Symbol      string           `json:"symbol,omitempty"`
	Side        string           `json:"side,omitempty"`
	OrderType   string           `json:"order_type,omitempty"`
	Quantity    decimal.Decimal  `json:"quantity,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	StopPrice   *decimal.Decimal `json:"stop_price,omitempty"`
	TimeInForce string           `json:"time_in_force,omitempty"`

	// cancel_order
	OrderID string `json:"order_id,omitempty"`
}

type welcomeMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type authSuccessMsg struct {
	Type      string `json:"type"`
	UserID    int64  `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

type subscribedMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Count   int      `json:"count"`
}

type unsubscribedMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Count   int      `json:"count"`
}

type orderPlacedMsg struct {
	Type        string           `json:"type"`
	OrderID     string           `json:"order_id"`
	Symbol      string           `json:"symbol"`
	Side        string           `json:"side"`
	OrderType   string           `json:"order_type"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Price       *decimal.Decimal `json:"price"`
	Status      string           `json:"status"`
	TimeInForce string           `json:"time_in_force"`
	Timestamp   string           `json:"timestamp"`
}

type orderCancelledMsg struct {
	Type      string `json:"type"`
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type pongMsg struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newWelcome(sessionID string) welcomeMsg {
	return welcomeMsg{
		Type:      "connection_established",
		SessionID: sessionID,
		Message:   "Connected to market data feed",
		Timestamp: nowTimestamp(),
	}
}

func newAuthSuccess(userID int64) authSuccessMsg {
	return authSuccessMsg{Type: "auth_success", UserID: userID, Timestamp: nowTimestamp()}
}

func newOrderPlaced(o *domain.Order) orderPlacedMsg {
	return orderPlacedMsg{
		Type:        "order_placed",
		OrderID:     o.ID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		OrderType:   o.Type,
		Quantity:    o.Quantity,
		Price:       o.Price,
		Status:      o.Status,
		TimeInForce: o.TimeInForce,
		Timestamp:   domain.FormatUnixM(o.SubmittedUnixM),
	}
}

func newError(message string) errorMsg {
	return errorMsg{Type: "error", Message: message}
}

func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
