package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Push payloads sent to subscribed websocket sessions. They are built where
// the event originates (simulator, ledger) and carried opaquely through the
// event bus to the dispatcher.

// PricePush is the price_update push message.
type PricePush struct {
	Type          string          `json:"type"`
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Volume        int64           `json:"volume"`
	Bid           decimal.Decimal `json:"bid"`
	Ask           decimal.Decimal `json:"ask"`
	Timestamp     string          `json:"timestamp"`
}

// NewPricePush converts a snapshot to its wire form.
func NewPricePush(s PriceSnapshot) PricePush {
	return PricePush{
		Type:          "price_update",
		Symbol:        s.Symbol,
		Price:         s.Price,
		Change:        s.Change,
		ChangePercent: s.ChangePercent,
		Volume:        s.Volume,
		Bid:           s.Bid,
		Ask:           s.Ask,
		Timestamp:     FormatUnixM(s.TsUnixM),
	}
}

// AlertPush is the market_alert push message.
type AlertPush struct {
	Type      string `json:"type"`
	Symbol    string `json:"symbol"`
	Severity  string `json:"severity"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// NewAlertPush converts a market event to its wire form.
func NewAlertPush(ev *MarketEvent) AlertPush {
	return AlertPush{
		Type:      "market_alert",
		Symbol:    ev.Symbol,
		Severity:  ev.Impact,
		Title:     ev.Title,
		Message:   ev.Description,
		Timestamp: FormatUnixM(ev.CreatedUnixM),
	}
}

// OrderPush is the order_executed push message sent to the owning user on
// every order state change.
type OrderPush struct {
	Type      string           `json:"type"`
	OrderID   string           `json:"order_id"`
	Symbol    string           `json:"symbol"`
	Status    string           `json:"status"`
	Quantity  decimal.Decimal  `json:"quantity"`
	FilledQty decimal.Decimal  `json:"filled_quantity"`
	Price     *decimal.Decimal `json:"price"`
	Timestamp string           `json:"timestamp"`
}

// NewOrderPush converts an order to its wire form. Price is the average fill
// price, null until the first fill.
func NewOrderPush(o *Order) OrderPush {
	ts := o.FilledUnixM
	if ts == 0 {
		ts = o.SubmittedUnixM
	}
	if ts == 0 {
		ts = o.CreatedUnixM
	}
	return OrderPush{
		Type:      "order_executed",
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		Status:    o.Status,
		Quantity:  o.Quantity,
		FilledQty: o.FilledQty,
		Price:     o.AvgPrice,
		Timestamp: FormatUnixM(ts),
	}
}

// FormatUnixM renders Unix microseconds as an RFC3339 UTC timestamp.
func FormatUnixM(unixM int64) string {
	return time.UnixMicro(unixM).UTC().Format(time.RFC3339Nano)
}
