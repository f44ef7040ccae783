package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order types.
const (
	TypeMarket    = "market"
	TypeLimit     = "limit"
	TypeStop      = "stop"
	TypeStopLimit = "stop_limit"
)

// Order statuses. Filled, cancelled, rejected and expired are terminal.
const (
	StatusPending   = "pending"
	StatusSubmitted = "submitted"
	StatusPartial   = "partial"
	StatusFilled    = "filled"
	StatusCancelled = "cancelled"
	StatusRejected  = "rejected"
	StatusExpired   = "expired"
)

// Time-in-force values.
const (
	TIFDay = "day"
	TIFGTC = "gtc"
	TIFIOC = "ioc"
	TIFFOK = "fok"
)

// Order tracks the placement and execution of a single user order.
// Mutation goes through the state machine methods below; the ledger holds a
// per-order lock around the whole mutate-persist-publish sequence, so no two
// fills can interleave on the same order.
type Order struct {
	ID          string
	UserID      int64
	Symbol      string
	Side        string
	Type        string
	Quantity    decimal.Decimal
	Price       *decimal.Decimal // limit price, nil for market orders
	StopPrice   *decimal.Decimal
	FilledQty   decimal.Decimal
	FilledValue decimal.Decimal  // exact sum of qty*price over all fills
	AvgPrice    *decimal.Decimal // quantity-weighted mean of fills, nil until first fill
	Status      string
	TimeInForce string

	RejectReason string

	CreatedUnixM   int64 // Unix microseconds
	SubmittedUnixM int64
	FilledUnixM    int64
	CancelledUnixM int64
}

// RemainingQuantity is the quantity still open to fill.
func (o *Order) RemainingQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQty)
}

// IsActive reports whether the order can still be filled or cancelled.
func (o *Order) IsActive() bool {
	switch o.Status {
	case StatusPending, StatusSubmitted, StatusPartial:
		return true
	}
	return false
}

// IsTerminal reports whether the order reached a final state.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Submit transitions pending -> submitted and stamps the submit time.
func (o *Order) Submit() error {
	if o.Status != StatusPending {
		return ErrInvalidState
	}
	o.Status = StatusSubmitted
	o.SubmittedUnixM = time.Now().UnixMicro()
	return nil
}

// Fill applies a (partial) fill of qty at price. The average fill price is
// the quantity-weighted mean of every fill applied so far, derived from the
// exact accumulated fill value rather than the previously stored (rounded)
// average, so rounding never compounds across fills. Fails with
// ErrInvalidState on inactive orders, fully filled ones included, and with
// ErrOverFill when qty exceeds the remaining quantity.
func (o *Order) Fill(qty, price decimal.Decimal) error {
	if !o.IsActive() {
		return ErrInvalidState
	}
	if qty.GreaterThan(o.RemainingQuantity()) {
		return ErrOverFill
	}

	o.FilledValue = o.FilledValue.Add(qty.Mul(price))
	o.FilledQty = o.FilledQty.Add(qty)
	avg := o.FilledValue.Div(o.FilledQty)
	o.AvgPrice = &avg

	if o.FilledQty.GreaterThanOrEqual(o.Quantity) {
		o.Status = StatusFilled
		o.FilledUnixM = time.Now().UnixMicro()
	} else {
		o.Status = StatusPartial
	}
	return nil
}

// Cancel transitions an active order to terminal cancelled.
func (o *Order) Cancel() error {
	if !o.IsActive() {
		return ErrInvalidState
	}
	o.Status = StatusCancelled
	o.CancelledUnixM = time.Now().UnixMicro()
	return nil
}

// Reject forces the order into terminal rejected, regardless of state.
func (o *Order) Reject(reason string) {
	o.Status = StatusRejected
	o.RejectReason = reason
}
