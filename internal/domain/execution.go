package domain

import "github.com/shopspring/decimal"

// Execution is the immutable record of one fill. Created once per fill
// event, never mutated afterwards.
type Execution struct {
	ID            string
	OrderID       string
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	Commission    decimal.Decimal
	ExecutedUnixM int64
}

// TotalValue is quantity * price.
func (e *Execution) TotalValue() decimal.Decimal {
	return e.Quantity.Mul(e.Price)
}

// NetValue is the execution value after commission.
func (e *Execution) NetValue() decimal.Decimal {
	return e.TotalValue().Sub(e.Commission)
}
