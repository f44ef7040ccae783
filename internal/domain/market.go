package domain

import "github.com/shopspring/decimal"

// PriceSnapshot is the result of one tick of the price process for one
// symbol. Change and ChangePercent are measured against the previous close.
type PriceSnapshot struct {
	Symbol        string
	Price         decimal.Decimal
	Change        decimal.Decimal
	ChangePercent decimal.Decimal
	Bid           decimal.Decimal
	Ask           decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Volume        int64
	TsUnixM       int64
}

// Market event categories.
const (
	EventEarningsBeat = "earnings_beat"
	EventEarningsMiss = "earnings_miss"
	EventDividend     = "dividend_announcement"
	EventMarketNews   = "market_news"
	EventTechAlert    = "technical_alert"
)

// Market event impact tiers.
const (
	ImpactLow    = "low"
	ImpactMedium = "medium"
	ImpactHigh   = "high"
)

// MarketEvent is a venue-generated news/alert item for one symbol.
// Write-once except for Active, which a retraction clears.
type MarketEvent struct {
	ID           string
	Symbol       string
	EventType    string
	Impact       string
	Title        string
	Description  string
	Active       bool
	CreatedUnixM int64
}
