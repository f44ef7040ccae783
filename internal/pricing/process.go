package pricing

import (
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/linhhnbkdn/brokerage/internal/domain"
	"github.com/linhhnbkdn/brokerage/internal/infra"
)

// Trend bias values.
const (
	TrendDown     = -1
	TrendSideways = 0
	TrendUp       = 1
)

var (
	minVolume      = int64(10000)
	minPriceFactor = decimal.RequireFromString("0.01")
	oneHundred     = decimal.NewFromInt(100)
)

// symbolState is the price state for one symbol. It is owned by the process;
// nothing outside this package touches it directly.
type symbolState struct {
	symbol        string
	basePrice     decimal.Decimal
	current       decimal.Decimal
	previousClose decimal.Decimal
	dailyHigh     decimal.Decimal
	dailyLow      decimal.Decimal
	volume        int64
	volatility    float64 // daily volatility coefficient
	trend         int     // -1 down, 0 sideways, 1 up
}

// SymbolInfo is a read-only view of one symbol's generator state.
type SymbolInfo struct {
	Symbol        string
	CurrentPrice  decimal.Decimal
	PreviousClose decimal.Decimal
	DailyHigh     decimal.Decimal
	DailyLow      decimal.Decimal
	Volume        int64
	Volatility    float64
	Trend         int
}

// Process generates simulated prices with a trended random walk, one
// independent state record per symbol. Tick never fails: the walk is clamped
// strictly positive and high/low are maintained on every step. The caller
// owns persistence and publication of the returned snapshots.
//
// The price loop is the single writer; the mutex only serializes the
// occasional external read or trend override against it.
type Process struct {
	mu     sync.Mutex
	states map[string]*symbolState
	order  []string // stable iteration order for TickAll
	rng    *rand.Rand
}

// New seeds a process from the configured symbol universe.
func New(symbols []infra.SymbolConfig, seed int64) *Process {
	p := &Process{
		states: make(map[string]*symbolState, len(symbols)),
		rng:    rand.New(rand.NewSource(seed)),
	}
	for _, sc := range symbols {
		base := decimal.NewFromFloat(sc.BasePrice)
		p.states[sc.Symbol] = p.initialState(sc.Symbol, base)
		p.order = append(p.order, sc.Symbol)
	}
	return p
}

func (p *Process) initialState(symbol string, base decimal.Decimal) *symbolState {
	return &symbolState{
		symbol:        symbol,
		basePrice:     base,
		current:       base,
		previousClose: base,
		dailyHigh:     base.Mul(decimal.RequireFromString("1.02")),
		dailyLow:      base.Mul(decimal.RequireFromString("0.98")),
		volume:        p.rng.Int63n(4900001) + 100000, // 100k .. 5M
		volatility:    0.01 + p.rng.Float64()*0.04,    // 1% .. 5%
		trend:         p.rng.Intn(3) - 1,
	}
}

// Symbols returns the symbol universe in configuration order.
func (p *Process) Symbols() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Tick advances one symbol's walk and returns the resulting snapshot.
// Unknown symbols return ok=false; known symbols always succeed.
func (p *Process) Tick(symbol string) (domain.PriceSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[symbol]
	if !ok {
		return domain.PriceSnapshot{}, false
	}
	return p.tick(st), true
}

// TickAll advances every symbol once, in configuration order.
func (p *Process) TickAll() []domain.PriceSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.PriceSnapshot, 0, len(p.order))
	for _, symbol := range p.order {
		out = append(out, p.tick(p.states[symbol]))
	}
	return out
}

// tick applies the random walk. Must be called with mu held.
func (p *Process) tick(st *symbolState) domain.PriceSnapshot {
	priceF, _ := st.current.Float64()

	// Random walk with a small trend influence.
	baseChange := p.rng.NormFloat64() * priceF * st.volatility
	trendFactor := float64(st.trend) * priceF * 0.001
	delta := decimal.NewFromFloat(baseChange + trendFactor)

	newPrice := st.current.Add(delta)
	// Clamp: never below 1% of the prior price, so the price stays
	// strictly positive.
	floor := st.current.Mul(minPriceFactor)
	if newPrice.LessThan(floor) {
		newPrice = floor
	}

	st.current = newPrice
	if newPrice.GreaterThan(st.dailyHigh) {
		st.dailyHigh = newPrice
	}
	if newPrice.LessThan(st.dailyLow) {
		st.dailyLow = newPrice
	}

	change := newPrice.Sub(st.previousClose)
	changePercent := decimal.Zero
	if !st.previousClose.IsZero() {
		changePercent = change.Div(st.previousClose).Mul(oneHundred)
	}

	// Spread of 0.1%..1%, split evenly around the new price.
	spreadPercent := decimal.NewFromFloat(0.001 + p.rng.Float64()*0.009)
	halfSpread := newPrice.Mul(spreadPercent).Div(decimal.NewFromInt(2))
	bid := newPrice.Sub(halfSpread)
	ask := newPrice.Add(halfSpread)

	// Perturb volume, floored at 10k.
	st.volume += p.rng.Int63n(150001) - 50000 // -50k .. +100k
	if st.volume < minVolume {
		st.volume = minVolume
	}

	// Occasionally resample the trend bias.
	if p.rng.Float64() < 0.05 {
		st.trend = p.rng.Intn(3) - 1
	}

	return domain.PriceSnapshot{
		Symbol:        st.symbol,
		Price:         newPrice,
		Change:        change,
		ChangePercent: changePercent,
		Bid:           bid,
		Ask:           ask,
		High:          st.dailyHigh,
		Low:           st.dailyLow,
		Volume:        st.volume,
		TsUnixM:       time.Now().UnixMicro(),
	}
}

// SetTrend overrides one symbol's trend bias. Returns false for unknown
// symbols or out-of-range trends.
func (p *Process) SetTrend(symbol string, trend int) bool {
	if trend < TrendDown || trend > TrendUp {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[symbol]
	if !ok {
		return false
	}
	st.trend = trend
	return true
}

// Reset reinitializes every symbol back to its base price.
func (p *Process) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for symbol, st := range p.states {
		p.states[symbol] = p.initialState(symbol, st.basePrice)
	}
}

// Info returns a read-only view of one symbol's state.
func (p *Process) Info(symbol string) (SymbolInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[symbol]
	if !ok {
		return SymbolInfo{}, false
	}
	return SymbolInfo{
		Symbol:        st.symbol,
		CurrentPrice:  st.current,
		PreviousClose: st.previousClose,
		DailyHigh:     st.dailyHigh,
		DailyLow:      st.dailyLow,
		Volume:        st.volume,
		Volatility:    st.volatility,
		Trend:         st.trend,
	}, true
}
