package events

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linhhnbkdn/brokerage/internal/domain"
)

var eventTypes = []string{
	domain.EventEarningsBeat,
	domain.EventEarningsMiss,
	domain.EventDividend,
	domain.EventMarketNews,
	domain.EventTechAlert,
}

var impacts = []string{
	domain.ImpactLow,
	domain.ImpactMedium,
	domain.ImpactHigh,
}

// Generator produces random market events for the simulated universe.
type Generator struct {
	symbols []string
	rng     *rand.Rand
}

// New creates a generator over the given symbols.
func New(symbols []string, seed int64) *Generator {
	return &Generator{
		symbols: symbols,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Maybe rolls the per-interval chance and returns a new event when it hits.
func (g *Generator) Maybe(chance float64) (*domain.MarketEvent, bool) {
	if g.rng.Float64() >= chance {
		return nil, false
	}
	return g.Generate(), true
}

// Generate produces one random event for a random symbol.
func (g *Generator) Generate() *domain.MarketEvent {
	symbol := g.symbols[g.rng.Intn(len(g.symbols))]
	eventType := eventTypes[g.rng.Intn(len(eventTypes))]
	impact := impacts[g.rng.Intn(len(impacts))]

	title, description := content(symbol, eventType)
	return &domain.MarketEvent{
		ID:           "evt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Symbol:       symbol,
		EventType:    eventType,
		Impact:       impact,
		Title:        title,
		Description:  description,
		Active:       true,
		CreatedUnixM: time.Now().UnixMicro(),
	}
}

func content(symbol, eventType string) (title, description string) {
	switch eventType {
	case domain.EventEarningsBeat:
		return fmt.Sprintf("%s Beats Quarterly Earnings Expectations", symbol),
			fmt.Sprintf("%s reported stronger than expected quarterly results, beating analyst estimates.", symbol)
	case domain.EventEarningsMiss:
		return fmt.Sprintf("%s Misses Quarterly Earnings Expectations", symbol),
			fmt.Sprintf("%s reported weaker than expected quarterly results, missing analyst estimates.", symbol)
	case domain.EventDividend:
		return fmt.Sprintf("%s Announces Dividend Payment", symbol),
			fmt.Sprintf("%s announced a dividend payment to shareholders.", symbol)
	case domain.EventMarketNews:
		return fmt.Sprintf("Market News Alert for %s", symbol),
			fmt.Sprintf("Breaking news affecting %s and related securities.", symbol)
	case domain.EventTechAlert:
		return fmt.Sprintf("Technical Analysis Alert for %s", symbol),
			fmt.Sprintf("%s has triggered a technical indicator signal.", symbol)
	default:
		return fmt.Sprintf("Market Update for %s", symbol),
			fmt.Sprintf("Market update affecting %s.", symbol)
	}
}
