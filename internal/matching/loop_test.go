package matching

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/linhhnbkdn/brokerage/internal/bus"
	"github.com/linhhnbkdn/brokerage/internal/domain"
	"github.com/linhhnbkdn/brokerage/internal/ledger"
	"github.com/linhhnbkdn/brokerage/internal/storage"
)

func newTestLoop(t *testing.T) (*Loop, *ledger.Ledger, *storage.Store) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.New(store, bus.New(), logger)
	m := New(store, l, logger,
		decimal.RequireFromString("0.001"),
		decimal.RequireFromString("9.99"))
	return m, l, store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func saveQuote(t *testing.T, store *storage.Store, symbol, price, bid, ask string) {
	t.Helper()
	err := store.SaveSnapshot(context.Background(), &domain.PriceSnapshot{
		Symbol:        symbol,
		Price:         dec(price),
		Change:        decimal.Zero,
		ChangePercent: decimal.Zero,
		Bid:           dec(bid),
		Ask:           dec(ask),
		Volume:        100000,
		TsUnixM:       time.Now().UnixMicro(),
	})
	if err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
}

func TestLoop_MarketBuyFillsAtAsk(t *testing.T) {
	m, l, store := newTestLoop(t)
	ctx := context.Background()

	saveQuote(t, store, "AAPL", "150.00", "149.99", "150.01")
	o, err := l.Place(ctx, 1, ledger.PlaceRequest{
		Symbol: "AAPL", Side: domain.SideBuy, Type: domain.TypeMarket, Quantity: dec("100"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if filled := m.RunCycle(ctx); filled != 1 {
		t.Fatalf("RunCycle() = %d, want 1", filled)
	}

	got, err := l.Get(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusFilled {
		t.Fatalf("status = %s, want filled", got.Status)
	}
	if !got.AvgPrice.Equal(dec("150.01")) {
		t.Errorf("avg price = %s, want ask 150.01", got.AvgPrice)
	}

	execs, err := l.Executions(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(execs) != 1 {
		t.Fatalf("executions = %d, want 1", len(execs))
	}
	// 100 * 150.01 * 0.001 = 15.001, capped at 9.99.
	if !execs[0].Commission.Equal(dec("9.99")) {
		t.Errorf("commission = %s, want 9.99", execs[0].Commission)
	}

	// Nothing left to fill on the next cycle.
	if filled := m.RunCycle(ctx); filled != 0 {
		t.Errorf("second RunCycle() = %d, want 0", filled)
	}
}

func TestLoop_MarketSellFillsAtBid(t *testing.T) {
	m, l, store := newTestLoop(t)
	ctx := context.Background()

	saveQuote(t, store, "TSLA", "240.00", "239.90", "240.10")
	o, err := l.Place(ctx, 1, ledger.PlaceRequest{
		Symbol: "TSLA", Side: domain.SideSell, Type: domain.TypeMarket, Quantity: dec("5"),
	})
	if err != nil {
		t.Fatal(err)
	}

	m.RunCycle(ctx)
	got, _ := l.Get(ctx, o.ID)
	if got.Status != domain.StatusFilled || !got.AvgPrice.Equal(dec("239.90")) {
		t.Errorf("order = status %s, avg %s; want filled at bid 239.90", got.Status, got.AvgPrice)
	}

	execs, _ := l.Executions(ctx, o.ID)
	// 5 * 239.90 * 0.001 = 1.1995, under the cap.
	if !execs[0].Commission.Equal(dec("1.1995")) {
		t.Errorf("commission = %s, want 1.1995", execs[0].Commission)
	}
}

// A limit buy rests until the last price reaches the limit, then executes at
// the limit price even when the market has moved further through it.
func TestLoop_LimitBuyWaitsThenFillsAtLimit(t *testing.T) {
	m, l, store := newTestLoop(t)
	ctx := context.Background()

	saveQuote(t, store, "AAPL", "150.00", "149.99", "150.01")
	o, err := l.Place(ctx, 1, ledger.PlaceRequest{
		Symbol: "AAPL", Side: domain.SideBuy, Type: domain.TypeLimit,
		Quantity: dec("10"), Price: decPtr("149.00"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if filled := m.RunCycle(ctx); filled != 0 {
		t.Fatalf("RunCycle() above limit = %d, want 0", filled)
	}
	got, _ := l.Get(ctx, o.ID)
	if got.Status != domain.StatusSubmitted {
		t.Fatalf("status = %s, want submitted while resting", got.Status)
	}

	saveQuote(t, store, "AAPL", "148.50", "148.49", "148.51")
	if filled := m.RunCycle(ctx); filled != 1 {
		t.Fatalf("RunCycle() through limit = %d, want 1", filled)
	}
	got, _ = l.Get(ctx, o.ID)
	if got.Status != domain.StatusFilled {
		t.Errorf("status = %s, want filled", got.Status)
	}
	if !got.AvgPrice.Equal(dec("149.00")) {
		t.Errorf("avg price = %s, want limit 149.00", got.AvgPrice)
	}
}

func TestLoop_LimitSellTriggersAtOrAboveLimit(t *testing.T) {
	m, l, store := newTestLoop(t)
	ctx := context.Background()

	saveQuote(t, store, "GOOGL", "2790.00", "2789.00", "2791.00")
	o, err := l.Place(ctx, 1, ledger.PlaceRequest{
		Symbol: "GOOGL", Side: domain.SideSell, Type: domain.TypeLimit,
		Quantity: dec("2"), Price: decPtr("2800.00"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if filled := m.RunCycle(ctx); filled != 0 {
		t.Fatalf("RunCycle() below limit = %d, want 0", filled)
	}

	// Exactly at the limit triggers.
	saveQuote(t, store, "GOOGL", "2800.00", "2799.00", "2801.00")
	if filled := m.RunCycle(ctx); filled != 1 {
		t.Fatalf("RunCycle() at limit = %d, want 1", filled)
	}
	got, _ := l.Get(ctx, o.ID)
	if !got.AvgPrice.Equal(dec("2800.00")) {
		t.Errorf("avg price = %s, want limit 2800.00", got.AvgPrice)
	}
}

func TestLoop_NoQuoteLeavesOrderResting(t *testing.T) {
	m, l, _ := newTestLoop(t)
	ctx := context.Background()

	o, err := l.Place(ctx, 1, ledger.PlaceRequest{
		Symbol: "NVDA", Side: domain.SideBuy, Type: domain.TypeMarket, Quantity: dec("1"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if filled := m.RunCycle(ctx); filled != 0 {
		t.Errorf("RunCycle() without quote = %d, want 0", filled)
	}
	got, _ := l.Get(ctx, o.ID)
	if got.Status != domain.StatusSubmitted {
		t.Errorf("status = %s, want submitted", got.Status)
	}
}

func TestLoop_StopOrdersRest(t *testing.T) {
	m, l, store := newTestLoop(t)
	ctx := context.Background()

	saveQuote(t, store, "AAPL", "150.00", "149.99", "150.01")
	o, err := l.Place(ctx, 1, ledger.PlaceRequest{
		Symbol: "AAPL", Side: domain.SideSell, Type: domain.TypeStop,
		Quantity: dec("10"), StopPrice: decPtr("140.00"),
	})
	if err != nil {
		t.Fatal(err)
	}

	saveQuote(t, store, "AAPL", "130.00", "129.99", "130.01")
	if filled := m.RunCycle(ctx); filled != 0 {
		t.Errorf("RunCycle() = %d, stop orders must not fill", filled)
	}
	got, _ := l.Get(ctx, o.ID)
	if got.Status != domain.StatusSubmitted {
		t.Errorf("status = %s, want submitted", got.Status)
	}
}

func TestLoop_Commission(t *testing.T) {
	m, _, _ := newTestLoop(t)

	tests := []struct {
		name       string
		qty, price string
		want       string
	}{
		{"under cap", "10", "150", "1.5"},
		{"at cap boundary", "66.6", "150", "9.99"},
		{"over cap", "1000", "150", "9.99"},
		{"tiny order", "1", "0.85", "0.00085"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Commission(dec(tt.qty), dec(tt.price))
			if !got.Equal(dec(tt.want)) {
				t.Errorf("Commission(%s, %s) = %s, want %s", tt.qty, tt.price, got, tt.want)
			}
		})
	}
}
