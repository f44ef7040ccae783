package events

import (
	"strings"
	"testing"

	"github.com/linhhnbkdn/brokerage/internal/domain"
)

func TestGenerator_Generate(t *testing.T) {
	g := New([]string{"AAPL", "TSLA"}, 1)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		ev := g.Generate()
		if ev.Symbol != "AAPL" && ev.Symbol != "TSLA" {
			t.Fatalf("unexpected symbol %s", ev.Symbol)
		}
		if !strings.HasPrefix(ev.ID, "evt_") || len(ev.ID) != 16 {
			t.Fatalf("bad event id %q", ev.ID)
		}
		if !ev.Active {
			t.Fatal("new event not active")
		}
		if ev.Title == "" || ev.Description == "" {
			t.Fatalf("empty content for %s", ev.EventType)
		}
		if !strings.Contains(ev.Title, ev.Symbol) {
			t.Errorf("title %q does not mention %s", ev.Title, ev.Symbol)
		}
		switch ev.Impact {
		case domain.ImpactLow, domain.ImpactMedium, domain.ImpactHigh:
		default:
			t.Fatalf("unexpected impact %s", ev.Impact)
		}
		seen[ev.EventType] = true
	}
	// all five templates should show up over 200 draws
	if len(seen) != 5 {
		t.Errorf("event types seen = %d, want 5 (%v)", len(seen), seen)
	}
}

func TestGenerator_Maybe(t *testing.T) {
	g := New([]string{"AAPL"}, 2)

	if _, ok := g.Maybe(0); ok {
		t.Error("Maybe(0) generated an event")
	}
	if _, ok := g.Maybe(1); !ok {
		t.Error("Maybe(1) generated nothing")
	}

	hits := 0
	for i := 0; i < 1000; i++ {
		if _, ok := g.Maybe(0.1); ok {
			hits++
		}
	}
	if hits < 50 || hits > 200 {
		t.Errorf("Maybe(0.1) hit %d of 1000, expected around 100", hits)
	}
}
