// Command probe is a diagnostic client for the market data feed: it connects,
// authenticates, subscribes to a few symbols and prints every push it
// receives. It reconnects with exponential backoff when the feed drops.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linhhnbkdn/brokerage/internal/auth"
	"github.com/linhhnbkdn/brokerage/internal/infra"
)

func main() {
	url := flag.String("url", "ws://localhost:8765/ws/market-data", "feed url")
	token := flag.String("token", "", "auth token (minted from -secret when empty)")
	secret := flag.String("secret", "", "auth secret for minting a local token")
	userID := flag.Int64("user", 1, "user id for minted tokens")
	symbols := flag.String("symbols", "AAPL,TSLA,BTC-USD", "comma-separated symbols")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *token == "" {
		if *secret == "" {
			fmt.Fprintln(os.Stderr, "either -token or -secret is required")
			os.Exit(1)
		}
		*token = auth.NewHMACValidator(*secret).Sign(*userID, time.Hour)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	retries := 0
	for {
		if err := run(ctx, logger, *url, *token, strings.Split(*symbols, ",")); err != nil {
			logger.Error("feed session ended", "error", err)
		}
		if ctx.Err() != nil {
			return
		}

		retries++
		wait := infra.CalculateBackoff(retries)
		logger.Info("reconnecting", "attempt", retries, "wait", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func run(ctx context.Context, logger *slog.Logger, url, token string, symbols []string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if err := conn.WriteJSON(map[string]any{"type": "auth", "token": token}); err != nil {
		return err
	}
	if err := conn.WriteJSON(map[string]any{"type": "subscribe", "symbols": symbols}); err != nil {
		return err
	}

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		switch msg["type"] {
		case "error":
			logger.Warn("feed error", "message", msg["message"])
		default:
			fmt.Printf("%v\n", msg)
		}
	}
}
