package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ln9swrd/coinpulse-sub000/internal/scoring"
	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

// scoredump scores a single market against live public data and prints
// the full breakdown. Useful for tuning thresholds without running the
// whole service. Uses only public endpoints, no API keys needed.
func main() {
	market := flag.String("market", "KRW-BTC", "market to score, e.g. KRW-BTC")
	candles := flag.Int("candles", 60, "daily candles to fetch")
	baseURL := flag.String("base-url", "https://api.upbit.com/v1", "exchange REST base URL")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := upbit.NewClient("", "", *baseURL)

	history, err := client.GetDayCandles(ctx, *market, *candles, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to fetch candles: %v\n", err)
		os.Exit(1)
	}

	price, err := client.GetCurrentPrice(ctx, *market)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to fetch price: %v\n", err)
		os.Exit(1)
	}

	result := scoring.NewEngine().Score(*market, history, price)

	fmt.Printf("%s  price=%.2f  candles=%d\n\n", *market, price, len(history))
	fmt.Printf("score:          %.1f / 100\n", result.Score)
	fmt.Printf("pattern:        %s\n", result.Pattern)
	fmt.Printf("timing:         %s\n", result.Timing)
	fmt.Printf("recommendation: %s\n", result.Recommendation)
	if result.Reason != "" {
		fmt.Printf("reason:         %s\n", result.Reason)
	}
	fmt.Printf("rsi=%.1f  volume_ratio=%.2f  momentum_5d=%+.2f%%\n\n", result.RSI, result.VolumeRatio, result.Momentum5d)

	for _, sub := range result.Signals {
		fmt.Printf("  %-18s %5.1f / %-4.0f %s\n", sub.Name, sub.Score, sub.Max, sub.Description)
	}
}
