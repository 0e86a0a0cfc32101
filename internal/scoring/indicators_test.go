package scoring

import (
	"testing"

	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

func candlesFromCloses(closes []float64) []upbit.Candle {
	candles := make([]upbit.Candle, len(closes))
	for i, c := range closes {
		candles[i] = upbit.Candle{
			OpeningPrice: c,
			HighPrice:    c * 1.01,
			LowPrice:     c * 0.99,
			TradePrice:   c,
		}
	}
	return candles
}

func TestCalculateRSINoHistory(t *testing.T) {
	if got := CalculateRSI(nil, RSIPeriod); got != 50 {
		t.Errorf("empty history should return neutral 50, got %.1f", got)
	}
	if got := CalculateRSI(candlesFromCloses([]float64{1, 2, 3}), RSIPeriod); got != 50 {
		t.Errorf("short history should return neutral 50, got %.1f", got)
	}
}

func TestCalculateRSIAllGains(t *testing.T) {
	// Monotonically rising toward the present (newest first)
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 1000 - float64(i)*5
	}
	if got := CalculateRSI(candlesFromCloses(closes), RSIPeriod); got != 100 {
		t.Errorf("all gains should read 100, got %.1f", got)
	}
}

func TestCalculateRSIAllLosses(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 1000 + float64(i)*5
	}
	got := CalculateRSI(candlesFromCloses(closes), RSIPeriod)
	if got > 1 {
		t.Errorf("all losses should read near 0, got %.1f", got)
	}
}

func TestVolumeRatio(t *testing.T) {
	candles := make([]upbit.Candle, 25)
	for i := range candles {
		candles[i].CandleAccTradeVolume = 100
	}
	candles[0].CandleAccTradeVolume = 250

	if got := VolumeRatio(candles, 0, 21); got != 2.5 {
		t.Errorf("expected ratio 2.5, got %.2f", got)
	}
	if got := VolumeRatio(candles, 1, 21); got != 1.0 {
		t.Errorf("expected ratio 1.0 for yesterday, got %.2f", got)
	}
	if got := VolumeRatio(candles, 30, 21); got != 0 {
		t.Errorf("out-of-range day should return 0, got %.2f", got)
	}
	if got := VolumeRatio(nil, 0, 21); got != 0 {
		t.Errorf("empty history should return 0, got %.2f", got)
	}
}

func TestMomentum(t *testing.T) {
	candles := candlesFromCloses([]float64{1040, 1030, 1020, 1010, 1005, 1000})
	if got := Momentum(candles, 5, 1050); got < 4.99 || got > 5.01 {
		t.Errorf("expected +5%% momentum, got %.2f", got)
	}
	if got := Momentum(candles, 10, 1050); got != 0 {
		t.Errorf("lookback past the history should return 0, got %.2f", got)
	}
}

func TestLowestLowHighestHigh(t *testing.T) {
	candles := []upbit.Candle{
		{LowPrice: 100, HighPrice: 110},
		{LowPrice: 95, HighPrice: 105},
		{LowPrice: 98, HighPrice: 120},
	}
	if got := LowestLow(candles, 3); got != 95 {
		t.Errorf("expected lowest low 95, got %.1f", got)
	}
	if got := HighestHigh(candles, 3); got != 120 {
		t.Errorf("expected highest high 120, got %.1f", got)
	}
	if got := LowestLow(nil, 5); got != 0 {
		t.Errorf("empty history should return 0, got %.1f", got)
	}
}

func TestVolatility(t *testing.T) {
	candles := []upbit.Candle{
		{HighPrice: 102, LowPrice: 100},
		{HighPrice: 102, LowPrice: 100},
	}
	got := Volatility(candles, 2)
	if got < 1.99 || got > 2.01 {
		t.Errorf("expected ~2%% volatility, got %.2f", got)
	}
}

func TestHigherLows(t *testing.T) {
	rising := []upbit.Candle{
		{LowPrice: 110, HighPrice: 120},
		{LowPrice: 108, HighPrice: 118},
		{LowPrice: 105, HighPrice: 114},
		{LowPrice: 103, HighPrice: 112},
		{LowPrice: 100, HighPrice: 109},
		{LowPrice: 98, HighPrice: 107},
	}
	if !HigherLows(rising, 6) {
		t.Error("rising lows should be detected")
	}
	if !HigherHighs(rising, 6) {
		t.Error("rising highs should be detected")
	}

	flat := []upbit.Candle{
		{LowPrice: 100, HighPrice: 110},
		{LowPrice: 100, HighPrice: 110},
		{LowPrice: 100, HighPrice: 110},
		{LowPrice: 100, HighPrice: 110},
		{LowPrice: 100, HighPrice: 110},
		{LowPrice: 100, HighPrice: 110},
	}
	if HigherLows(flat, 6) {
		t.Error("flat lows must not read as rising")
	}
	if HigherLows(rising[:3], 3) {
		t.Error("fewer than 4 candles must not read as a trend")
	}
}
