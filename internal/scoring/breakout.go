package scoring

import (
	"fmt"

	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

// Pattern A: accumulation followed by an early breakout. Each sub-signal is
// capped and deliberately scores a market that has "already exploded" lower
// than one still building: the goal is early entry, not chasing.

const (
	maxAccumulation  = 25.0
	maxSupportBounce = 25.0
	maxEarlyMomentum = 20.0
	maxVolumeTiming  = 20.0
	maxTrendPattern  = 10.0
)

// evaluateBreakout scores the accumulation-breakout pattern
func evaluateBreakout(candles []upbit.Candle, currentPrice float64) []SubSignal {
	rsi := CalculateRSI(candles, RSIPeriod)
	return []SubSignal{
		scoreAccumulation(candles),
		scoreSupportBounce(candles, currentPrice),
		scoreEarlyMomentum(candles, currentPrice, rsi),
		scoreVolumeTiming(candles),
		scoreTrendPattern(candles),
	}
}

// scoreAccumulation looks for quietly elevated volume with a compressed
// price range over the past week, measured against the three prior weeks.
func scoreAccumulation(candles []upbit.Candle) SubSignal {
	sig := SubSignal{Name: "accumulation", Max: maxAccumulation}

	// Recent accumulation window (days 1-5) vs the three weeks before it.
	// Day 0 is excluded: today's spike belongs to volume_timing.
	recent := averageVolume(candles, 1, 5)
	baseline := averageVolume(candles, 6, 21)
	if baseline == 0 {
		sig.Description = "no baseline volume"
		return sig
	}
	ratio := recent / baseline

	switch {
	case ratio >= 1.5 && ratio <= 2.5:
		sig.Score += 15
		sig.Description = fmt.Sprintf("steady %.1fx volume build-up", ratio)
	case ratio > 2.5 && ratio <= 4.0:
		sig.Score += 10
		sig.Description = fmt.Sprintf("heavy %.1fx volume build-up", ratio)
	case ratio > 4.0:
		sig.Score += 4
		sig.Description = fmt.Sprintf("volume already exploded (%.1fx)", ratio)
	default:
		sig.Description = fmt.Sprintf("no volume build-up (%.1fx)", ratio)
	}

	vol := Volatility(candles, 5)
	if vol > 0 && vol <= 3 {
		sig.Score += 10
		sig.Description += fmt.Sprintf(", tight %.1f%% range", vol)
	} else if vol > 3 && vol <= 5 {
		sig.Score += 5
		sig.Description += fmt.Sprintf(", moderate %.1f%% range", vol)
	}

	if sig.Score > sig.Max {
		sig.Score = sig.Max
	}
	return sig
}

// scoreSupportBounce rewards price sitting near the 30-day low with a
// confirmed touch-and-recover candle in the last five days.
func scoreSupportBounce(candles []upbit.Candle, currentPrice float64) SubSignal {
	sig := SubSignal{Name: "support_bounce", Max: maxSupportBounce}

	low30 := LowestLow(candles, 30)
	if low30 == 0 {
		sig.Description = "no valid 30-day low"
		return sig
	}

	distance := PercentChange(low30, currentPrice)
	switch {
	case distance >= 0 && distance <= 3:
		sig.Score += 10
		sig.Description = fmt.Sprintf("%.1f%% above 30-day low", distance)
	case distance > 3 && distance <= 7:
		sig.Score += 6
		sig.Description = fmt.Sprintf("%.1f%% above 30-day low", distance)
	case distance > 7 && distance <= 12:
		sig.Score += 3
		sig.Description = fmt.Sprintf("%.1f%% above 30-day low", distance)
	default:
		sig.Description = fmt.Sprintf("far from 30-day low (%.1f%%)", distance)
	}

	// Confirmed touch: a candle in the last 5 days probed the low and still
	// closed green.
	days := min(5, len(candles))
	for i := 0; i < days; i++ {
		touched := candles[i].LowPrice <= low30*1.01
		recovered := candles[i].TradePrice > candles[i].OpeningPrice
		if touched && recovered {
			sig.Score += 15
			sig.Description += ", confirmed support touch"
			break
		}
	}

	if sig.Score > sig.Max {
		sig.Score = sig.Max
	}
	return sig
}

// scoreEarlyMomentum rewards a modest 3-8% five-day move while RSI still
// has room. A strong move on an extended RSI is a chase, not an entry.
func scoreEarlyMomentum(candles []upbit.Candle, currentPrice, rsi float64) SubSignal {
	sig := SubSignal{Name: "early_momentum", Max: maxEarlyMomentum}

	mom := Momentum(candles, 5, currentPrice)
	switch {
	case mom >= 3 && mom <= 8:
		switch {
		case rsi >= 40 && rsi <= 55:
			sig.Score = 20
			sig.Description = fmt.Sprintf("+%.1f%% over 5d with RSI %.0f", mom, rsi)
		case rsi > 55 && rsi <= 65:
			sig.Score = 10
			sig.Description = fmt.Sprintf("+%.1f%% over 5d but RSI %.0f elevated", mom, rsi)
		default:
			sig.Score = 5
			sig.Description = fmt.Sprintf("+%.1f%% over 5d, RSI %.0f out of band", mom, rsi)
		}
	case mom > 8 && mom <= 12:
		sig.Score = 6
		sig.Description = fmt.Sprintf("move extended (+%.1f%% over 5d)", mom)
	default:
		sig.Description = fmt.Sprintf("no early momentum (%.1f%% over 5d)", mom)
	}
	return sig
}

// scoreVolumeTiming rewards a 2-3x volume spike only on its first day.
// A repeat spike means the move is already public.
func scoreVolumeTiming(candles []upbit.Candle) SubSignal {
	sig := SubSignal{Name: "volume_timing", Max: maxVolumeTiming}

	today := VolumeRatio(candles, 0, 21)
	yesterday := VolumeRatio(candles, 1, 21)

	switch {
	case today >= 2 && today <= 3:
		if yesterday < 1.5 {
			sig.Score = 20
			sig.Description = fmt.Sprintf("first-day %.1fx volume spike", today)
		} else {
			sig.Score = 8
			sig.Description = fmt.Sprintf("%.1fx spike, second day", today)
		}
	case today > 3 && today <= 4:
		sig.Score = 10
		sig.Description = fmt.Sprintf("outsized %.1fx spike", today)
	case today > 4:
		sig.Score = 4
		sig.Description = fmt.Sprintf("volume blow-off (%.1fx)", today)
	default:
		sig.Description = fmt.Sprintf("no volume spike (%.1fx)", today)
	}
	return sig
}

// scoreTrendPattern rewards the higher-lows / higher-highs structure
func scoreTrendPattern(candles []upbit.Candle) SubSignal {
	sig := SubSignal{Name: "trend_pattern", Max: maxTrendPattern}

	if HigherLows(candles, 6) {
		sig.Score += 5
		sig.Description = "higher lows"
	}
	if HigherHighs(candles, 6) {
		sig.Score += 5
		if sig.Description != "" {
			sig.Description += ", "
		}
		sig.Description += "higher highs"
	}
	if sig.Description == "" {
		sig.Description = "no trend structure"
	}
	return sig
}

// averageVolume averages CandleAccTradeVolume over `days` candles starting
// at index start (inclusive, moving into the past).
func averageVolume(candles []upbit.Candle, start, days int) float64 {
	end := start + days
	if end > len(candles) {
		end = len(candles)
	}
	if end <= start {
		return 0
	}

	var sum float64
	for i := start; i < end; i++ {
		sum += candles[i].CandleAccTradeVolume
	}
	return sum / float64(end-start)
}
