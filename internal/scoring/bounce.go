package scoring

import (
	"fmt"

	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

// Pattern B: oversold bounce. Looks for a panic flush that has just started
// recovering, with volume turning back on.

const (
	maxOversold       = 30.0
	maxVolumeReversal = 35.0
	maxPanicRecovery  = 35.0

	bottomLookback = 10 // days searched for the local bottom
)

// evaluateBounce scores the oversold-bounce pattern
func evaluateBounce(candles []upbit.Candle, currentPrice float64) []SubSignal {
	rsi := CalculateRSI(candles, RSIPeriod)
	return []SubSignal{
		scoreOversold(candles, currentPrice, rsi),
		scoreVolumeReversal(candles),
		scorePanicRecovery(candles, currentPrice),
	}
}

// scoreOversold wants a washed-out RSI paired with a hard five-day drop.
// RSI below 15 is a falling knife, not a setup.
func scoreOversold(candles []upbit.Candle, currentPrice, rsi float64) SubSignal {
	sig := SubSignal{Name: "oversold", Max: maxOversold}

	drop := Momentum(candles, 5, currentPrice)
	rsiOversold := rsi >= 15 && rsi <= 30
	hardDrop := drop <= -10 && drop >= -25

	switch {
	case rsiOversold && hardDrop:
		sig.Score = 30
		sig.Description = fmt.Sprintf("RSI %.0f with %.1f%% 5d drop", rsi, drop)
	case rsiOversold:
		sig.Score = 15
		sig.Description = fmt.Sprintf("RSI %.0f oversold", rsi)
	case hardDrop:
		sig.Score = 10
		sig.Description = fmt.Sprintf("%.1f%% 5d drop", drop)
	case rsi < 15:
		sig.Score = 8
		sig.Description = fmt.Sprintf("RSI %.0f, still falling", rsi)
	default:
		sig.Description = fmt.Sprintf("not oversold (RSI %.0f, %.1f%% 5d)", rsi, drop)
	}
	return sig
}

// scoreVolumeReversal wants volume climbing out of a dead zone (<1.2x) into
// a 1.2-2.5x band. A huge spike off the low reads as capitulation churn.
func scoreVolumeReversal(candles []upbit.Candle) SubSignal {
	sig := SubSignal{Name: "volume_reversal", Max: maxVolumeReversal}

	today := VolumeRatio(candles, 0, 21)
	yesterday := VolumeRatio(candles, 1, 21)

	switch {
	case today >= 1.2 && today <= 2.5 && yesterday < 1.2:
		sig.Score = 35
		sig.Description = fmt.Sprintf("volume turning on (%.1fx from %.1fx)", today, yesterday)
	case today >= 1.2 && today <= 2.5:
		sig.Score = 20
		sig.Description = fmt.Sprintf("volume active (%.1fx)", today)
	case today > 2.5 && today <= 4:
		sig.Score = 10
		sig.Description = fmt.Sprintf("capitulation churn (%.1fx)", today)
	default:
		sig.Description = fmt.Sprintf("volume dead (%.1fx)", today)
	}
	return sig
}

// scorePanicRecovery wants a bottom formed in the last 0-3 days with a
// modest 1-10% recovery and lows rising off that bottom.
func scorePanicRecovery(candles []upbit.Candle, currentPrice float64) SubSignal {
	sig := SubSignal{Name: "panic_recovery", Max: maxPanicRecovery}

	bottom := bottomIndex(candles, bottomLookback)
	if bottom < 0 || candles[bottom].LowPrice == 0 {
		sig.Description = "no bottom found"
		return sig
	}

	recovery := PercentChange(candles[bottom].LowPrice, currentPrice)

	if bottom <= 3 && recovery >= 1 && recovery <= 10 {
		sig.Score += 20
		sig.Description = fmt.Sprintf("bottom %dd ago, +%.1f%% recovered", bottom, recovery)
	} else {
		sig.Description = fmt.Sprintf("bottom %dd ago, %.1f%% recovered", bottom, recovery)
	}

	if bottom > 0 && risingLowsSince(candles, bottom) {
		sig.Score += 15
		sig.Description += ", lows rising"
	}

	if sig.Score > sig.Max {
		sig.Score = sig.Max
	}
	return sig
}

// bottomIndex returns the index (days ago) of the lowest low within the
// most recent `days` candles, or -1 for an empty history.
func bottomIndex(candles []upbit.Candle, days int) int {
	if days > len(candles) {
		days = len(candles)
	}
	if days == 0 {
		return -1
	}

	idx := 0
	for i := 1; i < days; i++ {
		if candles[i].LowPrice < candles[idx].LowPrice {
			idx = i
		}
	}
	return idx
}

// risingLowsSince reports whether lows are non-decreasing from the bottom
// candle toward today, with at least one strict rise.
func risingLowsSince(candles []upbit.Candle, bottom int) bool {
	strict := false
	for i := bottom; i > 0; i-- {
		if candles[i-1].LowPrice < candles[i].LowPrice {
			return false
		}
		if candles[i-1].LowPrice > candles[i].LowPrice {
			strict = true
		}
	}
	return strict
}
