package scoring

import (
	"math"

	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

// Candles arrive newest-first from the exchange: index 0 is the current
// (partial) day, index 1 is yesterday, and so on. Every helper in this file
// follows that convention.

// ============================================================================
// RSI (Wilder smoothing)
// ============================================================================

// RSIPeriod is the standard lookback used everywhere in the engine
const RSIPeriod = 14

// CalculateRSI computes a Wilder-smoothed RSI over the most recent candles.
// Returns a neutral 50 when there is not enough history.
func CalculateRSI(candles []upbit.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 50.0
	}

	// Work oldest-to-newest over the most recent window, capped so a long
	// history does not change the recent reading materially.
	window := period * 2
	if window > len(candles)-1 {
		window = len(candles) - 1
	}

	var avgGain, avgLoss float64

	// Seed averages from the oldest `period` changes in the window
	for i := window; i > window-period; i-- {
		change := candles[i-1].TradePrice - candles[i].TradePrice
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Wilder smoothing over the remainder
	for i := window - period; i > 0; i-- {
		change := candles[i-1].TradePrice - candles[i].TradePrice
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// VOLUME
// ============================================================================

// VolumeRatio compares the volume of the candle at index day against the
// average of the baseline days that precede it (further in the past).
// Returns 0 when the baseline is empty or zero.
func VolumeRatio(candles []upbit.Candle, day, baselineDays int) float64 {
	if day >= len(candles) {
		return 0
	}

	start := day + 1
	end := start + baselineDays
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
	avg := sum / float64(end-start)
	if avg == 0 {
		return 0
	}
	return candles[day].CandleAccTradeVolume / avg
}

// ============================================================================
// PRICE
// ============================================================================

// PercentChange returns (new-old)/old*100, or 0 for a zero base
func PercentChange(oldValue, newValue float64) float64 {
	if oldValue == 0 {
		return 0
	}
	return (newValue - oldValue) / oldValue * 100
}

// Momentum returns the percent move from the close `days` ago to the
// current price.
func Momentum(candles []upbit.Candle, days int, currentPrice float64) float64 {
	if days >= len(candles) {
		return 0
	}
	return PercentChange(candles[days].TradePrice, currentPrice)
}

// LowestLow returns the minimum low over the most recent `days` candles
func LowestLow(candles []upbit.Candle, days int) float64 {
	if days > len(candles) {
		days = len(candles)
	}
	if days == 0 {
		return 0
	}

	low := candles[0].LowPrice
	for i := 1; i < days; i++ {
		if candles[i].LowPrice < low {
			low = candles[i].LowPrice
		}
	}
	return low
}

// HighestHigh returns the maximum high over the most recent `days` candles
func HighestHigh(candles []upbit.Candle, days int) float64 {
	if days > len(candles) {
		days = len(candles)
	}
	if days == 0 {
		return 0
	}

	high := candles[0].HighPrice
	for i := 1; i < days; i++ {
		if candles[i].HighPrice > high {
			high = candles[i].HighPrice
		}
	}
	return high
}

// Volatility returns the average daily range (high-low relative to low) in
// percent over the most recent `days` candles. A compressed range ahead of
// a breakout reads as a low value here.
func Volatility(candles []upbit.Candle, days int) float64 {
	if days > len(candles) {
		days = len(candles)
	}
	if days == 0 {
		return 0
	}

	var sum float64
	count := 0
	for i := 0; i < days; i++ {
		if candles[i].LowPrice == 0 {
			continue
		}
		sum += (candles[i].HighPrice - candles[i].LowPrice) / candles[i].LowPrice * 100
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// HigherLows reports whether lows have been rising across the most recent
// `days` candles, compared pairwise in two-day steps to tolerate noise.
func HigherLows(candles []upbit.Candle, days int) bool {
	if days > len(candles) {
		days = len(candles)
	}
	if days < 4 {
		return false
	}

	for i := 0; i+2 < days; i += 2 {
		recent := math.Min(candles[i].LowPrice, candles[i+1].LowPrice)
		older := math.Min(candles[i+2].LowPrice, candles[min(i+3, days-1)].LowPrice)
		if recent <= older {
			return false
		}
	}
	return true
}

// HigherHighs reports whether highs have been rising across the most recent
// `days` candles, compared pairwise in two-day steps.
func HigherHighs(candles []upbit.Candle, days int) bool {
	if days > len(candles) {
		days = len(candles)
	}
	if days < 4 {
		return false
	}

	for i := 0; i+2 < days; i += 2 {
		recent := math.Max(candles[i].HighPrice, candles[i+1].HighPrice)
		older := math.Max(candles[i+2].HighPrice, candles[min(i+3, days-1)].HighPrice)
		if recent <= older {
			return false
		}
	}
	return true
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
