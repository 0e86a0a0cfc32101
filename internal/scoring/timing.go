package scoring

import "github.com/ln9swrd/coinpulse-sub000/internal/upbit"

// Entry timing is judged independently of the score: the score measures how
// good the setup is, timing measures whether it is still fresh enough to
// act on. A late or missed verdict always forces a pass.

// evaluateBreakoutTiming judges freshness for the accumulation-breakout
// pattern from momentum, today's volume ratio and distance below the
// 30-day high.
func evaluateBreakoutTiming(candles []upbit.Candle, currentPrice float64) string {
	mom := Momentum(candles, 5, currentPrice)
	ratio := VolumeRatio(candles, 0, 21)

	high30 := HighestHigh(candles, 30)
	belowHigh := 100.0
	if high30 > 0 {
		belowHigh = (high30 - currentPrice) / high30 * 100
	}

	switch {
	case mom > 15 || ratio > 5:
		return TimingMissed
	case mom > 10 || belowHigh < 1:
		return TimingLate
	case mom > 6 || ratio > 3 || belowHigh < 3:
		return TimingGood
	default:
		return TimingEarly
	}
}

// evaluateBounceTiming judges freshness for the oversold-bounce pattern
// from how far price has already recovered off the local bottom.
func evaluateBounceTiming(candles []upbit.Candle, currentPrice float64) string {
	bottom := bottomIndex(candles, bottomLookback)
	if bottom < 0 || candles[bottom].LowPrice == 0 {
		return TimingMissed
	}

	recovery := PercentChange(candles[bottom].LowPrice, currentPrice)
	switch {
	case recovery > 12:
		return TimingMissed
	case recovery > 7:
		return TimingLate
	case recovery > 3:
		return TimingGood
	default:
		return TimingEarly
	}
}

// recommend maps a final score and timing verdict to an action. Timing
// gates first: a stale setup is a pass no matter how well it scores.
func recommend(score float64, timing string) string {
	if timing == TimingLate || timing == TimingMissed {
		return RecPass
	}

	switch {
	case score >= 80:
		return RecStrongBuy
	case score >= 70:
		return RecBuy
	case score >= 50:
		return RecHold
	default:
		return RecPass
	}
}
