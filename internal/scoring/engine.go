package scoring

import (
	"time"

	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

// MinCandles is the minimum daily-candle history required to score
const MinCandles = 30

// Engine scores surge candidates. It is a pure function over candle history
// and the current price: no I/O, no shared state, and it never panics or
// returns an error into the per-symbol hot loop. Anything it cannot score
// comes back as a zero-score result with a reason.
type Engine struct{}

// NewEngine creates a scoring engine
func NewEngine() *Engine {
	return &Engine{}
}

// Score evaluates both pattern strategies against the candle history
// (newest-first) and returns the higher-scoring one.
func (e *Engine) Score(symbol string, candles []upbit.Candle, currentPrice float64) *ScoreResult {
	now := time.Now()

	if len(candles) < MinCandles {
		return zeroResult(symbol, currentPrice, ReasonInsufficientData, now)
	}
	if currentPrice <= 0 || !validCandles(candles) {
		return zeroResult(symbol, currentPrice, ReasonBadData, now)
	}

	breakout := evaluateBreakout(candles, currentPrice)
	bounce := evaluateBounce(candles, currentPrice)

	breakoutScore := sumSignals(breakout)
	bounceScore := sumSignals(bounce)

	result := &ScoreResult{
		Symbol:       symbol,
		RSI:          CalculateRSI(candles, RSIPeriod),
		VolumeRatio:  VolumeRatio(candles, 0, 21),
		Momentum5d:   Momentum(candles, 5, currentPrice),
		CurrentPrice: currentPrice,
		EvaluatedAt:  now,
	}

	if bounceScore > breakoutScore {
		result.Pattern = PatternBounce
		result.Signals = bounce
		result.Score = clamp(bounceScore)
		result.Timing = evaluateBounceTiming(candles, currentPrice)
	} else {
		result.Pattern = PatternBreakout
		result.Signals = breakout
		result.Score = clamp(breakoutScore)
		result.Timing = evaluateBreakoutTiming(candles, currentPrice)
	}

	result.Recommendation = recommend(result.Score, result.Timing)
	return result
}

func zeroResult(symbol string, price float64, reason string, at time.Time) *ScoreResult {
	return &ScoreResult{
		Symbol:         symbol,
		Score:          0,
		Pattern:        PatternNone,
		Timing:         TimingMissed,
		Recommendation: RecPass,
		Reason:         reason,
		RSI:            50,
		CurrentPrice:   price,
		EvaluatedAt:    at,
	}
}

// validCandles rejects histories with non-positive prices, which would
// otherwise poison the percentage math.
func validCandles(candles []upbit.Candle) bool {
	limit := MinCandles
	if limit > len(candles) {
		limit = len(candles)
	}
	for i := 0; i < limit; i++ {
		c := candles[i]
		if c.TradePrice <= 0 || c.LowPrice <= 0 || c.HighPrice <= 0 || c.OpeningPrice <= 0 {
			return false
		}
		if c.HighPrice < c.LowPrice {
			return false
		}
	}
	return true
}

func sumSignals(signals []SubSignal) float64 {
	var sum float64
	for _, s := range signals {
		sum += s.Score
	}
	return sum
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
