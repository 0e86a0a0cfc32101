package scoring

import "time"

// Pattern identities
const (
	PatternBreakout = "accumulation_breakout"
	PatternBounce   = "oversold_bounce"
	PatternNone     = "none"
)

// Entry timing verdicts. Timing measures freshness of the setup, separate
// from the score which measures setup quality.
const (
	TimingEarly  = "early"
	TimingGood   = "good"
	TimingLate   = "late"
	TimingMissed = "missed"
)

// Recommendations
const (
	RecStrongBuy = "strong_buy"
	RecBuy       = "buy"
	RecHold      = "hold"
	RecPass      = "pass"
)

// Zero-score reasons
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonBadData          = "bad_data"
)

// SubSignal is one named component of a pattern score
type SubSignal struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Max         float64 `json:"max"`
	Description string  `json:"description"`
}

// ScoreResult is the full output of scoring one symbol at one price
type ScoreResult struct {
	Symbol         string      `json:"symbol"`
	Score          float64     `json:"score"` // 0-100
	Pattern        string      `json:"pattern"`
	Signals        []SubSignal `json:"signals"`
	Timing         string      `json:"timing"`
	Recommendation string      `json:"recommendation"`
	Reason         string      `json:"reason,omitempty"` // set for zero-score results

	// Snapshot indicators, reused by the position monitor's exit rules
	RSI          float64   `json:"rsi"`
	VolumeRatio  float64   `json:"volume_ratio"`
	Momentum5d   float64   `json:"momentum_5d"`
	CurrentPrice float64   `json:"current_price"`
	EvaluatedAt  time.Time `json:"evaluated_at"`
}

// Total sums the sub-signal scores
func (r *ScoreResult) Total() float64 {
	var sum float64
	for _, s := range r.Signals {
		sum += s.Score
	}
	return sum
}
