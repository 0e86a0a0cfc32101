package database

import (
	"encoding/json"
	"time"
)

// Signal lifecycle states. Transitions only move forward:
// pending -> active -> terminal, or pending -> terminal directly for
// alert-only signals. Terminal rows are never written again.
const (
	StatusPending = "pending" // alerted, no position opened
	StatusActive  = "active"  // real position open
	StatusWin     = "win"     // closed at or above target
	StatusLose    = "lose"    // closed at or below stop-loss
	StatusClosed  = "closed"  // closed early (stale, momentum loss, neutral)
	StatusExpired = "expired" // aged out without resolution
)

// Close reasons recorded when a signal leaves pending/active
const (
	CloseReasonTarget          = "target_reached"
	CloseReasonStopLoss        = "stop_loss"
	CloseReasonSignalWeakening = "signal_weakening"
	CloseReasonOverbought      = "overbought"
	CloseReasonMomentumLoss    = "momentum_loss"
	CloseReasonExpired         = "Expired (>72h)"
	CloseReasonPeakDrop        = "peak_drop"
	CloseReasonBelowEntry      = "below_entry"
	CloseReasonStagnation      = "stagnation"
	CloseReasonSlowProgress    = "slow_progress"
	CloseReasonNeutral         = "expired_neutral"
)

// OpenStatuses are the states a closing update may transition out of
var OpenStatuses = []string{StatusPending, StatusActive}

// IsTerminal reports whether a status permits no further writes
func IsTerminal(status string) bool {
	switch status {
	case StatusWin, StatusLose, StatusClosed, StatusExpired:
		return true
	}
	return false
}

// Signal is one detected surge candidate and its full lifecycle. The
// signals table is the single coordination point between the detection,
// monitoring and sweeping loops.
type Signal struct {
	ID             int64           `json:"id"`
	Symbol         string          `json:"symbol"`
	DetectedAt     time.Time       `json:"detected_at"`
	Score          float64         `json:"score"`
	Pattern        string          `json:"pattern"`
	Timing         string          `json:"timing"`
	Recommendation string          `json:"recommendation"`
	Breakdown      json.RawMessage `json:"breakdown,omitempty"`

	EntryPrice    float64  `json:"entry_price"`
	TargetPrice   float64  `json:"target_price"`
	StopLossPrice float64  `json:"stop_loss_price"`
	PeakPrice     float64  `json:"peak_price"` // non-decreasing while open
	ExitPrice     *float64 `json:"exit_price,omitempty"`

	Traded      bool     `json:"traded"`
	TradeAmount *float64 `json:"trade_amount,omitempty"` // KRW spent
	TradeVolume *float64 `json:"trade_volume,omitempty"`
	OrderUUID   *string  `json:"order_uuid,omitempty"`

	Status            string     `json:"status"`
	CloseReason       *string    `json:"close_reason,omitempty"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
	ProfitLoss        *float64   `json:"profit_loss,omitempty"`
	ProfitLossPercent *float64   `json:"profit_loss_percent,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Closure captures everything written when a signal is closed
type Closure struct {
	Status            string
	ExitPrice         float64
	CloseReason       string
	ProfitLoss        float64
	ProfitLossPercent float64
}
