package scoring

import (
	"testing"

	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

// bounceCandles builds a 40-day history shaped like an oversold bounce:
// a stable base at 1200, a four-day panic flush to 1005, then two green
// days with rising lows and volume turning back on.
func bounceCandles() []upbit.Candle {
	candles := make([]upbit.Candle, 40)

	for i := 9; i < 40; i++ {
		candles[i] = upbit.Candle{
			OpeningPrice:         1199,
			HighPrice:            1205,
			LowPrice:             1195,
			TradePrice:           1200,
			CandleAccTradeVolume: 100,
		}
	}

	// Rolling over
	candles[8] = upbit.Candle{OpeningPrice: 1200, HighPrice: 1202, LowPrice: 1195, TradePrice: 1198, CandleAccTradeVolume: 100}
	candles[7] = upbit.Candle{OpeningPrice: 1198, HighPrice: 1200, LowPrice: 1192, TradePrice: 1195, CandleAccTradeVolume: 100}
	candles[6] = upbit.Candle{OpeningPrice: 1195, HighPrice: 1197, LowPrice: 1185, TradePrice: 1190, CandleAccTradeVolume: 100}

	// The flush
	candles[5] = upbit.Candle{OpeningPrice: 1190, HighPrice: 1192, LowPrice: 1145, TradePrice: 1150, CandleAccTradeVolume: 100}
	candles[4] = upbit.Candle{OpeningPrice: 1150, HighPrice: 1152, LowPrice: 1105, TradePrice: 1110, CandleAccTradeVolume: 100}
	candles[3] = upbit.Candle{OpeningPrice: 1110, HighPrice: 1112, LowPrice: 1065, TradePrice: 1070, CandleAccTradeVolume: 100}
	candles[2] = upbit.Candle{OpeningPrice: 1015, HighPrice: 1032, LowPrice: 1005, TradePrice: 1030, CandleAccTradeVolume: 100}

	// Recovery with rising lows
	candles[1] = upbit.Candle{OpeningPrice: 1030, HighPrice: 1047, LowPrice: 1028, TradePrice: 1045, CandleAccTradeVolume: 100}
	candles[0] = upbit.Candle{OpeningPrice: 1040, HighPrice: 1062, LowPrice: 1040, TradePrice: 1060, CandleAccTradeVolume: 150}

	return candles
}

func TestScoreOversoldBounceSetup(t *testing.T) {
	engine := NewEngine()
	result := engine.Score("KRW-DIP", bounceCandles(), 1030)

	if result.Pattern != PatternBounce {
		t.Fatalf("expected bounce pattern, got %s (score %.1f)", result.Pattern, result.Score)
	}
	if result.Score < 80 {
		t.Errorf("clean bounce setup should score at least 80, got %.1f", result.Score)
	}
	if result.Timing != TimingEarly {
		t.Errorf("2.5%% recovery off the bottom should be early, got %s", result.Timing)
	}
	if result.Recommendation != RecStrongBuy {
		t.Errorf("expected strong_buy, got %s", result.Recommendation)
	}
	if len(result.Signals) != 3 {
		t.Errorf("bounce should produce 3 sub-signals, got %d", len(result.Signals))
	}
}

func TestBounceTimingMissedAfterBigRecovery(t *testing.T) {
	// Same flush, but price already 15% off the bottom: the bounce is over.
	candles := bounceCandles()
	price := candles[2].LowPrice * 1.15

	timing := evaluateBounceTiming(candles, price)
	if timing != TimingMissed {
		t.Errorf("15%% recovery should be missed, got %s", timing)
	}
}

func TestFallingKnifeScoresLow(t *testing.T) {
	// Still crashing with no recovery day and dead volume: the oversold
	// sub-signal alone must not clear the alert threshold.
	candles := bounceCandles()
	candles[0] = upbit.Candle{OpeningPrice: 1030, HighPrice: 1032, LowPrice: 960, TradePrice: 965, CandleAccTradeVolume: 100}
	candles[1] = upbit.Candle{OpeningPrice: 1070, HighPrice: 1072, LowPrice: 1000, TradePrice: 1005, CandleAccTradeVolume: 100}
	candles[2] = upbit.Candle{OpeningPrice: 1110, HighPrice: 1112, LowPrice: 1040, TradePrice: 1045, CandleAccTradeVolume: 100}

	result := engineScore(t, candles, 960)
	if result.Score >= 70 {
		t.Errorf("falling knife should stay below the alert threshold, got %.1f", result.Score)
	}
}

func engineScore(t *testing.T, candles []upbit.Candle, price float64) *ScoreResult {
	t.Helper()
	return NewEngine().Score("KRW-DIP", candles, price)
}
