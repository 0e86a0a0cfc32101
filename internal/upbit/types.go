package upbit

import "time"

// Order sides
const (
	SideBid = "bid" // buy
	SideAsk = "ask" // sell
)

// Order types
const (
	OrdTypeLimit  = "limit"  // limit order, requires price and volume
	OrdTypePrice  = "price"  // market buy by total spend
	OrdTypeMarket = "market" // market sell by volume
)

// Market warning states
const (
	WarningNone    = "NONE"
	WarningCaution = "CAUTION"
)

// Market represents a tradable pair from GET /market/all
type Market struct {
	Market        string `json:"market"` // e.g. "KRW-BTC"
	KoreanName    string `json:"korean_name"`
	EnglishName   string `json:"english_name"`
	MarketWarning string `json:"market_warning"`
}

// Ticker represents 24h ticker statistics from GET /ticker
type Ticker struct {
	Market             string  `json:"market"`
	TradePrice         float64 `json:"trade_price"`
	OpeningPrice       float64 `json:"opening_price"`
	HighPrice          float64 `json:"high_price"`
	LowPrice           float64 `json:"low_price"`
	SignedChangeRate   float64 `json:"signed_change_rate"`
	AccTradePrice24h   float64 `json:"acc_trade_price_24h"`
	AccTradeVolume24h  float64 `json:"acc_trade_volume_24h"`
	Timestamp          int64   `json:"timestamp"`
}

// Candle represents a daily OHLCV candle from GET /candles/days.
// The API returns candles newest-first.
type Candle struct {
	Market               string  `json:"market"`
	CandleDateTimeUTC    string  `json:"candle_date_time_utc"`
	OpeningPrice         float64 `json:"opening_price"`
	HighPrice            float64 `json:"high_price"`
	LowPrice             float64 `json:"low_price"`
	TradePrice           float64 `json:"trade_price"` // close
	Timestamp            int64   `json:"timestamp"`
	CandleAccTradePrice  float64 `json:"candle_acc_trade_price"`
	CandleAccTradeVolume float64 `json:"candle_acc_trade_volume"`
}

// Time parses the candle's UTC date-time. Returns the zero time when the
// exchange sends an unparseable value.
func (c Candle) Time() time.Time {
	t, err := time.Parse("2006-01-02T15:04:05", c.CandleDateTimeUTC)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Account represents a balance entry from GET /accounts
type Account struct {
	Currency     string  `json:"currency"`
	Balance      float64 `json:"balance,string"`
	Locked       float64 `json:"locked,string"`
	AvgBuyPrice  float64 `json:"avg_buy_price,string"`
	UnitCurrency string  `json:"unit_currency"`
}

// OrderRequest is the body for POST /orders
type OrderRequest struct {
	Market  string `json:"market"`
	Side    string `json:"side"`
	Volume  string `json:"volume,omitempty"` // required for limit/market
	Price   string `json:"price,omitempty"`  // required for limit/price
	OrdType string `json:"ord_type"`
}

// OrderTrade is a single fill belonging to an order
type OrderTrade struct {
	Market string  `json:"market"`
	UUID   string  `json:"uuid"`
	Price  float64 `json:"price,string"`
	Volume float64 `json:"volume,string"`
	Funds  float64 `json:"funds,string"`
	Side   string  `json:"side"`
}

// Order represents an order from POST /orders or GET /order
type Order struct {
	UUID            string       `json:"uuid"`
	Side            string       `json:"side"`
	OrdType         string       `json:"ord_type"`
	Price           float64      `json:"price,string"`
	State           string       `json:"state"` // wait, watch, done, cancel
	Market          string       `json:"market"`
	CreatedAt       string       `json:"created_at"`
	Volume          float64      `json:"volume,string"`
	RemainingVolume float64      `json:"remaining_volume,string"`
	ExecutedVolume  float64      `json:"executed_volume,string"`
	PaidFee         float64      `json:"paid_fee,string"`
	TradesCount     int          `json:"trades_count"`
	Trades          []OrderTrade `json:"trades,omitempty"`
}

// IsDone reports whether the order reached a terminal state
func (o *Order) IsDone() bool {
	return o.State == "done" || o.State == "cancel"
}

// AvgFillPrice returns the volume-weighted average fill price across the
// order's trades. Returns 0 when nothing has executed.
func (o *Order) AvgFillPrice() float64 {
	var funds, volume float64
	for _, t := range o.Trades {
		funds += t.Funds
		volume += t.Volume
	}
	if volume == 0 {
		return 0
	}
	return funds / volume
}
