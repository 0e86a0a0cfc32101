package upbit

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// MockClient is an in-memory MarketData implementation for tests and dry
// runs. Prices, candles and order behaviour are seeded by the caller.
type MockClient struct {
	mu sync.Mutex

	Markets   []Market
	Tickers   map[string]Ticker
	Candles   map[string][]Candle
	Orders    map[string]*Order
	FailNext  error // fails the next call of any kind
	FailOrder error // fails the next PlaceOrder only

	PlacedOrders []OrderRequest
}

// NewMockClient creates an empty mock exchange
func NewMockClient() *MockClient {
	return &MockClient{
		Tickers: make(map[string]Ticker),
		Candles: make(map[string][]Candle),
		Orders:  make(map[string]*Order),
	}
}

// SetPrice seeds the current trade price for a market
func (m *MockClient) SetPrice(market string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.Tickers[market]
	t.Market = market
	t.TradePrice = price
	m.Tickers[market] = t
}

func (m *MockClient) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

func (m *MockClient) GetMarkets(ctx context.Context) ([]Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	return append([]Market(nil), m.Markets...), nil
}

func (m *MockClient) GetTickers(ctx context.Context, markets []string) ([]Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	out := make([]Ticker, 0, len(markets))
	for _, mk := range markets {
		if t, ok := m.Tickers[mk]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MockClient) GetDayCandles(ctx context.Context, market string, count int, to string) ([]Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	candles := m.Candles[market]
	if count < len(candles) {
		candles = candles[:count]
	}
	return append([]Candle(nil), candles...), nil
}

func (m *MockClient) GetCurrentPrice(ctx context.Context, market string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return 0, err
	}

	t, ok := m.Tickers[market]
	if !ok {
		return 0, fmt.Errorf("no ticker returned for %s", market)
	}
	return t.TradePrice, nil
}

// PlaceOrder fills orders immediately at the current mock price
func (m *MockClient) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	if err := m.FailOrder; err != nil {
		m.FailOrder = nil
		return nil, err
	}

	m.PlacedOrders = append(m.PlacedOrders, req)

	price := m.Tickers[req.Market].TradePrice
	order := &Order{
		UUID:    uuid.NewString(),
		Side:    req.Side,
		OrdType: req.OrdType,
		Market:  req.Market,
		State:   "done",
	}

	switch req.OrdType {
	case OrdTypePrice:
		// Market buy: spend the given KRW amount at the current price.
		funds, _ := strconv.ParseFloat(req.Price, 64)
		if price > 0 {
			vol := funds / price
			order.ExecutedVolume = vol
			order.Trades = []OrderTrade{{Market: req.Market, Price: price, Volume: vol, Funds: funds, Side: req.Side}}
		}
	case OrdTypeMarket:
		// Market sell: liquidate the given volume at the current price.
		vol, _ := strconv.ParseFloat(req.Volume, 64)
		order.ExecutedVolume = vol
		order.Trades = []OrderTrade{{Market: req.Market, Price: price, Volume: vol, Funds: vol * price, Side: req.Side}}
	default:
		vol, _ := strconv.ParseFloat(req.Volume, 64)
		px, _ := strconv.ParseFloat(req.Price, 64)
		order.Price = px
		order.ExecutedVolume = vol
		order.Trades = []OrderTrade{{Market: req.Market, Price: px, Volume: vol, Funds: vol * px, Side: req.Side}}
	}

	m.Orders[order.UUID] = order
	return order, nil
}

func (m *MockClient) GetOrder(ctx context.Context, orderUUID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	order, ok := m.Orders[orderUUID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderUUID)
	}
	return order, nil
}

func (m *MockClient) CancelOrder(ctx context.Context, orderUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}

	order, ok := m.Orders[orderUUID]
	if !ok {
		return fmt.Errorf("order %s not found", orderUUID)
	}
	order.State = "cancel"
	return nil
}

func (m *MockClient) GetAccounts(ctx context.Context) ([]Account, error) {
	return []Account{{Currency: "KRW", Balance: 10000000, UnitCurrency: "KRW"}}, nil
}
