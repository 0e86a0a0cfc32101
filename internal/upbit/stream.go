package upbit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// streamTicker is the websocket ticker frame (SIMPLE format)
type streamTicker struct {
	Type       string  `json:"type"`
	Code       string  `json:"code"`
	TradePrice float64 `json:"trade_price"`
	Timestamp  int64   `json:"timestamp"`
}

// PriceStream maintains a websocket subscription to the ticker feed for the
// current watch symbols and caches the last traded price per market. The
// position monitor prefers these prices and falls back to REST when a
// market has no fresh stream data.
type PriceStream struct {
	url    string
	logger zerolog.Logger

	mu      sync.RWMutex
	symbols []string
	prices  map[string]streamPrice

	resub    chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
}

type streamPrice struct {
	price float64
	at    time.Time
}

// maxPriceAge is how long a streamed price stays usable before callers
// should fall back to REST
const maxPriceAge = 30 * time.Second

// NewPriceStream creates a price stream for the given websocket endpoint
func NewPriceStream(url string, logger zerolog.Logger) *PriceStream {
	return &PriceStream{
		url:      url,
		logger:   logger.With().Str("component", "price_stream").Logger(),
		prices:   make(map[string]streamPrice),
		resub:    make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Start begins the connect/read loop in the background
func (s *PriceStream) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop closes the stream and waits for the read loop to exit
func (s *PriceStream) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// SetSymbols replaces the subscribed market set. The stream reconnects with
// the new subscription on its next iteration.
func (s *PriceStream) SetSymbols(symbols []string) {
	s.mu.Lock()
	s.symbols = append([]string(nil), symbols...)
	s.mu.Unlock()

	select {
	case s.resub <- struct{}{}:
	default:
	}
}

// Price returns the last streamed price for a market, if fresh enough
func (s *PriceStream) Price(market string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[market]
	if !ok || time.Since(p.at) > maxPriceAge {
		return 0, false
	}
	return p.price, true
}

func (s *PriceStream) run() {
	defer s.wg.Done()

	backoff := time.Second
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		if err := s.connectAndRead(); err != nil {
			s.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("ticker stream disconnected")
		}

		select {
		case <-s.stopChan:
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *PriceStream) connectAndRead() error {
	s.mu.RLock()
	symbols := append([]string(nil), s.symbols...)
	s.mu.RUnlock()

	if len(symbols) == 0 {
		// Nothing to subscribe to yet; wait for a watchlist.
		select {
		case <-s.resub:
		case <-s.stopChan:
		case <-time.After(5 * time.Second):
		}
		return nil
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.url, nil)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := []interface{}{
		map[string]string{"ticket": uuid.NewString()},
		map[string]interface{}{"type": "ticker", "codes": symbols},
		map[string]string{"format": "SIMPLE"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	s.logger.Info().Int("symbols", len(symbols)).Msg("ticker stream subscribed")

	// Close the connection when asked to stop or resubscribe, which unblocks
	// the blocking ReadMessage below.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.stopChan:
			conn.Close()
		case <-s.resub:
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(time.Minute))
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopChan:
				return nil
			default:
				return err
			}
		}

		var tick streamTicker
		if err := json.Unmarshal(data, &tick); err != nil {
			continue
		}
		// SIMPLE format abbreviates field names
		if tick.Code == "" || tick.TradePrice == 0 {
			var simple struct {
				Code       string  `json:"cd"`
				TradePrice float64 `json:"tp"`
			}
			if err := json.Unmarshal(data, &simple); err != nil || simple.Code == "" {
				continue
			}
			tick.Code = simple.Code
			tick.TradePrice = simple.TradePrice
		}

		s.mu.Lock()
		s.prices[tick.Code] = streamPrice{price: tick.TradePrice, at: time.Now()}
		s.mu.Unlock()
	}
}
