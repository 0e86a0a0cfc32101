package trader

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

// Trader executes market orders against the exchange and resolves the
// actual fill from the order's trades. The fill price is what P/L is
// computed from: the observed ticker price at decision time can differ
// from what the order really executed at.
type Trader struct {
	client upbit.MarketData
	logger zerolog.Logger
}

// Fill is a resolved order execution
type Fill struct {
	OrderUUID string
	Volume    float64
	AvgPrice  float64
	AmountKRW float64
}

const (
	fillPollInterval = 500 * time.Millisecond
	fillPollTimeout  = 15 * time.Second
)

// New creates a trader
func New(client upbit.MarketData, logger zerolog.Logger) *Trader {
	return &Trader{
		client: client,
		logger: logger.With().Str("component", "trader").Logger(),
	}
}

// OpenPosition market-buys for a fixed KRW amount and waits for the fill
func (t *Trader) OpenPosition(ctx context.Context, market string, krwAmount float64) (*Fill, error) {
	if krwAmount <= 0 {
		return nil, fmt.Errorf("invalid trade amount %.0f KRW", krwAmount)
	}

	order, err := t.client.PlaceOrder(ctx, upbit.OrderRequest{
		Market:  market,
		Side:    upbit.SideBid,
		OrdType: upbit.OrdTypePrice,
		Price:   strconv.FormatFloat(krwAmount, 'f', -1, 64),
	})
	if err != nil {
		return nil, err
	}

	fill, err := t.awaitFill(ctx, order.UUID)
	if err != nil {
		return nil, err
	}

	t.logger.Info().Str("market", market).
		Float64("volume", fill.Volume).Float64("avg_price", fill.AvgPrice).
		Str("order_uuid", fill.OrderUUID).Msg("position opened")
	return fill, nil
}

// ClosePosition market-sells the given volume and waits for the fill
func (t *Trader) ClosePosition(ctx context.Context, market string, volume float64) (*Fill, error) {
	if volume <= 0 {
		return nil, fmt.Errorf("invalid sell volume %.8f", volume)
	}

	order, err := t.client.PlaceOrder(ctx, upbit.OrderRequest{
		Market:  market,
		Side:    upbit.SideAsk,
		OrdType: upbit.OrdTypeMarket,
		Volume:  strconv.FormatFloat(volume, 'f', -1, 64),
	})
	if err != nil {
		return nil, err
	}

	fill, err := t.awaitFill(ctx, order.UUID)
	if err != nil {
		return nil, err
	}

	t.logger.Info().Str("market", market).
		Float64("volume", fill.Volume).Float64("avg_price", fill.AvgPrice).
		Str("order_uuid", fill.OrderUUID).Msg("position closed")
	return fill, nil
}

// awaitFill polls the order until it reaches a terminal state, then
// resolves the volume-weighted fill price from its trades.
func (t *Trader) awaitFill(ctx context.Context, orderUUID string) (*Fill, error) {
	deadline := time.Now().Add(fillPollTimeout)

	for {
		order, err := t.client.GetOrder(ctx, orderUUID)
		if err == nil && order.IsDone() {
			if order.ExecutedVolume == 0 {
				return nil, fmt.Errorf("order %s finished with no execution", orderUUID)
			}

			avg := order.AvgFillPrice()
			if avg == 0 {
				// Some order lookups omit trades briefly after completion;
				// fall back to the order's own price field.
				avg = order.Price
			}

			var funds float64
			for _, tr := range order.Trades {
				funds += tr.Funds
			}
			return &Fill{
				OrderUUID: orderUUID,
				Volume:    order.ExecutedVolume,
				AvgPrice:  avg,
				AmountKRW: funds,
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for order %s to fill", orderUUID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(fillPollInterval):
		}
	}
}
