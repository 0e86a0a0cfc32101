package upbit

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TickerBatchSize is the maximum number of markets per /ticker request
const TickerBatchSize = 100

// MaxCandleCount is the maximum candle count per /candles/days request
const MaxCandleCount = 200

const requestTimeout = 10 * time.Second

// MarketData is the exchange surface the rest of the system depends on
type MarketData interface {
	GetMarkets(ctx context.Context) ([]Market, error)
	GetTickers(ctx context.Context, markets []string) ([]Ticker, error)
	GetDayCandles(ctx context.Context, market string, count int, to string) ([]Candle, error)
	GetCurrentPrice(ctx context.Context, market string) (float64, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)
	GetOrder(ctx context.Context, orderUUID string) (*Order, error)
	CancelOrder(ctx context.Context, orderUUID string) error
	GetAccounts(ctx context.Context) ([]Account, error)
}

// Client talks to the Upbit REST API. Authenticated endpoints are signed
// with a per-request JWT carrying a SHA512 hash of the query string.
type Client struct {
	accessKey  string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	pacer      *Pacer
}

// NewClient creates an Upbit API client
func NewClient(accessKey, secretKey, baseURL string) *Client {
	return &Client{
		accessKey:  accessKey,
		secretKey:  secretKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		pacer:      DefaultPacer(),
	}
}

// GetMarkets fetches all tradable pairs including their warning flags
func (c *Client) GetMarkets(ctx context.Context) ([]Market, error) {
	var markets []Market
	err := c.get(ctx, GroupPublic, "/market/all", url.Values{"is_details": {"true"}}, &markets)
	if err != nil {
		return nil, fmt.Errorf("error fetching markets: %w", err)
	}
	return markets, nil
}

// GetTickers fetches 24h ticker stats, batching at most TickerBatchSize
// markets per request.
func (c *Client) GetTickers(ctx context.Context, markets []string) ([]Ticker, error) {
	tickers := make([]Ticker, 0, len(markets))
	for start := 0; start < len(markets); start += TickerBatchSize {
		end := start + TickerBatchSize
		if end > len(markets) {
			end = len(markets)
		}

		var batch []Ticker
		params := url.Values{"markets": {strings.Join(markets[start:end], ",")}}
		if err := c.get(ctx, GroupPublic, "/ticker", params, &batch); err != nil {
			return nil, fmt.Errorf("error fetching tickers: %w", err)
		}
		tickers = append(tickers, batch...)
	}
	return tickers, nil
}

// GetDayCandles fetches daily candles, newest-first. count is capped at
// MaxCandleCount. to optionally bounds the most recent candle (RFC3339).
func (c *Client) GetDayCandles(ctx context.Context, market string, count int, to string) ([]Candle, error) {
	if count > MaxCandleCount {
		count = MaxCandleCount
	}

	params := url.Values{
		"market": {market},
		"count":  {strconv.Itoa(count)},
	}
	if to != "" {
		params.Set("to", to)
	}

	var candles []Candle
	if err := c.get(ctx, GroupPublic, "/candles/days", params, &candles); err != nil {
		return nil, fmt.Errorf("error fetching candles for %s: %w", market, err)
	}
	return candles, nil
}

// GetCurrentPrice fetches the latest trade price for a single market
func (c *Client) GetCurrentPrice(ctx context.Context, market string) (float64, error) {
	tickers, err := c.GetTickers(ctx, []string{market})
	if err != nil {
		return 0, err
	}
	if len(tickers) == 0 {
		return 0, fmt.Errorf("no ticker returned for %s", market)
	}
	return tickers[0].TradePrice, nil
}

// PlaceOrder places a new order and returns the created order with its UUID
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error encoding order: %w", err)
	}

	params := url.Values{}
	params.Set("market", req.Market)
	params.Set("side", req.Side)
	params.Set("ord_type", req.OrdType)
	if req.Volume != "" {
		params.Set("volume", req.Volume)
	}
	if req.Price != "" {
		params.Set("price", req.Price)
	}

	var order Order
	if err := c.signed(ctx, http.MethodPost, "/orders", params, body, &order); err != nil {
		return nil, fmt.Errorf("error placing %s %s order for %s: %w", req.Side, req.OrdType, req.Market, err)
	}
	return &order, nil
}

// GetOrder fetches an order's status and fills by UUID
func (c *Client) GetOrder(ctx context.Context, orderUUID string) (*Order, error) {
	params := url.Values{"uuid": {orderUUID}}

	var order Order
	if err := c.signed(ctx, http.MethodGet, "/order", params, nil, &order); err != nil {
		return nil, fmt.Errorf("error fetching order %s: %w", orderUUID, err)
	}
	return &order, nil
}

// CancelOrder cancels an open order by UUID
func (c *Client) CancelOrder(ctx context.Context, orderUUID string) error {
	params := url.Values{"uuid": {orderUUID}}

	var order Order
	if err := c.signed(ctx, http.MethodDelete, "/order", params, nil, &order); err != nil {
		return fmt.Errorf("error canceling order %s: %w", orderUUID, err)
	}
	return nil
}

// GetAccounts fetches the account's balances
func (c *Client) GetAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := c.signed(ctx, http.MethodGet, "/accounts", nil, nil, &accounts); err != nil {
		return nil, fmt.Errorf("error fetching accounts: %w", err)
	}
	return accounts, nil
}

// get performs a paced public GET request
func (c *Client) get(ctx context.Context, group, path string, params url.Values, out interface{}) error {
	if err := c.pacer.Wait(ctx, group); err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// signed performs a paced authenticated request. The query string hash is
// signed into the JWT regardless of whether the parameters travel in the
// URL (GET/DELETE) or the JSON body (POST).
func (c *Client) signed(ctx context.Context, method, path string, params url.Values, body []byte, out interface{}) error {
	if err := c.pacer.Wait(ctx, GroupExchange); err != nil {
		return err
	}

	token, err := c.authToken(params)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + path
	var reader io.Reader
	if method == http.MethodPost {
		reader = bytes.NewReader(body)
	} else if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// authToken builds the signed JWT for an authenticated call
func (c *Client) authToken(params url.Values) (string, error) {
	claims := jwt.MapClaims{
		"access_key": c.accessKey,
		"nonce":      uuid.NewString(),
	}

	if len(params) > 0 {
		hash := sha512.Sum512([]byte(params.Encode()))
		claims["query_hash"] = hex.EncodeToString(hash[:])
		claims["query_hash_alg"] = "SHA512"
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.secretKey))
	if err != nil {
		return "", fmt.Errorf("error signing request token: %w", err)
	}
	return signed, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}
	return nil
}

// APIError is a non-2xx response from the exchange
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upbit API error (status %d): %s", e.Status, e.Body)
}

// IsRateLimited reports whether the error is an exchange rate-limit response
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests
}
