package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scalper-bot-go/order"
)

const coindcxBaseURL = "https://api.coindcx.com"

// CoinDCX 合约 REST 适配器；默认不发起真实网络调用，HTTPClient 可注入 httptest。
// 签名为对 JSON 请求体的 HMAC-SHA256 十六进制串。
type CoinDCX struct {
	BaseURL    string
	APIKey     string
	Secret     string
	HTTPClient *http.Client
	Limiter    RateLimiter
}

func NewCoinDCX(creds Credentials) *CoinDCX {
	return &CoinDCX{
		BaseURL:    coindcxBaseURL,
		APIKey:     creds.APIKey,
		Secret:     creds.APISecret,
		HTTPClient: NewDefaultHTTPClient(),
		Limiter:    NewTokenBucketLimiter(8, 16),
	}
}

func (c *CoinDCX) Name() string { return "coindcx" }

// FormatTicker 逻辑符号转合约符号：ETH/USDT -> B-ETH_USDT。
func FormatTicker(ticker string) string {
	if strings.HasPrefix(ticker, "B-") {
		return ticker
	}
	return "B-" + strings.ReplaceAll(ticker, "/", "_")
}

// StatusFromWire 交易所状态映射为本地订单状态。
func StatusFromWire(s string) order.Status {
	switch strings.ToLower(s) {
	case "init", "open":
		return order.StatusOpen
	case "partially_filled", "partial_entry":
		return order.StatusPartiallyFilled
	case "filled":
		return order.StatusFilled
	case "cancelled", "canceled":
		return order.StatusCancelled
	case "rejected":
		return order.StatusRejected
	case "expired", "untriggered":
		return order.StatusExpired
	default:
		return order.StatusOpen
	}
}

func (c *CoinDCX) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.Secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *CoinDCX) post(ctx context.Context, endpoint string, payload interface{}, out interface{}) error {
	if c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		c.Limiter.Wait()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-AUTH-APIKEY", c.APIKey)
	req.Header.Set("X-AUTH-SIGNATURE", c.sign(body))
	req.Header.Set("X-AUTH-TIMESTAMP", fmt.Sprintf("%d", time.Now().UnixMilli()))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *CoinDCX) ValidateCredentials(ctx context.Context) error {
	var balances []struct {
		Currency string `json:"currency"`
	}
	payload := map[string]interface{}{"timestamp": time.Now().UnixMilli()}
	if err := c.post(ctx, "/exchange/v1/users/balances", payload, &balances); err != nil {
		return fmt.Errorf("validate credentials: %w", err)
	}
	return nil
}

type coindcxOrder struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	FilledQuantity float64 `json:"filled_quantity"`
	AvgPrice       float64 `json:"avg_price"`
}

func (c *CoinDCX) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	payload := map[string]interface{}{
		"market":    FormatTicker(req.Ticker),
		"side":      strings.ToLower(string(req.Side)),
		"quantity":  req.Quantity,
		"timestamp": time.Now().UnixMilli(),
	}
	switch req.Type {
	case order.TypeLimit:
		payload["order_type"] = "limit_order"
		payload["price_per_unit"] = req.Price
	default:
		payload["order_type"] = "market_order"
	}
	if req.Leverage > 0 {
		payload["leverage"] = req.Leverage
	}
	if req.ClientOrderID != "" {
		payload["client_order_id"] = req.ClientOrderID
	}

	var co coindcxOrder
	if err := c.post(ctx, "/exchange/v1/orders/create", payload, &co); err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	if co.ID == "" {
		return nil, fmt.Errorf("place order: empty exchange order id")
	}
	return &OrderResult{
		ExchangeOrderID: co.ID,
		Status:          order.StatusOpen,
		FilledQuantity:  co.FilledQuantity,
		AveragePrice:    co.AvgPrice,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

func (c *CoinDCX) CancelOrder(ctx context.Context, exchangeOrderID, ticker string) error {
	payload := map[string]interface{}{
		"id":        exchangeOrderID,
		"timestamp": time.Now().UnixMilli(),
	}
	if err := c.post(ctx, "/exchange/v1/orders/cancel", payload, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", exchangeOrderID, err)
	}
	return nil
}

func (c *CoinDCX) GetOrderStatus(ctx context.Context, exchangeOrderID, ticker string) (*OrderResult, error) {
	payload := map[string]interface{}{
		"id":        exchangeOrderID,
		"timestamp": time.Now().UnixMilli(),
	}
	var co coindcxOrder
	if err := c.post(ctx, "/exchange/v1/orders/status", payload, &co); err != nil {
		return nil, fmt.Errorf("order status %s: %w", exchangeOrderID, err)
	}
	return &OrderResult{
		ExchangeOrderID: exchangeOrderID,
		Status:          StatusFromWire(co.Status),
		FilledQuantity:  co.FilledQuantity,
		AveragePrice:    co.AvgPrice,
	}, nil
}

// GetPosition 查询指定合约的持仓；交易所在持仓存在时会锁定杠杆，续单必须沿用。
func (c *CoinDCX) GetPosition(ctx context.Context, ticker string) (*Position, error) {
	payload := map[string]interface{}{
		"timestamp": time.Now().UnixMilli(),
		"page":      "1",
		"size":      "100",
	}
	var positions []struct {
		Pair      string  `json:"pair"`
		ActivePos float64 `json:"active_pos"`
		AvgPrice  float64 `json:"avg_price"`
		Leverage  float64 `json:"leverage"`
	}
	if err := c.post(ctx, "/exchange/v1/derivatives/futures/positions", payload, &positions); err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	want := FormatTicker(ticker)
	for _, p := range positions {
		if p.Pair != want || p.ActivePos == 0 {
			continue
		}
		return &Position{
			Ticker:     ticker,
			Size:       p.ActivePos,
			EntryPrice: p.AvgPrice,
			Leverage:   int(p.Leverage),
		}, nil
	}
	return nil, nil
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
