// Package exchange 交易所适配层：统一下单/撤单/查仓接口，按逻辑名解析具体实现。
package exchange

import (
	"context"
	"errors"
	"time"

	"scalper-bot-go/order"
)

var ErrUnsupportedExchange = errors.New("unsupported exchange")

// Credentials API 凭证。
type Credentials struct {
	Exchange  string
	APIKey    string
	APISecret string
}

// OrderRequest 下单请求。Price 仅限价单有效。
type OrderRequest struct {
	Ticker        string // 逻辑符号，如 ETH/USDT
	Side          order.Side
	Type          order.Type
	Quantity      float64
	Price         float64
	Leverage      int
	ClientOrderID string
}

// OrderResult 交易所下单回执。
type OrderResult struct {
	ExchangeOrderID string
	Status          order.Status
	FilledQuantity  float64
	AveragePrice    float64
	CreatedAt       time.Time
}

// Position 持仓快照。
type Position struct {
	Ticker     string
	Size       float64
	EntryPrice float64
	Leverage   int
}

// Adapter 单交易所适配器。实现必须可并发调用。
type Adapter interface {
	Name() string
	ValidateCredentials(ctx context.Context) error
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	CancelOrder(ctx context.Context, exchangeOrderID, ticker string) error
	// GetPosition 无持仓时返回 (nil, nil)。
	GetPosition(ctx context.Context, ticker string) (*Position, error)
	GetOrderStatus(ctx context.Context, exchangeOrderID, ticker string) (*OrderResult, error)
}
