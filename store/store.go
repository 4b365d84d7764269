// Package store 订单与机器人的持久化访问层。
package store

import (
	"context"
	"errors"
	"time"

	"scalper-bot-go/bot"
	"scalper-bot-go/order"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicateExchangeID = errors.New("duplicate exchange order id")
	ErrTerminalStatus      = errors.New("order already in terminal status")
)

// OrderStore 订单仓储。UpdateOrderStatus 相对于引擎的单订单互斥段必须原子，
// 且拒绝把终态订单改写成其他状态（同状态重放除外），返回 ErrTerminalStatus；
// SetCancellationReason 必须在依赖它的交易所撤单调用之前完成并可见。
type OrderStore interface {
	CreateOrder(ctx context.Context, o *order.Order) error
	OrderByID(ctx context.Context, id string) (*order.Order, error)
	OrderByExchangeID(ctx context.Context, exchangeOrderID string) (*order.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, st order.Status, filledQty, filledPrice *float64) error
	SetExchangeOrderID(ctx context.Context, id, exchangeOrderID string) error
	SetCancellationReason(ctx context.Context, id string, reason order.CancellationReason) error
	SetCommission(ctx context.Context, id string, commission float64, asset string) error
	LinkPair(ctx context.Context, id, pairedID string) error
	MarkOrderFailed(ctx context.Context, id, errMsg string) error
	OpenOrdersByBot(ctx context.Context, botID string) ([]*order.Order, error)
}

// BotStore 机器人仓储。
type BotStore interface {
	CreateBot(ctx context.Context, b *bot.Bot) error
	Bot(ctx context.Context, id string) (*bot.Bot, error)
	UpdateBotStatus(ctx context.Context, id string, st bot.Status) error
	// UpdateBotConfig 覆盖交易参数（方向/数量/价格/杠杆/循环开关），不触碰运行指标。
	UpdateBotConfig(ctx context.Context, b *bot.Bot) error
	DeleteBot(ctx context.Context, id string) error
	RecordFill(ctx context.Context, id string, at time.Time, side order.Side, price float64) error
	// SettleCycle 单次原子更新：pnl 累加、周期数 +1。
	SettleCycle(ctx context.Context, id string, pnl float64) error
}

// Store 组合仓储接口，引擎依赖此抽象。
type Store interface {
	OrderStore
	BotStore
}
