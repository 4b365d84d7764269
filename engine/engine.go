// Package engine 订单生命周期与周期续单引擎：消费交易所订单推送，
// 维护订单状态机，成交后驱动买卖周期继续。
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"scalper-bot-go/bot"
	"scalper-bot-go/exchange"
	"scalper-bot-go/infrastructure/alert"
	"scalper-bot-go/metrics"
	"scalper-bot-go/order"
	"scalper-bot-go/store"
)

// Broadcaster 对外推送订单/机器人变更，UI 消费。
type Broadcaster interface {
	PublishOrderUpdate(ctx context.Context, o *order.Order) error
	PublishBotUpdate(ctx context.Context, b *bot.Bot) error
}

// Config 引擎依赖。Alerts 与 Broadcast 可为空。
type Config struct {
	Store     store.Store
	Adapters  exchange.Registry
	Logger    *zap.Logger
	Alerts    *alert.Manager
	Broadcast Broadcaster
}

type Engine struct {
	store     store.Store
	adapters  exchange.Registry
	logger    *zap.Logger
	alerts    *alert.Manager
	broadcast Broadcaster
	locks     *lockTable
}

func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine: store required")
	}
	if cfg.Adapters == nil {
		return nil, fmt.Errorf("engine: adapters required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:     cfg.Store,
		adapters:  cfg.Adapters,
		logger:    logger,
		alerts:    cfg.Alerts,
		broadcast: cfg.Broadcast,
		locks:     newLockTable(),
	}, nil
}

// EvictIdleLocks 清理空闲的订单/机器人互斥条目，建议由外层定时调用。
func (e *Engine) EvictIdleLocks(maxAge time.Duration) int {
	n := e.locks.Evict(maxAge)
	metrics.LockTableSize.Set(float64(e.locks.Len()))
	if n > 0 {
		e.logger.Debug("evicted idle locks", zap.Int("count", n))
	}
	return n
}

func (e *Engine) alertInfo(msg string, fields map[string]interface{}) {
	if e.alerts == nil {
		return
	}
	if err := e.alerts.Info(msg, fields); err != nil {
		e.logger.Warn("alert dispatch failed", zap.Error(err))
	}
}

func (e *Engine) alertWarning(msg string, fields map[string]interface{}) {
	if e.alerts == nil {
		return
	}
	if err := e.alerts.Warning(msg, fields); err != nil {
		e.logger.Warn("alert dispatch failed", zap.Error(err))
	}
}

func (e *Engine) alertError(msg string, fields map[string]interface{}) {
	if e.alerts == nil {
		return
	}
	if err := e.alerts.Error(msg, fields); err != nil {
		e.logger.Warn("alert dispatch failed", zap.Error(err))
	}
}

func (e *Engine) publishOrder(ctx context.Context, o *order.Order) {
	if e.broadcast == nil {
		return
	}
	if err := e.broadcast.PublishOrderUpdate(ctx, o); err != nil {
		e.logger.Warn("broadcast order update failed",
			zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (e *Engine) publishBot(ctx context.Context, botID string) {
	if e.broadcast == nil {
		return
	}
	b, err := e.store.Bot(ctx, botID)
	if err != nil {
		e.logger.Warn("broadcast bot lookup failed",
			zap.String("bot_id", botID), zap.Error(err))
		return
	}
	if err := e.broadcast.PublishBotUpdate(ctx, b); err != nil {
		e.logger.Warn("broadcast bot update failed",
			zap.String("bot_id", botID), zap.Error(err))
	}
}
