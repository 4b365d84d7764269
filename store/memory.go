package store

import (
	"context"
	"sync"
	"time"

	"scalper-bot-go/bot"
	"scalper-bot-go/order"
)

// Memory 内存仓储，语义与 Postgres 实现一致；用于测试与 dry-run。
type Memory struct {
	mu           sync.RWMutex
	orders       map[string]*order.Order
	byExchangeID map[string]string // exchange order id -> local id
	bots         map[string]*bot.Bot
}

func NewMemory() *Memory {
	return &Memory{
		orders:       make(map[string]*order.Order),
		byExchangeID: make(map[string]string),
		bots:         make(map[string]*bot.Bot),
	}
}

func (m *Memory) CreateOrder(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ExchangeOrderID != "" {
		if _, ok := m.byExchangeID[o.ExchangeOrderID]; ok {
			return ErrDuplicateExchangeID
		}
		m.byExchangeID[o.ExchangeOrderID] = o.ID
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *Memory) OrderByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *Memory) OrderByExchangeID(_ context.Context, exchangeOrderID string) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byExchangeID[exchangeOrderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.orders[id]
	return &cp, nil
}

func (m *Memory) UpdateOrderStatus(_ context.Context, id string, st order.Status, filledQty, filledPrice *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	// 终态只接受同状态重放
	if o.Status.Terminal() && st != o.Status {
		return ErrTerminalStatus
	}
	o.Status = st
	if filledQty != nil {
		o.FilledQuantity = *filledQty
	}
	if filledPrice != nil {
		o.FilledPrice = *filledPrice
	}
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) SetExchangeOrderID(_ context.Context, id, exchangeOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	if prev, ok := m.byExchangeID[exchangeOrderID]; ok && prev != id {
		return ErrDuplicateExchangeID
	}
	o.ExchangeOrderID = exchangeOrderID
	o.UpdatedAt = time.Now().UTC()
	m.byExchangeID[exchangeOrderID] = id
	return nil
}

func (m *Memory) SetCancellationReason(_ context.Context, id string, reason order.CancellationReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.CancellationReason = reason
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) SetCommission(_ context.Context, id string, commission float64, asset string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Commission = commission
	o.CommissionAsset = asset
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) LinkPair(_ context.Context, id, pairedID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	b, ok := m.orders[pairedID]
	if !ok {
		return ErrNotFound
	}
	a.PairedOrderID = pairedID
	b.PairedOrderID = id
	now := time.Now().UTC()
	a.UpdatedAt = now
	b.UpdatedAt = now
	return nil
}

func (m *Memory) MarkOrderFailed(_ context.Context, id, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = order.StatusFailed
	o.ErrorMessage = errMsg
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) OpenOrdersByBot(_ context.Context, botID string) ([]*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*order.Order
	for _, o := range m.orders {
		if o.BotID != botID || o.Status.Terminal() {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) CreateBot(_ context.Context, b *bot.Bot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bots[b.ID] = &cp
	return nil
}

func (m *Memory) Bot(_ context.Context, id string) (*bot.Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bots[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *Memory) UpdateBotStatus(_ context.Context, id string, st bot.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bots[id]
	if !ok {
		return ErrNotFound
	}
	b.Status = st
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) UpdateBotConfig(_ context.Context, in *bot.Bot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bots[in.ID]
	if !ok {
		return ErrNotFound
	}
	b.FirstOrder = in.FirstOrder
	b.Quantity = in.Quantity
	b.BuyPrice = in.BuyPrice
	b.SellPrice = in.SellPrice
	b.Leverage = in.Leverage
	b.InfiniteLoop = in.InfiniteLoop
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) DeleteBot(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bots[id]; !ok {
		return ErrNotFound
	}
	delete(m.bots, id)
	return nil
}

func (m *Memory) RecordFill(_ context.Context, id string, at time.Time, side order.Side, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bots[id]
	if !ok {
		return ErrNotFound
	}
	b.LastFillTime = at
	b.LastFillSide = side
	b.LastFillPrice = price
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) SettleCycle(_ context.Context, id string, pnl float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bots[id]
	if !ok {
		return ErrNotFound
	}
	b.PnL += pnl
	b.TotalTrades++
	b.UpdatedAt = time.Now().UTC()
	return nil
}
