package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"scalper-bot-go/bot"
	"scalper-bot-go/exchange"
	"scalper-bot-go/metrics"
	"scalper-bot-go/order"
)

// continueCycle 成交后的续单流程，持机器人锁执行：
// 入场腿成交挂配对的出场单；出场腿成交结算周期，开循环时再挂一张新入场单。
func (e *Engine) continueCycle(ctx context.Context, fill *order.Order) {
	release := e.locks.Acquire("bot:" + fill.BotID)
	defer release()

	// 路由器传入的是锁内快照，配对关系可能在快照之后才落库，以存储为准
	cur, err := e.store.OrderByID(ctx, fill.ID)
	if err != nil {
		e.logger.Error("filled order re-read failed, fill not continued",
			zap.String("order_id", fill.ID), zap.Error(err))
		return
	}
	fill = cur

	b, err := e.store.Bot(ctx, fill.BotID)
	if err != nil {
		e.logger.Error("bot lookup failed, fill not continued",
			zap.String("bot_id", fill.BotID),
			zap.String("order_id", fill.ID),
			zap.Error(err))
		return
	}
	// 锁内复核：停止/故障中的机器人不再续单
	if b.Status != bot.StatusActive {
		e.logger.Info("bot not active, skipping continuation",
			zap.String("bot_id", b.ID),
			zap.String("status", string(b.Status)))
		return
	}

	if err := e.store.RecordFill(ctx, b.ID, time.Now().UTC(), fill.Side, fill.EffectiveFillPrice()); err != nil {
		e.logger.Warn("record fill failed",
			zap.String("bot_id", b.ID), zap.Error(err))
	}

	if fill.PairedOrderID == "" {
		// 入场腿：挂对侧出场单并与本单配对
		placed, err := e.placeBotOrder(ctx, b, fill.Side.Opposite(), fill.ID)
		if err != nil {
			e.failBot(ctx, b, err)
			return
		}
		e.alertInfo("opposite order placed", map[string]interface{}{
			"bot_id":   b.ID,
			"order_id": placed.ID,
			"side":     string(placed.Side),
			"price":    placed.Price,
		})
		return
	}

	// 出场腿：结算本周期
	entry, err := e.store.OrderByID(ctx, fill.PairedOrderID)
	if err != nil {
		e.logger.Error("paired order lookup failed, cycle not settled",
			zap.String("order_id", fill.ID),
			zap.String("paired_order_id", fill.PairedOrderID),
			zap.Error(err))
		return
	}

	pnl := CyclePnL(entry, fill)
	if err := e.store.SettleCycle(ctx, b.ID, pnl); err != nil {
		e.logger.Error("settle cycle failed",
			zap.String("bot_id", b.ID), zap.Error(err))
		return
	}
	metrics.CyclesCompleted.Inc()
	metrics.RealizedPnL.Add(pnl)
	e.logger.Info("cycle settled",
		zap.String("bot_id", b.ID),
		zap.Float64("pnl", pnl),
		zap.String("entry_order_id", entry.ID),
		zap.String("exit_order_id", fill.ID))
	e.alertInfo("cycle completed", map[string]interface{}{
		"bot_id": b.ID,
		"ticker": b.Ticker,
		"pnl":    pnl,
	})
	e.publishBot(ctx, b.ID)

	if !b.InfiniteLoop {
		e.logger.Info("infinite loop disabled, no new entry",
			zap.String("bot_id", b.ID))
		return
	}
	// 新周期的入场单不配对，成交后由入场腿分支补挂出场单
	if _, err := e.placeBotOrder(ctx, b, b.FirstOrder, ""); err != nil {
		e.failBot(ctx, b, err)
	}
}

// placeBotOrder 按机器人配置价挂限价单：先落库 PENDING，交易所受理后
// 记录交易所订单号并转 OPEN，需要时与 pairWithID 双向配对。
func (e *Engine) placeBotOrder(ctx context.Context, b *bot.Bot, side order.Side, pairWithID string) (*order.Order, error) {
	adapter, err := e.adapters.Lookup(b.Exchange)
	if err != nil {
		return nil, err
	}

	o := order.New(b.ID, b.Ticker, side, order.TypeLimit, b.Quantity, b.PriceFor(side))
	if err := e.store.CreateOrder(ctx, o); err != nil {
		return nil, err
	}

	res, err := adapter.PlaceOrder(ctx, exchange.OrderRequest{
		Ticker:        b.Ticker,
		Side:          side,
		Type:          order.TypeLimit,
		Quantity:      b.Quantity,
		Price:         o.Price,
		Leverage:      e.resolveLeverage(ctx, adapter, b),
		ClientOrderID: o.ID,
	})
	if err != nil {
		metrics.PlacementFailures.Inc()
		if markErr := e.store.MarkOrderFailed(ctx, o.ID, err.Error()); markErr != nil {
			e.logger.Error("mark order failed errored",
				zap.String("order_id", o.ID), zap.Error(markErr))
		}
		return nil, err
	}

	// 回执推送按交易所订单号寻址并在同号互斥段内处理：
	// 持有该段写剩余字段，且配对先于订单号落库，订单号一旦可见记录必已完整。
	// 限价单可能在下单瞬间成交，这里不拦就会撞上残缺记录。
	releaseOrder := e.locks.Acquire("order:" + res.ExchangeOrderID)
	defer releaseOrder()

	if pairWithID != "" {
		if err := e.store.LinkPair(ctx, o.ID, pairWithID); err != nil {
			return nil, err
		}
	}
	if err := e.store.SetExchangeOrderID(ctx, o.ID, res.ExchangeOrderID); err != nil {
		return nil, err
	}
	st := res.Status
	if st == "" {
		st = order.StatusOpen
	}
	if err := e.store.UpdateOrderStatus(ctx, o.ID, st, nil, nil); err != nil {
		return nil, err
	}

	o.ExchangeOrderID = res.ExchangeOrderID
	o.Status = st
	o.PairedOrderID = pairWithID
	e.logger.Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("exchange_order_id", o.ExchangeOrderID),
		zap.String("bot_id", b.ID),
		zap.String("side", string(side)),
		zap.Float64("price", o.Price),
		zap.Float64("quantity", o.Quantity))
	e.publishOrder(ctx, o)
	return o, nil
}

// resolveLeverage 有持仓时交易所锁定杠杆，新单必须沿用持仓杠杆；
// 无持仓或查询失败时退回机器人配置（默认 3 倍）。
func (e *Engine) resolveLeverage(ctx context.Context, a exchange.Adapter, b *bot.Bot) int {
	pos, err := a.GetPosition(ctx, b.Ticker)
	if err != nil {
		e.logger.Warn("position query failed, using configured leverage",
			zap.String("bot_id", b.ID), zap.Error(err))
		return b.EffectiveLeverage()
	}
	if pos != nil && pos.Leverage > 0 {
		return pos.Leverage
	}
	return b.EffectiveLeverage()
}

// failBot 续单下单失败是不可自动恢复的：机器人转 ERROR，等待人工处理。
func (e *Engine) failBot(ctx context.Context, b *bot.Bot, cause error) {
	e.logger.Error("continuation order placement failed, bot moved to ERROR",
		zap.String("bot_id", b.ID), zap.Error(cause))
	if err := e.store.UpdateBotStatus(ctx, b.ID, bot.StatusError); err != nil {
		e.logger.Error("update bot status failed",
			zap.String("bot_id", b.ID), zap.Error(err))
	}
	metrics.ActiveBots.Dec()
	e.alertError("continuation order placement failed", map[string]interface{}{
		"bot_id": b.ID,
		"ticker": b.Ticker,
		"error":  cause.Error(),
	})
	e.publishBot(ctx, b.ID)
}
