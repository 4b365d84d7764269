package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"scalper-bot-go/bot"
	"scalper-bot-go/metrics"
	"scalper-bot-go/order"
)

// CancelOrder 撤单入口。撤单原因必须先于交易所调用落库：
// 撤单推送回流时引擎按已落库的原因决定机器人去留，顺序颠倒会误停机器人。
func (e *Engine) CancelOrder(ctx context.Context, orderID string, reason order.CancellationReason) error {
	o, err := e.store.OrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	if o.ExchangeOrderID == "" {
		// 从未到达交易所的单，本地直接关闭
		if err := e.store.SetCancellationReason(ctx, o.ID, reason); err != nil {
			return err
		}
		return e.store.UpdateOrderStatus(ctx, o.ID, order.StatusCancelled, nil, nil)
	}

	release := e.locks.Acquire("order:" + o.ExchangeOrderID)
	defer release()

	o, err = e.store.OrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status.Terminal() {
		return nil
	}

	if err := e.store.SetCancellationReason(ctx, o.ID, reason); err != nil {
		return fmt.Errorf("persist cancellation reason: %w", err)
	}

	b, err := e.store.Bot(ctx, o.BotID)
	if err != nil {
		return err
	}
	adapter, err := e.adapters.Lookup(b.Exchange)
	if err != nil {
		return err
	}
	if err := adapter.CancelOrder(ctx, o.ExchangeOrderID, o.Ticker); err != nil {
		e.alertWarning("exchange cancel failed", map[string]interface{}{
			"order_id": o.ID,
			"error":    err.Error(),
		})
		return fmt.Errorf("exchange cancel %s: %w", o.ExchangeOrderID, err)
	}
	e.logger.Info("cancel requested",
		zap.String("order_id", o.ID),
		zap.String("exchange_order_id", o.ExchangeOrderID),
		zap.String("reason", string(reason)))
	return nil
}

// cancelOpenOrders 撤掉机器人全部未终态订单，逐单记录原因。
func (e *Engine) cancelOpenOrders(ctx context.Context, botID string, reason order.CancellationReason) error {
	orders, err := e.store.OpenOrdersByBot(ctx, botID)
	if err != nil {
		return err
	}
	var lastErr error
	for _, o := range orders {
		if err := e.CancelOrder(ctx, o.ID, reason); err != nil {
			e.logger.Error("cancel open order failed",
				zap.String("order_id", o.ID), zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}

// StartBot 激活机器人并按配置方向挂第一张入场单。
func (e *Engine) StartBot(ctx context.Context, botID string) error {
	release := e.locks.Acquire("bot:" + botID)
	defer release()

	b, err := e.store.Bot(ctx, botID)
	if err != nil {
		return err
	}
	if b.Status == bot.StatusActive {
		return fmt.Errorf("bot %s already active", botID)
	}

	if err := e.store.UpdateBotStatus(ctx, botID, bot.StatusActive); err != nil {
		return err
	}
	b.Status = bot.StatusActive
	metrics.ActiveBots.Inc()

	if _, err := e.placeBotOrder(ctx, b, b.FirstOrder, ""); err != nil {
		e.failBot(ctx, b, err)
		return err
	}
	e.logger.Info("bot started",
		zap.String("bot_id", b.ID),
		zap.String("ticker", b.Ticker),
		zap.String("first_order", string(b.FirstOrder)))
	e.publishBot(ctx, botID)
	return nil
}

// StopBot 撤掉在途订单（原因 STOP）并置 STOPPED。运行指标保留。
func (e *Engine) StopBot(ctx context.Context, botID string) error {
	release := e.locks.Acquire("bot:" + botID)
	defer release()

	b, err := e.store.Bot(ctx, botID)
	if err != nil {
		return err
	}
	if err := e.cancelOpenOrders(ctx, botID, order.ReasonStop); err != nil {
		return err
	}
	if err := e.store.UpdateBotStatus(ctx, botID, bot.StatusStopped); err != nil {
		return err
	}
	if b.Status == bot.StatusActive {
		metrics.ActiveBots.Dec()
	}
	e.logger.Info("bot stopped", zap.String("bot_id", botID))
	e.publishBot(ctx, botID)
	return nil
}

// UpdateBot 更新交易参数：先以 UPDATE 原因撤掉旧参数的在途订单，
// 落库新配置，机器人仍在运行时按新参数重挂入场单。
func (e *Engine) UpdateBot(ctx context.Context, in *bot.Bot) error {
	release := e.locks.Acquire("bot:" + in.ID)
	defer release()

	if err := e.cancelOpenOrders(ctx, in.ID, order.ReasonUpdate); err != nil {
		return err
	}
	if err := e.store.UpdateBotConfig(ctx, in); err != nil {
		return err
	}

	b, err := e.store.Bot(ctx, in.ID)
	if err != nil {
		return err
	}
	if b.Status == bot.StatusActive {
		if _, err := e.placeBotOrder(ctx, b, b.FirstOrder, ""); err != nil {
			e.failBot(ctx, b, err)
			return err
		}
	}
	e.logger.Info("bot updated", zap.String("bot_id", b.ID))
	e.publishBot(ctx, b.ID)
	return nil
}

// DeleteBot 撤掉在途订单（原因 DELETE）后删除机器人。历史订单保留。
func (e *Engine) DeleteBot(ctx context.Context, botID string) error {
	release := e.locks.Acquire("bot:" + botID)
	defer release()

	b, err := e.store.Bot(ctx, botID)
	if err != nil {
		return err
	}
	if err := e.cancelOpenOrders(ctx, botID, order.ReasonDelete); err != nil {
		return err
	}
	if err := e.store.DeleteBot(ctx, botID); err != nil {
		return err
	}
	if b.Status == bot.StatusActive {
		metrics.ActiveBots.Dec()
	}
	e.logger.Info("bot deleted", zap.String("bot_id", botID))
	return nil
}
