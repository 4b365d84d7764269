package engine

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"scalper-bot-go/bot"
	"scalper-bot-go/exchange"
	"scalper-bot-go/metrics"
	"scalper-bot-go/order"
	"scalper-bot-go/store"
)

// HandleOrderUpdate 处理一条交易所订单推送。同一交易所订单号全程互斥，
// 锁内重读判终态，重复与乱序事件在此丢弃。
func (e *Engine) HandleOrderUpdate(ctx context.Context, n *exchange.Notification) error {
	metrics.EventsReceived.Inc()

	release := e.locks.Acquire("order:" + n.ExchangeOrderID)
	defer release()

	o, err := e.store.OrderByExchangeID(ctx, n.ExchangeOrderID)
	if errors.Is(err, store.ErrNotFound) {
		metrics.EventsUnknownOrder.Inc()
		e.logger.Warn("event for unknown order, dropped",
			zap.String("exchange_order_id", n.ExchangeOrderID),
			zap.String("status", n.Status))
		return nil
	}
	if err != nil {
		return err
	}

	if o.Status.Terminal() {
		metrics.EventsDuplicate.Inc()
		e.logger.Debug("order already terminal, event dropped",
			zap.String("order_id", o.ID),
			zap.String("status", string(o.Status)))
		return nil
	}

	next := exchange.StatusFromWire(n.Status)
	if err := order.ValidateTransition(o.Status, next); err != nil {
		metrics.EventsDuplicate.Inc()
		e.logger.Warn("out-of-order event dropped",
			zap.String("order_id", o.ID),
			zap.String("from", string(o.Status)),
			zap.String("to", string(next)))
		return nil
	}

	filledQty := clampFilledQuantity(n)
	var pricePtr *float64
	if n.AveragePrice > 0 {
		pricePtr = &n.AveragePrice
	}
	if err := e.store.UpdateOrderStatus(ctx, o.ID, next, &filledQty, pricePtr); err != nil {
		return err
	}

	o.Status = next
	o.FilledQuantity = filledQty
	if n.AveragePrice > 0 {
		o.FilledPrice = n.AveragePrice
	}
	e.publishOrder(ctx, o)

	switch next {
	case order.StatusFilled:
		metrics.FillsProcessed.WithLabelValues(string(o.Side)).Inc()
		e.logger.Info("order filled",
			zap.String("order_id", o.ID),
			zap.String("bot_id", o.BotID),
			zap.String("side", string(o.Side)),
			zap.Float64("filled_price", o.EffectiveFillPrice()),
			zap.Float64("filled_quantity", filledQty))
		e.alertInfo("order filled", map[string]interface{}{
			"order_id":        o.ID,
			"bot_id":          o.BotID,
			"side":            string(o.Side),
			"filled_price":    o.EffectiveFillPrice(),
			"filled_quantity": filledQty,
		})
		fill := *o
		// 续单在后台执行，不阻塞事件流
		go e.continueCycle(context.Background(), &fill)
	case order.StatusCancelled:
		return e.handleCancel(ctx, o)
	case order.StatusRejected, order.StatusExpired:
		e.logger.Warn("order closed by exchange",
			zap.String("order_id", o.ID),
			zap.String("status", string(next)))
	}
	return nil
}

// clampFilledQuantity 交易所在终态 filled 推送里偶尔带回 0 或不足额的
// filled_quantity，以 total_quantity 收口。该怪癖只在这里处理。
func clampFilledQuantity(n *exchange.Notification) float64 {
	if strings.EqualFold(n.Status, "filled") &&
		n.TotalQuantity > 0 && n.FilledQuantity < n.TotalQuantity {
		return n.TotalQuantity
	}
	return n.FilledQuantity
}

// handleCancel 撤单回流。系统主动撤单（更新/停止/删除）只关单；
// 原因缺失或手动撤单说明用户绕过了系统，停掉机器人避免在旧参数上续单。
func (e *Engine) handleCancel(ctx context.Context, o *order.Order) error {
	if o.CancellationReason.SystemInitiated() {
		e.logger.Info("order cancelled by system action",
			zap.String("order_id", o.ID),
			zap.String("reason", string(o.CancellationReason)))
		return nil
	}

	e.logger.Warn("order cancelled outside system, stopping bot",
		zap.String("order_id", o.ID),
		zap.String("bot_id", o.BotID))
	if err := e.store.UpdateBotStatus(ctx, o.BotID, bot.StatusStopped); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	metrics.ActiveBots.Dec()
	e.alertWarning("order cancelled manually, bot stopped", map[string]interface{}{
		"bot_id":   o.BotID,
		"order_id": o.ID,
	})
	e.publishBot(ctx, o.BotID)
	return nil
}
