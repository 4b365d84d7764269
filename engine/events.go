package engine

import (
	"context"

	"go.uber.org/zap"

	"scalper-bot-go/exchange"
	"scalper-bot-go/metrics"
)

const defaultQueueSize = 1024

// Queue 订单事件缓冲队列。推送回调线程非阻塞入队，
// 队列打满时丢弃并计数，丢失的状态靠后续推送或对账补齐。
type Queue struct {
	engine *Engine
	ch     chan *exchange.Notification
}

func NewQueue(e *Engine, size int) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Queue{
		engine: e,
		ch:     make(chan *exchange.Notification, size),
	}
}

// Publish 非阻塞入队，队列满返回 false。
func (q *Queue) Publish(n *exchange.Notification) bool {
	select {
	case q.ch <- n:
		return true
	default:
		metrics.EventsDropped.Inc()
		q.engine.logger.Warn("event queue full, notification dropped",
			zap.String("exchange_order_id", n.ExchangeOrderID))
		return false
	}
}

// Run 消费队列直到 ctx 取消。单消费者，事件间的并发隔离由引擎的锁表保证。
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-q.ch:
			if err := q.engine.HandleOrderUpdate(ctx, n); err != nil {
				q.engine.logger.Error("handle order update failed",
					zap.String("exchange_order_id", n.ExchangeOrderID),
					zap.Error(err))
			}
		}
	}
}
