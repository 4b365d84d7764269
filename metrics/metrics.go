// Package metrics provides Prometheus metrics for the scalper engine
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsReceived 收到的订单推送总数
	EventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scalper_order_events_received_total",
		Help: "Order update events received from the exchange stream",
	})

	// EventsDuplicate 因订单已终态被丢弃的重复/乱序事件数
	EventsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scalper_order_events_duplicate_total",
		Help: "Events discarded because the order was already terminal",
	})

	// EventsDropped 队列溢出丢弃的事件数
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scalper_order_events_dropped_total",
		Help: "Events dropped because the event queue was full",
	})

	// EventsUnknownOrder 找不到本地订单的事件数
	EventsUnknownOrder = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scalper_order_events_unknown_total",
		Help: "Events for exchange order ids with no local order",
	})

	// FillsProcessed 按方向统计的完全成交数
	FillsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scalper_fills_processed_total",
		Help: "Fully filled orders processed",
	}, []string{"side"})

	// CyclesCompleted 完成的买卖周期数
	CyclesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scalper_cycles_completed_total",
		Help: "Completed buy/sell cycles",
	})

	// RealizedPnL 累计已实现盈亏（可为负）
	RealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scalper_realized_pnl",
		Help: "Cumulative realized profit and loss",
	})

	// PlacementFailures 下单失败数
	PlacementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scalper_order_placement_failures_total",
		Help: "Continuation order placements rejected by the exchange",
	})

	// ActiveBots 当前 ACTIVE 状态的机器人数
	ActiveBots = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scalper_active_bots",
		Help: "Bots currently in ACTIVE status",
	})

	// StreamReconnects 行情/订单流重连次数
	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scalper_stream_reconnects_total",
		Help: "Order stream reconnect attempts",
	})

	// LockTableSize 订单互斥表当前条目数
	LockTableSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scalper_lock_table_size",
		Help: "Entries currently held in the per-order lock table",
	})
)

// StartMetricsServer 启动Prometheus指标服务器
func StartMetricsServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, nil)
	}()
}
