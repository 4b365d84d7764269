package bot

import (
	"time"

	"scalper-bot-go/order"
)

// Status 机器人状态
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusStopped Status = "STOPPED" // 停止续单，不是故障
	StatusError   Status = "ERROR"   // 终态，需人工重启
)

// DefaultLeverage 未配置杠杆时的默认值。
const DefaultLeverage = 3

// Bot 一个运行中的策略实例：配置 + 运行指标。
type Bot struct {
	ID       string
	Exchange string // 逻辑交易所名，注册表按此解析适配器
	Ticker   string

	FirstOrder   order.Side // 首单方向
	Quantity     float64
	BuyPrice     float64
	SellPrice    float64
	Leverage     int
	InfiniteLoop bool

	Status Status

	// 运行指标
	PnL           float64 // 已实现累计盈亏
	TotalTrades   int     // 完成的周期数（一买一卖记一次）
	LastFillTime  time.Time
	LastFillSide  order.Side
	LastFillPrice float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveLeverage 机器人配置的杠杆，未设置时取默认值。
func (b *Bot) EffectiveLeverage() int {
	if b.Leverage > 0 {
		return b.Leverage
	}
	return DefaultLeverage
}

// PriceFor 返回给定方向对应的配置价格（买用 buyPrice，卖用 sellPrice）。
// 对侧价格来自配置，不从成交价推导。
func (b *Bot) PriceFor(side order.Side) float64 {
	if side == order.SideBuy {
		return b.BuyPrice
	}
	return b.SellPrice
}
