package order

import (
	"time"

	"github.com/google/uuid"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite 返回相反方向（买的对侧是卖，反之亦然）。
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Type 订单类型
type Type string

const (
	TypeLimit  Type = "LIMIT"
	TypeMarket Type = "MARKET"
)

// CancellationReason 撤单原因。系统内部发起的撤单（改单/停止/删除）必须在
// 调用交易所撤单接口之前先落库，交易所的异步撤单通知到达时据此区分
// 系统撤单与人工撤单。
type CancellationReason string

const (
	ReasonNone   CancellationReason = ""
	ReasonUpdate CancellationReason = "UPDATE"
	ReasonStop   CancellationReason = "STOP"
	ReasonDelete CancellationReason = "DELETE"
	ReasonManual CancellationReason = "MANUAL"
)

// SystemInitiated 是否为引擎自身发起的撤单。
func (r CancellationReason) SystemInitiated() bool {
	switch r {
	case ReasonUpdate, ReasonStop, ReasonDelete:
		return true
	default:
		return false
	}
}

// Order 一笔交易所订单的本地记录。
type Order struct {
	ID              string
	BotID           string
	ExchangeOrderID string // 交易所分配，确认前为空
	Ticker          string
	Side            Side
	Type            Type

	Quantity       float64
	FilledQuantity float64
	Price          float64
	FilledPrice    float64 // 平均成交价，0 表示未知

	Status             Status
	PairedOrderID      string // 同一周期内对侧订单，由续单逻辑设置
	CancellationReason CancellationReason

	Commission      float64
	CommissionAsset string
	ErrorMessage    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New 构造一笔 PENDING 状态的新订单。
func New(botID, ticker string, side Side, typ Type, qty, price float64) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:        uuid.NewString(),
		BotID:     botID,
		Ticker:    ticker,
		Side:      side,
		Type:      typ,
		Quantity:  qty,
		Price:     price,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// EffectiveFillPrice 平均成交价，未知时回退到委托价。
func (o *Order) EffectiveFillPrice() float64 {
	if o.FilledPrice > 0 {
		return o.FilledPrice
	}
	return o.Price
}

// EffectiveFilledQuantity 成交数量，未知时回退到委托数量。
func (o *Order) EffectiveFilledQuantity() float64 {
	if o.FilledQuantity > 0 {
		return o.FilledQuantity
	}
	return o.Quantity
}
