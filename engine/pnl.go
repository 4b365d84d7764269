package engine

import "scalper-bot-go/order"

// CyclePnL 一买一卖的已实现盈亏：(卖价 − 买价) × 卖腿数量 − 双腿手续费。
// 成交价缺失时退回限价，数量缺失时退回下单数量。
func CyclePnL(a, b *order.Order) float64 {
	buy, sell := a, b
	if a.Side == order.SideSell {
		buy, sell = b, a
	}
	qty := sell.EffectiveFilledQuantity()
	gross := (sell.EffectiveFillPrice() - buy.EffectiveFillPrice()) * qty
	return gross - buy.Commission - sell.Commission
}
