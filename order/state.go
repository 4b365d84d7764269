package order

import "fmt"

// Status 订单生命周期状态
type Status string

const (
	StatusPending         Status = "PENDING"          // 已建记录，尚未被交易所确认
	StatusOpen            Status = "OPEN"             // 挂单中
	StatusPartiallyFilled Status = "PARTIALLY_FILLED" // 部分成交
	StatusFilled          Status = "FILLED"           // 完全成交
	StatusCancelled       Status = "CANCELLED"        // 已撤销
	StatusRejected        Status = "REJECTED"         // 交易所拒绝
	StatusExpired         Status = "EXPIRED"          // 已过期
	StatusFailed          Status = "FAILED"           // 本地提交失败
)

// Terminal 是否为终态。终态订单不再接受任何状态变更，
// 仅允许撤单原因的预写。
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired, StatusFailed:
		return true
	default:
		return false
	}
}

type transition struct {
	from Status
	to   Status
}

// 合法状态转换表。终态没有出边。
var legalTransitions = map[transition]bool{
	{StatusPending, StatusOpen}:            true,
	{StatusPending, StatusPartiallyFilled}: true,
	{StatusPending, StatusFilled}:          true,
	{StatusPending, StatusCancelled}:       true,
	{StatusPending, StatusRejected}:        true,
	{StatusPending, StatusExpired}:         true,
	{StatusPending, StatusFailed}:          true,

	{StatusOpen, StatusPartiallyFilled}: true,
	{StatusOpen, StatusFilled}:          true,
	{StatusOpen, StatusCancelled}:       true,
	{StatusOpen, StatusRejected}:        true,
	{StatusOpen, StatusExpired}:         true,

	// 部分成交可以多次刷新，直到完全成交或撤销
	{StatusPartiallyFilled, StatusPartiallyFilled}: true,
	{StatusPartiallyFilled, StatusFilled}:          true,
	{StatusPartiallyFilled, StatusCancelled}:       true,
	{StatusPartiallyFilled, StatusExpired}:         true,
}

// ValidateTransition 校验状态转换是否合法。相同状态视为幂等重放，放行。
func ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if from.Terminal() {
		return fmt.Errorf("order status %s is terminal, cannot move to %s", from, to)
	}
	if !legalTransitions[transition{from, to}] {
		return fmt.Errorf("illegal order status transition: %s -> %s", from, to)
	}
	return nil
}
