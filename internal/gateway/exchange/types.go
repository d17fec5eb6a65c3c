// Package exchange 定义交易执行的公共抽象：策略/风控只面向这里的接口，
// 实盘由 Bybit 适配器实现，回测由钱包台账实现。
package exchange

import "context"

// Side 是订单方向。
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Opposite 返回反方向（反向交易对翻转用）。
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Order 描述一笔已定数量的下单请求。TakeProfit/StopLoss 为 0 表示未设置。
type Order struct {
	Pair       string
	Side       Side
	Qty        float64
	Price      float64
	TakeProfit float64
	StopLoss   float64
}

// Executor 是下单/平仓的唯一出口。每个调用点都受 PositionGate 保护，
// 引擎不会对同一决策重复调用。实盘实现先撤销该交易对的挂单再提交新单。
type Executor interface {
	Buy(ctx context.Context, order Order) error
	Sell(ctx context.Context, order Order) error
	CloseBuy(ctx context.Context, pair string, price float64) error
	CloseSell(ctx context.Context, pair string, price float64) error
	CloseAll(ctx context.Context, pair string, price float64) error
}

// PositionQuery 是策略可见的最小持仓读模型。
type PositionQuery interface {
	HasOpenBuy(ctx context.Context, pair string) (bool, error)
	HasOpenSell(ctx context.Context, pair string) (bool, error)
}

// BalanceQuery 查询某资产的可用余额（风控换算数量用）。
type BalanceQuery interface {
	Balance(ctx context.Context, asset string) (float64, error)
}

// Gateway 聚合实盘执行所需的全部能力。
type Gateway interface {
	Executor
	PositionQuery
	BalanceQuery
}
