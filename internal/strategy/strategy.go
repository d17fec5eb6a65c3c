// Package strategy 实现信号引擎：策略注册表、评估上下文与各内置策略。
// 每个策略实例只服务一个交易对（由 engine 包的 per-pair worker 持有），
// 分析状态是实例私有内存，跨 tick 存活、跨重启不持久化。
package strategy

import (
	"fmt"
	"sort"

	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
	"github.com/wafaaboulwafa/bybit-trader/internal/market"
)

// Gate 暴露给策略的触发闩看板。underProcessing 互斥由引擎在外层把控，
// 策略只读写方向闩，避免同一信号在条件保持期间每个 tick 重复下单。
type Gate interface {
	BuyTriggered(pair string) bool
	SellTriggered(pair string) bool
	SetBuyTriggered(pair string)
	SetSellTriggered(pair string)
	ClearBuyTrigger(pair string)
	ClearSellTrigger(pair string)
}

// Context 打包一次评估可见的全部输入与回调。回调已经过风控定量，
// 策略只负责给出价格与保护位。
type Context struct {
	Pair      *market.Pair
	Timeframe string
	Price     float64
	Candle    market.Candle

	HasOpenBuy  bool
	HasOpenSell bool

	Gate Gate

	Buy       func(price, takeProfit, stopLoss float64) error
	Sell      func(price, takeProfit, stopLoss float64) error
	CloseBuy  func(price float64) error
	CloseSell func(price float64) error
	CloseAll  func(price float64) error

	// Notify 把人类可读的事件推给通知渠道（可为 nil，回测下通常不接）。
	Notify func(text string)
}

// notify 容忍未接线的通知回调。
func (c *Context) notify(text string) {
	if c.Notify != nil {
		c.Notify(text)
	}
}

// Strategy 在每个 (pair, timeframe) tick 上被调用一次。历史不足时直接
// 返回 nil 且不得修改内部状态——缺数据是"无信号"，不是错误。
type Strategy interface {
	Name() string
	Evaluate(ctx *Context) error
}

// Factory 为单个交易对构建一个策略实例。
type Factory func() Strategy

var registry = map[string]Factory{}

func register(name string, f Factory) {
	registry[name] = f
}

// New 按名字实例化策略；未注册的名字退回 default（仅记录日志）。
func New(name string) Strategy {
	if f, ok := registry[name]; ok {
		return f()
	}
	logger.Warnf("未注册策略 %q，使用 default", name)
	return registry["default"]()
}

// Names 返回全部已注册策略名（排序后）。
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Known 校验配置里的策略名。
func Known(name string) error {
	if _, ok := registry[name]; !ok {
		return fmt.Errorf("未注册策略: %q", name)
	}
	return nil
}
