// Package risk 将合格信号换算为具体下单数量，并处理反向合约的
// 止盈/止损镜像。数量修约使用 decimal，避免浮点漂移导致的步进违规。
package risk

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wafaaboulwafa/bybit-trader/internal/market"
)

var (
	// ErrInsufficientBalance 表示修约后的数量低于交易所最小下单量。
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidProtection 表示止盈/止损位于入场价同侧，无法镜像。
	ErrInvalidProtection = errors.New("take-profit and stop-loss on same side of entry")
)

// Method 是风险额度的计算方式。
type Method string

const (
	FixedQty        Method = "fixedQty"
	PercentOfEquity Method = "percentOfEquity"
	FixedAmount     Method = "fixedAmount"
	RoadToMillion   Method = "roadToMillion"
)

// ParseMethod 校验并标准化配置中的 riskMethod 字段。
func ParseMethod(raw string) (Method, error) {
	switch strings.TrimSpace(raw) {
	case string(FixedQty):
		return FixedQty, nil
	case string(PercentOfEquity):
		return PercentOfEquity, nil
	case string(FixedAmount):
		return FixedAmount, nil
	case string(RoadToMillion):
		return RoadToMillion, nil
	default:
		return "", fmt.Errorf("未知 riskMethod: %q", raw)
	}
}

// Policy 来自交易对静态配置。
type Policy struct {
	Method Method
	Amount float64
}

// roadStep 表格按 Threshold 降序排列：取第一行 Threshold ≤ balance 的额度。
// 额度随余额增长而增大，但占余额的比例刻意递减（冲线阶段收敛风险）。
type roadStep struct {
	Threshold float64
	Amount    float64
}

var roadToMillionTable = []roadStep{
	{Threshold: 500000, Amount: 25000},
	{Threshold: 250000, Amount: 15000},
	{Threshold: 100000, Amount: 8000},
	{Threshold: 50000, Amount: 5000},
	{Threshold: 10000, Amount: 1500},
	{Threshold: 5000, Amount: 1000},
	{Threshold: 1000, Amount: 300},
	{Threshold: 100, Amount: 50},
}

// 余额低于表格最小档位时的固定保底额度。
const roadToMillionFloor = 25.0

func roadToMillionAmount(balance float64) float64 {
	for _, step := range roadToMillionTable {
		if balance >= step.Threshold {
			return step.Amount
		}
	}
	return roadToMillionFloor
}

// Request 描述一次数量换算。StopLoss 为 0 表示未设止损。
type Request struct {
	Policy   Policy
	Entry    float64
	StopLoss float64
	Balance  float64
	Limits   market.InstrumentLimits
}

// Size 依据风险策略计算下单数量：
//   - fixedQty 直接返回配置数量；
//   - 其余方式先得到风险金额，已知止损距离时 qty = 金额/|entry-SL|，
//     否则按入场价折算 qty = 金额/entry；
//   - 所有方式最后向下对齐数量步进并夹取到 [minQty, maxQty]，
//     仍低于 minQty 时报 ErrInsufficientBalance。
func Size(req Request) (float64, error) {
	if req.Entry <= 0 {
		return 0, fmt.Errorf("入场价非法: %v", req.Entry)
	}

	var raw float64
	switch req.Policy.Method {
	case FixedQty:
		raw = req.Policy.Amount
	case PercentOfEquity, FixedAmount, RoadToMillion:
		var amount float64
		switch req.Policy.Method {
		case PercentOfEquity:
			amount = req.Balance * req.Policy.Amount
		case FixedAmount:
			amount = req.Policy.Amount
		case RoadToMillion:
			amount = roadToMillionAmount(req.Balance)
		}
		if amount <= 0 {
			return 0, ErrInsufficientBalance
		}
		if req.StopLoss > 0 {
			dist := math.Abs(req.Entry - req.StopLoss)
			if dist <= 0 {
				return 0, fmt.Errorf("止损距离为零")
			}
			raw = amount / dist
		} else {
			raw = amount / req.Entry
		}
	default:
		return 0, fmt.Errorf("未知 riskMethod: %q", req.Policy.Method)
	}

	return clampQty(raw, req.Limits)
}

func clampQty(raw float64, limits market.InstrumentLimits) (float64, error) {
	if raw <= 0 {
		return 0, ErrInsufficientBalance
	}
	qty := decimal.NewFromFloat(raw)
	if limits.QtyStep > 0 {
		step := decimal.NewFromFloat(limits.QtyStep)
		qty = qty.Div(step).Floor().Mul(step)
	}
	if limits.MaxQty > 0 {
		maxQ := decimal.NewFromFloat(limits.MaxQty)
		if qty.GreaterThan(maxQ) {
			qty = maxQ
			if limits.QtyStep > 0 {
				step := decimal.NewFromFloat(limits.QtyStep)
				qty = qty.Div(step).Floor().Mul(step)
			}
		}
	}
	result, _ := qty.Float64()
	if limits.MinQty > 0 && result < limits.MinQty {
		return 0, ErrInsufficientBalance
	}
	if result <= 0 {
		return 0, ErrInsufficientBalance
	}
	return result, nil
}

// MirrorProtection 针对反向合约，把止盈/止损绕入场价做保距镜像
//（买变卖后"上方"与"下方"互换，风险回报比保持不变）。
// 止盈与止损位于入场价同侧时拒绝（语义未定义，宁可不下单）；
// 设置了保护位但镜像后落到非正价位时同样拒绝，不能静默丢掉保护腿。
func MirrorProtection(entry, takeProfit, stopLoss float64) (float64, float64, error) {
	if entry <= 0 {
		return 0, 0, fmt.Errorf("入场价非法: %v", entry)
	}
	if takeProfit > 0 && stopLoss > 0 {
		if (takeProfit-entry)*(stopLoss-entry) > 0 {
			return 0, 0, ErrInvalidProtection
		}
	}
	mirror := func(v float64) (float64, error) {
		if v <= 0 {
			return 0, nil
		}
		m := 2*entry - v
		if m <= 0 {
			return 0, ErrInvalidProtection
		}
		return m, nil
	}
	tp, err := mirror(takeProfit)
	if err != nil {
		return 0, 0, err
	}
	sl, err := mirror(stopLoss)
	if err != nil {
		return 0, 0, err
	}
	return tp, sl, nil
}
