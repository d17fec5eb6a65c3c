package signal

import (
	"sort"

	"github.com/wafaaboulwafa/bybit-trader/internal/market"
)

// SwingType 标记摆动点是高点还是低点。
type SwingType int

const (
	SwingHigh SwingType = iota
	SwingLow
)

func (t SwingType) String() string {
	if t == SwingHigh {
		return "High"
	}
	return "Low"
}

// Swing 是一个 ZigZag 摆动点，Index 指向输入切片中的 K 线。
type Swing struct {
	Index int
	Value float64
	Type  SwingType
}

// ZigZag 从最新一根 K 线向旧方向回溯提取摆动点：
//   - 无趋势时，首个高于/低于种子极值的高/低点开启一段摆动；
//   - 顺势时不断把当前枢轴推到更极端的值；
//   - 价格自枢轴回撤超过 deviationPct%（按枢轴值计）时反转方向；
//   - 连续 depth 根未产生新枢轴则回到无趋势态（过期重置）。
//
// 返回结果按 Index 升序排列。
func ZigZag(candles []market.Candle, depth int, deviationPct float64) []Swing {
	if len(candles) < 2 {
		return nil
	}
	if depth <= 0 {
		depth = 2
	}

	n := len(candles)
	trend := 0 // 1 上行，-1 下行，0 无趋势
	lastHigh := candles[n-1].High
	lastLow := candles[n-1].Low
	lastPivot := n - 1

	var swings []Swing
	for i := n - 2; i >= 0; i-- {
		high := candles[i].High
		low := candles[i].Low

		switch trend {
		case 0:
			if high > lastHigh {
				trend = 1
				lastHigh = high
				lastPivot = i
				swings = append(swings, Swing{Index: i, Value: high, Type: SwingHigh})
			} else if low < lastLow {
				trend = -1
				lastLow = low
				lastPivot = i
				swings = append(swings, Swing{Index: i, Value: low, Type: SwingLow})
			}
		case 1:
			if high > lastHigh {
				lastHigh = high
				lastPivot = i
				swings[len(swings)-1] = Swing{Index: i, Value: high, Type: SwingHigh}
			} else if lastHigh-low >= deviationPct/100*lastHigh {
				trend = -1
				lastLow = low
				lastPivot = i
				swings = append(swings, Swing{Index: i, Value: low, Type: SwingLow})
			}
		case -1:
			if low < lastLow {
				lastLow = low
				lastPivot = i
				swings[len(swings)-1] = Swing{Index: i, Value: low, Type: SwingLow}
			} else if high-lastLow >= deviationPct/100*lastLow {
				trend = 1
				lastHigh = high
				lastPivot = i
				swings = append(swings, Swing{Index: i, Value: high, Type: SwingHigh})
			}
		}

		if lastPivot-i >= depth {
			trend = 0
		}
	}

	sort.Slice(swings, func(a, b int) bool { return swings[a].Index < swings[b].Index })
	return swings
}
