package market

import "sort"

// TimeFrameSeries 维护单个 (pair, timeframe) 的有界 K 线缓冲，以及与之
// 同步增长的衍生序列（收盘价、OHLC4）。写入遵循单写者约束（见 engine 包），
// 读者永远看到三个等长数组。
//
// retention 为 0 时关闭截断（回测模式，完整保留以便复现）。
type TimeFrameSeries struct {
	retention int

	candles    []Candle
	closePrice []float64
	ohlc4      []float64
}

func NewTimeFrameSeries(retention int) *TimeFrameSeries {
	if retention < 0 {
		retention = 0
	}
	return &TimeFrameSeries{retention: retention}
}

// Merge 写入一根 K 线：Key 已存在则原地替换（未收盘 K 线的更新），否则按
// Key 升序插入。追加后长度超过 2×retention 时触发 compact。
func (s *TimeFrameSeries) Merge(c Candle) {
	n := len(s.candles)
	switch {
	case n > 0 && s.candles[n-1].Key == c.Key:
		s.candles[n-1] = c
		s.closePrice[n-1] = c.Close
		s.ohlc4[n-1] = c.OHLC4()
		return
	case n == 0 || c.Key > s.candles[n-1].Key:
		s.candles = append(s.candles, c)
		s.closePrice = append(s.closePrice, c.Close)
		s.ohlc4 = append(s.ohlc4, c.OHLC4())
	default:
		// 乱序 Key：替换已有项，否则按序插入，保持升序且无重复。
		idx := sort.Search(n, func(i int) bool { return s.candles[i].Key >= c.Key })
		if idx < n && s.candles[idx].Key == c.Key {
			s.candles[idx] = c
			s.closePrice[idx] = c.Close
			s.ohlc4[idx] = c.OHLC4()
			return
		}
		s.candles = append(s.candles, Candle{})
		copy(s.candles[idx+1:], s.candles[idx:])
		s.candles[idx] = c
		s.closePrice = append(s.closePrice, 0)
		copy(s.closePrice[idx+1:], s.closePrice[idx:])
		s.closePrice[idx] = c.Close
		s.ohlc4 = append(s.ohlc4, 0)
		copy(s.ohlc4[idx+1:], s.ohlc4[idx:])
		s.ohlc4[idx] = c.OHLC4()
	}

	if s.retention > 0 && len(s.candles) > 2*s.retention {
		s.compact()
	}
}

// compact 按 Key 升序排序并只保留最近 retention 根，随后重建衍生序列。
func (s *TimeFrameSeries) compact() {
	sort.Slice(s.candles, func(i, j int) bool { return s.candles[i].Key < s.candles[j].Key })
	if len(s.candles) > s.retention {
		keep := make([]Candle, s.retention)
		copy(keep, s.candles[len(s.candles)-s.retention:])
		s.candles = keep
	}
	s.closePrice = make([]float64, len(s.candles))
	s.ohlc4 = make([]float64, len(s.candles))
	for i, c := range s.candles {
		s.closePrice[i] = c.Close
		s.ohlc4[i] = c.OHLC4()
	}
}

func (s *TimeFrameSeries) Len() int { return len(s.candles) }

// Candles 返回底层 K 线切片。调用方不得修改。
func (s *TimeFrameSeries) Candles() []Candle { return s.candles }

// ClosePrice 返回与 Candles 平行的收盘价序列。
func (s *TimeFrameSeries) ClosePrice() []float64 { return s.closePrice }

// OHLC4 返回与 Candles 平行的四价均值序列。
func (s *TimeFrameSeries) OHLC4() []float64 { return s.ohlc4 }

// Last 返回最近一根 K 线；序列为空时 ok 为 false。
func (s *TimeFrameSeries) Last() (Candle, bool) {
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}
