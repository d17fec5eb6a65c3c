// Package signal 提供策略使用的信号原语：均线序列、交叉检测、趋势分类与
// ZigZag 摆动提取。所有函数对历史不足的情况返回 ErrInsufficientHistory，
// 调用方必须视其为"无信号"，而不是负向信号。
package signal

import (
	"errors"
	"math"

	"github.com/markcheno/go-talib"

	"github.com/wafaaboulwafa/bybit-trader/internal/market"
)

// ErrInsufficientHistory 表示序列点数不足以计算该原语。
var ErrInsufficientHistory = errors.New("insufficient history")

// EMA 返回裁剪掉 TALib 前导零种子后的 EMA 序列。
func EMA(values []float64, period int) []float64 {
	if len(values) == 0 || period <= 0 {
		return nil
	}
	return trimLeadingZeros(sanitizeSeries(talib.Ema(values, period)))
}

// SMA 返回裁剪后的 SMA 序列。
func SMA(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return nil
	}
	return trimLeadingZeros(sanitizeSeries(talib.Sma(values, period)))
}

// RSI 返回最近一个 RSI 值。
func RSI(values []float64, period int) (float64, error) {
	if period <= 0 {
		period = 14
	}
	series := sanitizeSeries(talib.Rsi(values, period))
	series = trimLeadingZeros(series)
	if len(series) == 0 {
		return 0, ErrInsufficientHistory
	}
	return series[len(series)-1], nil
}

// ATR 返回最近一个 ATR 值。
func ATR(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		period = 14
	}
	if len(candles) <= period {
		return 0, ErrInsufficientHistory
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}
	series := trimLeadingZeros(sanitizeSeries(talib.Atr(highs, lows, closes, period)))
	if len(series) == 0 {
		return 0, ErrInsufficientHistory
	}
	return series[len(series)-1], nil
}

// BBands 返回裁剪后的布林带三条序列（上轨、中轨、下轨）。
func BBands(values []float64, period int, stdDev float64) (upper, middle, lower []float64) {
	if len(values) < period || period <= 0 {
		return nil, nil, nil
	}
	u, m, l := talib.BBands(values, period, stdDev, stdDev, talib.SMA)
	return trimLeadingZeros(sanitizeSeries(u)),
		trimLeadingZeros(sanitizeSeries(m)),
		trimLeadingZeros(sanitizeSeries(l))
}

// LastValue 返回序列最后一个值；序列为空时 ok 为 false。
func LastValue(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

func sanitizeSeries(src []float64) []float64 {
	out := make([]float64, 0, len(src))
	for _, v := range src {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// trimLeadingZeros 去掉 TALib 以零填充的 lookback 段，保证序列从有效值开始。
func trimLeadingZeros(series []float64) []float64 {
	start := 0
	for start < len(series) && almostZero(series[start]) {
		start++
	}
	return series[start:]
}

func almostZero(v float64) bool {
	return math.Abs(v) <= 1e-9
}
