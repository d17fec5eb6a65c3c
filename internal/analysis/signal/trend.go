package signal

import "fmt"

// Trend 是五档斜率趋势分类。
type Trend int

const (
	StrongDowntrend Trend = iota - 2
	Downtrend
	Sideways
	Uptrend
	StrongUptrend
)

func (t Trend) String() string {
	switch t {
	case StrongDowntrend:
		return "StrongDowntrend"
	case Downtrend:
		return "Downtrend"
	case Sideways:
		return "Sideways"
	case Uptrend:
		return "Uptrend"
	case StrongUptrend:
		return "StrongUptrend"
	default:
		return fmt.Sprintf("Trend(%d)", int(t))
	}
}

// Up 表示向上（含强向上）。
func (t Trend) Up() bool { return t == Uptrend || t == StrongUptrend }

// Down 表示向下（含强向下）。
func (t Trend) Down() bool { return t == Downtrend || t == StrongDowntrend }

// 归一化斜率（每根涨跌幅占均值比例）的默认分档阈值。
const (
	slopeMedium = 0.0005
	slopeStrong = 0.002
)

// ClassifySlope 对序列做最小二乘回归，按归一化斜率的两个幅度阈值分成五档。
// 少于 2 个点无法拟合，返回 ErrInsufficientHistory。
func ClassifySlope(values []float64) (Trend, error) {
	return ClassifySlopeWith(values, slopeMedium, slopeStrong)
}

// ClassifySlopeWith 同 ClassifySlope，但允许调用方指定阈值（medium < strong）。
func ClassifySlopeWith(values []float64, medium, strong float64) (Trend, error) {
	n := len(values)
	if n < 2 {
		return Sideways, ErrInsufficientHistory
	}

	// OLS：x 为序列下标
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return Sideways, nil
	}
	slope := (fn*sumXY - sumX*sumY) / denom

	mean := sumY / fn
	if mean < 0 {
		mean = -mean
	}
	if mean == 0 {
		return Sideways, nil
	}
	norm := slope / mean

	switch {
	case norm >= strong:
		return StrongUptrend, nil
	case norm >= medium:
		return Uptrend, nil
	case norm <= -strong:
		return StrongDowntrend, nil
	case norm <= -medium:
		return Downtrend, nil
	default:
		return Sideways, nil
	}
}

// Direction 是布林中轨斜率给出的三态方向。
type Direction int

const (
	Flat Direction = iota
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "uptrend"
	case Down:
		return "downtrend"
	default:
		return "sideways"
	}
}

// BandTrend 取布林带中轨最近两个值的斜率方向。
func BandTrend(closes []float64, period int, stdDev float64) (Direction, error) {
	_, middle, _ := BBands(closes, period, stdDev)
	if len(middle) < 2 {
		return Flat, ErrInsufficientHistory
	}
	recent := middle[len(middle)-1] - middle[len(middle)-2]
	switch {
	case recent > 0:
		return Up, nil
	case recent < 0:
		return Down, nil
	default:
		return Flat, nil
	}
}
