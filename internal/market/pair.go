package market

import (
	"fmt"
	"strings"
)

// InstrumentLimits 描述交易所对下单数量的约束。
type InstrumentLimits struct {
	MinQty  float64
	MaxQty  float64
	QtyStep float64
}

// Pair 是单个交易对的进程级上下文：策略标识、币种、合约属性、风控策略，
// 以及 timeframe → 序列的映射。启动时从静态配置构建，timeframe 集合此后
// 不再增减，K 线数据在进程生命周期内持续变化。
type Pair struct {
	Name          string
	Strategy      string
	BaseCoin      string
	QuotationCoin string
	IsFuture      bool
	Invert        bool
	RiskMethod    string
	RiskAmount    float64
	Limits        InstrumentLimits

	timeFrames map[string]*TimeFrameSeries
}

// PairSpec 是构建 Pair 所需的静态配置字段。
type PairSpec struct {
	Name          string
	Strategy      string
	TimeFrames    []string
	BaseCoin      string
	QuotationCoin string
	IsFuture      bool
	Invert        bool
	RiskMethod    string
	RiskAmount    float64
	Limits        InstrumentLimits
}

// NewPair 根据配置构建交易对上下文并为每个 timeframe 建立空序列。
func NewPair(spec PairSpec, retention int) (*Pair, error) {
	name := strings.ToUpper(strings.TrimSpace(spec.Name))
	if name == "" {
		return nil, fmt.Errorf("pair name 不能为空")
	}
	if len(spec.TimeFrames) == 0 {
		return nil, fmt.Errorf("pair %s 未配置 timeframe", name)
	}
	p := &Pair{
		Name:          name,
		Strategy:      strings.TrimSpace(spec.Strategy),
		BaseCoin:      strings.ToUpper(strings.TrimSpace(spec.BaseCoin)),
		QuotationCoin: strings.ToUpper(strings.TrimSpace(spec.QuotationCoin)),
		IsFuture:      spec.IsFuture,
		Invert:        spec.Invert,
		RiskMethod:    spec.RiskMethod,
		RiskAmount:    spec.RiskAmount,
		Limits:        spec.Limits,
		timeFrames:    make(map[string]*TimeFrameSeries, len(spec.TimeFrames)),
	}
	for _, raw := range spec.TimeFrames {
		tf, err := ParseTimeframe(raw)
		if err != nil {
			return nil, fmt.Errorf("pair %s: %w", name, err)
		}
		if _, dup := p.timeFrames[tf.Key]; dup {
			return nil, fmt.Errorf("pair %s 重复 timeframe %s", name, tf.Key)
		}
		p.timeFrames[tf.Key] = NewTimeFrameSeries(retention)
	}
	return p, nil
}

// Series 返回指定 timeframe 的序列；未配置时 ok 为 false。
func (p *Pair) Series(timeframe string) (*TimeFrameSeries, bool) {
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, false
	}
	s, ok := p.timeFrames[tf.Key]
	return s, ok
}

// TimeframeKeys 返回该交易对订阅的全部 timeframe 标签。
func (p *Pair) TimeframeKeys() []string {
	keys := make([]string, 0, len(p.timeFrames))
	for k := range p.timeFrames {
		keys = append(keys, k)
	}
	return keys
}

// Market 持有全部交易对上下文，按名字索引。构建后只读。
type Market struct {
	pairs map[string]*Pair
	order []string
}

func NewMarket(specs []PairSpec, retention int) (*Market, error) {
	m := &Market{pairs: make(map[string]*Pair, len(specs))}
	for _, spec := range specs {
		p, err := NewPair(spec, retention)
		if err != nil {
			return nil, err
		}
		if _, dup := m.pairs[p.Name]; dup {
			return nil, fmt.Errorf("重复交易对: %s", p.Name)
		}
		m.pairs[p.Name] = p
		m.order = append(m.order, p.Name)
	}
	return m, nil
}

func (m *Market) Pair(name string) (*Pair, bool) {
	p, ok := m.pairs[strings.ToUpper(strings.TrimSpace(name))]
	return p, ok
}

// Pairs 按配置顺序返回全部交易对。
func (m *Market) Pairs() []*Pair {
	out := make([]*Pair, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.pairs[name])
	}
	return out
}
