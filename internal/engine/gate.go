package engine

import "sync"

// PositionGate 是下单闸门：方向触发闩防止同一信号在条件保持期间反复下单，
// underProcessing 互斥保证同一交易对同一时刻只有一次评估/下单在途
// （行情 worker 与 webhook 两条路径共享）。
type PositionGate struct {
	mu            sync.Mutex
	buyTriggered  map[string]bool
	sellTriggered map[string]bool
	processing    map[string]bool
}

func NewPositionGate() *PositionGate {
	return &PositionGate{
		buyTriggered:  make(map[string]bool),
		sellTriggered: make(map[string]bool),
		processing:    make(map[string]bool),
	}
}

func (g *PositionGate) BuyTriggered(pair string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buyTriggered[pair]
}

func (g *PositionGate) SellTriggered(pair string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sellTriggered[pair]
}

func (g *PositionGate) SetBuyTriggered(pair string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.buyTriggered[pair] = true
}

func (g *PositionGate) SetSellTriggered(pair string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sellTriggered[pair] = true
}

func (g *PositionGate) ClearBuyTrigger(pair string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.buyTriggered, pair)
}

func (g *PositionGate) ClearSellTrigger(pair string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sellTriggered, pair)
}

// ClearTriggers 同时清掉两个方向闩（交易所报告有持仓后调用）。
func (g *PositionGate) ClearTriggers(pair string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.buyTriggered, pair)
	delete(g.sellTriggered, pair)
}

// TryEnter 尝试占用该交易对的处理权；已被占用时返回 false，调用方应跳过
// 本次评估而不是排队等待。
func (g *PositionGate) TryEnter(pair string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.processing[pair] {
		return false
	}
	g.processing[pair] = true
	return true
}

// Exit 释放处理权，必须与成功的 TryEnter 配对。
func (g *PositionGate) Exit(pair string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.processing, pair)
}
