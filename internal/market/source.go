package market

import "context"

// CandleEvent 是行情入口的统一事件：一根（可能未收盘的）K 线。
type CandleEvent struct {
	Pair      string
	Timeframe string
	Candle    Candle
}

type SubscribeOptions struct {
	Buffer       int
	OnConnect    func()
	OnDisconnect func(error)
}

type SourceStats struct {
	Reconnects      int
	SubscribeErrors int
	Dropped         int
	LastError       string
}

// Source 抽象行情来源：REST 历史拉取 + WS 订阅。无法解析为 Candle 的
// 推送在实现内部丢弃，不会出现在事件流里。
type Source interface {
	FetchHistory(ctx context.Context, pair, timeframe string, limit int) ([]Candle, error)

	Subscribe(ctx context.Context, pairs []string, timeframes map[string][]string, opts SubscribeOptions) (<-chan CandleEvent, error)

	Stats() SourceStats

	Close() error
}
