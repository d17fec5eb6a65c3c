package market

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
)

// 中文说明：
// 预热器：进程启动时按 (pair, timeframe) 并行拉取最近 N 根历史 K 线写入序列，
// 避免 WS 冷启动期间指标上下文为空。任何一路失败视为致命（启动前置条件）。

type Preheater struct {
	Source Source
	Limit  int
}

func NewPreheater(src Source, limit int) *Preheater {
	if limit <= 0 {
		limit = 200
	}
	return &Preheater{Source: src, Limit: limit}
}

func (p *Preheater) Preheat(ctx context.Context, m *Market) error {
	if p.Source == nil {
		return fmt.Errorf("preheat 缺少行情来源")
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, pair := range m.Pairs() {
		for _, tf := range pair.TimeframeKeys() {
			pair, tf := pair, tf
			g.Go(func() error {
				candles, err := p.Source.FetchHistory(gctx, pair.Name, tf, p.Limit)
				if err != nil {
					return fmt.Errorf("预热 %s %s 失败: %w", pair.Name, tf, err)
				}
				series, ok := pair.Series(tf)
				if !ok {
					return fmt.Errorf("预热 %s 未知 timeframe %s", pair.Name, tf)
				}
				for _, c := range candles {
					series.Merge(c)
				}
				logger.Debugf("[预热] %s %s 条数=%d", pair.Name, tf, series.Len())
				return nil
			})
		}
	}
	return g.Wait()
}
