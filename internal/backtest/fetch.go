package backtest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
	"github.com/wafaaboulwafa/bybit-trader/internal/market"
)

// ArchiveBuilder 是回测数据采集作业：从行情来源拉取历史 K 线，先落到
// sqlite 缓存（重跑只补新数据），再导出为归档文件。
type ArchiveBuilder struct {
	Source market.Source
	Store  *Store
	Limit  int
}

func NewArchiveBuilder(src market.Source, store *Store, limit int) *ArchiveBuilder {
	if limit <= 0 {
		limit = 1000
	}
	return &ArchiveBuilder{Source: src, Store: store, Limit: limit}
}

// Build 为 market 里的全部 (pair, timeframe) 拉取历史并写出归档。
func (b *ArchiveBuilder) Build(ctx context.Context, m *market.Market, archivePath string) error {
	if b.Source == nil || b.Store == nil {
		return fmt.Errorf("archive builder 缺少 source/store")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, pair := range m.Pairs() {
		for _, tf := range pair.TimeframeKeys() {
			pair, tf := pair, tf
			g.Go(func() error {
				candles, err := b.Source.FetchHistory(gctx, pair.Name, tf, b.Limit)
				if err != nil {
					return fmt.Errorf("拉取 %s %s 失败: %w", pair.Name, tf, err)
				}
				n, err := b.Store.InsertCandles(gctx, pair.Name, tf, candles)
				if err != nil {
					return fmt.Errorf("缓存 %s %s 失败: %w", pair.Name, tf, err)
				}
				logger.Infof("[采集] %s %s 写入 %d 根", pair.Name, tf, n)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	entries := make([]ArchiveEntry, 0, len(m.Pairs()))
	for _, pair := range m.Pairs() {
		entry := ArchiveEntry{PairName: pair.Name}
		for _, tf := range pair.TimeframeKeys() {
			candles, err := b.Store.QueryCandles(ctx, pair.Name, tf, 0, 0)
			if err != nil {
				return err
			}
			entry.TimeFrames = append(entry.TimeFrames, ArchiveTimeframe{
				TimeFrame: tf,
				Data:      candles,
			})
		}
		entries = append(entries, entry)
	}
	if err := WriteArchive(archivePath, entries); err != nil {
		return err
	}
	logger.Infof("[采集] 归档已写入 %s", archivePath)
	return nil
}
