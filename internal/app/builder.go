package app

import (
	"context"
	"fmt"
	"os"

	"github.com/wafaaboulwafa/bybit-trader/internal/backtest"
	"github.com/wafaaboulwafa/bybit-trader/internal/config"
	"github.com/wafaaboulwafa/bybit-trader/internal/engine"
	"github.com/wafaaboulwafa/bybit-trader/internal/gateway/bybit"
	"github.com/wafaaboulwafa/bybit-trader/internal/gateway/exchange"
	"github.com/wafaaboulwafa/bybit-trader/internal/logger"
	"github.com/wafaaboulwafa/bybit-trader/internal/market"
	"github.com/wafaaboulwafa/bybit-trader/internal/store/tradelog"
	webhookhttp "github.com/wafaaboulwafa/bybit-trader/internal/transport/http/webhook"
)

func (a *App) buildLive(ctx context.Context) error {
	m, err := market.NewMarket(a.cfg.PairSpecs(), a.cfg.Market.Retention)
	if err != nil {
		return err
	}
	a.market = m

	bcfg := bybitConfig(a.cfg)
	source := bybit.NewSource(bcfg)
	a.source = source

	// 预热：先把历史 K 线灌满各序列，策略上线即可评估
	preheater := market.NewPreheater(source, a.cfg.Market.PreheatLimit)
	if err := preheater.Preheat(ctx, m); err != nil {
		return fmt.Errorf("预热失败: %w", err)
	}

	var gateway exchange.Gateway = bybit.NewExecutor(bcfg)
	if path := a.cfg.TradeLog.Path; path != "" {
		store, err := tradelog.NewStore(path)
		if err != nil {
			return fmt.Errorf("初始化交易日志失败: %w", err)
		}
		a.tradeLog = store
		gateway = tradelog.NewLoggingGateway(gateway, store)
		logger.Infof("✓ 交易日志写入 %s", path)
	}

	eng, err := engine.New(m, engine.Options{
		Gateway: gateway,
		Notify:  a.notifyFunc(),
		Buffer:  a.cfg.Market.EventBuffer,
	})
	if err != nil {
		return err
	}
	a.engine = eng

	if a.cfg.Webhook.Enabled {
		server, err := webhookhttp.NewServer(webhookhttp.RouterConfig{
			Market:  m,
			Gateway: gateway,
			Gate:    eng.Gate(),
			Trades:  a.tradeLog,
		}, a.cfg.Webhook.ListenAddr)
		if err != nil {
			return fmt.Errorf("初始化 webhook 失败: %w", err)
		}
		a.webhook = server
	}
	return nil
}

func (a *App) buildBacktest(ctx context.Context) error {
	m, err := market.NewMarket(a.cfg.PairSpecs(), 0)
	if err != nil {
		return err
	}
	a.market = m

	archive, err := a.loadOrBuildArchive(ctx, m)
	if err != nil {
		return err
	}

	initial := make(map[string]float64)
	for _, pair := range m.Pairs() {
		if _, ok := initial[pair.QuotationCoin]; !ok {
			initial[pair.QuotationCoin] = a.cfg.Backtest.StartBalance
		}
	}

	// 回测的成交同样写交易日志，复盘口径与实盘一致
	var wrap func(exchange.Gateway) exchange.Gateway
	if path := a.cfg.TradeLog.Path; path != "" {
		store, err := tradelog.NewStore(path)
		if err != nil {
			return fmt.Errorf("初始化交易日志失败: %w", err)
		}
		a.tradeLog = store
		wrap = func(inner exchange.Gateway) exchange.Gateway {
			return tradelog.NewLoggingGateway(inner, store)
		}
	}
	runner, err := backtest.NewRunnerWithGateway(m, archive, initial, wrap)
	if err != nil {
		return err
	}
	a.runner = runner
	return nil
}

// loadOrBuildArchive 读取归档；文件不存在且配置了缓存目录时，先从交易所
// 拉取历史生成归档再读。
func (a *App) loadOrBuildArchive(ctx context.Context, m *market.Market) (*backtest.Archive, error) {
	path := a.cfg.Backtest.ArchivePath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if a.cfg.Backtest.CachePath == "" {
			return nil, fmt.Errorf("归档 %s 不存在，且未配置 backtest.cachePath 无法采集", path)
		}
		logger.Infof("归档 %s 不存在，开始采集历史数据", path)
		store, err := backtest.NewStore(a.cfg.Backtest.CachePath)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		source := bybit.NewSource(bybitConfig(a.cfg))
		defer source.Close()
		builder := backtest.NewArchiveBuilder(source, store, 0)
		if err := builder.Build(ctx, m, path); err != nil {
			return nil, err
		}
	}
	return backtest.LoadArchive(path)
}

// notifyFunc 把引擎的文本通知接到 Telegram。推送是尽力而为的，
// 失败只告警。
func (a *App) notifyFunc() func(string) {
	return func(text string) {
		if err := a.notify.SendText(text); err != nil {
			logger.Warnf("通知发送失败: %v", err)
		}
	}
}

func bybitConfig(cfg *config.Config) bybit.Config {
	return bybit.Config{
		RESTBaseURL: cfg.Bybit.RESTBaseURL,
		WSBaseURL:   cfg.Bybit.WSBaseURL,
		APIKey:      cfg.Bybit.APIKey,
		APISecret:   cfg.Bybit.APISecret,
		Category:    cfg.Bybit.Category,
		Demo:        cfg.Bybit.Demo,
		HTTPTimeout: cfg.Bybit.HTTPTimeout,
	}
}
