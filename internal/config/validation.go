package config

import (
	"fmt"
	"strings"

	"github.com/wafaaboulwafa/bybit-trader/internal/market"
	"github.com/wafaaboulwafa/bybit-trader/internal/risk"
	"github.com/wafaaboulwafa/bybit-trader/internal/strategy"
)

func validate(cfg *Config) error {
	switch cfg.Mode {
	case ModeLive, ModeBacktest:
	default:
		return fmt.Errorf("mode 必须是 %s 或 %s，当前: %q", ModeLive, ModeBacktest, cfg.Mode)
	}

	if cfg.Mode == ModeLive {
		if strings.TrimSpace(cfg.Bybit.APIKey) == "" || strings.TrimSpace(cfg.Bybit.APISecret) == "" {
			return fmt.Errorf("live 模式必须配置 bybit.apiKey/apiSecret")
		}
	}
	if cfg.Mode == ModeBacktest && strings.TrimSpace(cfg.Backtest.ArchivePath) == "" {
		return fmt.Errorf("backtest 模式必须配置 backtest.archivePath")
	}

	if len(cfg.Pairs) == 0 {
		return fmt.Errorf("至少需要配置一个交易对")
	}
	seen := make(map[string]bool, len(cfg.Pairs))
	for i, p := range cfg.Pairs {
		name := strings.ToUpper(strings.TrimSpace(p.PairName))
		if name == "" {
			return fmt.Errorf("pairs[%d]: pairName 不能为空", i)
		}
		if seen[name] {
			return fmt.Errorf("pairs[%d]: 重复交易对 %s", i, name)
		}
		seen[name] = true

		if len(p.TimeFrames) == 0 {
			return fmt.Errorf("pairs[%d] %s: 至少配置一个 timeframe", i, name)
		}
		for _, tf := range p.TimeFrames {
			if _, err := market.ParseTimeframe(tf); err != nil {
				return fmt.Errorf("pairs[%d] %s: %w", i, name, err)
			}
		}
		if p.Strategy != "" {
			if err := strategy.Known(p.Strategy); err != nil {
				return fmt.Errorf("pairs[%d] %s: %w", i, name, err)
			}
		}
		if p.RiskMethod != "" {
			if _, err := risk.ParseMethod(p.RiskMethod); err != nil {
				return fmt.Errorf("pairs[%d] %s: %w", i, name, err)
			}
		}
		if p.RiskAmount < 0 {
			return fmt.Errorf("pairs[%d] %s: riskAmount 不能为负", i, name)
		}
		if p.QtyStep < 0 || p.MinQty < 0 || p.MaxQty < 0 {
			return fmt.Errorf("pairs[%d] %s: 数量约束不能为负", i, name)
		}
	}
	return nil
}

// PairSpecs 把配置转换为 market 层的构建参数。
func (c *Config) PairSpecs() []market.PairSpec {
	specs := make([]market.PairSpec, 0, len(c.Pairs))
	for _, p := range c.Pairs {
		riskMethod := p.RiskMethod
		if riskMethod == "" {
			riskMethod = string(risk.PercentOfEquity)
		}
		strategyName := p.Strategy
		if strategyName == "" {
			strategyName = "default"
		}
		specs = append(specs, market.PairSpec{
			Name:          p.PairName,
			Strategy:      strategyName,
			TimeFrames:    p.TimeFrames,
			BaseCoin:      p.BaseCoin,
			QuotationCoin: p.QuotationCoin,
			IsFuture:      p.IsFuture,
			Invert:        p.Invert,
			RiskMethod:    riskMethod,
			RiskAmount:    p.RiskAmount,
			Limits: market.InstrumentLimits{
				MinQty:  p.MinQty,
				MaxQty:  p.MaxQty,
				QtyStep: p.QtyStep,
			},
		})
	}
	return specs
}
