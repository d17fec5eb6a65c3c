package strategy

import "github.com/wafaaboulwafa/bybit-trader/internal/logger"

func init() {
	register("default", func() Strategy { return &defaultStrategy{} })
}

// defaultStrategy 只记录行情，不产生任何交易意图。
type defaultStrategy struct{}

func (s *defaultStrategy) Name() string { return "default" }

func (s *defaultStrategy) Evaluate(ctx *Context) error {
	logger.Debugf("[default] %s %s close=%v", ctx.Pair.Name, ctx.Timeframe, ctx.Price)
	return nil
}
