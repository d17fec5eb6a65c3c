package config

import "time"

// Config 是进程的全部静态配置。支持 include 拆分多文件，后读的覆盖先读的；
// 环境变量（前缀 BYBIT_TRADER_）优先于文件。
type Config struct {
	// Mode 取 live 或 backtest。
	Mode string `mapstructure:"mode"`

	Log      LogConfig      `mapstructure:"log"`
	Bybit    BybitConfig    `mapstructure:"bybit"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Market   MarketConfig   `mapstructure:"market"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	TradeLog TradeLogConfig `mapstructure:"tradelog"`

	Pairs []PairConfig `mapstructure:"pairs"`
}

type LogConfig struct {
	// Path 为空时只写 stderr。
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

type BybitConfig struct {
	RESTBaseURL string        `mapstructure:"restBaseUrl"`
	WSBaseURL   string        `mapstructure:"wsBaseUrl"`
	APIKey      string        `mapstructure:"apiKey"`
	APISecret   string        `mapstructure:"apiSecret"`
	Category    string        `mapstructure:"category"`
	Demo        bool          `mapstructure:"demo"`
	HTTPTimeout time.Duration `mapstructure:"httpTimeout"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"botToken"`
	ChatID   string `mapstructure:"chatId"`
}

type WebhookConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listenAddr"`
}

type MarketConfig struct {
	// Retention 是每个序列保留的 K 线根数；回测模式下强制为 0（不截断）。
	Retention    int `mapstructure:"retention"`
	PreheatLimit int `mapstructure:"preheatLimit"`
	EventBuffer  int `mapstructure:"eventBuffer"`
}

type BacktestConfig struct {
	ArchivePath  string  `mapstructure:"archivePath"`
	CachePath    string  `mapstructure:"cachePath"`
	ReportPath   string  `mapstructure:"reportPath"`
	StartBalance float64 `mapstructure:"startBalance"`
}

type TradeLogConfig struct {
	// Path 是 gorm sqlite 文件；为空时关闭交易日志。
	Path string `mapstructure:"path"`
}

// PairConfig 是单个交易对的静态配置，启动后不可变。
type PairConfig struct {
	PairName      string   `mapstructure:"pairName"`
	Strategy      string   `mapstructure:"strategy"`
	TimeFrames    []string `mapstructure:"timeFrames"`
	BaseCoin      string   `mapstructure:"baseCoin"`
	QuotationCoin string   `mapstructure:"quotationCoin"`
	IsFuture      bool     `mapstructure:"isFuture"`
	Invert        bool     `mapstructure:"invert"`
	RiskMethod    string   `mapstructure:"riskMethod"`
	RiskAmount    float64  `mapstructure:"riskAmount"`
	MinQty        float64  `mapstructure:"minQty"`
	MaxQty        float64  `mapstructure:"maxQty"`
	QtyStep       float64  `mapstructure:"qtyStep"`
}

const (
	ModeLive     = "live"
	ModeBacktest = "backtest"
)

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeLive
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Market.Retention == 0 {
		c.Market.Retention = 500
	}
	if c.Market.PreheatLimit == 0 {
		c.Market.PreheatLimit = 200
	}
	if c.Backtest.StartBalance == 0 {
		c.Backtest.StartBalance = 1000
	}
	if c.Webhook.Enabled && c.Webhook.ListenAddr == "" {
		c.Webhook.ListenAddr = ":8080"
	}
	// 回测要求完整历史可复现
	if c.Mode == ModeBacktest {
		c.Market.Retention = 0
	}
}
