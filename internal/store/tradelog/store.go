// Package tradelog 把每一次下单/平仓落到本地 sqlite，供事后复盘。
// 写入走 gorm，结构变更由 AutoMigrate 承担。
package tradelog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Action 是交易日志的动作类型。
type Action string

const (
	ActionBuy       Action = "buy"
	ActionSell      Action = "sell"
	ActionCloseBuy  Action = "closeBuy"
	ActionCloseSell Action = "closeSell"
	ActionCloseAll  Action = "closeAll"
)

// Record 是一条交易日志。Details 保存下单时的完整参数快照。
type Record struct {
	ID         int64
	Pair       string
	Action     Action
	Qty        float64
	Price      float64
	TakeProfit float64
	StopLoss   float64
	Details    map[string]any
	CreatedAt  time.Time
}

type tradeModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Pair          string         `gorm:"column:pair;index"`
	Action        string         `gorm:"column:action"`
	Qty           float64        `gorm:"column:qty"`
	Price         float64        `gorm:"column:price"`
	TakeProfit    float64        `gorm:"column:take_profit"`
	StopLoss      float64        `gorm:"column:stop_loss"`
	Details       datatypes.JSON `gorm:"column:details;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
}

func (tradeModel) TableName() string { return "trade_log" }

// Store 持有交易日志库连接。
type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("交易日志路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&tradeModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Append 写入一条交易日志。
func (s *Store) Append(ctx context.Context, rec Record) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("trade log 未初始化")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	model := tradeModel{
		Pair:          strings.ToUpper(strings.TrimSpace(rec.Pair)),
		Action:        string(rec.Action),
		Qty:           rec.Qty,
		Price:         rec.Price,
		TakeProfit:    rec.TakeProfit,
		StopLoss:      rec.StopLoss,
		Details:       detailsJSON(rec.Details),
		CreatedAtUnix: rec.CreatedAt.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// Recent 按时间倒序读取交易日志；pair 为空表示全部交易对。
func (s *Store) Recent(ctx context.Context, pair string, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("trade log 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := s.db.WithContext(ctx).Model(&tradeModel{})
	if p := strings.ToUpper(strings.TrimSpace(pair)); p != "" {
		query = query.Where("pair = ?", p)
	}
	var models []tradeModel
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(models))
	for _, m := range models {
		out = append(out, modelToRecord(m))
	}
	return out, nil
}

// Count 统计指定交易对的日志条数；pair 为空表示全部。
func (s *Store) Count(ctx context.Context, pair string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("trade log 未初始化")
	}
	query := s.db.WithContext(ctx).Model(&tradeModel{})
	if p := strings.ToUpper(strings.TrimSpace(pair)); p != "" {
		query = query.Where("pair = ?", p)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

func modelToRecord(m tradeModel) Record {
	rec := Record{
		ID:         m.ID,
		Pair:       m.Pair,
		Action:     Action(m.Action),
		Qty:        m.Qty,
		Price:      m.Price,
		TakeProfit: m.TakeProfit,
		StopLoss:   m.StopLoss,
		CreatedAt:  time.UnixMilli(m.CreatedAtUnix),
	}
	if len(m.Details) > 0 {
		var details map[string]any
		if err := json.Unmarshal(m.Details, &details); err == nil {
			rec.Details = details
		}
	}
	return rec
}

func detailsJSON(details map[string]any) datatypes.JSON {
	if len(details) == 0 {
		return datatypes.JSON([]byte("{}"))
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}
