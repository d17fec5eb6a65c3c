// Package backtest 在历史归档上确定性重放策略：每根 K 线展开为
// 开→高→低→收四个合成 tick，交易落在双资产钱包台账上，结束后输出
// 交易统计与资金曲线。
package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/wafaaboulwafa/bybit-trader/internal/market"
)

// archiveSchema 约束归档文件结构；不合法的归档直接拒绝，而不是跑出
// 无法解释的回测结果。
const archiveSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["pairName", "timeFrames"],
    "properties": {
      "pairName": {"type": "string", "minLength": 1},
      "timeFrames": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["timeFrame", "data"],
          "properties": {
            "timeFrame": {"type": "string", "minLength": 1},
            "data": {
              "type": "array",
              "items": {
                "type": "object",
                "required": ["key", "open", "high", "low", "close"],
                "properties": {
                  "key":   {"type": "integer"},
                  "open":  {"type": "number"},
                  "high":  {"type": "number"},
                  "low":   {"type": "number"},
                  "close": {"type": "number"}
                }
              }
            }
          }
        }
      }
    }
  }
}`

// Archive 是回测输入：pair → timeframe → 升序 K 线。
type Archive struct {
	entries []ArchiveEntry
}

type ArchiveEntry struct {
	PairName   string             `json:"pairName"`
	TimeFrames []ArchiveTimeframe `json:"timeFrames"`
}

type ArchiveTimeframe struct {
	TimeFrame string          `json:"timeFrame"`
	Data      []market.Candle `json:"data"`
}

// LoadArchive 读取并校验归档文件。
func LoadArchive(path string) (*Archive, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取归档失败: %w", err)
	}
	return ParseArchive(raw)
}

func ParseArchive(raw []byte) (*Archive, error) {
	schema, err := jsonschema.CompileString("archive.json", archiveSchema)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("归档不是合法 JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("归档结构校验失败: %w", err)
	}

	var entries []ArchiveEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].PairName = strings.ToUpper(strings.TrimSpace(entries[i].PairName))
		for j := range entries[i].TimeFrames {
			tf, err := market.ParseTimeframe(entries[i].TimeFrames[j].TimeFrame)
			if err != nil {
				return nil, fmt.Errorf("归档 %s: %w", entries[i].PairName, err)
			}
			entries[i].TimeFrames[j].TimeFrame = tf.Key
			data := entries[i].TimeFrames[j].Data
			sort.Slice(data, func(a, b int) bool { return data[a].Key < data[b].Key })
		}
	}
	return &Archive{entries: entries}, nil
}

func (a *Archive) Entries() []ArchiveEntry { return a.entries }

// Candles 返回指定 pair/timeframe 的序列；不存在时返回 nil。
func (a *Archive) Candles(pair, timeframe string) []market.Candle {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	for _, e := range a.entries {
		if e.PairName != pair {
			continue
		}
		for _, tf := range e.TimeFrames {
			if tf.TimeFrame == timeframe {
				return tf.Data
			}
		}
	}
	return nil
}

// WriteArchive 把归档写回磁盘（采集作业的输出端）。
func WriteArchive(path string, entries []ArchiveEntry) error {
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
