package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleArchive = `[
  {
    "pairName": "btcusdt",
    "timeFrames": [
      {
        "timeFrame": "5",
        "data": [
          {"key": 1700000600000, "open": 101, "high": 103, "low": 100, "close": 102},
          {"key": 1700000300000, "open": 100, "high": 102, "low": 99, "close": 101}
        ]
      }
    ]
  }
]`

func TestParseArchive(t *testing.T) {
	archive, err := ParseArchive([]byte(sampleArchive))
	require.NoError(t, err)

	candles := archive.Candles("BTCUSDT", "5")
	require.Len(t, candles, 2)
	// 归档内乱序也会按 Key 升序整理
	assert.Equal(t, int64(1700000300000), candles[0].Key)
	assert.Equal(t, int64(1700000600000), candles[1].Key)

	// 大小写不敏感查找
	assert.Len(t, archive.Candles("btcusdt", "5"), 2)
	assert.Nil(t, archive.Candles("ETHUSDT", "5"))
	assert.Nil(t, archive.Candles("BTCUSDT", "15"))
}

func TestParseArchiveRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"不是 JSON", `not json`},
		{"缺 pairName", `[{"timeFrames": []}]`},
		{"缺 data", `[{"pairName": "BTCUSDT", "timeFrames": [{"timeFrame": "5"}]}]`},
		{"K 线缺字段", `[{"pairName": "BTCUSDT", "timeFrames": [{"timeFrame": "5",
			"data": [{"key": 1, "open": 1}]}]}]`},
		{"非法 timeframe", `[{"pairName": "BTCUSDT", "timeFrames": [{"timeFrame": "7", "data": []}]}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseArchive([]byte(tc.raw))
			assert.Error(t, err)
		})
	}
}
