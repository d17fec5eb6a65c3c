package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossUpDetectsStrictFlip(t *testing.T) {
	fast := []float64{1, 2, 3, 4, 6}
	slow := []float64{5, 5, 5, 5, 5}

	up, err := CrossUp(fast, slow, 5)
	require.NoError(t, err)
	assert.True(t, up)

	down, err := CrossDown(fast, slow, 5)
	require.NoError(t, err)
	assert.False(t, down)

	// 未翻转（fast 始终在上方）
	up, err = CrossUp([]float64{6, 7, 8, 9, 10}, slow, 5)
	require.NoError(t, err)
	assert.False(t, up)
}

func TestCrossInsufficientHistoryIsNotFalse(t *testing.T) {
	_, err := CrossUp([]float64{1, 2}, []float64{3, 4, 5}, 3)
	assert.ErrorIs(t, err, ErrInsufficientHistory)

	_, err = CrossDown([]float64{1, 2, 3}, []float64{3}, 3)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestCrossSymmetry(t *testing.T) {
	pairs := [][2][]float64{
		{{1, 2, 3, 4, 6}, {5, 5, 5, 5, 5}},
		{{9, 7, 5, 3, 1}, {4, 4, 4, 4, 4}},
		{{1, 1, 1, 1, 1}, {2, 2, 2, 2, 2}},
		{{3, 1, 4, 1, 5}, {2, 7, 1, 8, 2}},
	}
	for _, p := range pairs {
		for _, lookback := range []int{2, 3, 5} {
			up, err1 := CrossUp(p[0], p[1], lookback)
			down, err2 := CrossDown(p[1], p[0], lookback)
			require.NoError(t, err1)
			require.NoError(t, err2)
			assert.Equal(t, up, down, "lookback=%d", lookback)
		}
	}
}

func TestEMACrossTriState(t *testing.T) {
	closes := []float64{100, 102, 99, 101, 105, 98, 107}

	// EMA(5) 在 7 个收盘价上只有 3 个有效点，不足 lookback=5
	_, err := EMACrossUp(closes, 3, 5, 5)
	assert.ErrorIs(t, err, ErrInsufficientHistory)

	// 延长序列后两条 EMA 均有 ≥5 个点，必须给出布尔结论
	longer := append(append([]float64{}, closes...), 103, 109, 104, 111)
	up, err := EMACrossUp(longer, 3, 5, 5)
	require.NoError(t, err)
	down, err := EMACrossDown(longer, 3, 5, 5)
	require.NoError(t, err)
	assert.False(t, up && down)
}
