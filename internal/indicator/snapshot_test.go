package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volt-trader/internal/exchange"
)

func makeCandles(n int, startPrice float64) []exchange.Candle {
	candles := make([]exchange.Candle, 0, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	price := startPrice

	for i := 0; i < n; i++ {
		// 轻微的锯齿走势，保证标准差与涨跌幅都不为0。
		if i%2 == 0 {
			price += 1.5
		} else {
			price -= 1.0
		}
		candles = append(candles, exchange.Candle{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      price - 0.5,
			High:      price + 1.0,
			Low:       price - 1.0,
			Close:     price,
			Volume:    1000 + float64(i%10)*50,
		})
	}
	return candles
}

func TestCalculator_RejectsShortSeries(t *testing.T) {
	calc := NewCalculator()

	_, err := calc.Compute("BTC/USDT", makeCandles(MinCandles-1, 100))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestCalculator_SnapshotConsistency(t *testing.T) {
	calc := NewCalculator()
	candles := makeCandles(60, 100)

	snapshot, err := calc.Compute("BTC/USDT", candles)
	require.NoError(t, err)

	assert.Equal(t, "BTC/USDT", snapshot.Symbol)
	assert.Equal(t, candles[len(candles)-1].Close, snapshot.Close)
	assert.Equal(t, candles[len(candles)-2].Close, snapshot.PreviousClose)

	assert.Greater(t, snapshot.Bollinger.Upper, snapshot.Bollinger.Middle)
	assert.Greater(t, snapshot.Bollinger.Middle, snapshot.Bollinger.Lower)
	assert.InDelta(t, snapshot.SMA20, snapshot.Bollinger.Middle, 1e-9)

	assert.InDelta(t, snapshot.MACD.Value-snapshot.MACD.Signal, snapshot.MACD.Histogram, 1e-9)

	assert.Greater(t, snapshot.RSI, 0.0)
	assert.Less(t, snapshot.RSI, 100.0)
	assert.Greater(t, snapshot.ATR, 0.0)
	assert.Greater(t, snapshot.Volume.Ratio, 0.0)
	assert.Equal(t, candles[len(candles)-1].Volume, snapshot.Volume.Current)
}

func TestCalculator_CacheHitOnSameData(t *testing.T) {
	calc := NewCalculator()
	candles := makeCandles(60, 100)

	first, err := calc.Compute("ETH/USDT", candles)
	require.NoError(t, err)

	second, err := calc.Compute("ETH/USDT", candles)
	require.NoError(t, err)

	assert.Equal(t, first.RSI, second.RSI)
	assert.Equal(t, first.MACD, second.MACD)
	assert.Equal(t, first.Close, second.Close)
}

func TestMACDResult_CrossDetection(t *testing.T) {
	fresh := MACDResult{Value: 1.0, Signal: 0.5, PrevValue: 0.4, PrevSignal: 0.5}
	assert.True(t, fresh.BullishCross())
	assert.False(t, fresh.BearishCross())

	// 已经在信号线上方运行，不算新金叉。
	ongoing := MACDResult{Value: 1.0, Signal: 0.5, PrevValue: 0.9, PrevSignal: 0.5}
	assert.False(t, ongoing.BullishCross())

	dead := MACDResult{Value: 0.2, Signal: 0.5, PrevValue: 0.6, PrevSignal: 0.5}
	assert.True(t, dead.BearishCross())
}
