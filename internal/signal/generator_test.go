package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volt-trader/internal/config"
	"volt-trader/internal/indicator"
	"volt-trader/internal/volatility"
)

func testSignalConfig() config.SignalConfig {
	return config.SignalConfig{
		StopLoss:        0.05,
		TakeProfit:      0.10,
		MaxPositionSize: 0.10,
	}
}

func sawtoothCloses(n int) []float64 {
	closes := make([]float64, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			price += 1.5
		} else {
			price -= 1.0
		}
		closes = append(closes, price)
	}
	return closes
}

// strongBuySnapshot 命中全部看多条件：
// RSI超卖1.5 + MACD在信号线上方1.0 + 新金叉1.0 + 跌破下轨1.0 + 放量0.5 + 站上SMA50 0.5 = 5.5。
func strongBuySnapshot() indicator.Snapshot {
	return indicator.Snapshot{
		Symbol: "BTC/USDT",
		Series: indicator.Series{Close: sawtoothCloses(60)},
		RSI:    20,
		MACD: indicator.MACDResult{
			Value: 2.0, Signal: 1.0,
			PrevValue: 0.5, PrevSignal: 1.0,
		},
		Bollinger: indicator.BollingerResult{Upper: 105, Middle: 100, Lower: 95},
		SMA50:     80,
		Volume:    indicator.VolumeResult{Ratio: 1.5},
		Close:     90,
	}
}

func TestGenerate_StrongBuySignal(t *testing.T) {
	gen := NewGenerator(testSignalConfig(), nil)

	sig := gen.Generate(strongBuySnapshot(), volatility.RegimeNormal)
	require.NotNil(t, sig)

	assert.Equal(t, ActionBuy, sig.Action)
	assert.InDelta(t, 5.5/6.0, sig.Strength, 1e-9)
	assert.Equal(t, 90.0, sig.EntryPrice)
	assert.InDelta(t, 90*0.95, sig.StopLoss, 1e-9)
	assert.InDelta(t, 90*1.10, sig.TakeProfit, 1e-9)
	assert.Contains(t, sig.Reasoning, "RSI oversold")

	// 凯利仓位无论样本如何都落在 [0.01, 上限] 内。
	assert.GreaterOrEqual(t, sig.PositionSize, 0.01)
	assert.LessOrEqual(t, sig.PositionSize, 0.10)
}

func TestGenerate_StrongSellSignal(t *testing.T) {
	gen := NewGenerator(testSignalConfig(), nil)

	snapshot := indicator.Snapshot{
		Symbol: "ETH/USDT",
		Series: indicator.Series{Close: sawtoothCloses(60)},
		RSI:    72,
		MACD: indicator.MACDResult{
			Value: -1.0, Signal: 0.5,
			PrevValue: 1.0, PrevSignal: 0.5,
		},
		Bollinger: indicator.BollingerResult{Upper: 105, Middle: 100, Lower: 95},
		Volume:    indicator.VolumeResult{Ratio: 1.5},
		Close:     110,
	}

	sig := gen.Generate(snapshot, volatility.RegimeNormal)
	require.NotNil(t, sig)

	assert.Equal(t, ActionSell, sig.Action)
	assert.InDelta(t, 1.0, sig.Strength, 1e-9)
	assert.InDelta(t, 110*1.05, sig.StopLoss, 1e-9)
	assert.InDelta(t, 110*0.90, sig.TakeProfit, 1e-9)
	assert.Contains(t, sig.Reasoning, "RSI overbought")
}

func TestGenerate_NeutralMarketHolds(t *testing.T) {
	gen := NewGenerator(testSignalConfig(), nil)

	snapshot := indicator.Snapshot{
		Symbol:    "BTC/USDT",
		Series:    indicator.Series{Close: sawtoothCloses(60)},
		RSI:       50,
		MACD:      indicator.MACDResult{Value: 0.1, Signal: 0.1, PrevValue: 0.1, PrevSignal: 0.1},
		Bollinger: indicator.BollingerResult{Upper: 105, Middle: 100, Lower: 95},
		SMA50:     101,
		Volume:    indicator.VolumeResult{Ratio: 1.0},
		Close:     100,
	}

	assert.Nil(t, gen.Generate(snapshot, volatility.RegimeNormal))
}

// 得分恰好3.0的信号：RSI超卖1.5 + MACD在信号线上方1.0 + 放量0.5。
// 强度0.5在NORMAL门槛(0.45)之上放行，在ELEVATED门槛(0.55)之下被拦截。
func borderlineBuySnapshot() indicator.Snapshot {
	return indicator.Snapshot{
		Symbol: "SOL/USDT",
		Series: indicator.Series{Close: sawtoothCloses(60)},
		RSI:    20,
		MACD: indicator.MACDResult{
			Value: 2.0, Signal: 1.0,
			PrevValue: 2.0, PrevSignal: 1.0,
		},
		Bollinger: indicator.BollingerResult{Upper: 110, Middle: 100, Lower: 95},
		SMA50:     200,
		Volume:    indicator.VolumeResult{Ratio: 1.5},
		Close:     105,
	}
}

func TestGenerate_RegimeThresholdGatesSignal(t *testing.T) {
	gen := NewGenerator(testSignalConfig(), nil)

	sig := gen.Generate(borderlineBuySnapshot(), volatility.RegimeNormal)
	require.NotNil(t, sig)
	assert.InDelta(t, 0.5, sig.Strength, 1e-9)

	assert.Nil(t, gen.Generate(borderlineBuySnapshot(), volatility.RegimeElevated))
	assert.Nil(t, gen.Generate(borderlineBuySnapshot(), volatility.RegimePanic))
}

// 得分恰好3.5的卖出信号：RSI超买1.5 + MACD在信号线下方1.0 + 突破上轨1.0，
// 无新死叉、无放量。强度3.5/5=0.70与PANIC门槛相等，等于门槛不放行。
func TestGenerate_StrengthEqualToThresholdIsRejected(t *testing.T) {
	gen := NewGenerator(testSignalConfig(), nil)

	snapshot := indicator.Snapshot{
		Symbol: "BTC/USDT",
		Series: indicator.Series{Close: sawtoothCloses(60)},
		RSI:    72,
		MACD: indicator.MACDResult{
			Value: -1.0, Signal: 0.5,
			PrevValue: 0.2, PrevSignal: 0.5,
		},
		Bollinger: indicator.BollingerResult{Upper: 105, Middle: 100, Lower: 95},
		SMA50:     200,
		Volume:    indicator.VolumeResult{Ratio: 1.0},
		Close:     110,
	}

	sig := gen.Generate(snapshot, volatility.RegimeElevated)
	require.NotNil(t, sig)
	assert.Equal(t, ActionSell, sig.Action)
	assert.InDelta(t, 0.70, sig.Strength, 1e-12)

	assert.Nil(t, gen.Generate(snapshot, volatility.RegimePanic))
}

func TestKellyFraction_Clamps(t *testing.T) {
	// (0.6*3-1)/2 = 0.4，封顶0.25。
	assert.Equal(t, 0.25, KellyFraction(0.6, 2.0))

	// 负期望落到下限。
	assert.Equal(t, 0.01, KellyFraction(0.3, 1.0))

	// 盈亏比无效直接用下限。
	assert.Equal(t, 0.01, KellyFraction(0.5, 0))
	assert.Equal(t, 0.01, KellyFraction(0.5, -1))

	// 常规区间内按公式计算。
	assert.InDelta(t, 0.1/1.2, KellyFraction(0.5, 1.2), 1e-9)
}
