package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volt-trader/internal/config"
	"volt-trader/internal/exchange"
	"volt-trader/internal/signal"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionSize:      0.10,
		CorrelationLimit:     0.7,
		MaxDrawdown:          0.15,
		MinRewardRisk:        1.5,
		MinConfidence:        0.6,
		VolatilityAdjustment: false,
	}
}

func validBuySignal() *signal.Signal {
	return &signal.Signal{
		Symbol:       "BTC/USDT",
		Action:       signal.ActionBuy,
		Strength:     0.8,
		EntryPrice:   100,
		StopLoss:     95,
		TakeProfit:   110,
		PositionSize: 0.05,
		Confidence:   0.8,
		Timestamp:    time.Now().UTC(),
	}
}

func TestAssess_ApprovesValidSignal(t *testing.T) {
	mgr := NewManager(testRiskConfig(), nil)

	result := mgr.Assess(validBuySignal(), nil)
	require.True(t, result.Approved)
	assert.InDelta(t, 0.05, result.PositionSize, 1e-9)
	assert.GreaterOrEqual(t, result.RiskScore, 0.0)
	assert.LessOrEqual(t, result.RiskScore, 1.0)
}

func TestAssess_RejectsNilAndIncompleteSignals(t *testing.T) {
	mgr := NewManager(testRiskConfig(), nil)

	assert.False(t, mgr.Assess(nil, nil).Approved)

	sig := validBuySignal()
	sig.Symbol = ""
	assert.False(t, mgr.Assess(sig, nil).Approved)

	sig = validBuySignal()
	sig.StopLoss = 0
	assert.False(t, mgr.Assess(sig, nil).Approved)
}

func TestAssess_RejectsLowRewardRisk(t *testing.T) {
	mgr := NewManager(testRiskConfig(), nil)

	sig := validBuySignal()
	sig.TakeProfit = 105 // 盈亏比 5/5 = 1.0 < 1.5
	result := mgr.Assess(sig, nil)
	assert.False(t, result.Approved)
	assert.Contains(t, result.Reason, "盈亏比")
}

func TestAssess_RejectsLowConfidence(t *testing.T) {
	mgr := NewManager(testRiskConfig(), nil)

	sig := validBuySignal()
	sig.Confidence = 0.5
	assert.False(t, mgr.Assess(sig, nil).Approved)
}

func TestAssess_RejectsOversizedPosition(t *testing.T) {
	mgr := NewManager(testRiskConfig(), nil)

	sig := validBuySignal()
	sig.PositionSize = 0.2
	result := mgr.Assess(sig, nil)
	assert.False(t, result.Approved)
	assert.Contains(t, result.Reason, "仓位比例")
}

func TestAssess_CorrelationBlocksClusteredBuy(t *testing.T) {
	mgr := NewManager(testRiskConfig(), nil)

	positions := map[string]exchange.Position{
		"ETH/USDT": {Symbol: "ETH/USDT", Quantity: 1.0, EntryPrice: 3000},
	}

	// BTC与ETH同属大市值L1，相关性0.8超过上限0.7。
	result := mgr.Assess(validBuySignal(), positions)
	assert.False(t, result.Approved)
	assert.Contains(t, result.Reason, "相关性")
}

func TestAssess_CorrelationIgnoresOwnPosition(t *testing.T) {
	mgr := NewManager(testRiskConfig(), nil)

	positions := map[string]exchange.Position{
		"BTC/USDT": {Symbol: "BTC/USDT", Quantity: 0.5, EntryPrice: 90},
	}

	assert.True(t, mgr.Assess(validBuySignal(), positions).Approved)
}

func TestAssess_CrossClusterBuyPasses(t *testing.T) {
	mgr := NewManager(testRiskConfig(), nil)

	positions := map[string]exchange.Position{
		"XRP/USDT": {Symbol: "XRP/USDT", Quantity: 100, EntryPrice: 2},
	}

	// 跨集群相关性0.45低于上限。
	assert.True(t, mgr.Assess(validBuySignal(), positions).Approved)
}

func TestAssess_SellReducingPositionBypassesCorrelation(t *testing.T) {
	mgr := NewManager(testRiskConfig(), nil)

	positions := map[string]exchange.Position{
		"BTC/USDT": {Symbol: "BTC/USDT", Quantity: 0.5, EntryPrice: 90},
		"ETH/USDT": {Symbol: "ETH/USDT", Quantity: 1.0, EntryPrice: 3000},
	}

	sig := validBuySignal()
	sig.Action = signal.ActionSell
	sig.StopLoss = 105
	sig.TakeProfit = 90 // 盈亏比 10/5 = 2.0

	assert.True(t, mgr.Assess(sig, positions).Approved)
}

func TestAssess_DrawdownBlocksAfterLosses(t *testing.T) {
	mgr := NewManager(testRiskConfig(), nil)

	mgr.UpdateDailyMetrics(-0.20)
	result := mgr.Assess(validBuySignal(), nil)
	assert.False(t, result.Approved)
	assert.Contains(t, result.Reason, "回撤")
}

func TestAssess_DrawdownIgnoresGains(t *testing.T) {
	mgr := NewManager(testRiskConfig(), nil)

	// 回撤检查只看亏损，大额盈利不触发。
	mgr.UpdateDailyMetrics(0.30)
	assert.True(t, mgr.Assess(validBuySignal(), nil).Approved)
}

func TestAssess_VolatilityShrinksFinalSize(t *testing.T) {
	cfg := testRiskConfig()
	cfg.VolatilityAdjustment = true
	mgr := NewManager(cfg, nil)

	sig := validBuySignal()
	sig.PositionSize = 0.099

	result := mgr.Assess(sig, nil)
	require.True(t, result.Approved)
	// BTC波动率0.03：最大仓位收缩为 0.10/1.03。
	assert.InDelta(t, 0.10/1.03, result.PositionSize, 1e-9)
}

func TestCurrentMetrics_TracksDailyActivity(t *testing.T) {
	mgr := NewManager(testRiskConfig(), nil)

	mgr.UpdateDailyMetrics(0.01)
	mgr.UpdateDailyMetrics(-0.02)

	metrics := mgr.CurrentMetrics()
	assert.InDelta(t, -0.01, metrics.DailyPnl, 1e-9)
	assert.Equal(t, 2, metrics.DailyTrades)
}

func TestCorrelation_ClusterTable(t *testing.T) {
	assert.Equal(t, 1.0, Correlation("BTC/USDT", "BTC/USDC"))
	assert.Equal(t, 0.8, Correlation("BTC/USDT", "ETH/USDT"))
	assert.Equal(t, 0.8, Correlation("XRP/USDT", "LTC/USDT"))
	assert.Equal(t, 0.45, Correlation("BTC/USDT", "XRP/USDT"))
	assert.Equal(t, 0.3, Correlation("BTC/USDT", "PEPE/USDT"))
}
