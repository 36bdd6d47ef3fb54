package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"volt-trader/internal/config"
	"volt-trader/internal/exchange"
	"volt-trader/internal/signal"
)

// Manager 负责开仓前的风控评估与当日风控指标跟踪。
// 检查按固定顺序执行，首个失败项直接否决。
type Manager struct {
	cfg    config.RiskConfig
	logger *zap.Logger

	mu          sync.Mutex
	dailyPnl    float64
	dailyTrades int
	lastReset   time.Time
}

// NewManager 创建风险管理器。
func NewManager(cfg config.RiskConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:       cfg,
		logger:    logger,
		lastReset: truncateToDay(time.Now().UTC()),
	}
}

// Assess 评估一笔信号。positions 为当前持仓快照，由调用方保证只读。
func (m *Manager) Assess(sig *signal.Signal, positions map[string]exchange.Position) Assessment {
	m.resetDailyCounters(time.Now().UTC())

	if reason := m.basicCheck(sig); reason != "" {
		return m.deny(sig, reason)
	}

	if sig.PositionSize > m.cfg.MaxPositionSize {
		return m.deny(sig, fmt.Sprintf("仓位比例 %.3f 超过上限 %.3f",
			sig.PositionSize, m.cfg.MaxPositionSize))
	}

	if reason := m.correlationCheck(sig, positions); reason != "" {
		return m.deny(sig, reason)
	}

	if reason := m.drawdownCheck(); reason != "" {
		return m.deny(sig, reason)
	}

	finalSize := m.adjustedSize(sig)
	riskScore := m.riskScore(sig, positions)

	m.logger.Info("风控评估通过",
		zap.String("symbol", sig.Symbol),
		zap.String("action", sig.Action),
		zap.Float64("final_size", finalSize),
		zap.Float64("risk_score", riskScore),
	)

	return Assessment{
		Approved:     true,
		PositionSize: finalSize,
		RiskScore:    riskScore,
		Reason:       "风控评估通过",
	}
}

// UpdateDailyMetrics 在订单成交后记录已实现盈亏（按净值比例）。
func (m *Manager) UpdateDailyMetrics(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnl += pnl
	m.dailyTrades++
}

// CurrentMetrics 返回当日风控指标快照。
func (m *Manager) CurrentMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		DailyPnl:        m.dailyPnl,
		DailyTrades:     m.dailyTrades,
		MaxPositionSize: m.cfg.MaxPositionSize,
		MaxDrawdown:     m.cfg.MaxDrawdown,
		LastReset:       m.lastReset,
	}
}

func (m *Manager) basicCheck(sig *signal.Signal) string {
	if sig == nil {
		return "信号为空"
	}
	if sig.Symbol == "" || sig.Action == "" {
		return "信号缺少必要字段"
	}
	if sig.EntryPrice <= 0 || sig.StopLoss <= 0 || sig.TakeProfit <= 0 {
		return "信号价格字段无效"
	}

	ratio := sig.RewardRiskRatio()
	if ratio <= 0 {
		return "止损方向配置无效"
	}
	if ratio < m.cfg.MinRewardRisk {
		return fmt.Sprintf("盈亏比 %.2f 低于下限 %.2f", ratio, m.cfg.MinRewardRisk)
	}

	if sig.Confidence < m.cfg.MinConfidence {
		return fmt.Sprintf("信号置信度 %.2f 低于下限 %.2f", sig.Confidence, m.cfg.MinConfidence)
	}

	return ""
}

func (m *Manager) correlationCheck(sig *signal.Signal, positions map[string]exchange.Position) string {
	// 卖出减仓不会增加组合暴露，直接放行。
	if sig.Action == signal.ActionSell {
		if pos, ok := positions[sig.Symbol]; ok && pos.Quantity > 0 {
			return ""
		}
	}

	for symbol, pos := range positions {
		if symbol == sig.Symbol || pos.Quantity == 0 {
			continue
		}

		corr := Correlation(sig.Symbol, symbol)
		if corr > m.cfg.CorrelationLimit {
			return fmt.Sprintf("与持仓 %s 相关性 %.2f 超过上限 %.2f",
				symbol, corr, m.cfg.CorrelationLimit)
		}
	}

	return ""
}

func (m *Manager) drawdownCheck() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dailyPnl < 0 && -m.dailyPnl > m.cfg.MaxDrawdown {
		return fmt.Sprintf("当日亏损 %.3f 已超过回撤上限 %.3f", -m.dailyPnl, m.cfg.MaxDrawdown)
	}
	return ""
}

func (m *Manager) adjustedSize(sig *signal.Signal) float64 {
	maxSize := m.cfg.MaxPositionSize
	if !m.cfg.VolatilityAdjustment {
		return math.Min(sig.PositionSize, maxSize)
	}

	vol := symbolVolatility(sig.Symbol)
	adjusted := maxSize / (1 + vol)

	m.logger.Debug("按波动率收缩仓位",
		zap.String("symbol", sig.Symbol),
		zap.Float64("volatility", vol),
		zap.Float64("adjusted_max", adjusted),
	)

	return math.Min(sig.PositionSize, math.Min(adjusted, maxSize))
}

func (m *Manager) riskScore(sig *signal.Signal, positions map[string]exchange.Position) float64 {
	score := 0.0

	if m.cfg.MaxPositionSize > 0 {
		score += sig.PositionSize / m.cfg.MaxPositionSize * 0.3
	}
	score += (1 - sig.Confidence) * 0.2

	active := 0
	for _, pos := range positions {
		if pos.Quantity != 0 {
			active++
		}
	}
	score += math.Min(float64(active)/10, 1.0) * 0.2

	m.mu.Lock()
	trades := m.dailyTrades
	m.mu.Unlock()
	score += math.Min(float64(trades)/20, 1.0) * 0.1

	return math.Min(score, 1.0)
}

func (m *Manager) deny(sig *signal.Signal, reason string) Assessment {
	symbol := ""
	if sig != nil {
		symbol = sig.Symbol
	}
	m.logger.Warn("风控否决信号",
		zap.String("symbol", symbol),
		zap.String("reason", reason),
	)
	return Assessment{Reason: reason}
}

func (m *Manager) resetDailyCounters(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := truncateToDay(now)
	if today.After(m.lastReset) {
		m.dailyPnl = 0
		m.dailyTrades = 0
		m.lastReset = today
		m.logger.Info("当日风控计数已重置")
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
