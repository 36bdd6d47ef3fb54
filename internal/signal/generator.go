package signal

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"volt-trader/internal/config"
	"volt-trader/internal/indicator"
	"volt-trader/internal/volatility"
)

// 策略固定参数。周期与阈值经回测校准，不暴露为配置。
const (
	rsiOversold   = 35.0
	rsiOverbought = 65.0

	buyScoreDenominator  = 6.0
	sellScoreDenominator = 5.0
	minScore             = 3.0

	kellyFloor = 0.01
	kellyCap   = 0.25
)

// Generator 基于指标快照按加权得分产出交易信号。
type Generator struct {
	cfg    config.SignalConfig
	logger *zap.Logger
}

// NewGenerator 创建信号生成器。
func NewGenerator(cfg config.SignalConfig, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{cfg: cfg, logger: logger}
}

// Generate 对单个交易对评分。未达到门槛时返回 nil 表示观望。
func (g *Generator) Generate(snapshot indicator.Snapshot, regime volatility.Regime) *Signal {
	buyScore := g.scoreBuy(snapshot)
	sellScore := g.scoreSell(snapshot)

	var action string
	var strength float64
	switch {
	case buyScore >= minScore && buyScore > sellScore:
		action = ActionBuy
		strength = math.Min(buyScore/buyScoreDenominator, 1.0)
	case sellScore >= minScore && sellScore > buyScore:
		action = ActionSell
		strength = math.Min(sellScore/sellScoreDenominator, 1.0)
	default:
		return nil
	}

	threshold := regime.Threshold()
	if strength <= threshold {
		g.logger.Debug("信号强度未越过当前波动门槛",
			zap.String("symbol", snapshot.Symbol),
			zap.String("action", action),
			zap.Float64("strength", strength),
			zap.Float64("threshold", threshold),
			zap.String("regime", string(regime)),
		)
		return nil
	}

	changes := indicator.PctChanges(snapshot.Series.Close)
	kelly := KellyFraction(estimateWinRate(changes), estimateAvgWinLoss(changes))

	entry := snapshot.Close
	stopLoss := entry * (1 - g.cfg.StopLoss)
	takeProfit := entry * (1 + g.cfg.TakeProfit)
	if action == ActionSell {
		stopLoss = entry * (1 + g.cfg.StopLoss)
		takeProfit = entry * (1 - g.cfg.TakeProfit)
	}

	sig := &Signal{
		Symbol:       snapshot.Symbol,
		Action:       action,
		Strength:     strength,
		EntryPrice:   entry,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		PositionSize: math.Min(kelly, g.cfg.MaxPositionSize),
		Confidence:   strength,
		Reasoning:    g.reasoning(action, snapshot),
		Timestamp:    time.Now().UTC(),
	}

	g.logger.Info("产出交易信号",
		zap.String("symbol", sig.Symbol),
		zap.String("action", sig.Action),
		zap.Float64("strength", sig.Strength),
		zap.Float64("position_size", sig.PositionSize),
		zap.String("reasoning", sig.Reasoning),
	)
	return sig
}

func (g *Generator) scoreBuy(s indicator.Snapshot) float64 {
	score := 0.0

	if s.RSI < rsiOversold {
		score += 1.5
	} else if s.RSI < 40 {
		score += 0.5
	}
	if s.MACD.Value > s.MACD.Signal {
		score += 1.0
	}
	if s.MACD.BullishCross() {
		score += 1.0
	}
	if s.Close < s.Bollinger.Lower {
		score += 1.0
	} else if s.Close < s.Bollinger.Middle {
		score += 0.3
	}
	if s.Volume.Ratio > 1.2 {
		score += 0.5
	}
	// 趋势确认只加分，不作为必要条件。
	if s.Close > s.SMA50 {
		score += 0.5
	}

	return score
}

func (g *Generator) scoreSell(s indicator.Snapshot) float64 {
	score := 0.0

	if s.RSI > rsiOverbought {
		score += 1.5
	} else if s.RSI > 60 {
		score += 0.5
	}
	if s.MACD.Value < s.MACD.Signal {
		score += 1.0
	}
	if s.MACD.BearishCross() {
		score += 1.0
	}
	if s.Close > s.Bollinger.Upper {
		score += 1.0
	}
	if s.Volume.Ratio > 1.2 {
		score += 0.5
	}

	return score
}

func (g *Generator) reasoning(action string, s indicator.Snapshot) string {
	var reasons []string

	if action == ActionBuy {
		if s.RSI < rsiOversold {
			reasons = append(reasons, fmt.Sprintf("RSI oversold (%.1f)", s.RSI))
		}
		if s.MACD.Value > s.MACD.Signal {
			reasons = append(reasons, "MACD bullish crossover")
		}
		if s.Close < s.Bollinger.Lower {
			reasons = append(reasons, "Price at lower Bollinger Band")
		}
		if s.Volume.Ratio > 1.2 {
			reasons = append(reasons, "Volume spike detected")
		}
	} else {
		if s.RSI > rsiOverbought {
			reasons = append(reasons, fmt.Sprintf("RSI overbought (%.1f)", s.RSI))
		}
		if s.MACD.Value < s.MACD.Signal {
			reasons = append(reasons, "MACD bearish crossover")
		}
		if s.Close > s.Bollinger.Upper {
			reasons = append(reasons, "Price at upper Bollinger Band")
		}
	}

	if len(reasons) == 0 {
		return "Technical analysis signal"
	}
	return strings.Join(reasons, "; ")
}

// KellyFraction 计算凯利仓位比例，恒定落在 [0.01, 0.25] 区间。
func KellyFraction(winRate, avgWinLoss float64) float64 {
	if avgWinLoss <= 0 {
		return kellyFloor
	}

	kelly := (winRate*(avgWinLoss+1) - 1) / avgWinLoss
	return math.Max(kellyFloor, math.Min(kelly, kellyCap))
}

// estimateWinRate 以近期涨跌幅样本中上涨占比近似胜率。
func estimateWinRate(changes []float64) float64 {
	if len(changes) == 0 {
		return 0.5
	}

	wins := 0
	for _, change := range changes {
		if change > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(changes))
}

// estimateAvgWinLoss 以近期涨跌幅样本估算平均盈亏比。
func estimateAvgWinLoss(changes []float64) float64 {
	winSum, lossSum := 0.0, 0.0
	winCount, lossCount := 0, 0
	for _, change := range changes {
		if change > 0 {
			winSum += change
			winCount++
		} else if change < 0 {
			lossSum -= change
			lossCount++
		}
	}

	avgWin := 0.0
	if winCount > 0 {
		avgWin = winSum / float64(winCount)
	}
	avgLoss := 0.01
	if lossCount > 0 {
		avgLoss = lossSum / float64(lossCount)
	}

	if avgLoss <= 0 {
		return 2.0
	}
	return avgWin / avgLoss
}
