package agent

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 初始投票权重。风控最高，因为否决错误的代价最大。
var defaultWeights = map[string]float64{
	AgentStrategy:  0.25,
	AgentRisk:      0.30,
	AgentMarket:    0.20,
	AgentExecution: 0.15,
	AgentAuditor:   0.10,
}

// Network 协调五个智能体并计算加权共识。
type Network struct {
	logger *zap.Logger

	strategy  *StrategyAgent
	risk      *RiskAgent
	market    *MarketAgent
	execution *ExecutionAgent
	auditor   *AuditorAgent

	mu        sync.Mutex
	weights   map[string]float64
	decisions int
}

// NewNetwork 创建多智能体网络，全部智能体共享同一个推理后端。
func NewNetwork(thinker Thinker, logger *zap.Logger) *Network {
	if logger == nil {
		logger = zap.NewNop()
	}

	weights := make(map[string]float64, len(defaultWeights))
	for id, w := range defaultWeights {
		weights[id] = w
	}

	return &Network{
		logger:    logger,
		strategy:  &StrategyAgent{thinker: thinker, logger: logger},
		risk:      &RiskAgent{thinker: thinker, logger: logger},
		market:    &MarketAgent{thinker: thinker, logger: logger},
		execution: &ExecutionAgent{},
		auditor:   &AuditorAgent{},
		weights:   weights,
	}
}

// Evaluate 执行一轮完整的多智能体决策。
// 策略与市场智能体互不依赖，可以并发评估；风控否决直接短路。
func (n *Network) Evaluate(ctx context.Context, market MarketContext, portfolio PortfolioContext) Consensus {
	n.logger.Info("开始多智能体分析", zap.String("symbol", market.Symbol))

	var strategyVote Vote
	var marketView SentimentView

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		strategyVote = n.strategy.Analyze(gctx, market)
		return nil
	})
	g.Go(func() error {
		marketView = n.market.Assess(gctx, market)
		return nil
	})
	_ = g.Wait()

	n.logger.Info("策略与市场智能体已投票",
		zap.String("strategy", strategyVote.Decision),
		zap.Float64("strategy_confidence", strategyVote.Confidence),
		zap.String("sentiment", marketView.Sentiment),
	)

	riskReview := n.risk.Review(ctx, strategyVote, portfolio)
	if !riskReview.Approved {
		n.logger.Info("风控智能体否决提案",
			zap.String("symbol", market.Symbol),
			zap.String("reason", riskReview.Reasoning),
		)
		n.recordDecision()
		return Consensus{
			Decision:      DecisionHold,
			Confidence:    0,
			ConsensusType: ConsensusRejectedByRisk,
			Reasoning:     fmt.Sprintf("Risk rejected: %s", riskReview.Reasoning),
			Strategy:      strategyVote,
			Market:        marketView,
			Risk:          riskReview,
		}
	}

	recommendedSize := 0.05
	if market.Proposal != nil {
		recommendedSize = market.Proposal.PositionSize
	}
	execPlan := n.execution.Plan(market, recommendedSize)
	audit := n.auditor.Audit(strategyVote, marketView)

	consensus := n.weightedConsensus(strategyVote, marketView, riskReview)
	consensus.Execution = &execPlan
	consensus.Audit = &audit

	n.logger.Info("多智能体共识完成",
		zap.String("symbol", market.Symbol),
		zap.String("decision", consensus.Decision),
		zap.String("consensus_type", consensus.ConsensusType),
		zap.Float64("confidence", consensus.Confidence),
	)
	n.recordDecision()
	return consensus
}

func (n *Network) weightedConsensus(strategyVote Vote, marketView SentimentView, riskReview RiskReview) Consensus {
	n.mu.Lock()
	strategyWeight := n.weights[AgentStrategy]
	riskWeight := n.weights[AgentRisk]
	marketWeight := n.weights[AgentMarket]
	n.mu.Unlock()

	buyScore, sellScore, holdScore := 0.0, 0.0, 0.0

	switch strategyVote.Decision {
	case DecisionBuy:
		buyScore += strategyWeight * strategyVote.Confidence
	case DecisionSell:
		sellScore += strategyWeight * strategyVote.Confidence
	default:
		holdScore += strategyWeight * strategyVote.Confidence
	}

	switch marketView.Sentiment {
	case SentimentBullish:
		buyScore += marketWeight * marketView.Confidence
	case SentimentBearish:
		sellScore += marketWeight * marketView.Confidence
	default:
		holdScore += marketWeight * marketView.Confidence
	}

	// 风控投票是二值的：批准则强化策略方向，否决则强化观望。
	if riskReview.Approved {
		switch strategyVote.Decision {
		case DecisionBuy:
			buyScore += riskWeight
		case DecisionSell:
			sellScore += riskWeight
		}
	} else {
		holdScore += riskWeight
	}

	total := buyScore + sellScore + holdScore
	buyPct, sellPct, holdPct := 0.33, 0.33, 0.33
	if total > 0 {
		buyPct = buyScore / total
		sellPct = sellScore / total
		holdPct = holdScore / total
	}

	decision := DecisionHold
	confidence := holdPct
	switch {
	case buyPct > sellPct && buyPct > holdPct:
		decision = DecisionBuy
		confidence = buyPct
	case sellPct > buyPct && sellPct > holdPct:
		decision = DecisionSell
		confidence = sellPct
	}

	consensusType := "WEAK_" + decision
	switch {
	case confidence > 0.70:
		consensusType = "STRONG_" + decision
	case confidence > 0.55:
		consensusType = decision
	}

	var parts []string
	if strategyVote.Decision != DecisionHold {
		parts = append(parts, fmt.Sprintf("Strategy: %s (%.0f%%)",
			strategyVote.Decision, strategyVote.Confidence*100))
	}
	if marketView.Sentiment != SentimentNeutral {
		parts = append(parts, fmt.Sprintf("Market: %s", marketView.Sentiment))
	}
	if riskReview.Approved {
		parts = append(parts, "Risk: Approved")
	} else {
		parts = append(parts, fmt.Sprintf("Risk: %s", riskReview.Reasoning))
	}

	return Consensus{
		Decision:      decision,
		Confidence:    confidence,
		ConsensusType: consensusType,
		Reasoning:     strings.Join(parts, " | "),
		BuyScore:      buyPct,
		SellScore:     sellPct,
		HoldScore:     holdPct,
		Strategy:      strategyVote,
		Market:        marketView,
		Risk:          riskReview,
	}
}

// RebalanceWeights 按各智能体近期胜率调整投票权重。
// 单个权重限制在 [0.05, 0.40]，调整后归一化保持总和为 1。
func (n *Network) RebalanceWeights(winRates map[string]float64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for agentID, winRate := range winRates {
		weight, ok := n.weights[agentID]
		if !ok {
			continue
		}

		if winRate > 0.65 {
			weight *= 1.05
		} else if winRate < 0.45 {
			weight *= 0.95
		}
		n.weights[agentID] = math.Max(0.05, math.Min(0.40, weight))
	}

	total := 0.0
	for _, weight := range n.weights {
		total += weight
	}
	if total > 0 {
		for agentID := range n.weights {
			n.weights[agentID] /= total
		}
	}

	n.logger.Info("智能体权重已再平衡", zap.Any("weights", n.snapshotWeightsLocked()))
}

// Weights 返回当前权重快照。
func (n *Network) Weights() map[string]float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.snapshotWeightsLocked()
}

// DecisionCount 返回累计共识次数。
func (n *Network) DecisionCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.decisions
}

func (n *Network) snapshotWeightsLocked() map[string]float64 {
	snapshot := make(map[string]float64, len(n.weights))
	for id, weight := range n.weights {
		snapshot[id] = weight
	}
	return snapshot
}

func (n *Network) recordDecision() {
	n.mu.Lock()
	n.decisions++
	n.mu.Unlock()
}
