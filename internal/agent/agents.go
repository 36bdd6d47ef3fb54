package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// 智能体标识。
const (
	AgentStrategy  = "strategy_agent"
	AgentRisk      = "risk_agent"
	AgentMarket    = "market_agent"
	AgentExecution = "execution_agent"
	AgentAuditor   = "auditor_agent"
)

// StrategyAgent 负责产出 BUY/SELL/HOLD 提案。
type StrategyAgent struct {
	thinker Thinker
	logger  *zap.Logger
}

// Analyze 分析市场数据并给出交易提案。推理失败时退回观望。
func (a *StrategyAgent) Analyze(ctx context.Context, market MarketContext) Vote {
	prompt, err := renderTemplate(strategyPromptTmpl, buildTechnicalContext(market))
	if err != nil {
		return a.fallback(market.Symbol, err)
	}

	response, err := a.thinker.Think(ctx, prompt, strategySystemPrompt)
	if err != nil {
		return a.fallback(market.Symbol, err)
	}

	vote := ParseVote(response)
	vote.AgentID = AgentStrategy
	vote.Symbol = market.Symbol
	return vote
}

func (a *StrategyAgent) fallback(symbol string, err error) Vote {
	a.logger.Warn("策略智能体推理失败，退回观望",
		zap.String("symbol", symbol),
		zap.Error(err),
	)
	return Vote{
		AgentID:    AgentStrategy,
		Symbol:     symbol,
		Decision:   DecisionHold,
		Confidence: 0,
		Reasoning:  fmt.Sprintf("Strategy analysis unavailable: %v", err),
	}
}

// RiskAgent 审查策略提案，拥有一票否决权。
type RiskAgent struct {
	thinker Thinker
	logger  *zap.Logger
}

// Review 审查提案。推理失败视为否决，宁可错过不可冒进。
func (a *RiskAgent) Review(ctx context.Context, proposal Vote, portfolio PortfolioContext) RiskReview {
	active := 0
	for _, pos := range portfolio.Positions {
		if pos.Quantity != 0 {
			active++
		}
	}

	prompt, err := renderTemplate(riskPromptTmpl, riskPromptContext{
		Proposal:         proposal,
		ConfidencePct:    proposal.Confidence * 100,
		Positions:        active,
		TotalValue:       portfolio.TotalValue,
		AvailableCapital: portfolio.AvailableCapital,
		MaxPositionPct:   portfolio.MaxPositionSize * 100,
		ExposurePct:      portfolio.Exposure * 100,
	})
	if err != nil {
		return a.fallback(err)
	}

	response, err := a.thinker.Think(ctx, prompt, riskSystemPrompt)
	if err != nil {
		return a.fallback(err)
	}

	review := ParseRiskReview(response)
	review.AgentID = AgentRisk
	return review
}

func (a *RiskAgent) fallback(err error) RiskReview {
	a.logger.Warn("风控智能体推理失败，按否决处理", zap.Error(err))
	return RiskReview{
		AgentID:   AgentRisk,
		Approved:  false,
		Concerns:  []string{fmt.Sprintf("risk review unavailable: %v", err)},
		Reasoning: "Risk review failed, rejecting by default",
	}
}

// MarketAgent 给出整体市场情绪判断。
type MarketAgent struct {
	thinker Thinker
	logger  *zap.Logger
}

// Assess 判断市场情绪。推理失败时返回中性。
func (a *MarketAgent) Assess(ctx context.Context, market MarketContext) SentimentView {
	prompt, err := renderTemplate(marketPromptTmpl, buildTechnicalContext(market))
	if err != nil {
		return a.fallback(err)
	}

	response, err := a.thinker.Think(ctx, prompt, marketSystemPrompt)
	if err != nil {
		return a.fallback(err)
	}

	view := ParseSentiment(response)
	view.AgentID = AgentMarket
	return view
}

func (a *MarketAgent) fallback(err error) SentimentView {
	a.logger.Warn("市场智能体推理失败，按中性处理", zap.Error(err))
	return SentimentView{
		AgentID:    AgentMarket,
		Sentiment:  SentimentNeutral,
		Confidence: 0.50,
		Reasoning:  "Market analysis inconclusive",
	}
}

// ExecutionAgent 给出执行方式建议。规则固定，不依赖模型。
type ExecutionAgent struct{}

// Plan 返回执行建议。高波动行情建议限价单降低滑点。
func (a *ExecutionAgent) Plan(market MarketContext, recommendedSize float64) ExecutionPlan {
	style := "MARKET"
	urgency := "NORMAL"
	reasoning := "Standard execution recommended"

	if market.VIX.CurrentVIX >= 30 {
		style = "LIMIT"
		urgency = "LOW"
		reasoning = "High volatility, prefer limit orders to reduce slippage"
	}

	return ExecutionPlan{
		AgentID:      AgentExecution,
		Style:        style,
		Urgency:      urgency,
		PositionSize: recommendedSize,
		Reasoning:    reasoning,
	}
}

// AuditorAgent 巡查各智能体结论的一致性，仅作记录。
type AuditorAgent struct{}

// Audit 检查是否存在同时看多与看空的冲突投票。
func (a *AuditorAgent) Audit(strategy Vote, market SentimentView) AuditReport {
	buyVotes := 0
	sellVotes := 0

	switch strategy.Decision {
	case DecisionBuy:
		buyVotes++
	case DecisionSell:
		sellVotes++
	}
	switch market.Sentiment {
	case SentimentBullish:
		buyVotes++
	case SentimentBearish:
		sellVotes++
	}

	if buyVotes > 0 && sellVotes > 0 {
		return AuditReport{
			AgentID:          AgentAuditor,
			ConflictDetected: true,
			Reasoning:        fmt.Sprintf("Conflict detected: %d BUY vs %d SELL votes", buyVotes, sellVotes),
		}
	}
	return AuditReport{
		AgentID:   AgentAuditor,
		Reasoning: "No conflicts detected",
	}
}
