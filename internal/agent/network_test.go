package agent

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"volt-trader/internal/exchange"
	"volt-trader/internal/indicator"
	"volt-trader/internal/signal"
	"volt-trader/internal/volatility"
)

func makeMarketContext() MarketContext {
	return MarketContext{
		Symbol: "BTC/USDT",
		Price:  50000,
		Snapshot: indicator.Snapshot{
			Symbol:    "BTC/USDT",
			RSI:       32,
			MACD:      indicator.MACDResult{Value: 1.2, Signal: 0.8},
			Bollinger: indicator.BollingerResult{Upper: 52000, Middle: 50500, Lower: 49000},
			SMA50:     49500,
			Volume:    indicator.VolumeResult{Ratio: 1.4},
			Close:     50000,
		},
		VIX: volatility.VIXData{CurrentVIX: 18, Regime: volatility.RegimeNormal},
		Proposal: &signal.Signal{
			Symbol:       "BTC/USDT",
			Action:       signal.ActionBuy,
			PositionSize: 0.08,
			Confidence:   0.75,
		},
	}
}

func makePortfolioContext() PortfolioContext {
	return PortfolioContext{
		Positions: map[string]exchange.Position{
			"ETH/USDT": {Symbol: "ETH/USDT", Quantity: 1.5, EntryPrice: 3000},
		},
		TotalValue:       15000,
		AvailableCapital: 10000,
		Exposure:         0.33,
		MaxPositionSize:  0.10,
	}
}

func TestEvaluate_RiskVetoShortCircuits(t *testing.T) {
	stub := &StubThinker{
		Response: `{"decision": "BUY", "confidence": 0.8, "approved": false, "reasoning": "exposure too high"}`,
	}
	network := NewNetwork(stub, nil)

	consensus := network.Evaluate(context.Background(), makeMarketContext(), makePortfolioContext())

	if consensus.Decision != DecisionHold {
		t.Fatalf("expected HOLD after veto, got %s", consensus.Decision)
	}
	if consensus.ConsensusType != ConsensusRejectedByRisk {
		t.Fatalf("expected %s, got %s", ConsensusRejectedByRisk, consensus.ConsensusType)
	}
	if consensus.Confidence != 0 {
		t.Errorf("expected zero confidence after veto, got %f", consensus.Confidence)
	}
	if !strings.HasPrefix(consensus.Reasoning, "Risk rejected:") {
		t.Errorf("unexpected reasoning: %s", consensus.Reasoning)
	}
	if consensus.Execution != nil {
		t.Errorf("expected no execution plan after veto")
	}
	if network.DecisionCount() != 1 {
		t.Errorf("expected decision count 1, got %d", network.DecisionCount())
	}
}

func TestEvaluate_AlignedVotesProduceStrongConsensus(t *testing.T) {
	stub := &StubThinker{
		Response: `{"decision": "BUY", "confidence": 0.9, "approved": true, "sentiment": "bullish", "reasoning": "strong momentum"}`,
	}
	network := NewNetwork(stub, nil)

	consensus := network.Evaluate(context.Background(), makeMarketContext(), makePortfolioContext())

	if consensus.Decision != DecisionBuy {
		t.Fatalf("expected BUY consensus, got %s", consensus.Decision)
	}
	// 全部票仓都押在买入方向，归一化后买入占比为1。
	if consensus.ConsensusType != "STRONG_BUY" {
		t.Errorf("expected STRONG_BUY, got %s", consensus.ConsensusType)
	}
	if diff := math.Abs(consensus.Confidence - 1.0); diff > 1e-9 {
		t.Errorf("expected confidence 1.0, got %f", consensus.Confidence)
	}
	if consensus.Execution == nil {
		t.Fatalf("expected execution plan on approved consensus")
	}
	if consensus.Execution.PositionSize != 0.08 {
		t.Errorf("expected proposal size 0.08, got %f", consensus.Execution.PositionSize)
	}
	if consensus.Audit == nil {
		t.Fatalf("expected audit report on approved consensus")
	}
	if consensus.Audit.ConflictDetected {
		t.Errorf("aligned votes should not raise a conflict")
	}
}

func TestEvaluate_ThinkerFailureDefaultsToRejection(t *testing.T) {
	stub := &StubThinker{Err: errors.New("upstream timeout")}
	network := NewNetwork(stub, nil)

	consensus := network.Evaluate(context.Background(), makeMarketContext(), makePortfolioContext())

	// 推理不可用时风控兜底否决，绝不凭空下单。
	if consensus.ConsensusType != ConsensusRejectedByRisk {
		t.Fatalf("expected rejection on thinker failure, got %s", consensus.ConsensusType)
	}
	if consensus.Decision != DecisionHold {
		t.Errorf("expected HOLD, got %s", consensus.Decision)
	}
}

func TestRebalanceWeights_AdjustsAndNormalizes(t *testing.T) {
	network := NewNetwork(&StubThinker{Response: "hold"}, nil)

	network.RebalanceWeights(map[string]float64{
		AgentStrategy: 0.80,
		AgentMarket:   0.30,
		"unknown":     0.99,
	})

	weights := network.Weights()

	total := 0.0
	for _, w := range weights {
		total += w
	}
	if diff := math.Abs(total - 1.0); diff > 1e-9 {
		t.Fatalf("expected weights to sum to 1, got %f", total)
	}

	if weights[AgentStrategy] <= 0.25 {
		t.Errorf("expected strategy weight to grow above 0.25, got %f", weights[AgentStrategy])
	}
	if weights[AgentMarket] >= 0.20 {
		t.Errorf("expected market weight to shrink below 0.20, got %f", weights[AgentMarket])
	}
	for id, w := range weights {
		if w < 0.05 || w > 0.40 {
			t.Errorf("weight %s=%f escaped [0.05, 0.40]", id, w)
		}
	}
}

func TestExecutionAgent_HighVolatilityPrefersLimitOrders(t *testing.T) {
	agent := &ExecutionAgent{}

	calm := makeMarketContext()
	plan := agent.Plan(calm, 0.05)
	if plan.Style != "MARKET" || plan.Urgency != "NORMAL" {
		t.Errorf("expected MARKET/NORMAL in calm regime, got %s/%s", plan.Style, plan.Urgency)
	}

	panicMarket := makeMarketContext()
	panicMarket.VIX.CurrentVIX = 35
	plan = agent.Plan(panicMarket, 0.05)
	if plan.Style != "LIMIT" || plan.Urgency != "LOW" {
		t.Errorf("expected LIMIT/LOW in panic regime, got %s/%s", plan.Style, plan.Urgency)
	}
}

func TestAuditorAgent_DetectsConflictingVotes(t *testing.T) {
	agent := &AuditorAgent{}

	report := agent.Audit(
		Vote{Decision: DecisionBuy},
		SentimentView{Sentiment: SentimentBearish},
	)
	if !report.ConflictDetected {
		t.Fatalf("expected conflict between BUY vote and BEARISH sentiment")
	}

	report = agent.Audit(
		Vote{Decision: DecisionBuy},
		SentimentView{Sentiment: SentimentBullish},
	)
	if report.ConflictDetected {
		t.Errorf("aligned votes should not be flagged")
	}
}
