package agent

import (
	"bytes"
	"fmt"
	"text/template"

	talib "github.com/markcheno/go-talib"

	"volt-trader/internal/indicator"
)

// technicalContext 为渲染提示词准备的指标摘要。
type technicalContext struct {
	Symbol      string
	Price       float64
	RSI         float64
	MACD        float64
	MACDSignal  float64
	BBPosition  string
	VolumeRatio float64
	ADX         float64
	Trend       string
	RealizedVol float64
	VIX         float64
	Regime      string
}

// buildTechnicalContext 从指标快照提炼提示词素材。
// 趋势强度与趋势方向依赖完整K线序列，数据不足时给中性值。
func buildTechnicalContext(market MarketContext) technicalContext {
	snapshot := market.Snapshot
	series := snapshot.Series

	tc := technicalContext{
		Symbol:      market.Symbol,
		Price:       market.Price,
		RSI:         snapshot.RSI,
		MACD:        snapshot.MACD.Value,
		MACDSignal:  snapshot.MACD.Signal,
		BBPosition:  bbPosition(snapshot),
		VolumeRatio: snapshot.Volume.Ratio,
		Trend:       "NEUTRAL",
		VIX:         market.VIX.CurrentVIX,
		Regime:      string(market.VIX.Regime),
	}

	if series.Len() >= indicator.MinCandles {
		adx := talib.Adx(series.High, series.Low, series.Close, 14)
		tc.ADX = indicator.Last(adx)

		trendEMA := talib.Ema(series.Close, 50)
		switch {
		case snapshot.Close > indicator.Last(trendEMA):
			tc.Trend = "UP"
		case snapshot.Close < indicator.Last(trendEMA):
			tc.Trend = "DOWN"
		}

		changes := indicator.PctChanges(series.Close)
		if len(changes) >= 20 {
			vol := talib.StdDev(changes, 20, 1.0)
			tc.RealizedVol = indicator.Last(vol)
		}
	}

	return tc
}

func bbPosition(s indicator.Snapshot) string {
	switch {
	case s.Close < s.Bollinger.Lower:
		return "below_lower"
	case s.Close < s.Bollinger.Middle:
		return "lower_half"
	case s.Close > s.Bollinger.Upper:
		return "above_upper"
	default:
		return "upper_half"
	}
}

const strategySystemPrompt = `You are an expert crypto trading strategist.
Analyze technical indicators and provide a clear BUY/SELL/HOLD decision.
Be concise and focus on actionable insights.
Format your response as JSON with keys: decision, confidence, reasoning.`

const riskSystemPrompt = `You are a risk management expert for trading.
Your goal is to APPROVE trades that have reasonable risk, not to reject them.
Only reject if there are CLEAR, SIGNIFICANT risks.
A trade with 30%+ confidence should typically be APPROVED.
Respond in JSON with: approved (bool), concerns (list), reasoning.`

const marketSystemPrompt = `You are a market analyst. Provide clear market sentiment analysis.`

var strategyPromptTmpl = template.Must(template.New("strategy").Parse(`
Analyze this trading opportunity:

Symbol: {{ .Symbol }}
Price: ${{ printf "%.2f" .Price }}

Technical Indicators:
- RSI: {{ printf "%.1f" .RSI }}
- MACD: {{ printf "%.4f" .MACD }}
- MACD Signal: {{ printf "%.4f" .MACDSignal }}
- Bollinger Position: {{ .BBPosition }}
- Volume Ratio: {{ printf "%.2f" .VolumeRatio }}
- ADX: {{ printf "%.1f" .ADX }}
- Trend: {{ .Trend }}
- Realized Volatility (20): {{ printf "%.4f" .RealizedVol }}

Volatility Context:
- VIX Level: {{ printf "%.1f" .VIX }}
- Market Regime: {{ .Regime }}

Should we BUY, SELL, or HOLD?
Respond in JSON format with: decision, confidence (0-1), reasoning.
`))

type riskPromptContext struct {
	Proposal         Vote
	ConfidencePct    float64
	Positions        int
	TotalValue       float64
	AvailableCapital float64
	MaxPositionPct   float64
	ExposurePct      float64
}

var riskPromptTmpl = template.Must(template.New("risk").Parse(`
Review this trade proposal:

Proposed Action: {{ .Proposal.Decision }}
Symbol: {{ .Proposal.Symbol }}
Confidence: {{ printf "%.0f" .ConfidencePct }}%
Reasoning: {{ .Proposal.Reasoning }}

Current Portfolio:
- Total Positions: {{ .Positions }}
- Total Value: ${{ printf "%.2f" .TotalValue }}
- Available Capital: ${{ printf "%.2f" .AvailableCapital }}

Risk Metrics:
- Max Position Size: {{ printf "%.0f" .MaxPositionPct }}%
- Current Exposure: {{ printf "%.0f" .ExposurePct }}%

Is this trade safe to execute?
Respond in JSON: approved, concerns, reasoning.
`))

var marketPromptTmpl = template.Must(template.New("market").Parse(`
Analyze current market conditions:

VIX Level: {{ printf "%.1f" .VIX }}
Market Regime: {{ .Regime }}
Overall Trend: {{ .Trend }}
Trend Strength (ADX): {{ printf "%.1f" .ADX }}
Volume Ratio: {{ printf "%.2f" .VolumeRatio }}

What is the overall market sentiment?
Respond JSON: sentiment (BULLISH/BEARISH/NEUTRAL), confidence, reasoning.
`))

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("渲染提示词失败: %w", err)
	}
	return buf.String(), nil
}
