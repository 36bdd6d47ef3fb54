package exchange

import (
	"context"
	"strings"
	"time"
)

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Ticker 为最新行情摘要。
type Ticker struct {
	Symbol     string
	Last       float64
	Bid        float64
	Ask        float64
	Volume     float64
	Percentage float64
}

// Order 为一次委托的成交回执。
type Order struct {
	ID        string
	Symbol    string
	Side      string
	Amount    float64
	Price     float64
	Cost      float64
	Filled    float64
	Status    string
	Timestamp time.Time
}

// Position 表示单个交易对的持仓。数量带符号，现货场景始终为正。
type Position struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	EntryPrice    float64 `json:"entry_price"`
	Side          string  `json:"side"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
}

// Exchange 抽象交易所能力，具体实现由工厂按配置选择。
type Exchange interface {
	Initialize(ctx context.Context) error
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)
	CreateMarketBuyOrder(ctx context.Context, symbol string, amount float64) (Order, error)
	CreateMarketSellOrder(ctx context.Context, symbol string, amount float64) (Order, error)
	FetchPositions(ctx context.Context) (map[string]Position, error)
	FetchBalance(ctx context.Context) (map[string]float64, error)
	Close() error
}

// SplitSymbol 拆分交易对，如 BTC/USDT → (BTC, USDT)。
func SplitSymbol(symbol string) (base, quote string) {
	parts := strings.SplitN(symbol, "/", 2)
	if len(parts) != 2 {
		return symbol, ""
	}
	return parts[0], parts[1]
}
