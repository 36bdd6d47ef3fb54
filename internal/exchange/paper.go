package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"volt-trader/internal/config"
)

// PaperStats 汇总模拟盘运行统计。
type PaperStats struct {
	TotalOrders  int
	FailedOrders int
	RealizedPnl  float64
	Wins         int
	Losses       int
}

// PaperExchange 模拟盘实现：行情来自真实数据源，成交在本地撮合。
// 买入按成交量加权摊薄持仓成本，卖出按入场价结算已实现盈亏。
type PaperExchange struct {
	data   Exchange
	quote  string
	logger *zap.Logger

	mu           sync.Mutex
	balances     map[string]float64
	positions    map[string]Position
	orderCounter int
	stats        PaperStats
}

var _ Exchange = (*PaperExchange)(nil)

// NewPaperExchange 创建模拟盘，行情委托给 data 数据源。
func NewPaperExchange(cfg config.ExchangeConfig, data Exchange, logger *zap.Logger) *PaperExchange {
	if logger == nil {
		logger = zap.NewNop()
	}

	quote := cfg.QuoteCurrency
	if quote == "" {
		quote = "USDT"
	}

	capital := cfg.InitialCapital
	if capital <= 0 {
		capital = 10000
	}

	return &PaperExchange{
		data:      data,
		quote:     quote,
		logger:    logger,
		balances:  map[string]float64{quote: capital},
		positions: make(map[string]Position),
	}
}

// Initialize 初始化底层行情数据源。
func (p *PaperExchange) Initialize(ctx context.Context) error {
	if err := p.data.Initialize(ctx); err != nil {
		return fmt.Errorf("初始化模拟盘数据源失败: %w", err)
	}

	p.mu.Lock()
	balance := p.balances[p.quote]
	p.mu.Unlock()

	p.logger.Info("模拟盘已就绪",
		zap.String("quote", p.quote),
		zap.Float64("starting_balance", balance),
	)
	return nil
}

// FetchOHLCV 透传真实K线数据。
func (p *PaperExchange) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	return p.data.FetchOHLCV(ctx, symbol, timeframe, limit)
}

// FetchTicker 透传真实行情。
func (p *PaperExchange) FetchTicker(ctx context.Context, symbol string) (Ticker, error) {
	return p.data.FetchTicker(ctx, symbol)
}

// CreateMarketBuyOrder 模拟市价买入。
func (p *PaperExchange) CreateMarketBuyOrder(ctx context.Context, symbol string, amount float64) (Order, error) {
	price, err := p.lastPrice(ctx, symbol)
	if err != nil {
		p.recordFailure()
		return Order{}, err
	}

	base, quote := SplitSymbol(symbol)
	cost := price * amount

	p.mu.Lock()
	defer p.mu.Unlock()

	available := p.balances[quote]
	if available < cost {
		p.stats.TotalOrders++
		p.stats.FailedOrders++
		return Order{}, fmt.Errorf("%w: 买入 %s 需要 %.2f %s，可用 %.2f",
			ErrInsufficientFunds, symbol, cost, quote, available)
	}

	p.balances[quote] = available - cost
	p.balances[base] += amount

	pos, ok := p.positions[symbol]
	if !ok {
		pos = Position{Symbol: symbol, Side: "long"}
	}
	// 加仓按成交量加权摊薄入场价。
	totalQty := pos.Quantity + amount
	pos.EntryPrice = (pos.EntryPrice*pos.Quantity + price*amount) / totalQty
	pos.Quantity = totalQty
	p.positions[symbol] = pos

	p.stats.TotalOrders++
	p.orderCounter++
	order := Order{
		ID:        fmt.Sprintf("paper_buy_%d", p.orderCounter),
		Symbol:    symbol,
		Side:      "buy",
		Amount:    amount,
		Price:     price,
		Cost:      cost,
		Filled:    amount,
		Status:    "closed",
		Timestamp: time.Now().UTC(),
	}

	p.logger.Info("模拟买入成交",
		zap.String("symbol", symbol),
		zap.Float64("amount", amount),
		zap.Float64("price", price),
		zap.Float64("cost", cost),
		zap.Float64("quote_remaining", p.balances[quote]),
	)

	return order, nil
}

// CreateMarketSellOrder 模拟市价卖出并结算已实现盈亏。
func (p *PaperExchange) CreateMarketSellOrder(ctx context.Context, symbol string, amount float64) (Order, error) {
	price, err := p.lastPrice(ctx, symbol)
	if err != nil {
		p.recordFailure()
		return Order{}, err
	}

	base, quote := SplitSymbol(symbol)
	proceeds := price * amount

	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[symbol]
	if !ok || pos.Quantity < amount {
		p.stats.TotalOrders++
		p.stats.FailedOrders++
		return Order{}, fmt.Errorf("%w: 卖出 %s 数量 %.6f，持有 %.6f",
			ErrInsufficientFunds, symbol, amount, pos.Quantity)
	}

	p.balances[base] -= amount
	p.balances[quote] += proceeds

	realized := (price - pos.EntryPrice) * amount
	p.stats.RealizedPnl += realized
	if realized > 0 {
		p.stats.Wins++
	} else if realized < 0 {
		p.stats.Losses++
	}

	pos.Quantity -= amount
	if pos.Quantity <= 1e-12 {
		delete(p.positions, symbol)
	} else {
		p.positions[symbol] = pos
	}

	p.stats.TotalOrders++
	p.orderCounter++
	order := Order{
		ID:        fmt.Sprintf("paper_sell_%d", p.orderCounter),
		Symbol:    symbol,
		Side:      "sell",
		Amount:    amount,
		Price:     price,
		Cost:      proceeds,
		Filled:    amount,
		Status:    "closed",
		Timestamp: time.Now().UTC(),
	}

	p.logger.Info("模拟卖出成交",
		zap.String("symbol", symbol),
		zap.Float64("amount", amount),
		zap.Float64("price", price),
		zap.Float64("realized_pnl", realized),
		zap.Float64("quote_total", p.balances[quote]),
	)

	return order, nil
}

// FetchPositions 返回当前模拟持仓快照，未实现盈亏按最新行情估值。
func (p *PaperExchange) FetchPositions(ctx context.Context) (map[string]Position, error) {
	p.mu.Lock()
	snapshot := make(map[string]Position, len(p.positions))
	for symbol, pos := range p.positions {
		snapshot[symbol] = pos
	}
	p.mu.Unlock()

	for symbol, pos := range snapshot {
		ticker, err := p.data.FetchTicker(ctx, symbol)
		if err != nil || ticker.Last <= 0 {
			continue
		}
		pos.UnrealizedPnl = (ticker.Last - pos.EntryPrice) * pos.Quantity
		snapshot[symbol] = pos
	}

	return snapshot, nil
}

// FetchBalance 返回模拟账户余额快照。
func (p *PaperExchange) FetchBalance(ctx context.Context) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	balance := make(map[string]float64, len(p.balances))
	for currency, amount := range p.balances {
		if amount > 0 {
			balance[currency] = amount
		}
	}
	return balance, nil
}

// Close 关闭底层数据源连接。
func (p *PaperExchange) Close() error {
	p.mu.Lock()
	stats := p.stats
	p.mu.Unlock()

	p.logger.Info("模拟盘已关闭",
		zap.Int("total_orders", stats.TotalOrders),
		zap.Int("failed_orders", stats.FailedOrders),
		zap.Float64("realized_pnl", stats.RealizedPnl),
		zap.Int("wins", stats.Wins),
		zap.Int("losses", stats.Losses),
	)
	return p.data.Close()
}

// Stats 返回模拟盘统计信息。
func (p *PaperExchange) Stats() PaperStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *PaperExchange) lastPrice(ctx context.Context, symbol string) (float64, error) {
	ticker, err := p.data.FetchTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	price := ticker.Last
	if price <= 0 {
		price = ticker.Bid
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
	}
	return price, nil
}

func (p *PaperExchange) recordFailure() {
	p.mu.Lock()
	p.stats.TotalOrders++
	p.stats.FailedOrders++
	p.mu.Unlock()
}
