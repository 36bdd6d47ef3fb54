package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"volt-trader/internal/config"
)

// BinanceExchange 基于 ccxt 的币安现货实现，内置重试与错误分类。
type BinanceExchange struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Binance

	marketsMu     sync.Mutex
	marketsLoaded bool
}

var _ Exchange = (*BinanceExchange)(nil)

// NewBinanceExchange 构造币安现货客户端。
func NewBinanceExchange(cfg config.ExchangeConfig, logger *zap.Logger) *BinanceExchange {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "spot",
		},
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewBinance(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &BinanceExchange{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
	}
}

// Initialize 加载市场元数据。
func (c *BinanceExchange) Initialize(ctx context.Context) error {
	return c.ensureMarketsLoaded(ctx)
}

// FetchOHLCV 获取指定周期的K线数据。
func (c *BinanceExchange) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 1
	}

	var raw []ccxt.OHLCV
	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", timeframe), func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		result, err := c.exchange.FetchOHLCV(
			symbol,
			ccxt.WithFetchOHLCVTimeframe(timeframe),
			ccxt.WithFetchOHLCVLimit(int64(limit)),
		)
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, Candle{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}

	return candles, nil
}

// FetchTicker 获取最新行情。
func (c *BinanceExchange) FetchTicker(ctx context.Context, symbol string) (Ticker, error) {
	var raw ccxt.Ticker
	err := c.callWithRetry(ctx, "fetch_ticker", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		ticker, err := c.exchange.FetchTicker(symbol)
		if err != nil {
			return err
		}

		raw = ticker
		return nil
	})
	if err != nil {
		return Ticker{}, err
	}

	return Ticker{
		Symbol:     symbol,
		Last:       derefFloat(raw.Last),
		Bid:        derefFloat(raw.Bid),
		Ask:        derefFloat(raw.Ask),
		Volume:     derefFloat(raw.BaseVolume),
		Percentage: derefFloat(raw.Percentage),
	}, nil
}

// CreateMarketBuyOrder 提交市价买单。
func (c *BinanceExchange) CreateMarketBuyOrder(ctx context.Context, symbol string, amount float64) (Order, error) {
	return c.createMarketOrder(ctx, symbol, "buy", amount)
}

// CreateMarketSellOrder 提交市价卖单。
func (c *BinanceExchange) CreateMarketSellOrder(ctx context.Context, symbol string, amount float64) (Order, error) {
	return c.createMarketOrder(ctx, symbol, "sell", amount)
}

func (c *BinanceExchange) createMarketOrder(ctx context.Context, symbol, side string, amount float64) (Order, error) {
	if amount <= 0 {
		return Order{}, fmt.Errorf("下单数量无效: %f", amount)
	}

	// 下单不做自动重试：交易所侧没有幂等保证，重复提交可能造成双重成交。
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return Order{}, err
	}
	raw, err := c.exchange.CreateMarketOrder(symbol, side, amount)
	if err != nil {
		normalized, _ := c.classifyError(err)
		c.logger.Error("提交市价单失败",
			zap.String("symbol", symbol),
			zap.String("side", side),
			zap.Float64("amount", amount),
			zap.Error(normalized),
		)
		return Order{}, normalized
	}

	order := Order{
		ID:     derefString(raw.Id),
		Symbol: symbol,
		Side:   side,
		Amount: derefFloat(raw.Amount),
		Price:  derefFloat(raw.Price),
		Cost:   derefFloat(raw.Cost),
		Filled: derefFloat(raw.Filled),
		Status: derefString(raw.Status),
	}
	if raw.Timestamp != nil {
		order.Timestamp = time.UnixMilli(int64(*raw.Timestamp)).UTC()
	} else {
		order.Timestamp = time.Now().UTC()
	}
	if order.Filled == 0 && strings.EqualFold(order.Status, "closed") {
		order.Filled = order.Amount
	}

	return order, nil
}

// FetchPositions 将现货余额折算为持仓视图。现货没有原生仓位概念，
// 这里把非计价货币的非零余额映射为多头持仓。
func (c *BinanceExchange) FetchPositions(ctx context.Context) (map[string]Position, error) {
	balance, err := c.FetchBalance(ctx)
	if err != nil {
		return nil, err
	}

	quote := c.cfg.QuoteCurrency
	if quote == "" {
		quote = "USDT"
	}

	positions := make(map[string]Position)
	for currency, total := range balance {
		if total <= 0 || strings.EqualFold(currency, quote) {
			continue
		}

		symbol := fmt.Sprintf("%s/%s", currency, quote)
		ticker, err := c.FetchTicker(ctx, symbol)
		if err != nil {
			c.logger.Warn("折算持仓时获取行情失败，跳过该币种",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			continue
		}

		positions[symbol] = Position{
			Symbol:     symbol,
			Quantity:   total,
			EntryPrice: ticker.Last,
			Side:       "long",
		}
	}

	return positions, nil
}

// FetchBalance 获取账户余额。
func (c *BinanceExchange) FetchBalance(ctx context.Context) (map[string]float64, error) {
	var raw ccxt.Balances
	err := c.callWithRetry(ctx, "fetch_balance", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		balances, err := c.exchange.FetchBalance()
		if err != nil {
			return err
		}

		raw = balances
		return nil
	})
	if err != nil {
		return nil, err
	}

	balance := make(map[string]float64)
	for currency, total := range raw.Total {
		if total == nil || *total <= 0 {
			continue
		}
		balance[currency] = *total
	}

	return balance, nil
}

// Close 释放交易所连接。ccxt Go 客户端无需显式断开，仅重置市场缓存。
func (c *BinanceExchange) Close() error {
	c.marketsMu.Lock()
	c.marketsLoaded = false
	c.marketsMu.Unlock()
	return nil
}

func (c *BinanceExchange) ensureMarketsLoaded(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		_, err := c.exchange.LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.Strings("markets", c.cfg.Markets))
	return nil
}

func (c *BinanceExchange) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := c.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= c.cfg.Retry.MaxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *BinanceExchange) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return err, true
		case ccxt.InsufficientFundsErrType:
			return fmt.Errorf("%w: %s", ErrInsufficientFunds, ccxtErr.Message), false
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		default:
			return err, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
