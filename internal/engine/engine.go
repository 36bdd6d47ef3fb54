package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"volt-trader/internal/agent"
	"volt-trader/internal/config"
	"volt-trader/internal/exchange"
	"volt-trader/internal/indicator"
	"volt-trader/internal/monitor"
	"volt-trader/internal/risk"
	"volt-trader/internal/signal"
	"volt-trader/internal/volatility"
)

const (
	backoffBase = 5 * time.Second
	backoffCap  = 300 * time.Second
)

// ExchangeFactory 创建交易所实例，持续错误触发重连时复用。
type ExchangeFactory func(config.ExchangeConfig, *zap.Logger) (exchange.Exchange, error)

// Dependencies 注入引擎协作组件。Network 与 Monitor 可为空。
type Dependencies struct {
	ExchangeFactory ExchangeFactory
	Calculator      *indicator.Calculator
	Generator       *signal.Generator
	Risk            *risk.Manager
	Network         *agent.Network
	Volatility      *volatility.Collector
	Monitor         *monitor.Service
}

// Engine 驱动完整的交易决策循环。
// 持仓状态只由主循环写入，其余组件拿到的都是快照。
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger

	newExchange ExchangeFactory
	exchange    exchange.Exchange
	calculator  *indicator.Calculator
	generator   *signal.Generator
	riskMgr     *risk.Manager
	network     *agent.Network
	collector   *volatility.Collector
	monitor     *monitor.Service

	stateMu sync.Mutex
	state   State

	positions         map[string]exchange.Position
	loopCount         int
	consecutiveErrors int
	lastHeartbeat     time.Time
	lastUpdate        time.Time
	vix               volatility.VIXData

	cancel context.CancelFunc
	done   chan struct{}
}

// New 创建交易引擎。
func New(cfg *config.Config, deps Dependencies, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine: 配置不能为空")
	}
	if deps.Calculator == nil || deps.Generator == nil || deps.Risk == nil || deps.Volatility == nil {
		return nil, errors.New("engine: 缺少必要依赖")
	}
	if deps.ExchangeFactory == nil {
		deps.ExchangeFactory = func(exCfg config.ExchangeConfig, l *zap.Logger) (exchange.Exchange, error) {
			return exchange.New(exCfg, l)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		cfg:         cfg,
		logger:      logger,
		newExchange: deps.ExchangeFactory,
		calculator:  deps.Calculator,
		generator:   deps.Generator,
		riskMgr:     deps.Risk,
		network:     deps.Network,
		collector:   deps.Volatility,
		monitor:     deps.Monitor,
		state:       StateInitializing,
		positions:   make(map[string]exchange.Position),
	}, nil
}

// Initialize 建立交易所连接并恢复持久化状态。
func (e *Engine) Initialize(ctx context.Context) error {
	e.setState(StateInitializing)

	ex, err := e.newExchange(e.cfg.Exchange, e.logger)
	if err != nil {
		return fmt.Errorf("创建交易所实例失败: %w", err)
	}
	if err := ex.Initialize(ctx); err != nil {
		return fmt.Errorf("初始化交易所失败: %w", err)
	}
	e.exchange = ex

	persisted := LoadState(e.cfg.Engine.StateFile, e.logger)
	e.positions = persisted.Positions
	e.loopCount = persisted.LoopCount
	if persisted.LastHeartbeat != nil {
		e.lastHeartbeat = *persisted.LastHeartbeat
	}
	if persisted.LastUpdate != nil {
		e.lastUpdate = *persisted.LastUpdate
	}

	e.vix = e.collector.FetchVIX(ctx)
	e.logger.Info("交易引擎初始化完成",
		zap.Strings("markets", e.cfg.Exchange.Markets),
		zap.Float64("vix", e.vix.CurrentVIX),
		zap.String("regime", string(e.vix.Regime)),
	)
	return nil
}

// Start 将主循环作为后台任务启动。
func (e *Engine) Start(ctx context.Context) error {
	if e.exchange == nil {
		return errors.New("engine: 尚未初始化")
	}
	if e.done != nil {
		return errors.New("engine: 主循环已在运行")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.setState(StateRunning)

	go e.run(loopCtx)
	e.logger.Info("交易主循环已启动")
	return nil
}

// Stop 取消主循环，等待退出后保存状态并释放交易所连接。
func (e *Engine) Stop(ctx context.Context) error {
	e.setState(StateStopping)

	if e.cancel != nil {
		e.cancel()
	}
	if e.done != nil {
		select {
		case <-e.done:
		case <-ctx.Done():
			e.logger.Warn("等待主循环退出超时")
		}
		e.done = nil
	}

	if err := e.saveState(); err != nil {
		e.logger.Error("停机保存状态失败", zap.Error(err))
	}

	if e.exchange != nil {
		if err := e.exchange.Close(); err != nil {
			e.logger.Error("关闭交易所连接失败", zap.Error(err))
		}
	}

	e.setState(StateStopped)
	e.logger.Info("交易引擎已停止")
	return nil
}

// CurrentState 返回当前状态机状态。
func (e *Engine) CurrentState() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.stateMu.Lock()
	e.state = s
	e.stateMu.Unlock()
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	for {
		if ctx.Err() != nil {
			return
		}

		err := e.iterate(ctx)
		if err == nil {
			e.consecutiveErrors = 0
			e.setState(StateRunning)
			if !e.sleep(ctx, e.loopInterval()) {
				return
			}
			continue
		}

		if ctx.Err() != nil {
			return
		}

		if !e.sleep(ctx, e.handleIterationError(ctx, err)) {
			return
		}
	}
}

// handleIterationError 累计连续错误并给出退避时长。
// 连续错误达到上限时重建交易所连接并清零计数。
func (e *Engine) handleIterationError(ctx context.Context, err error) time.Duration {
	e.consecutiveErrors++
	e.setState(StateErrorBackoff)
	e.logger.Error("交易循环执行失败",
		zap.Int("consecutive_errors", e.consecutiveErrors),
		zap.Int("max", e.cfg.Engine.MaxConsecutiveErrors),
		zap.Error(err),
	)
	if e.monitor != nil {
		e.monitor.RecordError(ctx, "交易循环执行失败", err, map[string]interface{}{
			"loop_count":         e.loopCount,
			"consecutive_errors": e.consecutiveErrors,
		})
	}

	if e.consecutiveErrors >= e.cfg.Engine.MaxConsecutiveErrors {
		e.logger.Error("连续错误达到上限，尝试重建交易所连接")
		e.reconnect(ctx)
		e.consecutiveErrors = 0
	}

	return backoffDelay(e.consecutiveErrors)
}

// iterate 执行一轮完整决策：行情 → 信号 → 共识 → 风控 → 执行 → 记账。
func (e *Engine) iterate(ctx context.Context) error {
	e.loopCount++
	e.lastHeartbeat = time.Now().UTC()
	e.logger.Info("交易循环开始", zap.Int("loop", e.loopCount))

	marketData, err := e.fetchMarketData(ctx)
	if err != nil {
		return err
	}

	regime := e.vix.Regime
	for _, symbol := range e.cfg.Exchange.Markets {
		candles, ok := marketData[symbol]
		if !ok {
			continue
		}

		snapshot, err := e.calculator.Compute(symbol, candles)
		if err != nil {
			if errors.Is(err, indicator.ErrInsufficientData) {
				e.logger.Warn("K线数量不足，跳过该交易对", zap.String("symbol", symbol))
			} else {
				e.logger.Error("指标计算失败", zap.String("symbol", symbol), zap.Error(err))
			}
			continue
		}

		sig := e.generator.Generate(snapshot, regime)
		if sig == nil {
			continue
		}
		if e.monitor != nil {
			e.monitor.RecordSignal(ctx, *sig)
		}

		if e.network != nil && !e.consensusApproves(ctx, sig, snapshot) {
			continue
		}

		assessment := e.riskMgr.Assess(sig, e.positionsSnapshot())
		if e.monitor != nil {
			e.monitor.RecordRisk(ctx, *sig, assessment)
		}
		if !assessment.Approved {
			e.logger.Info("信号被风控拒绝",
				zap.String("symbol", sig.Symbol),
				zap.String("action", sig.Action),
				zap.String("reason", assessment.Reason),
			)
			continue
		}

		e.executeSignal(ctx, sig, assessment)
	}

	e.refreshPositions(ctx)
	e.reportPerformance(ctx)

	if e.loopCount%e.cfg.Engine.VolatilityLoops == 0 {
		e.vix = e.collector.FetchVIX(ctx)
	}
	if e.loopCount%e.cfg.Engine.StateSaveLoops == 0 {
		if err := e.saveState(); err != nil {
			e.logger.Error("保存引擎状态失败", zap.Error(err))
		}
	}
	if e.loopCount%e.cfg.Engine.HeartbeatLoops == 0 {
		e.logger.Info("心跳",
			zap.Int("loop", e.loopCount),
			zap.Int("positions", len(e.positions)),
			zap.Int("consecutive_errors", e.consecutiveErrors),
		)
	}

	return nil
}

// fetchMarketData 并发拉取所有交易对的K线。
// 单个交易对失败只跳过，全部失败才算本轮失败。
func (e *Engine) fetchMarketData(ctx context.Context) (map[string][]exchange.Candle, error) {
	var mu sync.Mutex
	marketData := make(map[string][]exchange.Candle, len(e.cfg.Exchange.Markets))
	var lastErr error

	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range e.cfg.Exchange.Markets {
		symbol := symbol
		g.Go(func() error {
			candles, err := e.exchange.FetchOHLCV(gctx, symbol, e.cfg.Exchange.Timeframe, e.cfg.Exchange.CandleLimit)
			if err != nil {
				e.logger.Warn("获取K线失败，跳过该交易对",
					zap.String("symbol", symbol),
					zap.Error(err),
				)
				mu.Lock()
				lastErr = err
				mu.Unlock()
				return nil
			}

			mu.Lock()
			marketData[symbol] = candles
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(marketData) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("所有交易对行情获取失败: %w", lastErr)
		}
		return nil, errors.New("所有交易对行情获取失败")
	}
	return marketData, nil
}

// consensusApproves 将信号交给多智能体复核，结论与信号方向一致才放行。
func (e *Engine) consensusApproves(ctx context.Context, sig *signal.Signal, snapshot indicator.Snapshot) bool {
	consensus := e.network.Evaluate(ctx,
		agent.MarketContext{
			Symbol:   sig.Symbol,
			Price:    sig.EntryPrice,
			Snapshot: snapshot,
			VIX:      e.vix,
			Proposal: sig,
		},
		e.portfolioContext(ctx),
	)
	if e.monitor != nil {
		e.monitor.RecordConsensus(ctx, sig.Symbol, consensus)
	}

	want := agent.DecisionBuy
	if sig.Action == signal.ActionSell {
		want = agent.DecisionSell
	}
	if consensus.Decision != want {
		e.logger.Info("多智能体共识未支持信号",
			zap.String("symbol", sig.Symbol),
			zap.String("action", sig.Action),
			zap.String("consensus", consensus.Decision),
			zap.String("consensus_type", consensus.ConsensusType),
		)
		return false
	}
	return true
}

// executeSignal 将批准的仓位比例换算为下单数量并提交订单。
// 无论成败都会从交易所重新同步持仓，避免部分成交造成漂移。
func (e *Engine) executeSignal(ctx context.Context, sig *signal.Signal, assessment risk.Assessment) {
	fraction := assessment.PositionSize

	price := sig.EntryPrice
	if price <= 0 {
		ticker, err := e.exchange.FetchTicker(ctx, sig.Symbol)
		if err == nil {
			price = ticker.Last
			if price <= 0 {
				price = ticker.Bid
			}
		}
	}
	if price <= 0 {
		e.logger.Error("无法获取有效价格，跳过执行", zap.String("symbol", sig.Symbol))
		return
	}

	var amount float64
	var entryPrice float64
	if sig.Action == signal.ActionSell {
		held := e.positions[sig.Symbol]
		if held.Quantity <= 0 {
			e.logger.Warn("没有可卖出的持仓", zap.String("symbol", sig.Symbol))
			return
		}
		amount = held.Quantity * fraction
		entryPrice = held.EntryPrice
	} else {
		amount = e.availableCapital(ctx) * fraction / price
	}

	e.logger.Info("执行交易信号",
		zap.String("symbol", sig.Symbol),
		zap.String("action", sig.Action),
		zap.Float64("fraction", fraction),
		zap.Float64("amount", amount),
		zap.Float64("price", price),
		zap.Float64("strength", sig.Strength),
	)

	var order exchange.Order
	var err error
	if sig.Action == signal.ActionBuy {
		order, err = e.exchange.CreateMarketBuyOrder(ctx, sig.Symbol, amount)
	} else {
		order, err = e.exchange.CreateMarketSellOrder(ctx, sig.Symbol, amount)
	}

	// 下单后持仓以交易所为准，不做本地增量推算。
	defer e.refreshPositions(ctx)

	if err != nil {
		if errors.Is(err, exchange.ErrInsufficientFunds) {
			// 余额不足不重试：交易所侧没有幂等保证。
			e.logger.Warn("余额或持仓不足，跳过订单",
				zap.String("symbol", sig.Symbol),
				zap.Error(err),
			)
			return
		}
		e.logger.Error("提交订单失败",
			zap.String("symbol", sig.Symbol),
			zap.String("action", sig.Action),
			zap.Error(err),
		)
		if e.monitor != nil {
			e.monitor.RecordError(ctx, "提交订单失败", err, map[string]interface{}{
				"symbol": sig.Symbol,
				"action": sig.Action,
			})
		}
		return
	}

	e.logger.Info("订单已成交",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", order.Side),
		zap.Float64("filled", order.Filled),
		zap.Float64("price", order.Price),
	)
	if e.monitor != nil {
		e.monitor.RecordExecution(ctx, *sig, order)
	}

	pnlFraction := 0.0
	if sig.Action == signal.ActionSell && entryPrice > 0 && e.cfg.Exchange.InitialCapital > 0 {
		fillPrice := order.Price
		if fillPrice <= 0 {
			fillPrice = price
		}
		pnlFraction = (fillPrice - entryPrice) * amount / e.cfg.Exchange.InitialCapital
	}
	e.riskMgr.UpdateDailyMetrics(pnlFraction)
}

func (e *Engine) refreshPositions(ctx context.Context) {
	positions, err := e.exchange.FetchPositions(ctx)
	if err != nil {
		e.logger.Error("同步持仓失败", zap.Error(err))
		return
	}
	e.positions = positions
	e.lastUpdate = time.Now().UTC()
}

func (e *Engine) reportPerformance(ctx context.Context) {
	totalValue := 0.0
	totalPnl := 0.0
	active := 0

	for symbol, pos := range e.positions {
		if pos.Quantity == 0 {
			continue
		}
		active++

		ticker, err := e.exchange.FetchTicker(ctx, symbol)
		if err != nil || ticker.Last <= 0 {
			continue
		}
		totalValue += pos.Quantity * ticker.Last
		if pos.Quantity > 0 {
			totalPnl += (ticker.Last - pos.EntryPrice) * pos.Quantity
		}
	}

	e.logger.Info("组合概览",
		zap.Float64("total_value", totalValue),
		zap.Float64("unrealized_pnl", totalPnl),
		zap.Int("positions", active),
	)
	if e.monitor != nil {
		balance, err := e.exchange.FetchBalance(ctx)
		if err != nil {
			balance = nil
		}
		e.monitor.RecordPortfolio(ctx, totalValue, balance, e.positionsSnapshot())
	}
}

func (e *Engine) portfolioContext(ctx context.Context) agent.PortfolioContext {
	available := e.availableCapital(ctx)

	total := available
	for _, pos := range e.positions {
		total += pos.Quantity * pos.EntryPrice
	}

	exposure := 0.0
	if total > 0 {
		exposure = (total - available) / total
	}

	return agent.PortfolioContext{
		Positions:        e.positionsSnapshot(),
		TotalValue:       total,
		AvailableCapital: available,
		Exposure:         exposure,
		MaxPositionSize:  e.cfg.Risk.MaxPositionSize,
	}
}

func (e *Engine) availableCapital(ctx context.Context) float64 {
	quote := e.cfg.Exchange.QuoteCurrency
	if quote == "" {
		quote = "USDT"
	}

	balance, err := e.exchange.FetchBalance(ctx)
	if err == nil {
		if available := balance[quote]; available > 0 {
			return available
		}
	}
	return e.cfg.Exchange.InitialCapital
}

func (e *Engine) positionsSnapshot() map[string]exchange.Position {
	snapshot := make(map[string]exchange.Position, len(e.positions))
	for symbol, pos := range e.positions {
		snapshot[symbol] = pos
	}
	return snapshot
}

func (e *Engine) saveState() error {
	state := PersistedState{
		Positions: e.positionsSnapshot(),
		LoopCount: e.loopCount,
	}
	if !e.lastHeartbeat.IsZero() {
		heartbeat := e.lastHeartbeat
		state.LastHeartbeat = &heartbeat
	}
	if !e.lastUpdate.IsZero() {
		update := e.lastUpdate
		state.LastUpdate = &update
	}
	return SaveState(e.cfg.Engine.StateFile, state)
}

// reconnect 关闭并重建交易所连接。重建失败时保留旧连接，等待下一轮。
func (e *Engine) reconnect(ctx context.Context) {
	e.logger.Info("开始重建交易所连接")

	replacement, err := e.newExchange(e.cfg.Exchange, e.logger)
	if err != nil {
		e.logger.Error("重建交易所实例失败", zap.Error(err))
		return
	}
	if err := replacement.Initialize(ctx); err != nil {
		e.logger.Error("重连后初始化失败", zap.Error(err))
		return
	}

	if e.exchange != nil {
		if err := e.exchange.Close(); err != nil {
			e.logger.Warn("关闭旧交易所连接失败", zap.Error(err))
		}
	}
	e.exchange = replacement
	e.logger.Info("交易所重连成功")
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// loopInterval 按K线周期推导循环间隔。
func (e *Engine) loopInterval() time.Duration {
	timeframe := e.cfg.Exchange.Timeframe
	switch {
	case strings.HasSuffix(timeframe, "m"):
		if n, err := strconv.Atoi(strings.TrimSuffix(timeframe, "m")); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	case strings.HasSuffix(timeframe, "h"):
		if n, err := strconv.Atoi(strings.TrimSuffix(timeframe, "h")); err == nil && n > 0 {
			return time.Duration(n) * time.Hour
		}
	}
	return 5 * time.Minute
}

// backoffDelay 计算指数退避时长：5s 起步，每次翻倍，封顶 300s。
func backoffDelay(n int) time.Duration {
	if n <= 0 {
		return backoffBase
	}

	delay := backoffBase
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= backoffCap {
			return backoffCap
		}
	}
	if delay > backoffCap {
		return backoffCap
	}
	return delay
}
