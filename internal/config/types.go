package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Agents     AgentsConfig     `mapstructure:"agents"`
	Signal     SignalConfig     `mapstructure:"signal"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Volatility VolatilityConfig `mapstructure:"volatility"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name           string      `mapstructure:"name"`
	Markets        []string    `mapstructure:"markets"`
	Timeframe      string      `mapstructure:"timeframe"`
	CandleLimit    int         `mapstructure:"candle_limit"`
	InitialCapital float64     `mapstructure:"initial_capital"`
	QuoteCurrency  string      `mapstructure:"quote_currency"`
	APIKey         string      `mapstructure:"api_key"`
	APISecret      string      `mapstructure:"api_secret"`
	UseSandbox     bool        `mapstructure:"use_sandbox"`
	Retry          RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// OpenAIConfig 描述大模型调用参数。
type OpenAIConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	FallbackModel string        `mapstructure:"fallback_model"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// AgentsConfig 控制多智能体共识层。
type AgentsConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	HistoryLimit int  `mapstructure:"history_limit"`
}

// SignalConfig 控制信号生成与仓位测算。
type SignalConfig struct {
	StopLoss        float64 `mapstructure:"stop_loss"`
	TakeProfit      float64 `mapstructure:"take_profit"`
	MaxPositionSize float64 `mapstructure:"max_position_size"`
}

// RiskConfig 管理风控参数。
type RiskConfig struct {
	MaxPositionSize      float64 `mapstructure:"max_position_size"`
	CorrelationLimit     float64 `mapstructure:"correlation_limit"`
	MaxDrawdown          float64 `mapstructure:"max_drawdown"`
	MinRewardRisk        float64 `mapstructure:"min_reward_risk"`
	MinConfidence        float64 `mapstructure:"min_confidence"`
	VolatilityAdjustment bool    `mapstructure:"volatility_adjustment"`
}

// EngineConfig 控制主循环稳定性参数。
type EngineConfig struct {
	MaxConsecutiveErrors int    `mapstructure:"max_consecutive_errors"`
	StateFile            string `mapstructure:"state_file"`
	StateSaveLoops       int    `mapstructure:"state_save_loops"`
	VolatilityLoops      int    `mapstructure:"volatility_loops"`
	HeartbeatLoops       int    `mapstructure:"heartbeat_loops"`
}

// VolatilityConfig 控制VIX波动率数据采集。
type VolatilityConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RatePerMinute  int           `mapstructure:"rate_per_minute"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if len(c.Exchange.Markets) == 0 {
		err = multierr.Append(err, errors.New("exchange.markets 至少包含一个交易对"))
	}
	for _, market := range c.Exchange.Markets {
		if !strings.Contains(market, "/") {
			err = multierr.Append(err, fmt.Errorf("exchange.markets 中 %q 不是合法交易对", market))
		}
	}
	if c.Exchange.Timeframe == "" {
		err = multierr.Append(err, errors.New("exchange.timeframe 不能为空"))
	}
	if c.Exchange.CandleLimit < 50 {
		err = multierr.Append(err, errors.New("exchange.candle_limit 不能小于50，否则指标窗口不足"))
	}
	if c.Exchange.InitialCapital <= 0 {
		err = multierr.Append(err, errors.New("exchange.initial_capital 必须大于0"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.Agents.Enabled {
		if c.OpenAI.APIKey == "" {
			err = multierr.Append(err, errors.New("启用多智能体时 openai.api_key 不能为空"))
		}
		if c.OpenAI.Model == "" {
			err = multierr.Append(err, errors.New("openai.model 不能为空"))
		}
		if c.OpenAI.Timeout <= 0 {
			err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
		}
		if c.Agents.HistoryLimit < 0 {
			err = multierr.Append(err, errors.New("agents.history_limit 不能为负"))
		}
	}
	if c.Signal.StopLoss <= 0 || c.Signal.StopLoss >= 1 {
		err = multierr.Append(err, errors.New("signal.stop_loss 必须位于(0,1)"))
	}
	if c.Signal.TakeProfit <= 0 || c.Signal.TakeProfit >= 1 {
		err = multierr.Append(err, errors.New("signal.take_profit 必须位于(0,1)"))
	}
	if c.Signal.MaxPositionSize <= 0 || c.Signal.MaxPositionSize > 1 {
		err = multierr.Append(err, errors.New("signal.max_position_size 必须位于(0,1]"))
	}
	if c.Risk.MaxPositionSize <= 0 || c.Risk.MaxPositionSize > 1 {
		err = multierr.Append(err, errors.New("risk.max_position_size 必须位于(0,1]"))
	}
	if c.Risk.CorrelationLimit <= 0 || c.Risk.CorrelationLimit > 1 {
		err = multierr.Append(err, errors.New("risk.correlation_limit 必须位于(0,1]"))
	}
	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown > 1 {
		err = multierr.Append(err, errors.New("risk.max_drawdown 必须位于(0,1]"))
	}
	if c.Risk.MinRewardRisk <= 0 {
		err = multierr.Append(err, errors.New("risk.min_reward_risk 必须大于0"))
	}
	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 1 {
		err = multierr.Append(err, errors.New("risk.min_confidence 必须位于[0,1]"))
	}
	if c.Engine.MaxConsecutiveErrors <= 0 {
		err = multierr.Append(err, errors.New("engine.max_consecutive_errors 必须大于0"))
	}
	if c.Engine.StateFile == "" {
		err = multierr.Append(err, errors.New("engine.state_file 不能为空"))
	}
	if c.Engine.StateSaveLoops <= 0 {
		err = multierr.Append(err, errors.New("engine.state_save_loops 必须大于0"))
	}
	if c.Engine.VolatilityLoops <= 0 {
		err = multierr.Append(err, errors.New("engine.volatility_loops 必须大于0"))
	}
	if c.Engine.HeartbeatLoops <= 0 {
		err = multierr.Append(err, errors.New("engine.heartbeat_loops 必须大于0"))
	}
	if c.Volatility.CacheTTL <= 0 {
		err = multierr.Append(err, errors.New("volatility.cache_ttl 必须大于0"))
	}
	if c.Volatility.RequestTimeout <= 0 {
		err = multierr.Append(err, errors.New("volatility.request_timeout 必须大于0"))
	}
	if c.Volatility.RatePerMinute <= 0 {
		err = multierr.Append(err, errors.New("volatility.rate_per_minute 必须大于0"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
