package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "volt"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("exchange.name", "paper")
	v.SetDefault("exchange.markets", []string{"BTC/USDT", "ETH/USDT"})
	v.SetDefault("exchange.timeframe", "5m")
	v.SetDefault("exchange.candle_limit", 100)
	v.SetDefault("exchange.initial_capital", 10000.0)
	v.SetDefault("exchange.quote_currency", "USDT")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.retry.max_attempts", 5)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4.1")
	v.SetDefault("openai.fallback_model", "gpt-4.1-mini")
	v.SetDefault("openai.timeout", "15s")

	v.SetDefault("agents.enabled", false)
	v.SetDefault("agents.history_limit", 10)

	v.SetDefault("signal.stop_loss", 0.05)
	v.SetDefault("signal.take_profit", 0.10)
	v.SetDefault("signal.max_position_size", 0.10)

	v.SetDefault("risk.max_position_size", 0.10)
	v.SetDefault("risk.correlation_limit", 0.7)
	v.SetDefault("risk.max_drawdown", 0.15)
	v.SetDefault("risk.min_reward_risk", 1.5)
	v.SetDefault("risk.min_confidence", 0.6)
	v.SetDefault("risk.volatility_adjustment", true)

	v.SetDefault("engine.max_consecutive_errors", 10)
	v.SetDefault("engine.state_file", "data/engine_state.json")
	v.SetDefault("engine.state_save_loops", 10)
	v.SetDefault("engine.volatility_loops", 10)
	v.SetDefault("engine.heartbeat_loops", 12)

	v.SetDefault("volatility.endpoint", "https://query1.finance.yahoo.com/v8/finance/chart/%5EVIX")
	v.SetDefault("volatility.cache_ttl", "5m")
	v.SetDefault("volatility.request_timeout", "10s")
	v.SetDefault("volatility.rate_per_minute", 6)

	v.SetDefault("database.path", "data/volt_trader.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
