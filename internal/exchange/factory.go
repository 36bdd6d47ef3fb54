package exchange

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"volt-trader/internal/config"
)

// New 按配置创建交易所实例。
// "binance" 为实盘，"paper" 为模拟盘（行情仍取自币安）。
func New(cfg config.ExchangeConfig, logger *zap.Logger) (Exchange, error) {
	switch strings.ToLower(cfg.Name) {
	case "binance":
		return NewBinanceExchange(cfg, logger), nil
	case "paper", "dryrun":
		data := NewBinanceExchange(cfg, logger)
		return NewPaperExchange(cfg, data, logger), nil
	default:
		return nil, fmt.Errorf("不支持的交易所: %q", cfg.Name)
	}
}
