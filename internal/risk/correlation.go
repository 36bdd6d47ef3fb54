package risk

import "volt-trader/internal/exchange"

// 资产按板块归簇，相关性按簇静态估算。
// 上线前可替换为基于历史收益的滚动相关矩阵。
type assetCluster int

const (
	clusterUnknown assetCluster = iota
	clusterLargeL1
	clusterPayment
)

var assetClusters = map[string]assetCluster{
	"BTC":   clusterLargeL1,
	"ETH":   clusterLargeL1,
	"BNB":   clusterLargeL1,
	"SOL":   clusterLargeL1,
	"AVAX":  clusterLargeL1,
	"ADA":   clusterLargeL1,
	"DOT":   clusterLargeL1,
	"XRP":   clusterPayment,
	"LTC":   clusterPayment,
	"BCH":   clusterPayment,
	"XLM":   clusterPayment,
	"DOGE":  clusterPayment,
	"MATIC": clusterLargeL1,
}

// Correlation 估算两个交易对的相关性。
func Correlation(symbolA, symbolB string) float64 {
	baseA, _ := exchange.SplitSymbol(symbolA)
	baseB, _ := exchange.SplitSymbol(symbolB)

	if baseA == baseB {
		return 1.0
	}

	clusterA := assetClusters[baseA]
	clusterB := assetClusters[baseB]

	switch {
	case clusterA == clusterUnknown || clusterB == clusterUnknown:
		return 0.3
	case clusterA == clusterB:
		return 0.8
	default:
		return 0.45
	}
}

// 各交易对的静态日波动率估值，未知交易对使用保守默认值。
var symbolVolatilities = map[string]float64{
	"BTC/USDT":   0.03,
	"ETH/USDT":   0.04,
	"BNB/USDT":   0.035,
	"SOL/USDT":   0.06,
	"AVAX/USDT":  0.055,
	"MATIC/USDT": 0.05,
}

const defaultVolatility = 0.04

func symbolVolatility(symbol string) float64 {
	if vol, ok := symbolVolatilities[symbol]; ok {
		return vol
	}
	return defaultVolatility
}
