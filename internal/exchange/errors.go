package exchange

import "errors"

var (
	// ErrMaintenance 表示交易所处于维护状态，需要上层跳过交易。
	ErrMaintenance = errors.New("exchange on maintenance")
	// ErrInsufficientFunds 表示余额或持仓不足，订单跳过且不重试。
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNoPrice 表示无法取得有效价格。
	ErrNoPrice = errors.New("no valid price")
)
