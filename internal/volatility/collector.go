package volatility

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"volt-trader/internal/config"
)

// VIXData 为一次 VIX 采样结果。
type VIXData struct {
	CurrentVIX   float64
	Change24h    float64
	Percentile1Y float64
	Regime       Regime
	Timestamp    time.Time
}

// Collector 从外部行情源采集 VIX，带缓存与限速。
// 采集失败时返回安全默认值，不阻断交易循环。
type Collector struct {
	cfg     config.VolatilityConfig
	logger  *zap.Logger
	client  *http.Client
	limiter *rate.Limiter

	mu     sync.Mutex
	cached VIXData
	hasHit bool
}

// NewCollector 创建 VIX 采集器。
func NewCollector(cfg config.VolatilityConfig, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 6
	}

	return &Collector{
		cfg:     cfg,
		logger:  logger,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// FetchVIX 返回最新 VIX 数据。缓存未过期时直接命中，
// 采集失败时退回缓存值或安全默认值。
func (c *Collector) FetchVIX(ctx context.Context) VIXData {
	c.mu.Lock()
	ttl := c.cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if c.hasHit && time.Since(c.cached.Timestamp) < ttl {
		cached := c.cached
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	vix, err := c.fetchRemote(ctx)
	if err != nil {
		c.logger.Warn("获取 VIX 失败，使用保守默认值", zap.Error(err))
		return c.fallback()
	}

	data := VIXData{
		CurrentVIX:   vix,
		Percentile1Y: Percentile(vix),
		Regime:       ClassifyRegime(vix),
		Timestamp:    time.Now().UTC(),
	}

	c.mu.Lock()
	if c.hasHit {
		data.Change24h = vix - c.cached.CurrentVIX
	}
	c.cached = data
	c.hasHit = true
	c.mu.Unlock()

	c.logger.Debug("VIX 已更新",
		zap.Float64("vix", vix),
		zap.String("regime", string(data.Regime)),
	)
	return data
}

func (c *Collector) fetchRemote(ctx context.Context) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("构造 VIX 请求失败: %w", err)
	}
	req.Header.Set("User-Agent", "volt-trader/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("请求 VIX 数据失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("VIX 接口返回异常状态: %d", resp.StatusCode)
	}

	var payload struct {
		Chart struct {
			Result []struct {
				Meta struct {
					RegularMarketPrice float64 `json:"regularMarketPrice"`
				} `json:"meta"`
			} `json:"result"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("解析 VIX 响应失败: %w", err)
	}

	if len(payload.Chart.Result) == 0 {
		return 0, fmt.Errorf("VIX 响应缺少行情数据")
	}

	vix := payload.Chart.Result[0].Meta.RegularMarketPrice
	if vix <= 0 {
		return 0, fmt.Errorf("VIX 响应价格无效: %f", vix)
	}
	return vix, nil
}

func (c *Collector) fallback() VIXData {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasHit {
		return c.cached
	}
	return VIXData{
		CurrentVIX:   20.0,
		Percentile1Y: 0.50,
		Regime:       RegimeNormal,
		Timestamp:    time.Now().UTC(),
	}
}
