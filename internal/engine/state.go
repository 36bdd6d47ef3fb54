package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"volt-trader/internal/exchange"
)

// State 表示引擎运行状态。
type State string

const (
	StateInitializing State = "INITIALIZING"
	StateRunning      State = "RUNNING"
	StateErrorBackoff State = "ERROR_BACKOFF"
	StateStopping     State = "STOPPING"
	StateStopped      State = "STOPPED"
)

// PersistedState 为崩溃恢复保存的引擎快照。
type PersistedState struct {
	Positions     map[string]exchange.Position `json:"positions"`
	LoopCount     int                          `json:"loop_count"`
	LastHeartbeat *time.Time                   `json:"last_heartbeat"`
	LastUpdate    *time.Time                   `json:"last_update"`
	SavedAt       time.Time                    `json:"saved_at"`
}

// SaveState 将引擎状态写入文件，目录不存在时自动创建。
func SaveState(path string, state PersistedState) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建状态目录失败: %w", err)
		}
	}

	state.SavedAt = time.Now().UTC()
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化引擎状态失败: %w", err)
	}

	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("写入状态文件失败: %w", err)
	}
	return nil
}

// LoadState 读取持久化状态。文件缺失视为冷启动，
// 内容损坏时记录日志后同样按冷启动处理，绝不让进程崩溃。
func LoadState(path string, logger *zap.Logger) PersistedState {
	if logger == nil {
		logger = zap.NewNop()
	}

	empty := PersistedState{Positions: make(map[string]exchange.Position)}

	payload, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("读取状态文件失败，按冷启动处理", zap.String("path", path), zap.Error(err))
		}
		return empty
	}

	var state PersistedState
	if err := json.Unmarshal(payload, &state); err != nil {
		logger.Warn("状态文件内容损坏，按冷启动处理", zap.String("path", path), zap.Error(err))
		return empty
	}

	if state.Positions == nil {
		state.Positions = make(map[string]exchange.Position)
	}

	logger.Info("已恢复引擎状态",
		zap.String("path", path),
		zap.Int("loop_count", state.LoopCount),
		zap.Int("positions", len(state.Positions)),
		zap.Time("saved_at", state.SavedAt),
	)
	return state
}
