package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"volt-trader/internal/config"
)

// Thinker 抽象智能体的推理调用，可由真实模型或确定性桩实现。
type Thinker interface {
	Think(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// OpenAIThinker 基于 OpenAI 兼容接口的推理实现。
// 保留有限轮对话历史，主模型失败时切换备用模型。
type OpenAIThinker struct {
	cfg    config.OpenAIConfig
	logger *zap.Logger
	sdk    *openai.Client

	historyMu    sync.Mutex
	history      []openai.ChatCompletionMessage
	historyLimit int
}

// NewOpenAIThinker 创建模型推理客户端。
func NewOpenAIThinker(cfg config.OpenAIConfig, historyLimit int, logger *zap.Logger) (*OpenAIThinker, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api_key 不能为空")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai model 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if historyLimit <= 0 {
		historyLimit = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &OpenAIThinker{
		cfg:          cfg,
		logger:       logger,
		sdk:          openai.NewClientWithConfig(clientConfig),
		historyLimit: historyLimit,
	}, nil
}

// Think 执行一次带硬超时的推理调用。
func (t *OpenAIThinker) Think(ctx context.Context, prompt, systemPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	content, err := t.complete(ctx, t.cfg.Model, prompt, systemPrompt)
	if err != nil && t.cfg.FallbackModel != "" && !errors.Is(err, context.Canceled) {
		t.logger.Warn("主模型调用失败，切换备用模型",
			zap.String("model", t.cfg.Model),
			zap.String("fallback", t.cfg.FallbackModel),
			zap.Error(err),
		)
		content, err = t.complete(ctx, t.cfg.FallbackModel, prompt, systemPrompt)
	}
	if err != nil {
		return "", err
	}

	t.remember(prompt, content)
	return content, nil
}

func (t *OpenAIThinker) complete(ctx context.Context, model, prompt, systemPrompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, t.historyLimit+2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, t.recentHistory()...)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	response, err := t.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("调用模型失败: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("模型返回结果为空")
	}

	content := strings.TrimSpace(response.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("模型返回内容为空")
	}
	return content, nil
}

// recentHistory 返回最近的对话轮次，旧的丢弃。
func (t *OpenAIThinker) recentHistory() []openai.ChatCompletionMessage {
	t.historyMu.Lock()
	defer t.historyMu.Unlock()

	if len(t.history) <= t.historyLimit {
		return append([]openai.ChatCompletionMessage(nil), t.history...)
	}
	return append([]openai.ChatCompletionMessage(nil), t.history[len(t.history)-t.historyLimit:]...)
}

func (t *OpenAIThinker) remember(prompt, answer string) {
	t.historyMu.Lock()
	defer t.historyMu.Unlock()

	t.history = append(t.history,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: answer},
	)
	if overflow := len(t.history) - 2*t.historyLimit; overflow > 0 {
		t.history = t.history[overflow:]
	}
}

// StubThinker 为测试与离线运行提供确定性回答。
type StubThinker struct {
	Response string
	Err      error

	mu    sync.Mutex
	calls []string
}

// Think 返回预设回答。
func (s *StubThinker) Think(ctx context.Context, prompt, systemPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.calls = append(s.calls, prompt)
	s.mu.Unlock()

	if s.Err != nil {
		return "", s.Err
	}
	return s.Response, nil
}

// Calls 返回累计收到的提示词。
func (s *StubThinker) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
