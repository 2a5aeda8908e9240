package llm

import (
	"context"
	"time"
)

// CompletionRequest 表示一次补全调用。
type CompletionRequest struct {
	Prompt      string        `json:"prompt"`
	Model       string        `json:"model,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// CompletionUsage 表示补全的 Token 用量。
type CompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// CompletionResponse 表示补全结果。
type CompletionResponse struct {
	Text  string          `json:"text"`
	Model string          `json:"model,omitempty"`
	Usage CompletionUsage `json:"usage"`
}

// Provider 定义统一的补全提供者接口。
type Provider interface {
	// Complete 执行一次补全调用。
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name 返回提供者名称。
	Name() string
}

// Embedder 定义统一的嵌入提供者接口。
type Embedder interface {
	// EmbedQuery 为单条文本生成定长向量。
	EmbedQuery(ctx context.Context, text string) ([]float64, error)

	// Dimensions 返回嵌入维度。
	Dimensions() int

	// Name 返回提供者名称。
	Name() string
}
