package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// EmbedderConfig 配置 OpenAI 兼容嵌入提供者。
type EmbedderConfig struct {
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	APIKey     string        `yaml:"api_key" json:"api_key"`
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	RPS        float64       `yaml:"rps" json:"rps"`
	Burst      int           `yaml:"burst" json:"burst"`
}

// OpenAIEmbedder 是 OpenAI 兼容的嵌入提供者。
type OpenAIEmbedder struct {
	http *httpClient
	cfg  EmbedderConfig
}

// NewOpenAIEmbedder 创建 OpenAI 兼容嵌入提供者。
func NewOpenAIEmbedder(cfg EmbedderConfig) *OpenAIEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 1536
	}

	return &OpenAIEmbedder{
		http: newHTTPClient(httpClientConfig{
			Name:    "openai-embedding",
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
			RPS:     cfg.RPS,
			Burst:   cfg.Burst,
		}),
		cfg: cfg,
	}
}

func (p *OpenAIEmbedder) Name() string    { return "openai-embedding" }
func (p *OpenAIEmbedder) Dimensions() int { return p.cfg.Dimensions }

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// EmbedQuery 实现 Embedder.EmbedQuery。
func (p *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	body := embedRequest{
		Input: []string{text},
		Model: p.cfg.Model,
	}

	respBody, err := p.http.doRequest(ctx, "POST", "/v1/embeddings", body)
	if err != nil {
		return nil, err
	}

	var resp embedResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal embedding response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return resp.Data[0].Embedding, nil
}
