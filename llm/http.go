package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/BaSui01/replyflow/types"
)

// httpClient 为 OpenAI 兼容提供者封装共同的 HTTP 逻辑。
type httpClient struct {
	name    string
	client  *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
}

// httpClientConfig 持有 HTTP 客户端的共同配置。
type httpClientConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RPS 客户端侧限流；0 表示不限流。
	RPS   float64
	Burst int
}

func newHTTPClient(cfg httpClientConfig) *httpClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &httpClient{
		name:    cfg.Name,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		limiter: limiter,
	}
}

// doRequest 执行 HTTP 请求，并进行共同的限流与错误处理。
func (c *httpClient) doRequest(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewTimeoutError("request cancelled or deadline exceeded").WithCause(ctx.Err())
		}
		return nil, types.NewProviderError(c.name, err.Error()).WithRetryable(true)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, string(respBody), c.name)
	}

	return respBody, nil
}

// mapHTTPError 将 HTTP 状态映射为 types.Error。
func mapHTTPError(status int, msg, provider string) *types.Error {
	if status == http.StatusTooManyRequests {
		return types.NewRateLimitError(provider)
	}

	e := types.NewProviderError(provider, msg)
	if status >= 500 {
		e.Retryable = true
	}
	return e
}
