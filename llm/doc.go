// Copyright (c) ReplyFlow Authors.
// Licensed under the MIT License.

/*
Package llm 提供 LLM 补全与文本嵌入的提供者抽象。

# 概述

引擎将底层模型视为不透明协作者：给定渲染后的提示词返回文本，可能失败或
超时。本包定义统一的 Provider / Embedder 接口，并提供 OpenAI 兼容的 HTTP
实现（含错误映射、客户端限流与指数退避重试器）。

# 核心接口与类型

  - Provider          — Complete(ctx, *CompletionRequest) (*CompletionResponse, error)
  - Embedder          — EmbedQuery(ctx, text) ([]float64, error)
  - OpenAIProvider    — OpenAI 兼容补全实现（/v1/chat/completions）
  - OpenAIEmbedder    — OpenAI 兼容嵌入实现（/v1/embeddings）
  - RetryPolicy       — 指数退避 + 随机抖动重试策略

# 错误处理

HTTP 状态统一映射为 *types.Error：429 ⇒ ErrRateLimited（可重试），
5xx ⇒ ErrProviderError（可重试），其余 4xx ⇒ ErrProviderError（不可重试），
网络错误 ⇒ ErrProviderError（可重试）。
*/
package llm
