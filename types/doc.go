// Copyright (c) ReplyFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 ReplyFlow 引擎的全局共享类型定义。

# 概述

types 是引擎最底层的公共包，不依赖任何内部包，为 fingerprint、cache、
workflow、llm 等上层模块提供统一的类型契约。

# 核心类型

  - Request           — 一次回复工作流调用（会话文本、渠道、URL、步骤开关）
  - StepResult        — 单步执行结果（completed / failed / timed_out）
  - Result            — 所有步骤结果的合并视图 + 整体状态
  - Error / ErrorCode — 结构化错误体系，含 Retryable 与 Provider 标记

# 主要能力

  - 请求校验：Request.Validate（渠道、会话文本、步骤开关）
  - 状态合并：MergeStatus（必需步骤失败 ⇒ failed，可选失败 ⇒ partial）
  - 错误工具链：IsRetryable / GetErrorCode / IsErrorCode
  - 常用错误构造：NewInvalidRequestError / NewRateLimitError / NewTimeoutError
*/
package types
