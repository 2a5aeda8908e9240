// Copyright (c) ReplyFlow Authors.
// Licensed under the MIT License.

/*
Package cache 提供带 TTL 的工作流结果缓存，同时支持精确键与语义两种查找。

# 概述

缓存决定是否需要调用 LLM：先按请求指纹做精确查找，未命中再按嵌入向量
做语义最近邻查找（余弦相似度 ≥ 阈值）。条目按类别分区
（workflow_result / profile_lookup / faq_answer），各类别有独立默认 TTL。

# 实现

  - MemoryStore — 内存 map + 惰性 TTL + 可选后台清理
  - RedisStore  — go-redis v9，JSON 条目 + 原生 TTL，向量索引保持进程内

# 不变式

  - 失败结果永不入缓存（Put 拒绝 StatusFailed）
  - 过期条目在读取时视为不存在并被清除
  - 同一指纹的写入为幂等覆盖（写入方由 singleflight 串行化）
*/
package cache
