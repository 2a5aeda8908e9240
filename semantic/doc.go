// Copyright (c) ReplyFlow Authors.
// Licensed under the MIT License.

/*
Package semantic 提供按类别分区的内存向量索引。

# 概述

缓存层的语义匹配依赖本包：近似重复的会话（同一 prospect、换种措辞）
应复用已有结果而非重新调用 LLM。索引以缓存指纹为主键保存归一化向量，
查询返回余弦相似度 ≥ 阈值（默认 0.85）的最近邻。

# 匹配策略

  - 搜索范围限定在同一类别内
  - 多个候选时返回相似度最高者，相同相似度取最近创建的条目
  - 过期条目在查询时惰性清除

向量由外部嵌入模型计算（llm.Embedder），每个请求只计算一次，
写入后不再修改。
*/
package semantic
