// Copyright (c) ReplyFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 实现回复生成工作流的执行与编排。

# 组成

  - Step / LLMStep — 可执行步骤：档案补全、会话分析、回复生成
  - Executor       — 单步执行：超时物化为 timed_out，瞬态错误退避重试一次
  - Aggregator     — 两级扇出：可选步骤并发执行，回复生成消费其输出
  - ProgressBroker — 尽力而为的步骤进度分发
  - DuplicateRunGuard — 时间窗内的重复提交提示
  - Engine         — 提交入口：缓存判定、并发合并、结果落盘

# 失败语义

步骤失败是数据而不是异常：每个步骤结算为 completed / failed /
timed_out，聚合器按必需步骤规则合并整体状态。仅必需步骤
（回复生成）失败会让 Submit 返回错误；可选步骤失败降级为
partial 结果并照常缓存。失败结果永不进入缓存。
*/
package workflow
