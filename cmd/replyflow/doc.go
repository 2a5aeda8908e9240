// Copyright (c) ReplyFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 ReplyFlow 服务端程序入口。

# 概述

cmd/replyflow 是回复工作流引擎的可执行入口，提供 HTTP API、
进度 WebSocket、健康检查和版本查询等子命令。程序支持 YAML 配置
文件加载、结构化日志（zap）与 Prometheus 指标采集。

# 端点

  - POST /v1/replies         — 提交回复工作流（缓存命中时直接返回）
  - POST /v1/replies/recent  — 重复提交时间窗内的最近完成查询
  - GET  /v1/replies/history — 执行历史（需启用 SQLite 历史库）
  - GET  /v1/stats           — 引擎运行统计
  - GET  /ws/progress        — 按指纹订阅步骤进度（WebSocket）
  - GET  /metrics            — Prometheus 指标
  - GET  /healthz            — 健康检查

# 主要能力

  - 缓存后端按配置选择：Redis（配置了地址）或进程内存
  - 执行历史落 SQLite（可选，database.path 配置）
  - 优雅关闭：信号监听 → 关闭 HTTP → 关闭缓存后端
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
