// Copyright (c) ReplyFlow Authors.
// Licensed under the MIT License.

/*
Package singleflight 按请求指纹合并并发的重复工作流计算。

同一指纹的并发提交只触发一次下游执行，所有等待者共享同一结果。
计算体与订阅者的 context 解耦：任一订阅者取消只结束它自己的等待，
计算照常完成并交付给其余订阅者。失败结果交付后条目立即移除，
后续到达的提交会重新触发计算，不会长期复用一次瞬时故障。
*/
package singleflight
