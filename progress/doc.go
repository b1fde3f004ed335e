// Copyright (c) MediaFlow Authors.
// Licensed under the MIT License.

/*
Package progress 提供生成任务的进度通知。

进度百分比按服务商原样转发，不做平滑，也可能回退。
所有 Reporter 实现都不阻塞调用方、不重试；通知是尽力而为的。

  - Hub         - 单 goroutine 广播中心，支持按任务订阅和通配符 "*"
  - LogReporter - 写入 zap 日志
  - Multi       - 依次转发给多个 Reporter
  - Nop         - 丢弃所有事件
*/
package progress
