// Copyright (c) MediaFlow Authors.
// Licensed under the MIT License.

/*
Package metrics 提供基于 Prometheus 的服务指标采集。

# 概述

Collector 使用 promauto 注册全部指标，按 namespace 隔离。
它同时满足 generation.Recorder 与 assembly.Recorder，
由服务入口注入到各业务组件。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 生成任务：按 provider/kind/status 统计终态任务数与耗时。
  - 合成：按 status 统计合成次数与耗时。
  - 数据库连接池：打开/空闲连接数与等待次数。
*/
package metrics
