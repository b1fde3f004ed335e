// Copyright (c) MediaFlow Authors.
// Licensed under the MIT License.

/*
Package server 管理 HTTP 服务器的生命周期。

Manager 封装 net/http.Server：Start 非阻塞地监听并服务，
Shutdown 在配置的超时内排空请求，Errors 暴露后台服务错误。
API 服务与 Prometheus 指标服务各使用一个 Manager，
信号处理由入口的 signal.NotifyContext 负责。
*/
package server
