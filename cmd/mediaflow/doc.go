// Copyright (c) MediaFlow Authors.
// Licensed under the MIT License.

/*
mediaflow 是 MediaFlow 服务的命令行入口。

# 子命令

  - serve：加载配置，启动 API 服务器（默认 :8080）与 Prometheus
    metrics 服务器（默认 :9091），收到 SIGINT/SIGTERM 后优雅关闭
  - version：打印构建时注入的版本信息
  - health：请求 /health 或 /ready，用于容器探针

# 配置

配置优先级为默认值、YAML 文件、环境变量（MEDIAFLOW_ 前缀）。
serve 启动前会读取 .env 文件，已存在的环境变量不会被覆盖。

# 中间件

请求依次经过 Recovery、RequestID、SecurityHeaders、OTelTracing、
RequestLogger、MetricsMiddleware、CORS、RateLimiter、APIKeyAuth 与 JWTAuth。
中间件挂在 chi 路由内部，指标与 span 名称使用路由模式。
*/
package main
