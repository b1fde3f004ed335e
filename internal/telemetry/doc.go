// Copyright (c) MediaFlow Authors.
// Licensed under the MIT License.

// Package telemetry 初始化 OpenTelemetry SDK，通过 OTLP gRPC 导出
// 生成任务与合成流程中产生的 span 和指标。遥测关闭时全局 provider
// 保持 noop，不连接任何外部服务。
package telemetry
