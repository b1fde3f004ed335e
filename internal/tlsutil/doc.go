// Copyright (c) MediaFlow Authors.
// Licensed under the MIT License.

// Package tlsutil 提供 TLS 加固配置：HTTPS API 端口、服务商 API 客户端、
// 素材下载客户端（不限制总时长、关闭透明 gzip）以及可选的 Redis TLS。
package tlsutil
