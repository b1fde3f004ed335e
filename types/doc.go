// Copyright (c) MediaFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 MediaFlow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 task、provider、asset、
assembly、api 等上层模块提供统一的错误与上下文契约。

# 核心类型

  - Error / ErrorCode - 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - HTTPStatusFor     - 错误码到 HTTP 状态码的映射

# 主要能力

  - 运行上下文：WithTask / TaskID / Provider，标记生成任务的 goroutine 链路
  - 错误工具链：WrapError / AsError / IsErrorCode / IsRetryable / GetErrorCode
*/
package types
