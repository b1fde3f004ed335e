// Copyright (c) MediaFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 MediaFlow 测试共享的辅助函数。

包含带超时的上下文、异步断言与 JSON 工具。子包 fixtures 提供
素材目录与任务样例，子包 mocks 提供轮询与同步提供商的模拟实现。
*/
package testutil
