// Copyright (c) MediaFlow Authors.
// Licensed under the MIT License.

/*
Package asset 管理生成结果的落盘与素材目录。

Materializer 将服务商输出（远程 URL、base64 或原始字节）写入
<root>/<type>s/<时间戳>_<服务商>_<模型>_<随机串>.<扩展名>，
写入完成后才向 Catalog 注册；任何失败都不会留下目录条目。

Catalog 是一个 JSON 文档 {version, last_updated, assets}，由单个 goroutine 持有，
所有变更经通道串行执行并整体原子重写，避免并发写入丢失更新。
*/
package asset
