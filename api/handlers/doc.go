// Copyright (c) MediaFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 实现 MediaFlow HTTP API 的请求处理器。

# 核心类型

  - GenerationHandler：提交生成任务，查询、列出与取消任务
  - EventsHandler：基于 websocket 推送任务进度
  - AssetHandler：素材查询、标注、删除与文件下载
  - AssemblyHandler：同步合成与 dry-run 计划预览
  - HealthHandler：存活与就绪检查
  - Response / ErrorInfo：统一 JSON 信封

处理器只依赖小接口（GenerationService、AssetCatalog 等），
测试可以直接替换为内存实现。

# 错误映射

WriteError 接受任意 error：types.Error 按错误码映射状态码，
task/asset/generation 包的哨兵错误分别映射为 404、409、503 等。
非预期错误统一返回 500 且不暴露内部原因。
*/
package handlers
