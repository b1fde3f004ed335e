// Copyright (c) MediaFlow Authors.
// Licensed under the MIT License.

/*
Package api 组装 MediaFlow 的 HTTP 路由。

# 路由

	GET    /health /healthz          存活探针
	GET    /ready /readyz            就绪检查（任务存储、素材目录、数据库）
	GET    /version
	GET    /api/v1/providers         已注册的生成 provider
	POST   /api/v1/generations       提交生成任务（轮询型 202，同步型 200）
	GET    /api/v1/tasks             任务列表，支持 kind/status/provider/limit/offset
	GET    /api/v1/tasks/{id}
	POST   /api/v1/tasks/{id}/cancel
	GET    /api/v1/tasks/{id}/events websocket 进度流，id 为 * 时订阅全部
	GET    /api/v1/assets            素材列表，支持 type/provider/tag/limit/offset
	GET    /api/v1/assets/{id}
	PATCH  /api/v1/assets/{id}       修改 tags 与 notes
	DELETE /api/v1/assets/{id}
	GET    /api/v1/assets/{id}/file  下载素材文件
	POST   /api/v1/assemblies        同步执行合成
	POST   /api/v1/assemblies/plan   只生成计划与 ffmpeg 参数

所有 JSON 响应使用 handlers.Response 信封：success、data、error、timestamp。

# 认证

配置了 API Key 时请求需携带 X-API-Key 头；websocket 客户端可在允许时
使用 api_key 查询参数。配置 JWT 时使用 Authorization: Bearer。
*/
package api
