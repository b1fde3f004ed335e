// Copyright (c) MediaFlow Authors.
// Licensed under the MIT License.

/*
Package generation 编排媒体生成任务的完整生命周期。

# 流程

	Submit → task(pending) → processing → provider → materialize → completed | failed

轮询类服务商（Runway、Veo、Suno）：Submit 创建任务后立即返回，
后台 goroutine 提交请求并交给 polling.Controller 轮询，成功后由
asset.Materializer 落盘登记，任务记录 OutputRef 为素材 ID。

同步类服务商（MiniMax、ElevenLabs）：在 Submit 内完成生成与落盘，
返回的任务已处于终态。

任何失败都会把任务标记为 failed，Error 字段保留服务商原始消息；
取消（Cancel 或 Close）记录为 "cancelled"。进度尽力同步到任务记录，
并通过 progress.Reporter 广播。
*/
package generation
