// Copyright (c) MediaFlow Authors.
// Licensed under the MIT License.

/*
Package assembly 将已生成的素材合成为最终视频。

# 流程

	Request → Planner.Build → Plan → Executor.Run → Result

Planner 先校验请求，再并发解析素材（目录查找、文件存在性、ffprobe），
随后纯函数地推导出 ffmpeg 滤镜图：

  - normalize: 统一帧率、尺寸与 SAR
  - concat:    仅拼接视频流，源片段音频一律丢弃
  - extend:    目标时长大于拼接时长时冻结最后一帧，可选缩放
  - audio:     音乐增益（可裁剪），可选旁白混音
  - fade:      音频淡出或直通

Executor 通过 Runner 调用 ffmpeg（参数向量，不经 shell），
失败时携带 stderr 末尾若干行；成功后用 ffprobe 测量实际时长并登记到素材目录。

Service.Assemble 把任何失败都转换为 Success=false 的 Result。
*/
package assembly
