// Package config 提供 MediaFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序加载，
// 覆盖服务器、日志、遥测、任务存储、素材存储、服务商、轮询与合成等配置段。
package config
