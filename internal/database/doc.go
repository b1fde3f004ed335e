// Copyright (c) MediaFlow Authors.
// Licensed under the MIT License.

/*
Package database 提供基于 GORM 的数据库接入：按驱动打开连接、
管理连接池并执行带重试的事务。

# 核心类型

  - Open / Dialector：按 config.DatabaseConfig 选择 postgres、mysql
    或纯 Go 的 sqlite 方言。sqlite 会自动创建数据文件目录。
  - PoolManager：配置连接池参数，后台健康检查在每次成功 Ping 后
    把连接统计交给 StatsRecorder（通常是 metrics.Collector）。
    Close 会先停止健康检查再关闭连接。
  - Transaction：在事务中执行函数，对死锁、序列化失败、
    SQLITE_BUSY 等瞬时错误做指数退避重试。任务存储的 Update 使用它。
*/
package database
