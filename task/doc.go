// Copyright (c) MediaFlow Authors.
// Licensed under the MIT License.

/*
Package task 提供生成任务的状态模型与持久化存储。

# 概述

每个生成请求被记录为一个 Task，状态只能向前推进：
pending → processing → completed | failed，终态不可再修改。
所有后端共享同一个合并/状态校验逻辑，因此状态规则在任何存储上都一致。
任务从不被自动清理。

# 存储后端

  - MemoryStore - 内存存储，开发与测试使用
  - FileStore   - 单个 JSON 索引文件，原子写入（临时文件 + 重命名）
  - RedisStore  - go-redis，WATCH/MULTI 乐观事务更新
  - GormStore   - GORM，事务内读改写，支持 PostgreSQL / MySQL / SQLite

通过 NewStore 按配置选择后端。
*/
package task
