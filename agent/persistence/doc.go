// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 提供会话线程（Thread）的持久化存储抽象及多后端实现。

# 核心接口

  - Store：所有存储的基础接口，提供 Close 与 Ping 健康检查。
  - ThreadStore：按线程 ID 读写完整线程。Save 为整体替换语义，
    保存 N 条消息后 Load 必然得到同样顺序的 N 条消息；
    未知 ID 返回包装了 ErrNotFound 的错误。允许保存空线程。

# 后端实现

  - Memory：进程内存储，读写均做深拷贝，适合测试与演示。
  - File：单个 JSON 文档（conversation_history.json），以线程 ID 为键，
    内存缓存 + 临时文件重命名的原子写入。
  - Redis：每个线程一个 JSON 字符串键，另有集合维护 ID 索引，
    写入与删除通过 MULTI/EXEC 保持一致。
  - SQL：基于 GORM（sqlite / postgres / mysql），threads 与
    thread_messages 两张表，事务内整体替换消息行。
  - Mongo：每个线程一个文档，ReplaceOne upsert。

# 时间戳

所有后端都保证时间戳按原值往返：SQL 存 Unix 纳秒，Mongo 存
RFC 3339 纳秒字符串，File 与 Redis 使用消息的 JSON 线格式。

# 工厂

NewThreadStore 根据 StoreConfig.Type 创建对应后端，空类型视为 memory。
*/
package persistence
