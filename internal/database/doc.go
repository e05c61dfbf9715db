// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的 SQL 连接管理，供线程持久化的 SQL 后端使用。

# 核心类型

  - Config：驱动（sqlite / postgres / mysql）、DSN 与连接池配置。
  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、Close()，可选后台健康检查。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - Open / Dialector：按驱动名选择 glebarez/sqlite、gorm postgres
    或 gorm mysql 方言。
  - 事务管理：WithTransaction 单次执行，WithTransactionRetry 对死锁、
    序列化失败与 SQLite 忙锁做指数退避重试。
*/
package database
