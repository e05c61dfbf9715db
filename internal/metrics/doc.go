// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的对话引擎指标采集能力。

# 概述

Collector 通过 promauto.With 注册到调用方注入的 Registerer，
测试与 CLI 各自持有独立的 Registry，互不干扰。

# 主要能力

  - 生成调用：按 provider/model/outcome 计数，记录耗时与重试次数，
    实现 llm.Recorder 接口供 Dispatcher 直接使用。
  - Token 用量：按 prompt/completion 分类累计。
  - 轮次：按 kind（submit/continue）与 outcome 计数，记录耗时、
    参与者数量以及会话状态转换。
  - 上下文：检索片段数量与为满足预算而淘汰的条目。
  - 存储：线程存储操作计数与耗时。
*/
package metrics
