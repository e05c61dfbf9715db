// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供对话引擎的模型接入层：统一的生成能力抽象、Provider 绑定表
以及带重试与错误分类的响应分发器。

# 概述

引擎本身不做推理，每个参与者（Personality）通过 ai_name 绑定到一个
Provider。本包屏蔽不同服务商在接口、鉴权、错误语义和流式协议上的差异，
对上层暴露一致的 generate(model, prompt) -> text 能力。

# 核心接口

  - [Generator]：统一生成接口，Generate / Name
  - [StreamGenerator]：可选流式扩展，逐块输出增量文本
  - [Binding] / [BindingSet]：Provider 标识到生成能力的查找表（按 Kind 区分适配器）
  - [Dispatcher]：为单个参与者的发言调用绑定的 Provider

# 错误分类

Dispatcher 将失败归类为 TIMEOUT、RATE_LIMITED、PROVIDER_ERROR、
EMPTY_RESPONSE 与 CONFIGURATION（见 types.ErrorCode）。只有 TIMEOUT 与
RATE_LIMITED 会按指数退避重试（llm/retry），其余立即返回。

启用熔断时每个 Provider 绑定各有一个熔断器（llm/circuitbreaker）：
重试耗尽后仍失败的发言计入连续失败，熔断期间直接返回 PROVIDER_ERROR，
不再调用 Provider。

# 子包

  - llm/providers：HTTP 错误映射与各服务商适配器（openaicompat、langchain、gemini、echo）
  - llm/factory：按配置构建 BindingSet
  - llm/retry：指数退避重试器
  - llm/circuitbreaker：按 Provider 的熔断器
  - llm/tokenizer：Token 估算
  - llm/embedding：检索索引使用的文本向量化
*/
package llm
