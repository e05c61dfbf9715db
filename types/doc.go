// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 roundtable 对话编排引擎的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、llm、rag、config
等上层模块提供统一的数据契约与错误码，以避免循环依赖。

# 核心类型

  - Message           — 线程中的一条消息（sender / message / ai_name / model / is_partial / is_divider / timestamp）
  - Thread            — 对话线程（date + topic + 有序消息），Append 保证时间戳单调不减
  - ThreadInfo        — list_threads 使用的线程元数据
  - Error / ErrorCode — 结构化错误体系，按 Code 实现 errors.Is
  - TokenCounter      — 最小 Token 计数接口（CountTokens(string) int）
  - TokenUsage        — Provider 返回的 Token 用量

# 主要能力

  - Context 传播：WithThreadID / WithRoundID / WithParticipant
  - 错误工具链：GetErrorCode / IsErrorCode / IsRetryable
*/
package types
