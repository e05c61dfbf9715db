// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供跨模型服务商的通用适配辅助，是各具体适配器子包的公共基础层。

# 核心函数

  - MapHTTPError — 将 HTTP 状态码映射为 types.Error（429/529 → RATE_LIMITED，408/504 → TIMEOUT，其余 → PROVIDER_ERROR）
  - ReadErrorMessage — 解析 OpenAI 风格的 JSON 错误体
  - TransportError — 网络往返失败的标准错误
  - ChooseModel — 按优先级选择模型（请求 > 默认 > 兜底）

# 适配器子包

  - openaicompat — 任意 OpenAI 兼容端点（原生 HTTP + SSE 流式）
  - langchain — 基于 langchaingo 的 anthropic / openai / googleai 适配
  - gemini — 基于 Google GenAI SDK 的 Gemini 适配
  - echo — 离线确定性生成器，用于演示与测试
*/
package providers
