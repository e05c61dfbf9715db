// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 gemini 提供基于 Google GenAI SDK（google.golang.org/genai）的 Gemini
生成适配器，实现 llm.StreamGenerator。

# 核心结构体

  - Provider — 持有 genai Models 客户端与默认模型；系统指令通过
    GenerateContentConfig.SystemInstruction 传递
  - ContentModel — GenerateContent / GenerateContentStream 的最小接口，
    *genai.Models 满足该接口，测试可注入假实现

# 构造函数

  - New(ctx, cfg, logger) — 创建 genai.Client（Gemini API 后端）
  - NewWithModels(name, models, defaultModel, logger) — 包装已有客户端

# 错误映射

genai.APIError 的 HTTP 状态码经 providers.MapHTTPError 映射为
RATE_LIMITED / TIMEOUT / PROVIDER_ERROR。
*/
package gemini
