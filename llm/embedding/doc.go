// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 embedding 提供统一的文本嵌入（Embedding）接口与多种实现，
为检索索引把消息文本转换为向量。

# 核心接口

  - Provider：统一嵌入接口，定义 Embed、EmbedQuery、EmbedDocuments 等方法。
  - EmbeddingRequest / EmbeddingResponse：标准化的请求与响应模型。
  - BaseProvider：HTTP 公共基类，封装请求发送与 providers.MapHTTPError 错误映射。

# 实现

  - HashingProvider：离线默认实现，词频哈希到固定维度后 L2 归一化，结果确定。
  - OpenAIProvider：OpenAI 兼容 /v1/embeddings 端点。
  - GenAIProvider：Google GenAI SDK 的 EmbedContent，支持批量与输出维度控制。

# 使用方式

	p, err := embedding.New(ctx, embedding.Config{Kind: embedding.KindHashing})
	vec, err := p.EmbedQuery(ctx, "搜索关键词")
	vecs, err := p.EmbedDocuments(ctx, []string{"文档1", "文档2"})
*/
package embedding
