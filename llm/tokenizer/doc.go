// Package tokenizer 提供统一的 Token 计数接口，
// 支持 tiktoken 精确计数与按单词、标点、CJK 字符估算的启发式计数器，用于上下文构建与摘要压缩的 Token 预算管理。
package tokenizer
