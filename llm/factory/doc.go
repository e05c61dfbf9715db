// Package factory 提供 Provider 绑定的集中式工厂，
// 通过 kind 映射创建生成器与 Binding 实例，打破 llm 包与各 provider 子包之间的循环依赖。
package factory
