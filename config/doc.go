// Package config 提供 Roundtable 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → ROUNDTABLE_* 环境变量 的顺序叠加，
// 覆盖对话、上下文预算、检索、调度重试、provider 绑定、线程存储、
// 日志、遥测与指标各个部分。Validate 汇总所有非法项后一次性返回。
package config
