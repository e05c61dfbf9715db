// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 Roundtable 命令行程序入口。

# 概述

cmd/roundtable 装配对话编排器及其依赖（人格、provider 绑定、
线程存储、检索、指标与遥测），并提供交互式对话和线程管理子命令。
配置来自 YAML 文件与 ROUNDTABLE_ 前缀的环境变量。

# 子命令

  - chat（默认）：交互式对话，支持 /new、/switch、/select、/continue、
    /summary、/topic、/context 等会话命令
  - threads [list|show|delete]：查看与管理已保存线程
  - summarize：让主持人总结指定线程
  - personalities：列出已加载的人格
  - version：显示构建信息

# 运维

metrics.enabled 为 true 且配置了 metrics.addr 时，在独立端口暴露
/metrics 与 /healthz。SIGINT/SIGTERM 取消根 context，当前轮次
以 ROUND_CANCELLED 结束，线程在退出前保存。
*/
package main
