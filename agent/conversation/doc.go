// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 conversation 提供多参与者对话的编排能力：调度、上下文组装、
并发分发与按序提交。

# 概述

一个 Session 对应一段对话：当前线程、参与者选择、线程的检索索引，
以及 Idle / Active / Dispatching 三态状态机。Orchestrator 是唯一
驱动 Session 的入口，每一轮（round）按以下步骤执行：

 1. Scheduler 根据刺激消息决定发言者：点名（开头称呼、@Name、
    句末呼格）只调度被点名者，否则对所选主参与者随机洗牌广播
 2. ContextBuilder 为每位发言者组装 Prompt：主模板 + 个人指令、
    检索到的早期消息、最近 N 条历史与 "Name:" 提示，并在 token
    预算内按“最旧历史 → 低分片段 → 刺激消息”的顺序淘汰
 3. 生成调用经 Dispatcher 并发发出（max_in_flight 上限），结果
    严格按调度顺序提交；失败的参与者提交一条分隔消息
 4. 一轮结束后保存线程；首轮结束且无主题时由 TopicGenerator 命名

# 核心类型

  - Orchestrator：NewTopic / SwitchThread / Submit / ContinueRound /
    Cancel / Summarize / GenerateTopic / GetContext / Close
  - Session：状态、线程副本、参与者选择与后续点名提示
  - Scheduler / DetectAddressee：点名检测与广播顺序
  - ContextBuilder / Prompt：预算受限的提示词组装
  - Listener：OnPartial / OnCommit / OnStateChange 回调

# 并发

同一 Session 上改变状态的操作由一把先到先得的轮次锁串行化，
轮次进行中到达的输入会排队等待。Summarize 与 GetContext 只读取
线程副本，可在任意时刻调用。Cancel 丢弃未完成的轮次，已提交的
消息保留并被保存。
*/
package conversation
