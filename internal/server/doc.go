// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供运维端点（/metrics、/healthz）所在 HTTP 服务器的
生命周期管理。

# 核心类型

  - Manager：封装 net/http.Server，提供非阻塞 Start、幂等 Shutdown
    与异步错误通道 Errors。
  - Config：监听地址、读写与空闲超时、优雅关闭超时。
  - NewOpsHandler：Prometheus 抓取端点与依赖健康检查，外层包裹
    Recovery 与 RequestLogger 中间件。

信号处理由调用方负责，通常通过 signal.NotifyContext 取消根 context
后调用 Shutdown。
*/
package server
