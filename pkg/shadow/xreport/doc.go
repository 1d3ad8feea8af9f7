// Package xreport 提供影子流量引擎的错误分类与上报能力。
//
// 引擎内每一个中止条件（开关关闭、白名单拒绝、影子资源不可用、影子消费者注册失败）
// 都会生成一条结构化记录 Record{Type, Code, Message, Detail}，交给外部上报端。
// 从引擎的视角看上报是 fire-and-forget：Report 不返回错误、不阻塞调用方。
//
// # 错误分类
//
//	ErrConfiguration          - 配置错误，中止当前操作但不影响进程
//	ErrTransientRegistration  - 影子消费者注册失败，退避重试后放弃
//	ErrReentrancy             - 内部断言失败（pop 无对应 push、leave 无对应 enter）
//
// 各包的哨兵错误通过 Classed 绑定到分类上，调用方使用 errors.Is 判断类别：
//
//	if errors.Is(err, xreport.ErrConfiguration) {
//	    // 影子流量配置不一致，当前请求已被中止
//	}
//
// # 上报端
//
//   - LogReporter     : 写入 slog
//   - AsyncReporter   : 有界队列 + 后台 goroutine，队列满时丢弃并计数
//   - BreakerReporter : 使用 gobreaker 保护外部 Sink，Sink 持续失败时熔断
//   - MultiReporter   : 扇出到多个上报端
package xreport
