// Package xinvoke 维护一次调用的影子标记与追踪标识，并在同步调用、
// goroutine 切换与异步回调之间传播。
//
// # 核心概念
//
//   - InvokeContext: 一次调用的上下文。traceID 在根节点生成后被所有后代继承；
//     invokeID 是层级编号（"0"、"0.1"、"0.1.1"），子节点编号为父编号加上
//     每个父节点内从 1 开始的序号。影子标记在创建时固定，影子上下文的后代一定是影子。
//   - Stack: 一个工作单元（一次请求、一个消费回调、一个 goroutine）独占的调用栈，
//     存放在 context.Context 中，不做并发保护。
//   - Snapshot: goroutine 切换时捕获的当前上下文。新 goroutine 调用 Restore
//     得到一个新栈，栈底是被捕获上下文的分离副本。
//
// # 基本用法
//
//	ctx, ic, err := xinvoke.Enter(ctx, xinvoke.InvokeRPC)
//	if err != nil {
//	    return err
//	}
//	defer xinvoke.Exit(ctx)
//	ic.Update(func(s *xinvoke.Scratch) { s.ServiceName = "OrderService" })
//
// # 异步边界
//
//	snap, ok := xinvoke.Capture(ctx)
//	go func() {
//	    ctx := xinvoke.Restore(context.Background(), snap)
//	    // xinvoke.IsClusterTest(ctx) 与捕获时一致
//	}()
//
// 或直接使用 Go(ctx, fn)。
//
// # 跨进程传播
//
// Inject/Extract 通过 OpenTelemetry 的 propagation.TextMapCarrier 读写
// p-pradar-traceid、p-pradar-rpcid、p-pradar-cluster-test、p-pradar-debug 四个键，
// HTTP 头与 gRPC metadata 都可适配成 TextMapCarrier。
//
// # 错误
//
// Pop 空栈返回 ErrStackEmpty，对已销毁上下文的写操作返回 ErrContextDestroyed，
// 两者都满足 errors.Is(err, xreport.ErrReentrancy)。
package xinvoke
