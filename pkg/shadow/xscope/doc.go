// Package xscope 提供拦截器作用域与重入保护。
//
// 同一工作单元内，按 (拦截器, 调用点) 维护一个 Invocation，记录当前嵌套深度。
// 三种执行策略：
//
//   - Boundary: 只在空闲时进入，嵌套调用被跳过（外层已经处理过）
//   - Always:   总是进入，深度加一
//   - Internal: 只在外层 Boundary 已进入时进入，作为内层观察点
//
// 推荐使用 Guard 以保证 Leave 一定执行：
//
//	entered, err := xscope.Guard(ctx, key, xscope.Boundary, func(ctx context.Context) error {
//	    return doTrace(ctx)
//	})
//
// 手动调用时，只有 TryEnter 返回 true 才能 Leave；
// 没有对应进入的 Leave 返回 ErrLeaveWithoutEnter，状态不变。
package xscope
