package xconsumer

import "sync"

// OnceExecutor 按键只执行一次，Forget 后可再次执行。
type OnceExecutor struct {
	mu   sync.Mutex
	done map[string]struct{}
}

// Do 键 key 第一次调用时执行 fn 并返回 true，之后返回 false。
// fn 在锁外执行。
func (o *OnceExecutor) Do(key string, fn func()) bool {
	o.mu.Lock()
	if o.done == nil {
		o.done = make(map[string]struct{})
	}
	if _, ok := o.done[key]; ok {
		o.mu.Unlock()
		return false
	}
	o.done[key] = struct{}{}
	o.mu.Unlock()
	fn()
	return true
}

// Forget 移除 key 的执行记录。
func (o *OnceExecutor) Forget(key string) {
	o.mu.Lock()
	delete(o.done, key)
	o.mu.Unlock()
}
