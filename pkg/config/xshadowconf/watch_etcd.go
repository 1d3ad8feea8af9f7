package xshadowconf

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/omeyang/xshadow/pkg/resilience/xretry"
)

// EtcdClient EtcdWatcher 需要的 etcd 操作，*clientv3.Client 实现了此接口。
type EtcdClient interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan
}

var _ EtcdClient = (*clientv3.Client)(nil)

// EtcdOption etcd 监视选项。
type EtcdOption func(*EtcdWatcher)

// WithEtcdFormat 设置键值的格式，默认 YAML。
func WithEtcdFormat(f Format) EtcdOption {
	return func(w *EtcdWatcher) { w.format = f }
}

// WithEtcdBackoff 设置断线重连的退避策略。
func WithEtcdBackoff(b xretry.BackoffPolicy) EtcdOption {
	return func(w *EtcdWatcher) {
		if b != nil {
			w.backoff = b
		}
	}
}

// EtcdWatcher 监视 etcd 中的配置键，把每次写入解析后交给 Store。
//
// 删除事件被忽略，保持当前文档。watch 断开后按退避策略重连，
// 版本被压缩时重新读取整个键。
type EtcdWatcher struct {
	store   *Store
	client  EtcdClient
	key     string
	format  Format
	backoff xretry.BackoffPolicy
}

// NewEtcdWatcher 创建 etcd 监视器。
func NewEtcdWatcher(s *Store, client EtcdClient, key string, opts ...EtcdOption) (*EtcdWatcher, error) {
	switch {
	case s == nil:
		return nil, ErrNilStore
	case client == nil:
		return nil, ErrNilClient
	case key == "":
		return nil, ErrEmptyKey
	}
	w := &EtcdWatcher{
		store:   s,
		client:  client,
		key:     key,
		format:  FormatYAML,
		backoff: xretry.NewExponentialBackoff(xretry.WithInitialDelay(time.Second), xretry.WithMaxDelay(time.Minute)),
	}
	for _, opt := range opts {
		opt(w)
	}
	if _, err := parserFor(w.format); err != nil {
		return nil, err
	}
	return w, nil
}

// Sync 读取一次配置键并应用，返回键的修改版本与读取时的集群版本。
func (w *EtcdWatcher) Sync(ctx context.Context) (modRev, headerRev int64, err error) {
	resp, err := w.client.Get(ctx, w.key)
	if err != nil {
		return 0, 0, fmt.Errorf("xshadowconf: get %s: %w", w.key, err)
	}
	if resp.Header != nil {
		headerRev = resp.Header.Revision
	}
	if len(resp.Kvs) == 0 {
		return 0, headerRev, fmt.Errorf("%w: %s", ErrKeyNotFound, w.key)
	}
	kv := resp.Kvs[0]
	return kv.ModRevision, headerRev, w.store.UpdateBytes(kv.Value, w.format)
}

// Run 先同步一次，然后持续监视直到 ctx 取消，返回 ctx.Err()。
func (w *EtcdWatcher) Run(ctx context.Context) error {
	logger := w.store.logger.With(slog.String("key", w.key))

	var rev int64
	attempt := 0
	resync := true
	for ctx.Err() == nil {
		if resync {
			_, headerRev, err := w.Sync(ctx)
			if err != nil && headerRev == 0 {
				attempt++
				logger.Warn("xshadowconf: etcd sync failed", slog.Int("attempt", attempt), slog.Any("error", err))
				if !sleep(ctx, w.backoff.NextDelay(attempt)) {
					break
				}
				continue
			}
			if err != nil {
				logger.Warn("xshadowconf: etcd document not applied", slog.Any("error", err))
			}
			rev, resync = headerRev, false
		}

		next, compacted, err := w.watch(ctx, rev+1, logger)
		if next > rev {
			rev, attempt = next, 0
		}
		if ctx.Err() != nil {
			break
		}
		resync = compacted
		attempt++
		logger.Warn("xshadowconf: etcd watch interrupted",
			slog.Int64("revision", rev),
			slog.Bool("compacted", compacted),
			slog.Any("error", err))
		if !sleep(ctx, w.backoff.NextDelay(attempt)) {
			break
		}
	}
	return ctx.Err()
}

// watch 从 from 开始监视，返回最后处理的版本以及是否因压缩中断。
func (w *EtcdWatcher) watch(ctx context.Context, from int64, logger *slog.Logger) (last int64, compacted bool, err error) {
	wctx, cancel := context.WithCancel(clientv3.WithRequireLeader(ctx))
	defer cancel()

	for resp := range w.client.Watch(wctx, w.key, clientv3.WithRev(from)) {
		if err := resp.Err(); err != nil {
			return last, resp.CompactRevision != 0, err
		}
		for _, ev := range resp.Events {
			if ev.Kv == nil {
				continue
			}
			last = ev.Kv.ModRevision
			switch ev.Type {
			case mvccpb.PUT:
				if err := w.store.UpdateBytes(ev.Kv.Value, w.format); err != nil {
					logger.Warn("xshadowconf: etcd document not applied",
						slog.Int64("revision", last), slog.Any("error", err))
				}
			case mvccpb.DELETE:
				logger.Warn("xshadowconf: config key deleted, keeping current document",
					slog.Int64("revision", last))
			}
		}
	}
	return last, false, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
