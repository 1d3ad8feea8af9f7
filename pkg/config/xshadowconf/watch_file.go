package xshadowconf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce 文件变更防抖时间。
const DefaultDebounce = 100 * time.Millisecond

// WatchOption 文件监视选项。
type WatchOption func(*fileOptions)

type fileOptions struct {
	debounce time.Duration
	onReload func(error)
}

// WithDebounce 设置防抖时间，窗口内的多次变更只触发一次重载。
func WithDebounce(d time.Duration) WatchOption {
	return func(o *fileOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithOnReload 设置每次重载后的回调，err 为 nil 表示新文档已生效。
func WithOnReload(fn func(err error)) WatchOption {
	return func(o *fileOptions) { o.onReload = fn }
}

// FileWatcher 监视配置文件并把变更写入 Store。
type FileWatcher struct {
	store    *Store
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload func(error)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	timer   *time.Timer
	done    chan struct{}
}

// WatchFile 创建文件监视器。需要调用 StartAsync 开始监视，Stop 停止。
//
// 监视的是文件所在目录：编辑器保存时可能先删除再创建文件。
func WatchFile(s *Store, path string, opts ...WatchOption) (*FileWatcher, error) {
	if s == nil {
		return nil, ErrNilStore
	}
	if path == "" {
		return nil, ErrEmptyPath
	}
	if _, err := DetectFormat(path); err != nil {
		return nil, err
	}

	o := fileOptions{debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(&o)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("xshadowconf: create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		return nil, errors.Join(
			fmt.Errorf("xshadowconf: watch directory %s: %w", dir, err),
			fsw.Close(),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &FileWatcher{
		store:    s,
		path:     path,
		watcher:  fsw,
		debounce: o.debounce,
		onReload: o.onReload,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// StartAsync 在后台 goroutine 中开始监视，重复调用无效果。
func (w *FileWatcher) StartAsync() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run()
}

// Stop 停止监视并等待后台 goroutine 退出。
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	running := w.running
	w.running = false
	w.mu.Unlock()

	w.cancel()
	err := w.watcher.Close()
	if running {
		<-w.done
	}
	if errors.Is(err, fsnotify.ErrClosed) {
		return nil
	}
	return err
}

func (w *FileWatcher) run() {
	defer close(w.done)
	filename := filepath.Base(w.path)
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev, filename)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.store.logger.Warn("xshadowconf: file watch error", slog.Any("error", err))
		}
	}
}

func (w *FileWatcher) handleEvent(ev fsnotify.Event, filename string) {
	if filepath.Base(ev.Name) != filename {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *FileWatcher) reload() {
	if w.ctx.Err() != nil {
		return
	}
	doc, err := Load(w.path)
	if err == nil {
		err = w.store.Update(doc)
	} else {
		w.store.logger.Warn("xshadowconf: reload file failed",
			slog.String("path", w.path), slog.Any("error", err))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}
