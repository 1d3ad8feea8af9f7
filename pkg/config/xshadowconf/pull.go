package xshadowconf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// 拉取默认值。
const (
	DefaultSchedule    = "@every 30s"
	DefaultPullTimeout = 10 * time.Second
)

// FetchFunc 拉取一份原始配置，如调用配置中心的 HTTP 接口。
type FetchFunc func(ctx context.Context) ([]byte, error)

// PullOption 定时拉取选项。
type PullOption func(*Puller)

// WithSchedule 设置 cron 表达式，支持标准五段式与 @every 等描述符。
func WithSchedule(spec string) PullOption {
	return func(p *Puller) { p.schedule = spec }
}

// WithPullFormat 设置拉取内容的格式，默认 YAML。
func WithPullFormat(f Format) PullOption {
	return func(p *Puller) { p.format = f }
}

// WithPullTimeout 设置单次拉取超时。
func WithPullTimeout(d time.Duration) PullOption {
	return func(p *Puller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// Puller 按 cron 表达式定时拉取配置。内容与上次成功应用的相同时跳过。
type Puller struct {
	store    *Store
	fetch    FetchFunc
	schedule string
	format   Format
	timeout  time.Duration

	mu      sync.Mutex
	last    []byte
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// NewPuller 创建定时拉取器，需要调用 Start 启动。
func NewPuller(s *Store, fetch FetchFunc, opts ...PullOption) (*Puller, error) {
	if s == nil {
		return nil, ErrNilStore
	}
	if fetch == nil {
		return nil, ErrNilFetch
	}
	p := &Puller{
		store:    s,
		fetch:    fetch,
		schedule: DefaultSchedule,
		format:   FormatYAML,
		timeout:  DefaultPullTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if _, err := cron.ParseStandard(p.schedule); err != nil {
		return nil, fmt.Errorf("xshadowconf: invalid schedule %q: %w", p.schedule, err)
	}
	if _, err := parserFor(p.format); err != nil {
		return nil, err
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p, nil
}

// Start 启动调度。上一次拉取仍在执行时跳过本次触发。
func (p *Puller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(p.schedule, func() {
		if err := p.PullNow(p.ctx); err != nil {
			p.store.logger.Warn("xshadowconf: scheduled pull failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("xshadowconf: add pull job: %w", err)
	}
	c.Start()
	p.cron, p.started = c, true
	return nil
}

// Stop 停止调度，取消正在执行的拉取并等待其返回。
func (p *Puller) Stop() {
	p.cancel()
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// PullNow 立即拉取一次并应用。
func (p *Puller) PullNow(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	data, err := p.fetch(ctx)
	if err != nil {
		return fmt.Errorf("xshadowconf: fetch: %w", err)
	}

	p.mu.Lock()
	same := p.last != nil && bytes.Equal(p.last, data)
	p.mu.Unlock()
	if same {
		return nil
	}

	doc, err := Parse(data, p.format)
	if err != nil {
		return err
	}
	err = p.store.Update(doc)

	// 订阅者出错时文档也已生效
	p.mu.Lock()
	p.last = bytes.Clone(data)
	p.mu.Unlock()
	return err
}
