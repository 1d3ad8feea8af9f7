package xshadowconf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/omeyang/xshadow/pkg/observability/xlog"
	"github.com/omeyang/xshadow/pkg/observability/xmetrics"
	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
)

// Listener 接收新文档。返回的错误会被记录并由 Update 汇总返回，不影响其他订阅者。
type Listener func(doc *Document) error

type subscription struct {
	id uint64
	fn Listener
}

// =============================================================================
// Store
// =============================================================================

// Store 当前生效的配置文档，并发安全。
//
// 读取无锁；Update 串行执行，订阅者按订阅顺序收到通知。
type Store struct {
	cur      atomic.Pointer[Document]
	revision atomic.Uint64

	mu     sync.Mutex
	subs   []subscription
	nextID uint64

	observer xmetrics.Observer
	logger   *slog.Logger
}

// StoreOption Store 配置选项。
type StoreOption func(*Store)

// WithLogger 设置日志器。
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver 设置观测器。
func WithObserver(o xmetrics.Observer) StoreOption {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewStore 创建 Store。initial 为 nil 时使用 Default()，非 nil 时先校验。
func NewStore(initial *Document, opts ...StoreOption) (*Store, error) {
	if initial == nil {
		initial = Default()
	} else if err := initial.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		observer: xmetrics.NoopObserver{},
		logger:   xlog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cur.Store(initial)
	s.revision.Store(1)
	return s, nil
}

// Current 返回当前文档。
func (s *Store) Current() *Document { return s.cur.Load() }

// Revision 返回文档版本，每次成功 Update 加一。
func (s *Store) Revision() uint64 { return s.revision.Load() }

// Subscribe 订阅文档变化，返回取消函数。订阅时不会立即回调。
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Update 校验并替换当前文档，然后通知订阅者。
//
// 校验失败时保持旧文档不变并返回错误。订阅者返回的错误合并后返回，
// 此时新文档已经生效。
func (s *Store) Update(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	_, span := xmetrics.Start(context.Background(), s.observer, xmetrics.SpanOptions{
		Component: "xshadowconf",
		Operation: "update",
	})
	if err := doc.Validate(); err != nil {
		span.End(xmetrics.Result{Err: err})
		s.logger.Warn("xshadowconf: document rejected", slog.Any("error", err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cur.Store(doc)
	rev := s.revision.Add(1)

	var errs []error
	for _, sub := range s.subs {
		if err := sub.fn(doc); err != nil {
			s.logger.Error("xshadowconf: listener failed",
				slog.Uint64("revision", rev), slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Int64("revision", int64(rev))}})
	s.logger.Info("xshadowconf: document applied",
		slog.Uint64("revision", rev),
		slog.Bool("enabled", doc.Enabled),
		slog.Int("whitelist_entries", len(doc.Whitelist.Entries)),
		slog.Int("datasources", len(doc.DataSources)))
	return err
}

// UpdateBytes 解析 data 后调用 Update。
func (s *Store) UpdateBytes(data []byte, format Format) error {
	doc, err := Parse(data, format)
	if err != nil {
		s.logger.Warn("xshadowconf: document rejected", slog.Any("error", err))
		return err
	}
	return s.Update(doc)
}

// =============================================================================
// 接线
// =============================================================================

// Provider 提供当前文档，*Store 实现了此接口。影子后端在派生时读取一次。
type Provider interface {
	Current() *Document
}

var _ Provider = (*Store)(nil)

// Static 返回总是提供 doc 的 Provider，doc 为 nil 时使用 Default()。
func Static(doc *Document) Provider {
	if doc == nil {
		doc = Default()
	}
	return staticProvider{doc}
}

type staticProvider struct{ doc *Document }

func (p staticProvider) Current() *Document { return p.doc }

// Resetter 可在配置刷新后丢弃已派生影子后端的对象，如 *xmediator.Registry。
type Resetter interface {
	ResetAll() error
}

// Section 文档中的影子后端配置段。
type Section int

const (
	SectionDataSources Section = iota + 1
	SectionRedis
	SectionMongo
	SectionCaches
)

func (s Section) String() string {
	switch s {
	case SectionDataSources:
		return "datasources"
	case SectionRedis:
		return "redis"
	case SectionMongo:
		return "mongo"
	case SectionCaches:
		return "caches"
	default:
		return "unknown"
	}
}

var allSections = []Section{SectionDataSources, SectionRedis, SectionMongo, SectionCaches}

// changed 报告 sec 段在 prev 与 next 之间是否不同。
func (s Section) changed(prev, next *Document) bool {
	switch s {
	case SectionDataSources:
		return !slices.Equal(prev.DataSources, next.DataSources)
	case SectionRedis:
		return !slices.Equal(prev.Redis, next.Redis)
	case SectionMongo:
		return !slices.Equal(prev.Mongo, next.Mongo)
	case SectionCaches:
		return !slices.Equal(prev.Caches, next.Caches)
	default:
		return false
	}
}

type sectionResetter struct {
	Resetter
	sections []Section
}

// ForSections 让 r 只在 sections 中的某段变化时被重置。
// 未经包装的 Resetter 在任一后端段变化时重置。
func ForSections(r Resetter, sections ...Section) Resetter {
	if r == nil || len(sections) == 0 {
		return r
	}
	return sectionResetter{Resetter: r, sections: sections}
}

func sectionsOf(r Resetter) []Section {
	if sr, ok := r.(sectionResetter); ok {
		return sr.sections
	}
	return allSections
}

// Targets 配置刷新要作用的组件，nil 字段被跳过。
type Targets struct {
	Classifier *xclassify.Classifier
	Gate       *xwhitelist.Gate
	// Resetters 只在其关注的后端段变化时重置；开关与白名单的变化不会重置。
	Resetters []Resetter
}

// Apply 把 t 接到 s 上：立即按当前文档设置一次，之后每次 Update 重新设置。
// 返回取消订阅函数与首次设置的错误。
//
// 首次设置不重置后端，影子后端派生时读取的就是当前文档。
func Apply(s *Store, t Targets) (cancel func(), err error) {
	if s == nil {
		return func() {}, ErrNilStore
	}
	a := &applier{targets: t, logger: s.logger}
	err = a.apply(s.Current())
	return s.Subscribe(a.apply), err
}

type applier struct {
	targets Targets
	logger  *slog.Logger

	mu   sync.Mutex
	prev *Document
}

func (a *applier) apply(doc *Document) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.prev
	a.prev = doc

	t := a.targets
	var errs []error
	if c := t.Classifier; c != nil {
		switch sw := c.Switch(); {
		case doc.Enabled == sw.Enabled():
		case doc.Enabled:
			sw.Enable()
		default:
			reason := doc.DisabledReason
			if reason == "" {
				reason = "disabled by config"
			}
			sw.Disable(doc.DisabledCode, reason)
		}
		c.SetNaming(doc.Naming())
	}
	if g := t.Gate; g != nil {
		entries, err := doc.WhitelistEntries()
		if err == nil {
			err = g.Replace(entries)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("xshadowconf: apply whitelist: %w", err))
		}
		g.SetEnabled(doc.Whitelist.Enabled)
	}
	if prev == nil {
		return errors.Join(errs...)
	}
	for _, r := range t.Resetters {
		if r == nil {
			continue
		}
		sec, ok := firstChanged(sectionsOf(r), prev, doc)
		if !ok {
			continue
		}
		a.logger.Info("xshadowconf: shadow backends reset", slog.String("section", sec.String()))
		if err := r.ResetAll(); err != nil {
			errs = append(errs, fmt.Errorf("xshadowconf: reset backends: %w", err))
		}
	}
	return errors.Join(errs...)
}

func firstChanged(sections []Section, prev, next *Document) (Section, bool) {
	for _, sec := range sections {
		if sec.changed(prev, next) {
			return sec, true
		}
	}
	return 0, false
}
