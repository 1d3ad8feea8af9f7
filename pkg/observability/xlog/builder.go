package xlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Builder 日志配置构建器。配置错误延迟到 Build 返回。
type Builder struct {
	output      io.Writer
	closer      io.Closer
	level       *slog.LevelVar
	format      string
	addSource   bool
	enrich      bool
	attrs       []slog.Attr
	replaceAttr func(groups []string, a slog.Attr) slog.Attr
	err         error
}

// New 默认 stderr、Info、text，启用 enrich。
func New() *Builder {
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelInfo)
	return &Builder{
		output: os.Stderr,
		level:  lv,
		format: "text",
		enrich: true,
	}
}

// SetOutput 设置输出目标。
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if w != nil {
		b.output = w
	}
	return b
}

// SetLevel 设置初始级别。
func (b *Builder) SetLevel(l slog.Level) *Builder {
	b.level.Set(l)
	return b
}

// SetLevelString 以字符串设置初始级别。
func (b *Builder) SetLevelString(s string) *Builder {
	l, err := ParseLevel(s)
	if err != nil {
		b.err = err
		return b
	}
	return b.SetLevel(l)
}

// SetFormat text 或 json，空串视为 text。
func (b *Builder) SetFormat(format string) *Builder {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "":
		b.format = "text"
	case "text", "json":
		b.format = f
	default:
		b.err = fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return b
}

// SetAddSource 是否记录源码位置。
func (b *Builder) SetAddSource(v bool) *Builder {
	b.addSource = v
	return b
}

// SetEnrich 是否注入调用上下文属性。
func (b *Builder) SetEnrich(v bool) *Builder {
	b.enrich = v
	return b
}

// SetApp 为每条日志附加 app 属性。
func (b *Builder) SetApp(name string) *Builder {
	if name != "" {
		b.attrs = append(b.attrs, slog.String("app", name))
	}
	return b
}

// SetReplaceAttr 设置属性替换函数（脱敏、重命名），返回空 Key 的属性被移除。
func (b *Builder) SetReplaceAttr(fn func(groups []string, a slog.Attr) slog.Attr) *Builder {
	b.replaceAttr = fn
	return b
}

// SetRotation 输出到按大小轮转的文件。
func (b *Builder) SetRotation(filename string, o RotateOptions) *Builder {
	w, err := newRotator(filename, o)
	if err != nil {
		b.err = err
		return b
	}
	b.output, b.closer = w, w
	return b
}

// Build 返回日志器、动态级别与清理函数（幂等，关闭轮转文件）。
func (b *Builder) Build() (*slog.Logger, *slog.LevelVar, func() error, error) {
	if b.err != nil {
		return nil, nil, nil, b.err
	}
	opts := &slog.HandlerOptions{
		Level:       b.level,
		AddSource:   b.addSource,
		ReplaceAttr: b.replaceAttr,
	}
	var h slog.Handler
	if b.format == "json" {
		h = slog.NewJSONHandler(b.output, opts)
	} else {
		h = slog.NewTextHandler(b.output, opts)
	}
	if b.enrich {
		h = &EnrichHandler{base: h}
	}
	if len(b.attrs) > 0 {
		h = h.WithAttrs(b.attrs)
	}

	closer := b.closer
	var once sync.Once
	cleanup := func() error {
		var err error
		once.Do(func() {
			if closer != nil {
				err = closer.Close()
			}
		})
		return err
	}
	return slog.New(h), b.level, cleanup, nil
}
