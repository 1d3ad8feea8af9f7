package xreport

import (
	"context"
	"log/slog"
)

//go:generate mockgen -source=reporter.go -destination=xreportmock/reporter.go -package=xreportmock

// Reporter 错误上报端。
//
// Report 必须是非阻塞的，实现方不得向调用方返回错误或 panic。
type Reporter interface {
	Report(rec Record)
}

// ReporterFunc 函数适配器。
type ReporterFunc func(rec Record)

// Report 实现 Reporter。
func (f ReporterFunc) Report(rec Record) { f(rec) }

// NoopReporter 丢弃所有记录。
type NoopReporter struct{}

// Report 实现 Reporter。
func (NoopReporter) Report(Record) {}

// =============================================================================
// LogReporter
// =============================================================================

// LogReporter 将记录写入 slog。
type LogReporter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogReporter 创建日志上报端，logger 为 nil 时使用 slog.Default()。
func NewLogReporter(logger *slog.Logger, level slog.Level) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger, level: level}
}

// Report 实现 Reporter。
func (r *LogReporter) Report(rec Record) {
	rec = rec.normalize()
	r.logger.LogAttrs(context.Background(), r.level, rec.Message, rec.LogAttrs()...)
}

// =============================================================================
// MultiReporter
// =============================================================================

// MultiReporter 按顺序扇出到多个上报端。
type MultiReporter []Reporter

// Report 实现 Reporter。
func (m MultiReporter) Report(rec Record) {
	for _, r := range m {
		if r != nil {
			r.Report(rec)
		}
	}
}

// OrNoop 返回 r，r 为 nil 时返回 NoopReporter。
func OrNoop(r Reporter) Reporter {
	if r == nil {
		return NoopReporter{}
	}
	return r
}
