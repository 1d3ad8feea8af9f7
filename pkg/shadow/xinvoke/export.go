package xinvoke

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Trace 上下文弹出时导出的调用记录。
type Trace struct {
	TraceID     string
	InvokeID    string
	Type        InvokeType
	ClusterTest bool
	Debug       bool
	Entrance    bool
	StartTime   time.Time
	Duration    time.Duration
	Scratch     Scratch
}

func newTrace(c *InvokeContext, now time.Time) Trace {
	return Trace{
		TraceID:     c.traceID,
		InvokeID:    c.invokeID,
		Type:        c.invokeType,
		ClusterTest: c.clusterTest,
		Debug:       c.debug,
		Entrance:    c.IsEntrance(),
		StartTime:   c.startTime,
		Duration:    now.Sub(c.startTime),
		Scratch:     c.Scratch(),
	}
}

// Exporter 调用记录导出端。Export 在弹栈路径上同步调用，实现需足够快。
type Exporter interface {
	Export(t Trace)
}

// ExporterFunc 函数适配器。
type ExporterFunc func(t Trace)

// Export 实现 Exporter。
func (f ExporterFunc) Export(t Trace) { f(t) }

// NoopExporter 丢弃所有记录。
type NoopExporter struct{}

// Export 实现 Exporter。
func (NoopExporter) Export(Trace) {}

// =============================================================================
// LineExporter
// =============================================================================

// LineExporter 以竖线分隔的单行文本写出调用记录：
//
//	traceId|startMillis|appName|invokeId|invokeType|costMillis|middleware|service|method|resultCode|request|response|flags|remoteIp:port|reqSize|respSize|ext
//
// flags 依次为影子、调试、入口、服务端四位 0/1。字段中的换行与竖线被替换。
type LineExporter struct {
	mu      sync.Mutex
	w       *bufio.Writer
	appName string
}

// NewLineExporter 创建 LineExporter。
func NewLineExporter(w io.Writer, appName string) *LineExporter {
	return &LineExporter{w: bufio.NewWriter(w), appName: appName}
}

// Export 实现 Exporter。写入错误被忽略。
func (e *LineExporter) Export(t Trace) {
	line := EncodeLine(t, e.appName)
	e.mu.Lock()
	_, _ = e.w.WriteString(line)
	_ = e.w.WriteByte('\n')
	_ = e.w.Flush()
	e.mu.Unlock()
}

// EncodeLine 将调用记录编码为一行文本（不含换行符）。
func EncodeLine(t Trace, appName string) string {
	s := t.Scratch
	var b strings.Builder
	b.Grow(256)
	field := func(v string) {
		b.WriteString(logSafe(v))
		b.WriteByte('|')
	}
	field(t.TraceID)
	field(strconv.FormatInt(t.StartTime.UnixMilli(), 10))
	field(appName)
	field(t.InvokeID)
	field(t.Type.String())
	field(strconv.FormatInt(t.Duration.Milliseconds(), 10))
	field(s.MiddlewareName)
	field(s.ServiceName)
	field(s.MethodName)
	field(s.ResultCode)
	field(s.Request)
	field(s.Response)
	field(flags(t.ClusterTest, t.Debug, t.Entrance, t.Type.IsBoundary()))
	remote := s.RemoteIP
	if s.Port > 0 {
		remote += ":" + strconv.Itoa(s.Port)
	}
	field(remote)
	field(strconv.FormatInt(s.RequestSize, 10))
	field(strconv.FormatInt(s.ResponseSize, 10))
	b.WriteString(logSafe(s.Ext))
	return b.String()
}

func flags(bits ...bool) string {
	buf := make([]byte, len(bits))
	for i, v := range bits {
		buf[i] = '0'
		if v {
			buf[i] = '1'
		}
	}
	return string(buf)
}

var logSafeReplacer = strings.NewReplacer("\r", " ", "\n", " ", "|", "\\")

func logSafe(s string) string {
	if !strings.ContainsAny(s, "\r\n|") {
		return s
	}
	return logSafeReplacer.Replace(s)
}
