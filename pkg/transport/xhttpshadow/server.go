package xhttpshadow

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/propagation"

	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
)

// Middleware 返回入站中间件。c 为 nil 时使用默认判定器。
func Middleware(c *xclassify.Classifier, opts ...Option) func(http.Handler) http.Handler {
	if c == nil {
		c = xclassify.New()
	}
	cfg := newConfig(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			in := xinvoke.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			m := xclassify.MarkersFrom(in)
			m.UserAgent = r.UserAgent()

			ctx, ic, _, err := c.ClassifyContext(r.Context(), m, xinvoke.InvokeWebServer)
			if err != nil {
				var disabled *xclassify.ShadowDisabledError
				if errors.As(err, &disabled) {
					http.Error(w, err.Error(), cfg.rejectStatus)
					return
				}
				cfg.logger.ErrorContext(r.Context(), "xhttpshadow: enter invoke context failed", slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}
			defer func() {
				if err := xinvoke.Exit(ctx); err != nil {
					cfg.logger.ErrorContext(ctx, "xhttpshadow: exit invoke context failed", slog.Any("error", err))
				}
			}()

			_ = ic.Update(func(s *xinvoke.Scratch) {
				s.MiddlewareName = "http"
				s.ServiceName = r.URL.Path
				s.MethodName = r.Method
				s.RequestSize = r.ContentLength
				s.RemoteIP = remoteIP(r.RemoteAddr)
			})

			if cfg.gate != nil && ic.IsClusterTest() {
				if err := cfg.gate.Enforce(ctx, cfg.inboundTarget(r), xwhitelist.KindURL); err != nil {
					_ = ic.Update(func(s *xinvoke.Scratch) { s.ResultCode = strconv.Itoa(cfg.deniedStatus) })
					http.Error(w, err.Error(), cfg.deniedStatus)
					return
				}
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))
			_ = ic.Update(func(s *xinvoke.Scratch) {
				s.ResultCode = strconv.Itoa(rec.status)
				s.ResponseSize = rec.written
			})
		})
	}
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// statusRecorder 记录响应状态码与字节数。
type statusRecorder struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status, r.wroteHeader = code, true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	n, err := r.ResponseWriter.Write(b)
	r.written += int64(n)
	return n, err
}

// Unwrap 供 http.ResponseController 访问底层 ResponseWriter。
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
