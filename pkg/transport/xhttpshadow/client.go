package xhttpshadow

import (
	"net/http"

	"go.opentelemetry.io/otel/propagation"

	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
)

// Transport 出站 RoundTripper。
type Transport struct {
	base http.RoundTripper
	cfg  *config
}

// NewTransport 包装 base，base 为 nil 时使用 http.DefaultTransport。
func NewTransport(base http.RoundTripper, opts ...Option) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, cfg: newConfig(opts)}
}

// RoundTrip 检查白名单并注入传播头。请求的 context 中没有调用上下文时原样转发。
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	cur := xinvoke.Current(ctx)
	if cur == nil {
		return t.base.RoundTrip(req)
	}

	if t.cfg.gate != nil && cur.IsClusterTest() {
		if err := t.cfg.gate.Enforce(ctx, t.cfg.outboundTarget(req), xwhitelist.KindURL); err != nil {
			return nil, err
		}
	}

	// RoundTripper 不得修改调用方的请求
	out := req.Clone(ctx)
	for _, k := range []string{xinvoke.HeaderClusterTest, xinvoke.HeaderDebug} {
		out.Header.Del(k)
	}
	xinvoke.Inject(cur.NewChild(xinvoke.InvokeRPC), propagation.HeaderCarrier(out.Header))
	return t.base.RoundTrip(out)
}
