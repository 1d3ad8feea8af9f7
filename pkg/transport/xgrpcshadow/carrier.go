package xgrpcshadow

import (
	"strings"

	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc/metadata"
)

// MDCarrier 把 metadata.MD 适配为 propagation.TextMapCarrier。
type MDCarrier metadata.MD

var _ propagation.TextMapCarrier = MDCarrier(nil)

// Get 返回键的第一个值，去除首尾空白。
func (c MDCarrier) Get(key string) string {
	vs := metadata.MD(c).Get(key)
	if len(vs) == 0 {
		return ""
	}
	return strings.TrimSpace(vs[0])
}

// Set 设置键值，覆盖已有值。
func (c MDCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

// Keys 返回所有键。
func (c MDCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Target 把 /pkg.Service/Method 换算为白名单 RPC 目标 pkg.Service#Method。
func Target(fullMethod string) string {
	s := strings.TrimPrefix(fullMethod, "/")
	service, method, found := strings.Cut(s, "/")
	if !found {
		return s
	}
	return service + "#" + method
}
