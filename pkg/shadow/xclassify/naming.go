package xclassify

import "strings"

// 默认影子名称前后缀。
const (
	DefaultPrefix = "PT_"
	DefaultSuffix = "_PT"
)

// Naming 影子名称规则。
type Naming struct {
	Prefix string
	Suffix string
}

// DefaultNaming 默认规则：PT_ 前缀、_PT 后缀。
var DefaultNaming = Naming{Prefix: DefaultPrefix, Suffix: DefaultSuffix}

// normalized 空规则回退到默认规则。
func (n Naming) normalized() Naming {
	if n.Prefix == "" && n.Suffix == "" {
		return DefaultNaming
	}
	return n
}

// IsShadow 报告 name 是否带有影子前缀或后缀。
func (n Naming) IsShadow(name string) bool {
	if name == "" {
		return false
	}
	n = n.normalized()
	return (n.Prefix != "" && strings.HasPrefix(name, n.Prefix)) ||
		(n.Suffix != "" && strings.HasSuffix(name, n.Suffix))
}

// Shadow 返回业务名称对应的影子名称（加前缀；只有后缀规则时加后缀）。
// name 已是影子名称时原样返回。
func (n Naming) Shadow(name string) string {
	if name == "" || n.IsShadow(name) {
		return name
	}
	n = n.normalized()
	if n.Prefix != "" {
		return n.Prefix + name
	}
	return name + n.Suffix
}

// Business 去掉影子前缀或后缀，返回业务名称。
func (n Naming) Business(name string) string {
	n = n.normalized()
	if n.Prefix != "" && strings.HasPrefix(name, n.Prefix) {
		return strings.TrimPrefix(name, n.Prefix)
	}
	if n.Suffix != "" && strings.HasSuffix(name, n.Suffix) {
		return strings.TrimSuffix(name, n.Suffix)
	}
	return name
}
