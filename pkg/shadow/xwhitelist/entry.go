package xwhitelist

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind 白名单条目类型。
type Kind int

// 条目类型取值。
const (
	KindURL Kind = iota
	KindRPC
	KindMQTopic
	KindCacheKey
)

var kindNames = [...]string{
	KindURL:      "url",
	KindRPC:      "rpc-interface",
	KindMQTopic:  "mq-topic",
	KindCacheKey: "cache-key-prefix",
}

// String 返回类型名称。
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind 解析类型名称，同时接受简写 url、rpc、mq、cache。
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "url":
		return KindURL, nil
	case "rpc", "rpc-interface":
		return KindRPC, nil
	case "mq", "mq-topic", "topic":
		return KindMQTopic, nil
	case "cache", "cache-key-prefix", "cache-key":
		return KindCacheKey, nil
	default:
		return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidEntry, s)
	}
}

// Entry 白名单条目。
type Entry struct {
	Pattern string
	Kind    Kind
}

// URL 创建 URL 条目。
func URL(pattern string) Entry { return Entry{Pattern: pattern, Kind: KindURL} }

// RPC 创建 RPC 接口条目。
func RPC(pattern string) Entry { return Entry{Pattern: pattern, Kind: KindRPC} }

// Topic 创建 MQ 主题条目。
func Topic(pattern string) Entry { return Entry{Pattern: pattern, Kind: KindMQTopic} }

// CacheKey 创建缓存键前缀条目。
func CacheKey(prefix string) Entry { return Entry{Pattern: prefix, Kind: KindCacheKey} }

// =============================================================================
// 快照
// =============================================================================

type urlPattern struct {
	host     string // 为空表示不比较主机
	path     string
	wildcard bool
}

type mqPattern struct {
	topic string
	group string
}

// snapshot 一代白名单，构建后只读。
type snapshot struct {
	gen       uint64
	entries   []Entry
	urls      []urlPattern
	rpcs      map[string]struct{}
	topics    []mqPattern
	keyPrefix []string
}

// Validate 校验条目，返回第一个无效条目的错误。
func Validate(entries []Entry) error {
	_, err := buildSnapshot(0, entries)
	return err
}

func buildSnapshot(gen uint64, entries []Entry) (*snapshot, error) {
	s := &snapshot{
		gen:     gen,
		entries: append([]Entry(nil), entries...),
		rpcs:    make(map[string]struct{}),
	}
	for _, e := range entries {
		p := strings.TrimSpace(e.Pattern)
		if p == "" {
			return nil, fmt.Errorf("%w: empty %s pattern", ErrInvalidEntry, e.Kind)
		}
		switch e.Kind {
		case KindURL:
			up, err := parseURLPattern(p)
			if err != nil {
				return nil, err
			}
			s.urls = append(s.urls, up)
		case KindRPC:
			s.rpcs[p] = struct{}{}
		case KindMQTopic:
			topic, group, _ := strings.Cut(p, "#")
			if topic == "" && group == "" {
				return nil, fmt.Errorf("%w: mq pattern %q", ErrInvalidEntry, p)
			}
			s.topics = append(s.topics, mqPattern{topic: topic, group: group})
		case KindCacheKey:
			s.keyPrefix = append(s.keyPrefix, p)
		default:
			return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidEntry, int(e.Kind))
		}
	}
	return s, nil
}

func parseURLPattern(p string) (urlPattern, error) {
	var up urlPattern
	if rest, ok := strings.CutSuffix(p, "*"); ok {
		up.wildcard = true
		p = rest
	}
	if strings.Contains(p, "://") {
		u, err := url.Parse(p)
		if err != nil {
			return up, fmt.Errorf("%w: url pattern %q: %v", ErrInvalidEntry, p, err)
		}
		up.host = strings.ToLower(u.Host)
		up.path = u.Path
	} else {
		up.path = p
	}
	if !up.wildcard && up.path == "" {
		up.path = "/"
	}
	return up, nil
}

// splitTarget 拆出目标 URL 的主机与路径，忽略查询串与片段。
func splitTarget(target string) (host, path string) {
	if strings.Contains(target, "://") {
		if u, err := url.Parse(target); err == nil {
			path = u.Path
			if path == "" {
				path = "/"
			}
			return strings.ToLower(u.Host), path
		}
	}
	path, _, _ = strings.Cut(target, "?")
	path, _, _ = strings.Cut(path, "#")
	return "", path
}

func (s *snapshot) matchURL(target string) bool {
	host, path := splitTarget(target)
	for _, p := range s.urls {
		if p.host != "" && !hostMatch(p.host, host) {
			continue
		}
		if p.wildcard {
			if strings.HasPrefix(path, p.path) {
				return true
			}
			continue
		}
		if path == p.path || p.path == "/" ||
			(strings.HasPrefix(path, p.path) && (strings.HasSuffix(p.path, "/") || path[len(p.path)] == '/')) {
			return true
		}
	}
	return false
}

// hostMatch 模式不带端口时忽略目标端口。
func hostMatch(pattern, host string) bool {
	if pattern == host {
		return true
	}
	if strings.Contains(pattern, ":") {
		return false
	}
	h, _, found := strings.Cut(host, ":")
	return found && h == pattern
}

func (s *snapshot) matchRPC(target string) bool {
	if _, ok := s.rpcs[target]; ok {
		return true
	}
	class, _, found := strings.Cut(target, "#")
	if !found {
		return false
	}
	_, ok := s.rpcs[class]
	return ok
}

func (s *snapshot) matchTopic(target string) bool {
	topic, group, _ := strings.Cut(target, "#")
	for _, p := range s.topics {
		if p.topic == "" {
			// "#group" 形式只比较消费组
			if group != "" && group == p.group {
				return true
			}
			continue
		}
		if p.topic != topic {
			continue
		}
		if p.group == "" || group == "" || p.group == group {
			return true
		}
	}
	return false
}

func (s *snapshot) matchCacheKey(target string) bool {
	for _, p := range s.keyPrefix {
		if strings.HasPrefix(target, p) {
			return true
		}
	}
	return false
}

func (s *snapshot) match(target string, kind Kind) bool {
	switch kind {
	case KindURL:
		return s.matchURL(target)
	case KindRPC:
		return s.matchRPC(target)
	case KindMQTopic:
		return s.matchTopic(target)
	case KindCacheKey:
		return s.matchCacheKey(target)
	default:
		return false
	}
}
