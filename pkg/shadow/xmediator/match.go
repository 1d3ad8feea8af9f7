package xmediator

import "strings"

// KeyName 返回配置键的名称部分：name|user 取 name。
func KeyName(key string) string {
	name, _, _ := strings.Cut(key, "|")
	return name
}

// colonSuffix 返回形如 a:b 的第二段，不是恰好两段时返回 false。
func colonSuffix(s string) (string, bool) {
	first, second, found := strings.Cut(s, ":")
	if !found || first == "" || second == "" || strings.Contains(second, ":") {
		return "", false
	}
	return second, true
}

// MatchName 在 keys 中查找与 name 匹配的配置键，返回下标。
//
// 先按声明顺序精确匹配名称部分；都不匹配时再按声明顺序做冒号后缀匹配：
// name 的后缀等于键，键的后缀等于 name，或两者后缀相等。
func MatchName(keys []string, name string) (int, bool) {
	if name == "" {
		return -1, false
	}
	for i, k := range keys {
		if KeyName(k) == name {
			return i, true
		}
	}

	nameSuffix, nameOK := colonSuffix(name)
	for i, k := range keys {
		key := KeyName(k)
		keySuffix, keyOK := colonSuffix(key)
		switch {
		case nameOK && key == nameSuffix:
			return i, true
		case keyOK && keySuffix == name:
			return i, true
		case nameOK && keyOK && keySuffix == nameSuffix:
			return i, true
		}
	}
	return -1, false
}

// Match 在 configs 中查找名称与 name 匹配的第一项，规则同 MatchName。
func Match[C any](configs []C, keyOf func(C) string, name string) (C, bool) {
	keys := make([]string, len(configs))
	for i, c := range configs {
		keys[i] = keyOf(c)
	}
	i, ok := MatchName(keys, name)
	if !ok {
		var zero C
		return zero, false
	}
	return configs[i], true
}
