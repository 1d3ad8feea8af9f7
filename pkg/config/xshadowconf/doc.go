// Package xshadowconf 影子配置文档的解析、存储与刷新。
//
// 配置文档描述影子开关、白名单条目、MQ 影子命名规则以及各类影子后端
// （数据源、Redis、MongoDB、本地缓存）。文档以 YAML 或 JSON 编写，由 koanf 解析。
//
// # 刷新来源
//
//   - FileWatcher: 监视本地文件（fsnotify，带防抖）
//   - EtcdWatcher: 监视 etcd 中的单个键
//   - Puller: 按 cron 表达式定时拉取
//
// 每个来源把新文档交给 Store.Update。文档校验失败时保持旧文档不变，
// 校验通过时原子替换并通知订阅者。Apply 把 Store 接到判定器、白名单闸门
// 与绑定注册表上，配置刷新后它们立即生效。
//
// # 文档示例
//
//	enabled: true
//	mq:
//	  prefix: PT_
//	whitelist:
//	  enabled: true
//	  entries:
//	    - kind: url
//	      pattern: /api/orders*
//	    - kind: mq
//	      pattern: orders#billing
//	datasources:
//	  - key: jdbc/orders|app
//	    url: jdbc:mysql://shadow/db
//	    username: pt
package xshadowconf
