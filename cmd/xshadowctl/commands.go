package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xshadow/pkg/config/xshadowconf"
	"github.com/omeyang/xshadow/pkg/observability/xlog"
	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
	"github.com/omeyang/xshadow/pkg/storage/xdatasource"
)

// exitError 命令已完成输出，只需设置退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 参数错误，退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// logger 按全局 --log-level 构造输出到 stderr 的日志器。
func logger(cmd *cli.Command) (*slog.Logger, error) {
	root := cmd.Root()
	l, _, _, err := xlog.New().
		SetOutput(root.ErrWriter).
		SetLevelString(root.String("log-level")).
		Build()
	if err != nil {
		return nil, usagef("invalid log level: %v", err)
	}
	return l, nil
}

func loadConfig(args cli.Args, want int, usage string) (*xshadowconf.Document, error) {
	if args.Len() != want {
		return nil, usagef("usage: %s", usage)
	}
	return xshadowconf.Load(args.First())
}

// =============================================================================
// validate
// =============================================================================

func createValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "校验配置文件并打印摘要",
		ArgsUsage: "<config>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			doc, err := loadConfig(cmd.Args(), 1, "validate <config>")
			if err != nil {
				return err
			}
			printSummary(cmd.Root().Writer, doc)
			return nil
		},
	}
}

func printSummary(w io.Writer, doc *xshadowconf.Document) {
	naming := doc.Naming()
	fmt.Fprintf(w, "enabled:     %t\n", doc.Enabled)
	if !doc.Enabled && doc.DisabledReason != "" {
		fmt.Fprintf(w, "disabled:    [%s] %s\n", doc.DisabledCode, doc.DisabledReason)
	}
	fmt.Fprintf(w, "mq naming:   prefix=%q suffix=%q\n", naming.Prefix, naming.Suffix)
	fmt.Fprintf(w, "whitelist:   enabled=%t entries=%d\n", doc.Whitelist.Enabled, len(doc.Whitelist.Entries))
	for _, ds := range doc.DataSources {
		mode := "pool"
		if ds.ShadowTable {
			mode = "shadow-table"
		}
		fmt.Fprintf(w, "datasource:  %s (%s) %s\n", ds.Key, mode, xdatasource.Redact(ds.URL))
	}
	for _, r := range doc.Redis {
		fmt.Fprintf(w, "redis:       %s addr=%q prefix=%q\n", r.Key, r.Addr, r.KeyPrefix)
	}
	for _, m := range doc.Mongo {
		fmt.Fprintf(w, "mongo:       %s database=%q\n", m.Key, m.Database)
	}
	for _, c := range doc.Caches {
		fmt.Fprintf(w, "cache:       %s max_cost=%d\n", c.Key, c.MaxCost)
	}
}

// =============================================================================
// check
// =============================================================================

func createCheckCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Aliases:   []string{"c"},
		Usage:     "检查目标是否在白名单中",
		ArgsUsage: "<config> <kind> <target>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			doc, err := loadConfig(cmd.Args(), 3, "check <config> <kind> <target>")
			if err != nil {
				return err
			}
			kind, err := xwhitelist.ParseKind(cmd.Args().Get(1))
			if err != nil {
				return usagef("%v", err)
			}
			l, err := logger(cmd)
			if err != nil {
				return err
			}
			entries, err := doc.WhitelistEntries()
			if err != nil {
				return err
			}
			gate, err := xwhitelist.New(entries, xwhitelist.WithLogger(l))
			if err != nil {
				return err
			}
			gate.SetEnabled(doc.Whitelist.Enabled)

			target := cmd.Args().Get(2)
			d := gate.Check(target, kind)
			w := cmd.Root().Writer
			if !d.Allowed {
				fmt.Fprintf(w, "denied: %s %s (%s)\n", kind, target, d.Reason)
				return &exitError{code: 1}
			}
			fmt.Fprintf(w, "allowed: %s %s (%s)\n", kind, target, d.Reason)
			return nil
		},
	}
}

// =============================================================================
// match
// =============================================================================

func createMatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "match",
		Aliases:   []string{"m"},
		Usage:     "查找名称匹配的影子资源配置（先精确匹配，再做冒号后缀匹配）",
		ArgsUsage: "<config> <name>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "kind",
				Aliases: []string{"k"},
				Usage:   "资源类型 (datasource/redis/mongo/cache)",
				Value:   "datasource",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			doc, err := loadConfig(cmd.Args(), 2, "match [--kind K] <config> <name>")
			if err != nil {
				return err
			}
			name := cmd.Args().Get(1)
			line, ok, err := matchResource(doc, cmd.String("kind"), name)
			if err != nil {
				return err
			}
			w := cmd.Root().Writer
			if !ok {
				fmt.Fprintf(w, "no match: %s\n", name)
				return &exitError{code: 1}
			}
			fmt.Fprintln(w, line)
			return nil
		},
	}
}

func matchResource(doc *xshadowconf.Document, kind, name string) (string, bool, error) {
	switch strings.ToLower(kind) {
	case "datasource", "ds":
		ds, ok := doc.DataSourceFor(name)
		if ds.ShadowTable {
			return fmt.Sprintf("matched datasource %s: shadow-table", ds.Key), ok, nil
		}
		return fmt.Sprintf("matched datasource %s: %s %s", ds.Key, ds.Driver, xdatasource.Redact(xdatasource.DSN(ds))), ok, nil
	case "redis":
		r, ok := doc.RedisFor(name)
		if r.Addr == "" {
			return fmt.Sprintf("matched redis %s: key prefix %q", r.Key, r.KeyPrefix), ok, nil
		}
		return fmt.Sprintf("matched redis %s: %s db=%d", r.Key, r.Addr, r.DB), ok, nil
	case "mongo":
		m, ok := doc.MongoFor(name)
		return fmt.Sprintf("matched mongo %s: database=%q", m.Key, m.Database), ok, nil
	case "cache":
		c, ok := doc.CacheFor(name)
		return fmt.Sprintf("matched cache %s: max_cost=%d", c.Key, c.MaxCost), ok, nil
	default:
		return "", false, usagef("unknown kind %q", kind)
	}
}

// =============================================================================
// classify
// =============================================================================

func createClassifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "classify",
		Usage: "按给定标记判定一跳调用",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "配置文件，提供开关与 MQ 名称规则"},
			&cli.StringFlag{Name: "header", Usage: "影子头部的值"},
			&cli.StringFlag{Name: "ua", Usage: "User-Agent"},
			&cli.StringFlag{Name: "debug", Usage: "调试头部的值"},
			&cli.StringSliceFlag{Name: "name", Aliases: []string{"n"}, Usage: "队列、主题或资源名称，可重复"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Present() {
				return usagef("classify takes no positional arguments")
			}
			l, err := logger(cmd)
			if err != nil {
				return err
			}
			doc := xshadowconf.Default()
			if path := cmd.String("config"); path != "" {
				if doc, err = xshadowconf.Load(path); err != nil {
					return err
				}
			}
			sw := xclassify.NewSwitch(true)
			if !doc.Enabled {
				sw.Disable(doc.DisabledCode, doc.DisabledReason)
			}
			c := xclassify.New(
				xclassify.WithSwitch(sw),
				xclassify.WithNaming(doc.Naming()),
				xclassify.WithLogger(l),
			)
			res, err := c.Classify(xclassify.Markers{
				ClusterTest: cmd.String("header"),
				UserAgent:   cmd.String("ua"),
				Debug:       cmd.String("debug"),
				Names:       cmd.StringSlice("name"),
			})

			w := cmd.Root().Writer
			fmt.Fprintf(w, "shadow=%t source=%s debug=%t\n", res.Shadow, res.Source, res.Debug)
			var disabled *xclassify.ShadowDisabledError
			if errors.As(err, &disabled) {
				fmt.Fprintf(w, "rejected: %v\n", disabled)
				return &exitError{code: 1}
			}
			return err
		},
	}
}
