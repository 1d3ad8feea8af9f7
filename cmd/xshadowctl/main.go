// xshadowctl 是影子配置的离线诊断工具。
//
// 用法:
//
//	xshadowctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-l, --log-level  日志级别 (默认: warn)
//
// 命令:
//
//	validate <config>               校验配置文件并打印摘要
//	check <config> <kind> <target>  检查目标是否在白名单中（kind: url/rpc/mq/cache）
//	match <config> <name>           查找名称匹配的影子资源配置
//	classify                        按给定标记判定一跳调用
//
// 退出码:
//
//	0: 成功（check 放行、match 命中、classify 完成判定）
//	1: 校验失败、check 拒绝、match 未命中、影子开关关闭时收到影子流量
//	2: 参数错误
//
// 示例:
//
//	xshadowctl validate shadow.yaml
//	xshadowctl check shadow.yaml mq orders
//	xshadowctl match --kind redis shadow.yaml sessions
//	xshadowctl classify --header 1 --name orders
//	xshadowctl classify --config shadow.yaml --name PT_orders
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// createApp 创建 CLI 应用。
func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "xshadowctl",
		Usage:     "影子配置离线诊断工具",
		Version:   fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "日志级别 (debug/info/warn/error)",
				Value:   "warn",
			},
		},
		Commands: []*cli.Command{
			createValidateCommand(),
			createCheckCommand(),
			createMatchCommand(),
			createClassifyCommand(),
		},
		// 退出码由 run 统一映射
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(stderr, err)
			}
		},
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	err := createApp(stdout, stderr).Run(ctx, args)
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	fmt.Fprintf(stderr, "错误: %v\n", err)
	return 1
}
