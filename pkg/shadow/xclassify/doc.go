// Package xclassify 判定一次调用是生产流量还是影子流量。
//
// 判定依据（优先级从高到低）：
//
//  1. 已建立的父上下文：父上下文是影子时结果恒为影子
//  2. 显式头部 p-pradar-cluster-test：取值 "1"、"true"（忽略大小写）或 User-Agent 以
//     "PerfomanceTest" 结尾时为影子；"0"、"false" 是对本跳的显式生产声明，压制名称推断
//  3. 名称前后缀：队列、主题、路由键、交换机、消费者标签、JNDI 名称以 "PT_" 开头或以
//     "_PT" 结尾时为影子，只对本跳生效
//
// 都无法判定时为生产流量。
//
// 影子开关关闭（Switch.Disable）时判定为影子的调用返回 *ShadowDisabledError，
// 调用方必须中止，不能降级为生产流量。
package xclassify
