// Package xgrpcshadow gRPC 的影子流量适配。
//
// 服务端拦截器从 incoming metadata 判定流量并压入 RPC 边界上下文；
// 影子开关关闭时返回 codes.Unavailable，白名单拒绝时返回 codes.PermissionDenied。
// 客户端拦截器对影子调用检查白名单，并把子上下文写入 outgoing metadata。
//
//	srv := grpc.NewServer(
//	    grpc.ChainUnaryInterceptor(xgrpcshadow.UnaryServerInterceptor(classifier, xgrpcshadow.WithGate(gate))),
//	)
//	conn, _ := grpc.NewClient(addr,
//	    grpc.WithChainUnaryInterceptor(xgrpcshadow.UnaryClientInterceptor(xgrpcshadow.WithGate(gate))),
//	)
//
// 白名单 RPC 目标由完整方法名换算：/pkg.Service/Method 对应 pkg.Service#Method，
// 条目可以写服务名或 服务名#方法名。
package xgrpcshadow
