package server

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// =============================================================================
// 1. Error Interceptor (错误种类 -> 状态码)
// =============================================================================

// UnaryErrorInterceptor 把处理函数返回的领域错误翻译成 gRPC 状态
func UnaryErrorInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		return resp, ToStatus(err).Err()
	}
	return resp, nil
}

// StreamErrorInterceptor 同上，用于流式请求
func StreamErrorInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if err := handler(srv, ss); err != nil {
		return ToStatus(err).Err()
	}
	return nil
}

// =============================================================================
// 2. Logging Interceptor (结构化日志)
// =============================================================================

// UnaryLoggingInterceptor 记录每个请求的方法、状态码和耗时
func UnaryLoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	logRPC(ctx, "Unary", info.FullMethod, time.Since(start), err)
	return resp, err
}

// logRPC 按状态码决定日志级别
func logRPC(ctx context.Context, kind, method string, duration time.Duration, err error) {
	code := Code(err)

	level := slog.LevelInfo
	switch code {
	case codes.OK, codes.Canceled:
	case codes.Internal, codes.Unknown, codes.DataLoss:
		level = slog.LevelError
	default:
		// InvalidArgument / NotFound 是调用方的问题
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("kind", kind),
		slog.String("method", method),
		slog.String("code", code.String()),
		slog.Duration("dur", duration),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	slog.LogAttrs(ctx, level, "gRPC Request", attrs...)
}

// =============================================================================
// 3. Recovery Interceptor
// =============================================================================

// UnaryRecoveryInterceptor 捕获 Panic
func UnaryRecoveryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverFromPanic(r)
		}
	}()
	return handler(ctx, req)
}

func recoverFromPanic(p any) error {
	slog.Error("🔥 PANIC RECOVERED",
		slog.Any("panic", p),
		slog.String("stack", string(debug.Stack())),
	)
	return status.Errorf(codes.Internal, "internal server error: panic recovered")
}

// UnaryInterceptors 按顺序返回一组拦截器：恢复 -> 日志 -> 错误映射
// 用法: grpc.NewServer(grpc.ChainUnaryInterceptor(server.UnaryInterceptors()...))
func UnaryInterceptors() []grpc.UnaryServerInterceptor {
	return []grpc.UnaryServerInterceptor{
		UnaryRecoveryInterceptor,
		UnaryLoggingInterceptor,
		UnaryErrorInterceptor,
	}
}
