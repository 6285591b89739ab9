// Package server 是核心与外部传输层之间的边界适配器。
// 核心包只返回带种类的错误，这里把它们翻译成 gRPC 状态码。
package server

import (
	"context"
	"errors"

	"fileident/pkg/isopath"
	"fileident/pkg/job"
	"fileident/pkg/meta"
	"fileident/pkg/tasks"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ToStatus 把错误映射为 gRPC 状态；nil 映射为 OK
func ToStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	// 已经是 gRPC 状态的错误原样返回
	if st, ok := status.FromError(err); ok {
		return st
	}
	return status.New(codeOf(err), err.Error())
}

// Code 是 ToStatus(err).Code() 的简写
func Code(err error) codes.Code {
	return ToStatus(err).Code()
}

func codeOf(err error) codes.Code {
	// 1. 中断与取消
	switch {
	case errors.Is(err, job.ErrInterrupted), errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}

	// 2. 具体的哨兵错误优先于错误种类
	switch {
	case errors.Is(err, isopath.ErrSubPathNotFound), errors.Is(err, meta.ErrLocationNotFound):
		return codes.NotFound
	case errors.Is(err, tasks.ErrDispatcherClosed):
		return codes.Unavailable
	}

	// 3. 错误种类
	kind, ok := job.KindOf(err)
	if !ok {
		return codes.Unknown
	}
	switch kind {
	case job.KindSubPath:
		return codes.InvalidArgument
	case job.KindCorruptState:
		return codes.DataLoss
	case job.KindDatabase, job.KindMissingField:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// ExitCode 给命令行使用：0 成功，其余按状态码区分
func ExitCode(err error) int {
	switch Code(err) {
	case codes.OK:
		return 0
	case codes.Canceled:
		return 130
	case codes.InvalidArgument, codes.NotFound:
		return 2
	case codes.DataLoss:
		return 3
	default:
		return 1
	}
}
