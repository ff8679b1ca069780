package funcutil

import "context"

// CheckCtxValid 判断 ctx 是否仍然有效（未被取消且未超时）。
func CheckCtxValid(ctx context.Context) bool {
	return ctx.Err() != context.DeadlineExceeded && ctx.Err() != context.Canceled
}
