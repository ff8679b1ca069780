// Copyright (C) 2019-2020 Zilliz. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License
// is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express
// or implied. See the License for the specific language governing permissions and limitations under the License.

package retry

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/scenekeep-go/pkg/log"
	"github.com/lk2023060901/scenekeep-go/pkg/util/funcutil"
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

// Do 反复执行 fn 直到成功、遇到不可重试错误或用尽尝试次数。
// 被 Unrecoverable 包装的错误，以及 RetryErr 判定为不可重试的错误，会立即返回。
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	c := newDefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return run(ctx, c, func() (bool, error) {
		err := fn()
		if err == nil {
			return false, nil
		}
		retryable := IsRecoverable(err) && (c.isRetryErr == nil || c.isRetryErr(err))
		return retryable, err
	})
}

// Handle 与 Do 相同，但由 fn 自己通过 shouldRetry 决定是否继续。
func Handle(ctx context.Context, fn func() (shouldRetry bool, err error), opts ...Option) error {
	c := newDefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return run(ctx, c, fn)
}

func run(ctx context.Context, c *config, fn func() (bool, error)) error {
	if !funcutil.CheckCtxValid(ctx) {
		return ctx.Err()
	}
	logger := log.Ctx(ctx).With(zap.Uint("attempts", c.attempts))

	var lastErr error
	sleep := c.sleep
	for i := uint(0); c.attempts == 0 || i < c.attempts; i++ {
		shouldRetry, err := fn()
		if err == nil {
			return nil
		}
		if i%4 == 0 {
			logger.Warn("retry func failed", zap.Uint("retried", i), zap.Error(err))
		}

		if !shouldRetry {
			logger.Warn("retry func failed, not retryable", zap.Uint("retried", i))
			return preferLast(err, lastErr)
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < sleep {
			logger.Warn("retry func failed, deadline too close", zap.Uint("retried", i))
			return preferLast(err, lastErr)
		}
		lastErr = err

		timer := time.NewTimer(sleep)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.Warn("retry func failed, ctx done", zap.Uint("retried", i))
			return lastErr
		}
		sleep = min(sleep*2, c.maxSleepTime)
	}
	logger.Warn("retry func failed, reach max retry", zap.Error(lastErr))
	return lastErr
}

// preferLast 在本次错误只是上下文取消时返回上一次的业务错误。
func preferLast(err, last error) error {
	if last != nil && errors.IsAny(err, context.Canceled, context.DeadlineExceeded) {
		return last
	}
	return err
}

var errUnrecoverable = errors.New("unrecoverable error")

// Unrecoverable 标记 err 为不可恢复，Do 遇到后立即返回。
func Unrecoverable(err error) error {
	return merr.Combine(err, errUnrecoverable)
}

func IsRecoverable(err error) bool {
	return !errors.Is(err, errUnrecoverable)
}
