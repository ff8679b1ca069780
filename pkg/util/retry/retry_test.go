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
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

func TestDo(t *testing.T) {
	ctx := context.Background()
	n := 0
	err := Do(ctx, func() error {
		n++
		if n < 3 {
			return errors.New("transient")
		}
		return nil
	}, Attempts(5), Sleep(time.Millisecond))
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDoAttempts(t *testing.T) {
	n := 0
	err := Do(context.Background(), func() error {
		n++
		return errors.New("always")
	}, Attempts(3), Sleep(time.Millisecond))
	assert.Error(t, err)
	assert.Equal(t, 3, n)
}

func TestUnrecoverable(t *testing.T) {
	n := 0
	err := Do(context.Background(), func() error {
		n++
		return Unrecoverable(merr.ErrIoKeyNotFound)
	}, Attempts(5), Sleep(time.Millisecond))
	assert.ErrorIs(t, err, merr.ErrIoKeyNotFound)
	assert.False(t, IsRecoverable(err))
	assert.Equal(t, 1, n)
}

func TestRetryErr(t *testing.T) {
	n := 0
	err := Do(context.Background(), func() error {
		n++
		return merr.ErrIoKeyNotFound
	}, Attempts(5), Sleep(time.Millisecond), RetryErr(merr.IsRetryableErr))
	assert.ErrorIs(t, err, merr.ErrIoKeyNotFound)
	assert.Equal(t, 1, n)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandle(t *testing.T) {
	n := 0
	err := Handle(context.Background(), func() (bool, error) {
		n++
		return false, errors.New("stop")
	}, Attempts(5), Sleep(time.Millisecond))
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestContextErrorKeepsLastCause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	err := Handle(ctx, func() (bool, error) {
		n++
		if n == 1 {
			return true, merr.ErrIoFailed
		}
		cancel()
		return false, context.Canceled
	}, Attempts(5), Sleep(time.Millisecond))
	assert.ErrorIs(t, err, merr.ErrIoFailed)
	assert.Equal(t, 2, n)
}

func TestSleepBounds(t *testing.T) {
	c := newDefaultConfig()
	Sleep(20 * time.Millisecond)(c)
	MaxSleepTime(200 * time.Millisecond)(c)
	assert.Equal(t, 200*time.Millisecond, c.maxSleepTime)

	// 上限不会低于首次休眠的两倍。
	MaxSleepTime(10 * time.Millisecond)(c)
	assert.Equal(t, 40*time.Millisecond, c.maxSleepTime)

	Sleep(time.Second)(c)
	assert.Equal(t, 2*time.Second, c.maxSleepTime)
}
