// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrBagTypeUnknown("demo.Follow")
	errors.Wrap(err, "failed to restore bag")
	s.ErrorIs(err, ErrBagTypeUnknown)
	s.Equal(Code(ErrBagTypeUnknown), Code(err))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errUnexpected))
	s.Equal(int32(0), Code(nil))

	sameCodeErr := newKeepError("new error", ErrBagTypeUnknown.errCode, false)
	s.True(sameCodeErr.Is(ErrBagTypeUnknown))
}

func (s *ErrSuite) TestWrap() {
	// Record 相关错误。
	s.ErrorIs(WrapErrRecordInvalid("bad offset"), ErrRecordInvalid)
	s.ErrorIs(WrapErrRecordVersion("1.0.0", "2.0.0"), ErrRecordVersion)
	s.ErrorIs(WrapErrSelectionNotRestorable("no container"), ErrSelectionNotRestorable)
	s.ErrorIs(WrapErrStaticObject("n1"), ErrStaticObject)

	// 类型与引用相关错误。
	s.ErrorIs(WrapErrBagTypeDuplicate("demo.Tag"), ErrBagTypeDuplicate)
	s.ErrorIs(WrapErrRefFieldMismatch("demo.Link", 2, 1), ErrRefFieldMismatch)
	s.ErrorIs(WrapErrRefTargetInvalid("Target", 1), ErrRefTargetInvalid)

	// 快照与宿主相关错误。
	s.ErrorIs(WrapErrSnapshotCapture("n1", errors.New("boom")), ErrSnapshotCapture)
	s.ErrorIs(WrapErrSnapshotApply("n1", errors.New("boom")), ErrSnapshotApply)
	s.ErrorIs(WrapErrHostOperation("destroy", errors.New("boom")), ErrHostOperation)
	s.ErrorIs(WrapErrParentNotFound("p1"), ErrParentNotFound)
	s.ErrorIs(WrapErrContainerAbsent("scenes/main"), ErrContainerAbsent)

	// IO 与编解码相关错误。
	s.ErrorIs(WrapErrIoKeyNotFound("selection"), ErrIoKeyNotFound)
	s.ErrorIs(WrapErrIoFailed("selection", errors.New("disk full")), ErrIoFailed)
	s.ErrorIs(WrapErrIoUnexpectEOF("selection", errors.New("eof")), ErrIoUnexpectEOF)
	s.ErrorIs(WrapErrCodecFailed("decompress", errors.New("bad frame")), ErrCodecFailed)

	// 参数相关错误。
	s.ErrorIs(WrapErrParameterInvalid(1, 2), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterInvalidRange(0, 3, 5), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterInvalidMsg("bad %s", "value"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterMissing("key"), ErrParameterMissing)

	s.Nil(WrapErrSnapshotCapture("n1", nil))
	s.Nil(WrapErrIoFailed("k", nil))
	s.Nil(WrapErrRestoreAfterDestroy(nil, 1))
}

func (s *ErrSuite) TestRestoreAfterDestroy() {
	cause := WrapErrBagTypeUnknown("demo.Missing")
	err := WrapErrRestoreAfterDestroy(cause, 2)

	s.ErrorIs(err, ErrRestoreAfterDestroy)
	s.ErrorIs(err, ErrBagTypeUnknown)
	s.True(IsCritical(err))
	s.False(IsCritical(cause))
	s.False(IsCritical(nil))
	s.Equal(Code(ErrRestoreAfterDestroy), Code(err))
	s.Contains(err.Error(), "destroyed=2")
}

func (s *ErrSuite) TestRetryable() {
	s.True(IsRetryableErr(WrapErrIoFailed("k", errors.New("timeout"))))
	s.False(IsRetryableErr(WrapErrIoKeyNotFound("k")))
	s.False(IsRetryableErr(errors.New("plain")))
	s.True(IsCanceledOrTimeout(errors.Wrap(context.Canceled, "ctx")))
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.True(errors.Is(err, errFirst))
	s.True(errors.Is(err, errSecond))
	s.False(errors.Is(err, errThird))

	s.Nil(Combine(nil, nil))
	s.Equal(errFirst, Combine(nil, errFirst))

	err = Combine(errFirst, errSecond, errThird)
	s.True(errors.Is(err, errThird))
	s.Contains(err.Error(), "first")
	s.Contains(err.Error(), "third")
}

func (s *ErrSuite) TestErrorType() {
	err := WrapErrAsInputError(ErrParameterInvalid)
	s.Equal(InputError, GetErrorType(err))
	s.Equal(SystemError, GetErrorType(errors.New("plain")))
	s.Equal("input_error", InputError.String())
}

func (s *ErrSuite) TestDetail() {
	critical := WrapErrRestoreAfterDestroy(WrapErrHostOperation("new node", errors.New("boom")), 2)
	s.Contains(Detail(critical), "container backups")
	s.Contains(Detail(WrapErrStaticObject("rescue", "stashed")), "rescue key")
	s.Equal("invalid selection record", Detail(WrapErrRecordInvalid("bad")))
	s.Empty(Detail(errors.New("plain")))
	s.Empty(Detail(nil))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}
