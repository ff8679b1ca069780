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
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// Severity 描述错误对调用方恢复流程的影响程度。
type Severity int32

const (
	// SeverityNormal 表示失败时宿主对象图未被改动，或改动可直接丢弃。
	SeverityNormal Severity = 0
	// SeverityCritical 表示原始对象已被销毁，调用方必须走独立的备份恢复路径。
	SeverityCritical Severity = 1
)

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Record related
	ErrRecordInvalid          = newKeepError("invalid selection record", 100, false)
	ErrRecordVersion          = newKeepError("incompatible selection record version", 101, false)
	ErrSelectionNotRestorable = newKeepError("selection not restorable", 102, false)
	ErrStaticObject           = newKeepError("selection contains engine-static object", 103, false,
		WithDetail("the record is kept under the rescue key; rebuild the static objects by hand"))

	// Bag type / reference related
	ErrBagTypeUnknown   = newKeepError("attribute bag type unknown", 200, false)
	ErrBagTypeDuplicate = newKeepError("attribute bag type registered twice", 201, false)
	ErrRefFieldMismatch = newKeepError("reference field count mismatch", 202, false)
	ErrRefTargetInvalid = newKeepError("reference target invalid", 203, false)

	// Snapshot related
	ErrSnapshotCapture = newKeepError("capture structural snapshot failed", 300, false)
	ErrSnapshotApply   = newKeepError("apply structural snapshot failed", 301, false)

	// Host related
	ErrHostOperation   = newKeepError("host operation failed", 400, false)
	ErrParentNotFound  = newKeepError("external parent not found", 401, false)
	ErrContainerAbsent = newKeepError("container not loaded", 402, false)

	// ErrRestoreAfterDestroy 表示原始对象已经销毁后重建失败。
	// 调用方必须将其与“校验拒绝”区分对待，引导用户使用外部备份。
	ErrRestoreAfterDestroy = newKeepError("restore failed after originals were destroyed", 500, false,
		WithSeverity(SeverityCritical),
		WithDetail("the originals are gone; recover them from the container backups"))

	// IO related
	ErrIoKeyNotFound = newKeepError("key not found", 1000, false)
	ErrIoFailed      = newKeepError("IO failed", 1001, true)
	ErrIoUnexpectEOF = newKeepError("unexpected EOF", 1002, true)

	// Codec related
	ErrCodecFailed = newKeepError("codec failed", 1050, false)

	// Parameter related
	ErrParameterInvalid = newKeepError("invalid parameter", 1100, false)
	ErrParameterMissing = newKeepError("missing parameter", 1101, false)

	// General
	ErrOperationNotSupported = newKeepError("unsupported operation", 3000, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to keepError
	errUnexpected = newKeepError("unexpected error", (1<<16)-1, false)
)

type errorOption func(*keepError)

func WithDetail(detail string) errorOption {
	return func(err *keepError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *keepError) {
		err.errType = etype
	}
}

func WithSeverity(severity Severity) errorOption {
	return func(err *keepError) {
		err.severity = severity
	}
}

type keepError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType
	severity  Severity
}

func newKeepError(msg string, code int32, retriable bool, options ...errorOption) keepError {
	err := keepError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e keepError) code() int32 {
	return e.errCode
}

func (e keepError) Error() string {
	return e.msg
}

func (e keepError) Detail() string {
	return e.detail
}

func (e keepError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(keepError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return multiErrors{
		errs,
	}
}
