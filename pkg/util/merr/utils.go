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
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case keepError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

func IsRetryableErr(err error) bool {
	var kerr keepError
	if errors.As(err, &kerr) {
		return kerr.retriable
	}
	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

func GetErrorType(err error) ErrorType {
	if merr, ok := err.(keepError); ok {
		return merr.errType
	}

	return SystemError
}

// IsCritical 判断错误链中是否存在 SeverityCritical 级别的错误，
// 即原始对象已经不可恢复地被销毁。
func IsCritical(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRestoreAfterDestroy)
}

// Detail 返回错误链中第一个 keepError 的处理提示，链中没有 keepError 时返回空串。
func Detail(err error) string {
	var kerr keepError
	if errors.As(err, &kerr) {
		return kerr.Detail()
	}
	return ""
}

func WrapErrAsInputError(err error) error {
	if merr, ok := err.(keepError); ok {
		WithErrorType(InputError)(&merr)
		return merr
	}
	return err
}

// Record related
func WrapErrRecordInvalid(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrRecordInvalid, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrRecordVersion(expected, actual string, msg ...string) error {
	err := wrapFields(ErrRecordVersion,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSelectionNotRestorable(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrSelectionNotRestorable, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrStaticObject(object any, msg ...string) error {
	err := wrapFields(ErrStaticObject, value("object", object))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Bag type / reference related
func WrapErrBagTypeUnknown(typeID any, msg ...string) error {
	err := wrapFields(ErrBagTypeUnknown, value("type", typeID))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrBagTypeDuplicate(typeID any, msg ...string) error {
	err := wrapFields(ErrBagTypeDuplicate, value("type", typeID))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrRefFieldMismatch(typeID any, expected, actual int, msg ...string) error {
	err := wrapFields(ErrRefFieldMismatch,
		value("type", typeID),
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrRefTargetInvalid(field string, target any, msg ...string) error {
	err := wrapFields(ErrRefTargetInvalid,
		value("field", field),
		value("target", fmt.Sprintf("%T", target)),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Snapshot related
func WrapErrSnapshotCapture(object any, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrSnapshotCapture, err.Error(), value("object", object))
}

func WrapErrSnapshotApply(object any, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrSnapshotApply, err.Error(), value("object", object))
}

// Host related
func WrapErrHostOperation(op string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrHostOperation, err.Error(), value("op", op))
}

func WrapErrParentNotFound(parentID any, msg ...string) error {
	err := wrapFields(ErrParentNotFound, value("parent", parentID))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrContainerAbsent(path string, msg ...string) error {
	err := wrapFields(ErrContainerAbsent, value("container", path))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// WrapErrRestoreAfterDestroy 在保留原始错误链的同时标记为 ErrRestoreAfterDestroy，
// 因此 errors.Is 对两者都成立，而 Code 返回 ErrRestoreAfterDestroy 的错误码。
func WrapErrRestoreAfterDestroy(cause error, destroyed int) error {
	if cause == nil {
		return nil
	}
	return Combine(cause, wrapFields(ErrRestoreAfterDestroy, value("destroyed", destroyed)))
}

// IO related
func WrapErrIoKeyNotFound(key string, msg ...string) error {
	err := wrapFields(ErrIoKeyNotFound, value("key", key))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrIoFailed(key string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrIoFailed, err.Error(), value("key", key))
}

func WrapErrIoUnexpectEOF(key string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrIoUnexpectEOF, err.Error(), value("key", key))
}

// Codec related
func WrapErrCodecFailed(stage string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrCodecFailed, err.Error(), value("stage", stage))
}

// Parameter related
func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidRange[T any](lower, upper, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		bound("value", actual, lower, upper),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmt, args...)
}

func WrapErrParameterMissing[T any](param T, msg ...string) error {
	err := wrapFields(ErrParameterMissing,
		value("missing_param", param),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err keepError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err keepError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

type boundField struct {
	name  string
	value any
	lower any
	upper any
}

func bound(name string, value, lower, upper any) boundField {
	return boundField{
		name,
		value,
		lower,
		upper,
	}
}

func (f boundField) String() string {
	return fmt.Sprintf("%v out of range %v <= %s <= %v", f.value, f.lower, f.name, f.upper)
}
