package audio

import (
	"errors"
	"fmt"
)

// ErrorKind 对外报告的错误类型，名称与事件通道上的错误码一致
type ErrorKind string

const (
	FailedToRecord      ErrorKind = "FailedToRecord"
	FailedToPlay        ErrorKind = "FailedToPlay"
	FailedToStop        ErrorKind = "FailedToStop"
	FailedToWriteBuffer ErrorKind = "FailedToWriteBuffer"
	EmptyDecode         ErrorKind = "EmptyDecode"
	Unknown             ErrorKind = "Unknown"
)

// Error 使 ErrorKind 可以直接作为 errors.Is 的比较目标
func (k ErrorKind) Error() string {
	return string(k)
}

// StreamError 携带错误类型、描述和底层原因
type StreamError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func newError(kind ErrorKind, msg string, err error) *StreamError {
	return &StreamError{Kind: kind, Message: msg, Err: err}
}

func (e *StreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

func (e *StreamError) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

// KindOf 返回错误链上的错误类型，非 StreamError 一律视为 Unknown
func KindOf(err error) ErrorKind {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Kind
	}
	return Unknown
}
