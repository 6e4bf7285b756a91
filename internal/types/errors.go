package types

import (
	"errors"
	"fmt"
)

// 错误类别，调用方通过 errors.Is 判断
var (
	ErrEmptyDocument        = errors.New("文档没有可提取的文本")
	ErrMalformedModelOutput = errors.New("模型输出无法解析")
	ErrNotFound             = errors.New("实体不存在")
	ErrStorageUnavailable   = errors.New("存储后端不可用")
	ErrValidation           = errors.New("请求参数校验失败")
	ErrTimeout              = errors.New("外部调用超时")
)

// MatchError 带操作上下文的错误
type MatchError struct {
	EntityID string
	Op       string
	BaseErr  error
	Detail   string
}

func (e *MatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, ID:%s): %s", e.BaseErr, e.Op, e.EntityID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, ID:%s)", e.BaseErr, e.Op, e.EntityID)
}

func (e *MatchError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *MatchError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// NewValidationError 参数非法
func NewValidationError(id, op, detail string) error {
	return &MatchError{EntityID: id, Op: op, BaseErr: ErrValidation, Detail: detail}
}

// NewNotFoundError 实体不存在
func NewNotFoundError(id, op string) error {
	return &MatchError{EntityID: id, Op: op, BaseErr: ErrNotFound}
}

// NewStorageError 存储不可用，detail 一般为底层错误信息
func NewStorageError(id, op string, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &MatchError{EntityID: id, Op: op, BaseErr: ErrStorageUnavailable, Detail: detail}
}

// NewTimeoutError 外部调用超时
func NewTimeoutError(id, op, detail string) error {
	return &MatchError{EntityID: id, Op: op, BaseErr: ErrTimeout, Detail: detail}
}

// NewEmptyDocumentError 文档为空
func NewEmptyDocumentError(id, op, detail string) error {
	return &MatchError{EntityID: id, Op: op, BaseErr: ErrEmptyDocument, Detail: detail}
}

// NewMalformedOutputError 模型输出格式错误
func NewMalformedOutputError(id, op, detail string) error {
	return &MatchError{EntityID: id, Op: op, BaseErr: ErrMalformedModelOutput, Detail: detail}
}

// IsKnownKind 判断错误是否属于已定义的类别
func IsKnownKind(err error) bool {
	for _, kind := range []error{ErrEmptyDocument, ErrMalformedModelOutput, ErrNotFound, ErrStorageUnavailable, ErrValidation, ErrTimeout} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
