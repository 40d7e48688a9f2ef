package workflow

import (
	"errors"
	"fmt"
)

// ErrorKind 流程错误类别，handler层据此映射HTTP语义
type ErrorKind string

const (
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindMissingReason     ErrorKind = "missing_reason"
	KindPermissionGranted ErrorKind = "permission_already_granted"
	KindInsufficientStock ErrorKind = "insufficient_stock"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindConflict          ErrorKind = "conflict"
	KindPartialBatch      ErrorKind = "partial_batch_failure"
)

// TransitionError 流程决策失败。引擎只返回错误，从不panic。
type TransitionError struct {
	Kind    ErrorKind
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...interface{}) *TransitionError {
	return &TransitionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidTransition 当前状态下不允许该动作
func ErrInvalidTransition(status string, action Action) *TransitionError {
	return newError(KindInvalidTransition, "action %q not allowed from status %q", action, status)
}

// ErrMissingReason 驳回类动作缺少原因
func ErrMissingReason(action Action) *TransitionError {
	return newError(KindMissingReason, "action %q requires a non-empty reason", action)
}

// ErrUnauthorized 角色或身份不允许该动作
func ErrUnauthorized(role Role, action Action) *TransitionError {
	return newError(KindUnauthorized, "role %q may not perform %q", role, action)
}

// ErrInsufficientStock 库存不足，直发被拒
func ErrInsufficientStock(material string, stock, requested float64) *TransitionError {
	return newError(KindInsufficientStock, "stock %.2f of %q below requested %.2f", stock, material, requested)
}

// ErrDuplicateLine 采购订单多行引用同一申请行项
func ErrDuplicateLine(itemID string) *TransitionError {
	return newError(KindInvalidTransition, "request item %s referenced by more than one line", itemID)
}

// ErrConflict 乐观并发失败：期望前置状态已被他人变更
func ErrConflict(id, expected string) *TransitionError {
	return newError(KindConflict, "item %s no longer in status %q", id, expected)
}

// KindOf 提取错误类别；非流程错误返回空串
func KindOf(err error) ErrorKind {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
