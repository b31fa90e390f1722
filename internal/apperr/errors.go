// Package apperr 统一业务错误分类与稳定错误码
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误大类，决定重试策略与 HTTP 状态码
type Kind int

const (
	KindInternal      Kind = iota
	KindConfiguration      // 配置缺失，不重试
	KindValidation         // 角色/状态/参数不满足，不重试
	KindExternal           // 外部服务失败或超时，本地状态不变
	KindNotFound
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindExternal:
		return "external"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// 稳定错误码（对外契约，勿随意修改）
const (
	CodeConfiguration   = "CONFIGURATION_ERROR"
	CodeValidation      = "VALIDATION_ERROR"
	CodeRoleMismatch    = "ROLE_MISMATCH"
	CodeInvalidState    = "INVALID_STATE"
	CodeAccessDenied    = "ACCESS_DENIED"
	CodeNotFound        = "RESOURCE_NOT_FOUND"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeCSMSValidation  = "CSMS_VALIDATION_ERROR"
	CodeTokenInvalid    = "TOKEN_INVALID"
	CodeTokenExpired    = "TOKEN_EXPIRED"
	CodeInternal        = "INTERNAL_ERROR"
)

// Error 带分类与错误码的业务错误
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按 Kind+Code 匹配，便于 errors.Is(err, apperr.ErrRoleMismatch) 之类的哨兵比较
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithDetail 附加诊断字段（返回副本）
func (e *Error) WithDetail(key string, value interface{}) *Error {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// 哨兵，仅用于 errors.Is 比较
var (
	ErrConfiguration = &Error{Kind: KindConfiguration, Code: CodeConfiguration}
	ErrValidation    = &Error{Kind: KindValidation, Code: CodeValidation}
	ErrRoleMismatch  = &Error{Kind: KindValidation, Code: CodeRoleMismatch}
	ErrInvalidState  = &Error{Kind: KindValidation, Code: CodeInvalidState}
	ErrAccessDenied  = &Error{Kind: KindForbidden, Code: CodeAccessDenied}
	ErrNotFound      = &Error{Kind: KindNotFound, Code: CodeNotFound}
	ErrExternal      = &Error{Kind: KindExternal, Code: CodeExternalService}
	ErrCSMSRejected  = &Error{Kind: KindValidation, Code: CodeCSMSValidation}
)

func Configuration(msg string) *Error {
	return &Error{Kind: KindConfiguration, Code: CodeConfiguration, Message: msg}
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: msg}
}

func RoleMismatch(msg string) *Error {
	return &Error{Kind: KindValidation, Code: CodeRoleMismatch, Message: msg}
}

func InvalidState(msg string) *Error {
	return &Error{Kind: KindValidation, Code: CodeInvalidState, Message: msg}
}

func AccessDenied(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeAccessDenied, Message: msg}
}

func NotFound(resource string, id interface{}) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Details: map[string]interface{}{"resource": resource, "id": id},
	}
}

func External(msg string, err error) *Error {
	return &Error{Kind: KindExternal, Code: CodeExternalService, Message: msg, Err: err}
}

func Unauthorized(code, msg string) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: msg}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: msg, Err: err}
}

// As 提取 *Error；非业务错误包装为 internal
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal error", err)
}

// KindOf 返回错误分类
func KindOf(err error) Kind {
	return As(err).Kind
}

// HTTPStatus 错误分类到 HTTP 状态码
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindExternal:
		return http.StatusBadGateway
	case KindConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
