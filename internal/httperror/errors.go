package httperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/ledger"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/router"
)

// ErrorCode 는 API 오류 코드다.
type ErrorCode string

const (
	// ErrorCodeInternal 는 내부 오류 코드다.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrorCodeValidation 는 검증 오류 코드다.
	ErrorCodeValidation ErrorCode = "VALIDATION_ERROR"
	// ErrorCodeUnauthorized 는 인증 오류 코드다.
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodeHTTPRateLimit 는 요청 제한 오류 코드다.
	ErrorCodeHTTPRateLimit ErrorCode = "HTTP_RATE_LIMIT"
	// ErrorCodeNoBackend 는 전 백엔드 소진 코드다.
	ErrorCodeNoBackend ErrorCode = "NO_BACKEND_AVAILABLE"
	// ErrorCodeLedgerWrite 는 원장 기록 실패 코드다.
	ErrorCodeLedgerWrite ErrorCode = "LEDGER_WRITE_FAILURE"
	// ErrorCodeUnknownBackend 는 미등록 백엔드 코드다.
	ErrorCodeUnknownBackend ErrorCode = "UNKNOWN_BACKEND"
	// ErrorCodeRouterTimeout 는 선택 타임아웃 코드다.
	ErrorCodeRouterTimeout ErrorCode = "ROUTER_TIMEOUT"
	// ErrorCodeInvalidInput 는 입력 오류 코드다.
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrorCodeMissingField 는 필드 누락 코드다.
	ErrorCodeMissingField ErrorCode = "MISSING_FIELD"
)

// ErrorResponse 는 API 오류 응답 본문이다.
type ErrorResponse struct {
	ErrorCode string         `json:"error_code"`
	ErrorType string         `json:"error_type"`
	Message   string         `json:"message"`
	RequestID *string        `json:"request_id"`
	Details   map[string]any `json:"details"`
}

// Error 는 내부 표준 오류 타입이다.
type Error struct {
	Code    ErrorCode
	Status  int
	Type    string
	Message string
	Details map[string]any
}

// Error 는 오류 메시지를 반환한다.
func (e *Error) Error() string {
	return e.Message
}

// Response 는 오류를 HTTP 응답으로 변환한다.
func Response(err error, requestID string) (int, ErrorResponse) {
	apiErr := FromError(err)
	if apiErr == nil {
		apiErr = NewInternalError("unknown error")
	}

	var requestIDPtr *string
	if requestID != "" {
		requestIDPtr = &requestID
	}

	return apiErr.Status, ErrorResponse{
		ErrorCode: string(apiErr.Code),
		ErrorType: apiErr.Type,
		Message:   apiErr.Message,
		RequestID: requestIDPtr,
		Details:   apiErr.Details,
	}
}

// FromError 는 오류를 내부 오류 타입으로 변환한다.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, router.ErrNoBackendAvailable) {
		return NewNoBackendAvailable()
	}

	if errors.Is(err, ledger.ErrWriteFailure) {
		return NewLedgerWriteFailure()
	}

	if errors.Is(err, catalog.ErrUnknownBackend) {
		return NewUnknownBackend(err.Error())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewRouterTimeout("Backend selection timed out")
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return NewValidationError(err)
	}

	return NewInternalError(err.Error())
}

// NewInternalError 는 내부 오류를 생성한다.
func NewInternalError(message string) *Error {
	return &Error{
		Code:    ErrorCodeInternal,
		Status:  http.StatusInternalServerError,
		Type:    "InternalError",
		Message: message,
		Details: nil,
	}
}

// NewValidationError 는 검증 오류를 생성한다.
func NewValidationError(err error) *Error {
	return &Error{
		Code:    ErrorCodeValidation,
		Status:  http.StatusUnprocessableEntity,
		Type:    "ValidationError",
		Message: "Input validation failed",
		Details: validationDetails(err),
	}
}

// NewMissingField 는 누락 필드 오류를 생성한다.
func NewMissingField(field string) *Error {
	return &Error{
		Code:    ErrorCodeMissingField,
		Status:  http.StatusBadRequest,
		Type:    "MissingFieldError",
		Message: fmt.Sprintf("Field '%s' required", field),
		Details: map[string]any{"field": field},
	}
}

// NewInvalidInput 는 입력 오류를 생성한다.
func NewInvalidInput(message string) *Error {
	return &Error{
		Code:    ErrorCodeInvalidInput,
		Status:  http.StatusBadRequest,
		Type:    "InvalidInputError",
		Message: message,
		Details: nil,
	}
}

// NewUnauthorized 는 인증 오류를 생성한다.
func NewUnauthorized(details map[string]any) *Error {
	return &Error{
		Code:    ErrorCodeUnauthorized,
		Status:  http.StatusUnauthorized,
		Type:    "UnauthorizedError",
		Message: "Invalid API key",
		Details: details,
	}
}

// NewRateLimitExceeded 는 요청 제한 오류를 생성한다.
func NewRateLimitExceeded(details map[string]any) *Error {
	return &Error{
		Code:    ErrorCodeHTTPRateLimit,
		Status:  http.StatusTooManyRequests,
		Type:    "HTTPRateLimitExceededError",
		Message: "Rate limit exceeded",
		Details: details,
	}
}

// NewNoBackendAvailable 는 전 백엔드 소진 오류를 생성한다.
func NewNoBackendAvailable() *Error {
	return &Error{
		Code:    ErrorCodeNoBackend,
		Status:  http.StatusServiceUnavailable,
		Type:    "NoBackendAvailableError",
		Message: "All backends are rate limited or saturated",
		Details: nil,
	}
}

// NewLedgerWriteFailure 는 원장 기록 실패 오류를 생성한다.
func NewLedgerWriteFailure() *Error {
	return &Error{
		Code:    ErrorCodeLedgerWrite,
		Status:  http.StatusServiceUnavailable,
		Type:    "LedgerWriteFailureError",
		Message: "Usage could not be recorded",
		Details: nil,
	}
}

// NewUnknownBackend 는 미등록 백엔드 오류를 생성한다.
func NewUnknownBackend(message string) *Error {
	return &Error{
		Code:    ErrorCodeUnknownBackend,
		Status:  http.StatusBadRequest,
		Type:    "UnknownBackendError",
		Message: message,
		Details: nil,
	}
}

// NewRouterTimeout 는 선택 타임아웃 오류를 생성한다.
func NewRouterTimeout(message string) *Error {
	return &Error{
		Code:    ErrorCodeRouterTimeout,
		Status:  http.StatusGatewayTimeout,
		Type:    "RouterTimeoutError",
		Message: message,
		Details: nil,
	}
}

// FieldError 는 필드 오류 상세 정보다.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value"`
}

func validationDetails(err error) map[string]any {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make([]FieldError, 0, len(validationErrors))
		for _, validationErr := range validationErrors {
			fields = append(fields, FieldError{
				Field:   validationErr.Field(),
				Message: validationErr.Error(),
				Value:   validationErr.Value(),
			})
		}
		return map[string]any{"errors": fields}
	}

	return map[string]any{
		"errors": []FieldError{
			{
				Field:   "body",
				Message: err.Error(),
				Value:   nil,
			},
		},
	}
}
