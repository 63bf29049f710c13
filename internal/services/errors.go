package services

import "fmt"

// ErrorCode is the stable, machine-readable part of a DomainError.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "validation_error"
	CodeNotFound           ErrorCode = "not_found"
	CodeUnavailable        ErrorCode = "product_unavailable"
	CodeInsufficientPoints ErrorCode = "insufficient_loyalty_points"
	CodeInvalidTransition  ErrorCode = "invalid_state_transition"
	CodeForbidden          ErrorCode = "forbidden"
	CodeConflict           ErrorCode = "conflict"
)

// DomainError is returned by the order engine for every rejected request.
// Data carries structured details, e.g. available/requested points.
type DomainError struct {
	Code    ErrorCode
	Message string
	Data    map[string]any
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is matches on Code so callers can write errors.Is(err, services.ErrForbidden).
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

var (
	ErrValidation         = &DomainError{Code: CodeValidation, Message: "validation failed"}
	ErrNotFound           = &DomainError{Code: CodeNotFound, Message: "not found"}
	ErrUnavailable        = &DomainError{Code: CodeUnavailable, Message: "product unavailable"}
	ErrInsufficientPoints = &DomainError{Code: CodeInsufficientPoints, Message: "insufficient loyalty points"}
	ErrInvalidTransition  = &DomainError{Code: CodeInvalidTransition, Message: "invalid state transition"}
	ErrForbidden          = &DomainError{Code: CodeForbidden, Message: "forbidden"}
	ErrConflict           = &DomainError{Code: CodeConflict, Message: "conflict"}
)

func validationError(format string, args ...any) *DomainError {
	return &DomainError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func notFound(what string) *DomainError {
	return &DomainError{Code: CodeNotFound, Message: what + " not found"}
}

func unavailable(productName string) *DomainError {
	return &DomainError{
		Code:    CodeUnavailable,
		Message: fmt.Sprintf("product %q is not available", productName),
		Data:    map[string]any{"product": productName},
	}
}

func insufficientPoints(available, requested int) *DomainError {
	return &DomainError{
		Code:    CodeInsufficientPoints,
		Message: fmt.Sprintf("insufficient loyalty points: available %d, requested %d", available, requested),
		Data:    map[string]any{"available": available, "requested": requested},
	}
}

func invalidTransition(from, to string) *DomainError {
	return &DomainError{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot move order from %s to %s", from, to),
		Data:    map[string]any{"from": from, "to": to},
	}
}

func forbidden(message string) *DomainError {
	return &DomainError{Code: CodeForbidden, Message: message}
}

func conflict(message string) *DomainError {
	return &DomainError{Code: CodeConflict, Message: message}
}
