package api

// ErrorResponse is the single error shape of the API.
// Code is machine oriented (snake_case), Message is for humans, Details
// carries extra context and Fields lists validation problems.
type ErrorResponse struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details any          `json:"details,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const (
	CodeValidation   = "validation_error"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeInternal     = "internal_error"
)

func newValidationError(msg string, fields []FieldError) ErrorResponse {
	return ErrorResponse{Code: CodeValidation, Message: msg, Fields: fields}
}

func newUnauthorizedError(msg string) ErrorResponse {
	return ErrorResponse{Code: CodeUnauthorized, Message: msg}
}

func newForbiddenError(msg string) ErrorResponse {
	return ErrorResponse{Code: CodeForbidden, Message: msg}
}

// Page wraps list results.
type Page[T any] struct {
	Data   []T   `json:"data"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit,omitempty"`
	Offset int   `json:"offset,omitempty"`
}
