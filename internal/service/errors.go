package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Stable error codes returned to API clients.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeFileRequired    = "FILE_REQUIRED"
	CodeInvalidFileType = "INVALID_FILE_TYPE"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeNotFound        = "NOT_FOUND"
	CodeTokenInvalid    = "TOKEN_INVALID"
	CodeConflict        = "CONFLICT"
	CodePeriodClosed    = "PERIOD_CLOSED"
	CodeScopeClosed     = "SCOPE_CLOSED"
	CodeProcessing      = "PROCESSING_ERROR"
)

var (
	// ErrInvalidFileType indicates an upload that is not an .xlsx workbook.
	ErrInvalidFileType = errors.New("only .xlsx files are allowed")
	// ErrFileRequired indicates an empty upload.
	ErrFileRequired = errors.New("file is required")
	// ErrFileTooLarge indicates an upload above the configured limit.
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrPeriodAlreadyClosed indicates a second close of the same period.
	ErrPeriodAlreadyClosed = errors.New("period already closed")
	// ErrEntityClosed indicates a mutation against a locked entity.
	ErrEntityClosed = errors.New("entity is closed and cannot be edited")
	// ErrAlreadyConsolidated is reported when a concurrent consolidation won the
	// unique-key race.
	ErrAlreadyConsolidated = errors.New("already consolidated")
)

// FieldError describes a problem with one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Code    string
	Message string
	Fields  []FieldError
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "validation failed"
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports a syntactically valid reference that resolves to nothing.
type NotFoundError struct {
	Code     string
	Resource string
	Err      error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s not found: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ConflictError reports a mutation against a closed entity or a repeated
// one-shot transition.
type ConflictError struct {
	Code    string
	Message string
	Err     error
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "conflict"
}

func (e *ConflictError) Unwrap() error { return e.Err }

// ProcessingError reports a spreadsheet that was found but could not be
// parsed or written.
type ProcessingError struct {
	Code string
	Err  error
}

func (e *ProcessingError) Error() string {
	if e.Err == nil {
		return "processing failed"
	}
	return "processing failed: " + e.Err.Error()
}

func (e *ProcessingError) Unwrap() error { return e.Err }

func notFound(resource string, err error) error {
	return &NotFoundError{Code: CodeNotFound, Resource: resource, Err: err}
}

func processing(err error) error {
	return &ProcessingError{Code: CodeProcessing, Err: err}
}

// newValidationError converts validator output into field-level details.
func newValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Code: CodeValidation, Err: err}
	}

	fields := make([]FieldError, 0, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := toSnake(fe.Field())
		names = append(names, name)
		fields = append(fields, FieldError{Field: name, Message: describeTag(fe)})
	}

	return &ValidationError{
		Code:    CodeValidation,
		Message: "invalid fields: " + strings.Join(names, ", "),
		Fields:  fields,
		Err:     err,
	}
}

func fieldError(field string, err error) error {
	return &ValidationError{
		Code:    CodeValidation,
		Message: fmt.Sprintf("invalid fields: %s", field),
		Fields:  []FieldError{{Field: field, Message: err.Error()}},
		Err:     err,
	}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt", "gte", "min":
		return "must be at least " + fe.Param()
	case "lt", "lte", "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

// toSnake keeps acronyms together: UploadID becomes upload_id.
func toSnake(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (!unicode.IsUpper(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
