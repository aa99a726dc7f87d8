package facet

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeState       ErrorType = "state"
	ErrorTypeConcurrency ErrorType = "concurrency"
	ErrorTypeTransaction ErrorType = "transaction"
	ErrorTypeInternal    ErrorType = "internal"
)

// FacetError is the error returned by every FieldManager operation.
type FacetError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FacetError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *FacetError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to a FacetError
func (e *FacetError) WithDetails(details map[string]any) *FacetError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to a FacetError
func (e *FacetError) WithDetail(key string, value any) *FacetError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to a FacetError
func (e *FacetError) WithCause(cause error) *FacetError {
	e.Cause = cause
	return e
}

// WithField adds field context to a FacetError
func (e *FacetError) WithField(field string) *FacetError {
	e.Field = field
	return e
}

const (
	ErrCodeNameConflict           = "NAME_CONFLICT"
	ErrCodeInvalidConfig          = "INVALID_CONFIG"
	ErrCodeNotACategory           = "NOT_A_CATEGORY"
	ErrCodeCategoryAlreadySet     = "CATEGORY_ALREADY_SET"
	ErrCodeCategoryNotActive      = "CATEGORY_NOT_ACTIVE"
	ErrCodeNoSchema               = "NO_SCHEMA"
	ErrCodeNoBackupFound          = "NO_BACKUP_FOUND"
	ErrCodeUnknownField           = "UNKNOWN_FIELD"
	ErrCodeDuplicateField         = "DUPLICATE_FIELD"
	ErrCodeAlreadyPresent         = "ALREADY_PRESENT"
	ErrCodeTypeMismatch           = "TYPE_MISMATCH"
	ErrCodeIllegalOperator        = "ILLEGAL_OPERATOR"
	ErrCodeConcurrentModification = "CONCURRENT_MODIFICATION"
	ErrCodeFieldInUse             = "FIELD_IN_USE"
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeTransactionFailed      = "TRANSACTION_FAILED"
	ErrCodeInternalError          = "INTERNAL_ERROR"
)

// Error constructors

func NewValidationError(code, message string) *FacetError {
	return &FacetError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// NewInvalidConfigError reports a malformed field, tag or request definition.
func NewInvalidConfigError(field, message string) *FacetError {
	return &FacetError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeInvalidConfig,
		Message: message,
		Field:   field,
	}
}

// NewNameConflictError reports two distinct fields sharing a name inside one effective field set.
func NewNameConflictError(name string, first, second uuid.UUID) *FacetError {
	return &FacetError{
		Type:    ErrorTypeConflict,
		Code:    ErrCodeNameConflict,
		Message: fmt.Sprintf("fields %s and %s share the name %q", first, second, name),
		Field:   name,
		Details: map[string]any{
			"fieldIds": []uuid.UUID{first, second},
		},
	}
}

func NewTagNameConflictError(name string, isCategory bool) *FacetError {
	kind := "label"
	if isCategory {
		kind = "category"
	}
	return &FacetError{
		Type:    ErrorTypeConflict,
		Code:    ErrCodeNameConflict,
		Message: fmt.Sprintf("a %s named %q already exists", kind, name),
		Field:   name,
	}
}

func NewNotACategoryError(tagID uuid.UUID) *FacetError {
	return &FacetError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeNotACategory,
		Message: fmt.Sprintf("tag %s is a label, not a category", tagID),
		Details: map[string]any{"tagId": tagID},
	}
}

func NewCategoryAlreadySetError(itemID uuid.UUID, current *uuid.UUID) *FacetError {
	err := &FacetError{
		Type:    ErrorTypeConflict,
		Code:    ErrCodeCategoryAlreadySet,
		Message: fmt.Sprintf("item %s already has a category", itemID),
		Details: map[string]any{"itemId": itemID},
	}
	if current != nil {
		err.Details["categoryId"] = *current
	}
	return err
}

func NewCategoryNotActiveError(itemID, categoryID uuid.UUID) *FacetError {
	return &FacetError{
		Type:    ErrorTypeState,
		Code:    ErrCodeCategoryNotActive,
		Message: fmt.Sprintf("category %s is not the active category of item %s", categoryID, itemID),
		Details: map[string]any{"itemId": itemID, "categoryId": categoryID},
	}
}

func NewNoSchemaError(categoryID uuid.UUID) *FacetError {
	return &FacetError{
		Type:    ErrorTypeState,
		Code:    ErrCodeNoSchema,
		Message: fmt.Sprintf("category %s has no schema", categoryID),
		Details: map[string]any{"categoryId": categoryID},
	}
}

func NewNoBackupFoundError(itemID, categoryID uuid.UUID) *FacetError {
	return &FacetError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeNoBackupFound,
		Message: fmt.Sprintf("no backup for item %s and category %s", itemID, categoryID),
		Details: map[string]any{"itemId": itemID, "categoryId": categoryID},
	}
}

func NewUnknownFieldError(fieldID uuid.UUID) *FacetError {
	return &FacetError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeUnknownField,
		Message: fmt.Sprintf("field %s is unknown", fieldID),
		Details: map[string]any{"fieldId": fieldID},
	}
}

// NewUnknownFieldNameError is the by-name variant used for value documents.
func NewUnknownFieldNameError(name string) *FacetError {
	return &FacetError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeUnknownField,
		Message: "no effective field has this name",
		Field:   name,
	}
}

func NewDuplicateFieldError(fieldID uuid.UUID) *FacetError {
	return &FacetError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeDuplicateField,
		Message: fmt.Sprintf("field %s is listed more than once", fieldID),
		Details: map[string]any{"fieldId": fieldID},
	}
}

func NewAlreadyPresentError(schemaID, fieldID uuid.UUID) *FacetError {
	return &FacetError{
		Type:    ErrorTypeConflict,
		Code:    ErrCodeAlreadyPresent,
		Message: fmt.Sprintf("field %s is already part of schema %s", fieldID, schemaID),
		Details: map[string]any{"schemaId": schemaID, "fieldId": fieldID},
	}
}

func NewTypeMismatchError(field, message string) *FacetError {
	return &FacetError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeTypeMismatch,
		Message: message,
		Field:   field,
	}
}

func NewIllegalOperatorError(field string, fieldType FieldType, op Operator) *FacetError {
	return &FacetError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeIllegalOperator,
		Message: fmt.Sprintf("operator %q is not supported for %s fields", op, fieldType),
		Field:   field,
		Details: map[string]any{"operator": op, "fieldType": fieldType},
	}
}

func NewConcurrentModificationError(itemID uuid.UUID) *FacetError {
	return &FacetError{
		Type:    ErrorTypeConcurrency,
		Code:    ErrCodeConcurrentModification,
		Message: fmt.Sprintf("item %s was modified concurrently", itemID),
		Details: map[string]any{"itemId": itemID},
	}
}

func NewFieldInUseError(fieldID uuid.UUID, values, backups int64) *FacetError {
	return &FacetError{
		Type:    ErrorTypeConflict,
		Code:    ErrCodeFieldInUse,
		Message: fmt.Sprintf("field %s is still referenced by stored values", fieldID),
		Details: map[string]any{
			"fieldId": fieldID,
			"values":  values,
			"backups": backups,
		},
	}
}

func NewNotFoundError(kind string, id uuid.UUID) *FacetError {
	return &FacetError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %s not found", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

func NewTransactionError(message string, cause error) *FacetError {
	return &FacetError{
		Type:    ErrorTypeTransaction,
		Code:    ErrCodeTransactionFailed,
		Message: message,
		Cause:   cause,
	}
}

func NewInternalError(message string, cause error) *FacetError {
	return &FacetError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
	}
}

// Error checking utilities

// AsFacetError returns the first FacetError in err's chain.
func AsFacetError(err error) (*FacetError, bool) {
	var fe *FacetError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code string) bool {
	fe, ok := AsFacetError(err)
	return ok && fe.Code == code
}

// CodeOf returns the error code of err, or ErrCodeInternalError for foreign errors.
func CodeOf(err error) string {
	if fe, ok := AsFacetError(err); ok {
		return fe.Code
	}
	return ErrCodeInternalError
}

func IsNotFound(err error) bool {
	fe, ok := AsFacetError(err)
	return ok && fe.Type == ErrorTypeNotFound
}

func IsConflict(err error) bool {
	fe, ok := AsFacetError(err)
	return ok && (fe.Type == ErrorTypeConflict || fe.Type == ErrorTypeConcurrency)
}

func IsValidation(err error) bool {
	fe, ok := AsFacetError(err)
	return ok && fe.Type == ErrorTypeValidation
}
