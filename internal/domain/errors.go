package domain

import (
	"errors"
	"fmt"
)

// Виды ошибок воркфлоу. Проверяются через errors.Is.
var (
	ErrValidation  = errors.New("validation error")
	ErrStorage     = errors.New("storage error")
	ErrRecognition = errors.New("recognition error")
	ErrNotFound    = errors.New("photo record not found")

	// ErrPermanent помечает ошибки, которые не исчезнут при повторе того же запроса.
	ErrPermanent = errors.New("permanent failure")
)

// Этапы воркфлоу, на которых может произойти ошибка.
const (
	OpValidate      = "validate"
	OpPutBlob       = "put_blob"
	OpGetBlob       = "get_blob"
	OpSaveMetadata  = "save_metadata"
	OpGetMetadata   = "get_metadata"
	OpRegisterFaces = "register_faces"
	OpSearchFaces   = "search_faces"
)

// WorkflowError — единая ошибка уровня воркфлоу.
type WorkflowError struct {
	Kind       error
	Op         string
	ExternalID string
	Err        error
}

func (e *WorkflowError) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.ExternalID != "" {
		msg = fmt.Sprintf("%s (external id %s)", msg, e.ExternalID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *WorkflowError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewWorkflowError создаёт WorkflowError указанного вида.
func NewWorkflowError(kind error, op, externalID string, err error) *WorkflowError {
	return &WorkflowError{Kind: kind, Op: op, ExternalID: externalID, Err: err}
}

// AsWorkflowError извлекает WorkflowError из цепочки ошибок.
func AsWorkflowError(err error) (*WorkflowError, bool) {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr, true
	}
	return nil, false
}
