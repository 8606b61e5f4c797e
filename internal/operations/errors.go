package operations

import (
	"errors"

	"semaphore/reports/internal/forms"
	"semaphore/reports/internal/workflow"
)

const (
	ErrInvalidReportID       = "invalid_report_id"
	ErrReportNotFound        = "report_not_found"
	ErrInvalidCommentType    = "invalid_comment_type"
	ErrInvalidStage          = "invalid_stage"
	ErrStageChanged          = "stage_changed"
	ErrForbidden             = "forbidden"
	ErrCommentTooShort       = "comment_too_short"
	ErrMissingReason         = "missing_reason"
	ErrReasonTooLong         = "reason_too_long"
	ErrAlreadyRejected       = "already_rejected"
	ErrResponseLocked        = "response_locked"
	ErrReportNotComplete     = "report_not_complete"
	ErrInvalidFormID         = "invalid_form_id"
	ErrFormNotFound          = "form_not_found"
	ErrFormClosed            = "form_closed"
	ErrFormNotPublished      = "form_not_published"
	ErrInvalidFormInstanceID = "invalid_form_instance_id"
	ErrFormInstanceNotFound  = "form_instance_not_found"
	ErrStudentNotFound       = "student_not_found"
	ErrClassNotFound         = "class_not_found"
	ErrInvalidAnswers        = "invalid_answers"
	ErrServerError           = "server_error"
)

// ForbiddenMessage is shown to a user who is not the assigned reviewer.
const ForbiddenMessage = "접근 권한이 없습니다"

type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

var workflowCodes = map[error]string{
	workflow.ErrInvalidCommentType: ErrInvalidCommentType,
	workflow.ErrInvalidStage:       ErrInvalidStage,
	workflow.ErrForbidden:          ErrForbidden,
	workflow.ErrCommentTooShort:    ErrCommentTooShort,
	workflow.ErrMissingReason:      ErrMissingReason,
	workflow.ErrReasonTooLong:      ErrReasonTooLong,
	workflow.ErrAlreadyRejected:    ErrAlreadyRejected,
	workflow.ErrResponseLocked:     ErrResponseLocked,
}

func fromWorkflow(err error) *Error {
	for target, code := range workflowCodes {
		if errors.Is(err, target) {
			opErr := &Error{Code: code, Err: err}
			if code == ErrForbidden {
				opErr.Message = ForbiddenMessage
			}
			return opErr
		}
	}
	return &Error{Code: ErrServerError, Err: err}
}

func fromAnswers(err error) *Error {
	var fieldErr *forms.FieldError
	if errors.As(err, &fieldErr) {
		return &Error{Code: ErrInvalidAnswers, Message: fieldErr.Error(), Err: err}
	}
	return &Error{Code: ErrInvalidAnswers, Err: err}
}

// asError normalizes anything returned from a transaction into *Error.
func asError(err error) error {
	if err == nil {
		return nil
	}
	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr
	}
	return &Error{Code: ErrServerError, Err: err}
}
