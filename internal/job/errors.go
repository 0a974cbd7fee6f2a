package job

import "errors"

// ValidationCode identifies which draft rule failed
type ValidationCode string

const (
	CodeMissingRecipient    ValidationCode = "MissingRecipient"
	CodeMissingSubject      ValidationCode = "MissingSubject"
	CodeInvalidJobType      ValidationCode = "InvalidJobType"
	CodeMissingScheduleTime ValidationCode = "MissingScheduleTime"
	CodeInvalidScheduleTime ValidationCode = "InvalidScheduleTime"
	CodeInvalidRecurrence   ValidationCode = "InvalidRecurrence"
	CodeInvalidTimezone     ValidationCode = "InvalidTimezone"
	CodeIntervalOutOfRange  ValidationCode = "IntervalOutOfRange"
)

// ValidationError is a user-correctable problem found before submission
type ValidationError struct {
	Code    ValidationCode
	Message string
}

func newValidationError(code ValidationCode, msg string) *ValidationError {
	return &ValidationError{Code: code, Message: msg}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidationCodeOf returns the code of a validation error anywhere in
// err's chain, or "" when err is not one.
func ValidationCodeOf(err error) ValidationCode {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
