package errors

// NewNotFoundError returns a new ErrNotFound error with the given message.
func NewNotFoundError(message string, details Details) error {
	return Error{
		Code:    ErrNotFound,
		Message: message,
		Details: details,
	}
}

// NewInvalidTransitionError returns a new ErrInvalidTransition error with the
// given message. The rejected operation must not have mutated any state.
func NewInvalidTransitionError(message string, details Details) error {
	return Error{
		Code:    ErrInvalidTransition,
		Message: message,
		Details: details,
	}
}

// NewBadRequestError returns a new ErrBadRequest error with the given message.
func NewBadRequestError(message string, details Details) error {
	return Error{
		Code:    ErrBadRequest,
		Message: message,
		Details: details,
	}
}

// NewInternalError returns a new ErrInternal error with the given message.
func NewInternalError(message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Message: message,
		Details: details,
	}
}

// NewInternalErrorFromErr returns a new ErrInternal error wrapping the given
// one.
func NewInternalErrorFromErr(err error, message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewCommunicationError returns a new ErrCommunication error with the given
// message.
func NewCommunicationError(message string, details Details) error {
	return Error{
		Code:    ErrCommunication,
		Message: message,
		Details: details,
	}
}

// NewCommunicationErrorFromErr returns a new ErrCommunication error wrapping
// the given one.
func NewCommunicationErrorFromErr(err error, message string, details Details) error {
	return Error{
		Code:    ErrCommunication,
		Err:     err,
		Message: message,
		Details: details,
	}
}
