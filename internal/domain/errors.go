package domain

import "errors"

// Pipeline error kinds. Each fatal stage failure wraps one of these so
// callers can classify with errors.Is; detail from the remote service is
// carried in the wrapping message.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrSubmissionFailed  = errors.New("submission failed")
	ErrGenerationFailed  = errors.New("generation failed")
	ErrGenerationTimeout = errors.New("generation timed out")
	ErrStorageFailed     = errors.New("storage failed")
)
