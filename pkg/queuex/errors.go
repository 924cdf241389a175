package queuex

import "github.com/gardenledger/fieldsync/pkg/errx"

var queuexErrors = errx.NewRegistry("QUEUEX")

var (
	ErrJobNotFound    = queuexErrors.Register("JOB_NOT_FOUND", errx.TypeNotFound, 404, "Job not found")
	ErrInvalidKind    = queuexErrors.Register("INVALID_KIND", errx.TypeValidation, 400, "Invalid job kind")
	ErrInvalidPayload = queuexErrors.Register("INVALID_PAYLOAD", errx.TypeValidation, 400, "Invalid job payload")
	ErrStoreFailed    = queuexErrors.Register("STORE_FAILED", errx.TypeExternal, 500, "Queue store operation failed")
)

// NotFound builds the canonical not-found error for a job id.
func NotFound(id string) *errx.Error {
	return queuexErrors.New(ErrJobNotFound).WithDetail("job_id", id)
}
