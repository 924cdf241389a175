package ledgerx

import "github.com/gardenledger/fieldsync/pkg/errx"

var ledgerxErrors = errx.NewRegistry("LEDGERX")

var (
	ErrUnsupportedKind    = ledgerxErrors.Register("UNSUPPORTED_KIND", errx.TypeValidation, 400, "Unsupported job kind")
	ErrEncodeFailed       = ledgerxErrors.Register("ENCODE_FAILED", errx.TypeValidation, 400, "Failed to encode transaction")
	ErrClientUnavailable  = ledgerxErrors.Register("CLIENT_UNAVAILABLE", errx.TypeExternal, 503, "Smart account client not available")
	ErrTransactionFailed  = ledgerxErrors.Register("TRANSACTION_FAILED", errx.TypeExternal, 502, "Ledger transaction failed")
	ErrJobNotProcessable  = ledgerxErrors.Register("JOB_NOT_PROCESSABLE", errx.TypeNotFound, 404, "Job not found or already synced")
	ErrAttemptsExhausted  = ledgerxErrors.Register("ATTEMPTS_EXHAUSTED", errx.TypeConflict, 409, "Job has no remaining attempts")
)
