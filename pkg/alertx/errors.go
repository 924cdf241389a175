package alertx

import "github.com/gardenledger/fieldsync/pkg/errx"

var alertxErrors = errx.NewRegistry("ALERTX")

var (
	ErrSendFailed   = alertxErrors.Register("SEND_FAILED", errx.TypeExternal, 500, "Failed to deliver alert")
	ErrInvalidAlert = alertxErrors.Register("INVALID_ALERT", errx.TypeValidation, 400, "Invalid alert")
)
