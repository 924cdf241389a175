package alertxses

import "github.com/gardenledger/fieldsync/pkg/errx"

var sesErrors = errx.NewRegistry("ALERTX_SES")

var (
	ErrSendFailed = sesErrors.Register("SEND_FAILED", errx.TypeExternal, 500, "SES alert delivery failed")
)
