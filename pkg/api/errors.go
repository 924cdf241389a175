package api

import "github.com/gardenledger/fieldsync/pkg/errx"

var apiErrors = errx.NewRegistry("API")

var (
	ErrInvalidBody     = apiErrors.Register("INVALID_BODY", errx.TypeValidation, 400, "Invalid request body")
	ErrUnauthorized    = apiErrors.Register("UNAUTHORIZED", errx.TypeAuthorization, 401, "Missing or invalid device token")
	ErrTokenGeneration = apiErrors.Register("TOKEN_GENERATION", errx.TypeInternal, 500, "Failed to generate device token")
)
