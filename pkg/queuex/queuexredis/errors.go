package queuexredis

import "github.com/gardenledger/fieldsync/pkg/errx"

var redisErrors = errx.NewRegistry("QUEUEX_REDIS")

var (
	ErrPut       = redisErrors.Register("PUT", errx.TypeExternal, 500, "Failed to persist job")
	ErrGet       = redisErrors.Register("GET", errx.TypeExternal, 500, "Failed to load job")
	ErrList      = redisErrors.Register("LIST", errx.TypeExternal, 500, "Failed to list jobs")
	ErrUpdate    = redisErrors.Register("UPDATE", errx.TypeExternal, 500, "Failed to update job")
	ErrDelete    = redisErrors.Register("DELETE", errx.TypeExternal, 500, "Failed to delete job")
	ErrMarshal   = redisErrors.Register("MARSHAL", errx.TypeInternal, 500, "Failed to marshal job")
	ErrUnmarshal = redisErrors.Register("UNMARSHAL", errx.TypeInternal, 500, "Failed to unmarshal job")
)
