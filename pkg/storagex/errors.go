package storagex

import "github.com/gardenledger/fieldsync/pkg/errx"

var storagexErrors = errx.NewRegistry("STORAGEX")

var (
	ErrCleanupInProgress = storagexErrors.Register("CLEANUP_IN_PROGRESS", errx.TypeConflict, 409, "Cleanup already in progress")
)
