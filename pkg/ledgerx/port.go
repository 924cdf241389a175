package ledgerx

import (
	"context"

	"github.com/gardenledger/fieldsync/pkg/queuex"
)

// Tx is a chain-specific transaction descriptor produced by the kind
// encoders. The engine never inspects Data; signing and broadcasting belong
// to the injected client.
type Tx struct {
	Kind          queuex.JobKind
	GardenAddress string
	Data          []byte
}

// Client is the smart account signer/transport that actually commits a
// transaction to the ledger. Implementations are external to this module;
// tests inject mocks.
type Client interface {
	// Execute signs and broadcasts the transaction, returning the ledger
	// reference on success. Treated as atomic all-or-nothing; timeouts are
	// the transport's responsibility.
	Execute(ctx context.Context, tx Tx) (txRef string, err error)
}
