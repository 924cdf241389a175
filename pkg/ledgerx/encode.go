package ledgerx

import (
	"encoding/json"

	"github.com/gardenledger/fieldsync/pkg/queuex"
)

// workTxData is the on-chain payload for a work submission.
type workTxData struct {
	GardenAddress string   `json:"gardenAddress"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	SchemaID      string   `json:"schemaId,omitempty"`
	MediaPaths    []string `json:"mediaPaths,omitempty"`
	ContributorID string   `json:"contributorId,omitempty"`
}

// approvalTxData is the on-chain payload for a work approval vote.
type approvalTxData struct {
	WorkID   string `json:"workId"`
	Approver string `json:"approver"`
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// EncodeTx turns a queued job into the transaction the ledger client can
// execute. The kind switch is exhaustive over the closed JobKind set; an
// unrecognised kind is a hard error so it fails the job loudly rather than
// being silently dropped.
func EncodeTx(job *queuex.Job) (Tx, error) {
	switch job.Kind {
	case queuex.JobKindWork:
		payload, err := queuex.DecodeWorkPayload(job)
		if err != nil {
			return Tx{}, ledgerxErrors.NewWithCause(ErrEncodeFailed, err)
		}
		data, err := json.Marshal(workTxData{
			GardenAddress: payload.GardenAddress,
			Title:         payload.Title,
			Description:   payload.Description,
			SchemaID:      payload.SchemaID,
			MediaPaths:    payload.MediaPaths,
			ContributorID: payload.ContributorID,
		})
		if err != nil {
			return Tx{}, ledgerxErrors.NewWithCause(ErrEncodeFailed, err)
		}
		return Tx{Kind: job.Kind, GardenAddress: payload.GardenAddress, Data: data}, nil

	case queuex.JobKindApproval:
		payload, err := queuex.DecodeApprovalPayload(job)
		if err != nil {
			return Tx{}, ledgerxErrors.NewWithCause(ErrEncodeFailed, err)
		}
		data, err := json.Marshal(approvalTxData{
			WorkID:   payload.WorkID,
			Approver: payload.Approver,
			Approved: payload.Approved,
			Feedback: payload.Feedback,
		})
		if err != nil {
			return Tx{}, ledgerxErrors.NewWithCause(ErrEncodeFailed, err)
		}
		return Tx{Kind: job.Kind, Data: data}, nil

	default:
		return Tx{}, ledgerxErrors.New(ErrUnsupportedKind).WithDetail("kind", string(job.Kind))
	}
}
