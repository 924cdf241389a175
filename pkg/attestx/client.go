package attestx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gardenledger/fieldsync/pkg/logx"
)

const (
	// DefaultTimeout bounds a single check call. Checks are advisory, so a
	// slow backend must not stall a flush pass for long.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20 // 1MB
)

// RemoteWork is the indexer's record of an already-committed work item.
type RemoteWork struct {
	ID            string `json:"id"`
	GardenAddress string `json:"garden_address,omitempty"`
	Title         string `json:"title,omitempty"`
	TxRef         string `json:"tx_ref,omitempty"`
}

// GardenStatus is the indexer's view of a garden's lifecycle state.
type GardenStatus struct {
	IsArchived bool `json:"isArchived"`
	IsInactive bool `json:"isInactive"`
}

// Checker is the interface the dedup and conflict layers consume. All three
// checks are fail-open: a transport error, non-2xx status or malformed body
// yields the negative/absent result and a log line, never an error.
type Checker interface {
	CheckDuplicate(ctx context.Context, contentHash string) (exists bool, work *RemoteWork)
	CurrentSchema(ctx context.Context, kind string) (schemaID string, ok bool)
	GardenStatus(ctx context.Context, address string) (status GardenStatus, ok bool)
}

// Client talks to the attestation/indexer backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the attestation backend.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// CheckDuplicate asks whether a work item with this content hash already
// exists remotely. Availability over strict consistency: any failure reports
// "not a duplicate" so offline work is never blocked by a flaky backend.
func (c *Client) CheckDuplicate(ctx context.Context, contentHash string) (bool, *RemoteWork) {
	payload, err := json.Marshal(map[string]string{"contentHash": contentHash})
	if err != nil {
		logx.WithError(err).Warn("attestx: failed to marshal duplicate-check request")
		return false, nil
	}

	body, ok := c.post(ctx, "/works/check-duplicate", payload)
	if !ok {
		return false, nil
	}

	var resp struct {
		Exists bool        `json:"exists"`
		Work   *RemoteWork `json:"work,omitempty"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		logx.WithError(err).Warn("attestx: malformed duplicate-check response")
		return false, nil
	}
	return resp.Exists, resp.Work
}

// CurrentSchema returns the authoritative schema id for a job kind. ok=false
// means the answer is unknown; callers must treat that as "no mismatch".
func (c *Client) CurrentSchema(ctx context.Context, kind string) (string, bool) {
	body, ok := c.get(ctx, fmt.Sprintf("/schemas/%s/current", kind))
	if !ok {
		return "", false
	}

	var resp struct {
		SchemaID string `json:"schemaId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		logx.WithError(err).Warn("attestx: malformed schema response")
		return "", false
	}
	if resp.SchemaID == "" {
		return "", false
	}
	return resp.SchemaID, true
}

// GardenStatus returns the archived/inactive flags for a garden. ok=false
// means the answer is unknown; callers must treat that as "garden active".
func (c *Client) GardenStatus(ctx context.Context, address string) (GardenStatus, bool) {
	body, ok := c.get(ctx, fmt.Sprintf("/gardens/%s/status", address))
	if !ok {
		return GardenStatus{}, false
	}

	var status GardenStatus
	if err := json.Unmarshal(body, &status); err != nil {
		logx.WithError(err).Warn("attestx: malformed garden status response")
		return GardenStatus{}, false
	}
	return status, true
}

func (c *Client) post(ctx context.Context, endpoint string, payload []byte) ([]byte, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		logx.WithError(err).Warnf("attestx: failed to build request for %s", endpoint)
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, endpoint)
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		logx.WithError(err).Warnf("attestx: failed to build request for %s", endpoint)
		return nil, false
	}
	return c.do(req, endpoint)
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, bool) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logx.WithError(err).Warnf("attestx: request to %s failed", endpoint)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logx.WithField("status", resp.StatusCode).
			Warnf("attestx: %s returned non-2xx status", endpoint)
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		logx.WithError(err).Warnf("attestx: failed to read response from %s", endpoint)
		return nil, false
	}
	return body, true
}
