package api

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/gardenledger/fieldsync/pkg/conflictx"
	"github.com/gardenledger/fieldsync/pkg/dedupx"
	"github.com/gardenledger/fieldsync/pkg/mediax"
	"github.com/gardenledger/fieldsync/pkg/ptrx"
	"github.com/gardenledger/fieldsync/pkg/queuex"
	"github.com/gardenledger/fieldsync/pkg/storagex"
	"github.com/gardenledger/fieldsync/pkg/syncx"
)

// Handlers exposes the engine over HTTP for the UI layer.
type Handlers struct {
	queue    *queuex.Queue
	sync     *syncx.Manager
	storage  *storagex.Manager
	dedup    *dedupx.Manager
	resolver *conflictx.Resolver
	media    *mediax.Manager
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(queue *queuex.Queue, sync *syncx.Manager, storage *storagex.Manager,
	dedup *dedupx.Manager, resolver *conflictx.Resolver, media *mediax.Manager) *Handlers {
	return &Handlers{
		queue:    queue,
		sync:     sync,
		storage:  storage,
		dedup:    dedup,
		resolver: resolver,
		media:    media,
	}
}

// RegisterRoutes mounts the engine routes behind the device auth middleware.
// The health endpoint stays open.
func (h *Handlers) RegisterRoutes(app *fiber.App, auth fiber.Handler) {
	app.Get("/health", h.health)

	v1 := app.Group("/api/v1", auth)

	v1.Post("/jobs", h.enqueueJob)
	v1.Get("/jobs/:id", h.getJob)
	v1.Get("/queue/stats", h.queueStats)
	v1.Post("/queue/flush", h.flush)

	v1.Get("/conflicts", h.detectConflicts)
	v1.Post("/conflicts/resolve", h.resolveConflict)

	v1.Get("/storage/analytics", h.storageAnalytics)
	v1.Post("/storage/cleanup", h.storageCleanup)

	v1.Post("/media/urls", h.createMediaURLs)
	v1.Delete("/media/urls/:trackingId", h.releaseMediaURLs)
	v1.Get("/media/stats", h.mediaStats)
}

func (h *Handlers) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "fieldsync",
	})
}

type enqueueRequest struct {
	Kind    string            `json:"kind"`
	Payload json.RawMessage   `json:"payload"`
	Meta    map[string]string `json:"meta"`
}

func (h *Handlers) enqueueJob(c *fiber.Ctx) error {
	var req enqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return apiErrors.NewWithCause(ErrInvalidBody, err)
	}

	kind := queuex.JobKind(req.Kind)
	id, err := h.queue.AddJob(c.Context(), kind, req.Payload, req.Meta)
	if err != nil {
		return err
	}

	// Work submissions also feed the local duplicate cache so a second
	// enqueue of the same content is caught before it ever reaches the
	// ledger.
	if kind == queuex.JobKindWork {
		var payload queuex.WorkPayload
		if jsonErr := json.Unmarshal(req.Payload, &payload); jsonErr == nil {
			h.dedup.AddToLocalCache(id, &payload)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"job_id": id})
}

func (h *Handlers) getJob(c *fiber.Ctx) error {
	job, err := h.queue.GetJob(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(job)
}

func (h *Handlers) queueStats(c *fiber.Ctx) error {
	stats, err := h.queue.Stats(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (h *Handlers) flush(c *fiber.Ctx) error {
	result, err := h.sync.Flush(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (h *Handlers) detectConflicts(c *fiber.Ctx) error {
	jobs, err := h.queue.GetJobs(c.Context(), queuex.Filter{Synced: ptrx.Ptr(false)})
	if err != nil {
		return err
	}

	conflicts := h.resolver.DetectConflicts(c.Context(), jobs)
	if conflicts == nil {
		conflicts = []conflictx.Conflict{}
	}
	return c.JSON(fiber.Map{"conflicts": conflicts})
}

type resolveRequest struct {
	Conflict conflictx.Conflict `json:"conflict"`
	Strategy string             `json:"strategy"`
}

func (h *Handlers) resolveConflict(c *fiber.Ctx) error {
	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return apiErrors.NewWithCause(ErrInvalidBody, err)
	}
	if req.Conflict.WorkID == "" {
		return apiErrors.New(ErrInvalidBody).WithDetail("reason", "conflict.work_id is required")
	}

	h.resolver.ResolveConflict(c.Context(), req.Conflict, conflictx.Strategy(req.Strategy))
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) storageAnalytics(c *fiber.Ctx) error {
	return c.JSON(h.storage.Analytics(c.Context()))
}

func (h *Handlers) storageCleanup(c *fiber.Ctx) error {
	result, err := h.storage.PerformCleanup(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(result)
}

type mediaURLsRequest struct {
	Paths      []string `json:"paths"`
	TrackingID string   `json:"tracking_id"`
}

func (h *Handlers) createMediaURLs(c *fiber.Ctx) error {
	var req mediaURLsRequest
	if err := c.BodyParser(&req); err != nil {
		return apiErrors.NewWithCause(ErrInvalidBody, err)
	}
	if len(req.Paths) == 0 {
		return apiErrors.New(ErrInvalidBody).WithDetail("reason", "paths is required")
	}

	urls, err := h.media.CreateURLs(c.Context(), req.Paths, req.TrackingID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"urls": urls})
}

func (h *Handlers) releaseMediaURLs(c *fiber.Ctx) error {
	h.media.CleanupURLs(c.Params("trackingId"))
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) mediaStats(c *fiber.Ctx) error {
	return c.JSON(h.media.Stats())
}
