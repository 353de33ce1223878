package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/garnizeh/recruit/internal/blob"
	"github.com/garnizeh/recruit/internal/models"
)

// TypeBlobDelete removes a stored file after its metadata record is gone.
const TypeBlobDelete = "blob.delete"

type blobDeletePayload struct {
	Locator string `json:"locator"`
}

// BlobDeleteHandler returns the handler for TypeBlobDelete jobs.
func BlobDeleteHandler(store blob.Store) Handler {
	return func(ctx context.Context, j *models.BackgroundJob) error {
		var p blobDeletePayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return fmt.Errorf("decode blob.delete payload: %w", err)
		}
		if p.Locator == "" {
			return fmt.Errorf("blob.delete payload without locator")
		}
		return store.Delete(ctx, p.Locator)
	}
}

type enqueuer interface {
	Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error)
}

// BlobJanitor schedules blob removal through the job queue and falls back to
// deleting inline when the queue write fails.
type BlobJanitor struct {
	queue  enqueuer
	store  blob.Store
	logger *slog.Logger
}

func NewBlobJanitor(queue enqueuer, store blob.Store, logger *slog.Logger) *BlobJanitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobJanitor{queue: queue, store: store, logger: logger}
}

func (b *BlobJanitor) RemoveBlob(ctx context.Context, locator string) {
	if locator == "" {
		return
	}
	if b.queue != nil {
		_, err := b.queue.Enqueue(ctx, TypeBlobDelete, blobDeletePayload{Locator: locator}, 100, 5)
		if err == nil {
			return
		}
		b.logger.Warn("enqueue blob.delete failed; deleting inline", "locator", locator, "err", err)
	}
	if err := b.store.Delete(ctx, locator); err != nil {
		b.logger.Error("delete blob", "locator", locator, "err", err)
	}
}
