package store

import (
	"context"
	"time"

	"github.com/darrenwatt/truthy/internal/domain"
)

// PostRepository is the dedup store: it answers whether a status id has
// already been delivered and records a delivered status exactly once.
// The pgx implementation is in pg_post_repo.go.
// Tests use a hand-written mock (mock_post_repo.go).
//
// MarkProcessed must only be called after the webhook confirms delivery.
// Because the record is written second, a crash between delivery and
// recording can cause one duplicate send on the next cycle, never a drop.
type PostRepository interface {
	Has(ctx context.Context, id string) (bool, error)
	MarkProcessed(ctx context.Context, st domain.Status, sentAt time.Time) error
}
