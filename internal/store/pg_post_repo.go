package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/darrenwatt/truthy/internal/domain"
)

type pgPostRepository struct {
	pool *pgxpool.Pool
}

// NewPgPostRepository returns a PostRepository backed by PostgreSQL.
func NewPgPostRepository(pool *pgxpool.Pool) PostRepository {
	return &pgPostRepository{pool: pool}
}

func (r *pgPostRepository) Has(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_posts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed post: %w", err)
	}
	return exists, nil
}

func (r *pgPostRepository) MarkProcessed(ctx context.Context, st domain.Status, sentAt time.Time) error {
	if st.ID == "" {
		return domain.ErrInvalidStatus
	}

	rec := BuildRecord(st, sentAt)

	media, err := json.Marshal(rec.Media)
	if err != nil {
		return fmt.Errorf("encode media attachments: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO processed_posts
			(id, content, created_at, sent_at, username, display_name, media_attachments)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.Content, rec.CreatedAt, rec.SentAt, rec.Username, rec.DisplayName, media,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyProcessed
		}
		return fmt.Errorf("insert processed post: %w", err)
	}
	return nil
}

// BuildRecord derives the persisted document from a raw status.
// Attachments are filtered to deliverable types and collapsed to a single
// resolved URL; non-deliverable types are dropped here, not earlier, so the
// record reflects exactly what was eligible for sending.
func BuildRecord(st domain.Status, sentAt time.Time) domain.ProcessedPost {
	deliverable := lo.Filter(st.MediaAttachments, func(m domain.MediaAttachment, _ int) bool {
		return m.Type.Deliverable()
	})

	return domain.ProcessedPost{
		ID:          st.ID,
		Content:     st.Content,
		CreatedAt:   st.CreatedAt,
		SentAt:      sentAt.UTC(),
		Username:    st.Account.Username,
		DisplayName: st.Account.DisplayName,
		Media: lo.Map(deliverable, func(m domain.MediaAttachment, _ int) domain.ProcessedMedia {
			return domain.ProcessedMedia{Type: m.Type, URL: m.SourceURL()}
		}),
	}
}
