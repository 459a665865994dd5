package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/darrenwatt/truthy/internal/domain"
	"github.com/darrenwatt/truthy/internal/store"
)

func TestBuildRecord_FiltersNonDeliverableMedia(t *testing.T) {
	st := domain.Status{
		ID:        "1",
		CreatedAt: "2025-06-16T12:00:00Z",
		Content:   "<p>hi</p>",
		Account:   domain.Account{Username: "x", DisplayName: "X"},
		MediaAttachments: []domain.MediaAttachment{
			{Type: domain.MediaImage, URL: "https://cdn/a.png"},
			{Type: "audio", URL: "https://cdn/a.mp3"},
			{Type: domain.MediaGifv, PreviewURL: "https://cdn/b.gif"},
		},
	}

	sentAt := time.Date(2025, 6, 16, 12, 5, 0, 0, time.UTC)
	rec := store.BuildRecord(st, sentAt)

	if rec.ID != "1" || rec.Username != "x" || rec.DisplayName != "X" {
		t.Fatalf("unexpected record identity fields: %+v", rec)
	}
	if !rec.SentAt.Equal(sentAt) {
		t.Fatalf("expected sent_at %v, got %v", sentAt, rec.SentAt)
	}
	if len(rec.Media) != 2 {
		t.Fatalf("expected 2 deliverable attachments persisted, got %d", len(rec.Media))
	}
	if rec.Media[0].URL != "https://cdn/a.png" {
		t.Fatalf("expected full url preferred, got %q", rec.Media[0].URL)
	}
	if rec.Media[1].URL != "https://cdn/b.gif" {
		t.Fatalf("expected preview fallback, got %q", rec.Media[1].URL)
	}
}

func TestMockPostRepository_MarkProcessedOnce(t *testing.T) {
	repo := store.NewMockPostRepository()
	ctx := context.Background()
	st := domain.Status{ID: "1", CreatedAt: "2025-06-16T12:00:00Z"}

	if err := repo.MarkProcessed(ctx, st, time.Now().UTC()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.MarkProcessed(ctx, st, time.Now().UTC()); err != domain.ErrAlreadyProcessed {
		t.Fatalf("expected ErrAlreadyProcessed on duplicate, got %v", err)
	}

	seen, err := repo.Has(ctx, "1")
	if err != nil || !seen {
		t.Fatalf("expected id 1 to be recorded: seen=%v err=%v", seen, err)
	}
}

func TestMockPostRepository_RejectsInvalidStatus(t *testing.T) {
	repo := store.NewMockPostRepository()
	err := repo.MarkProcessed(context.Background(), domain.Status{}, time.Now())
	if err != domain.ErrInvalidStatus {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}
