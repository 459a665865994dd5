package domain

import "time"

// MediaType classifies a status attachment as reported by the upstream API.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaGifv  MediaType = "gifv"
)

// Deliverable reports whether this attachment type can be forwarded to the
// webhook. Unknown types (audio, polls, cards) are dropped from the outbound
// payload but still recorded in the processed document for auditability.
func (t MediaType) Deliverable() bool {
	switch t {
	case MediaImage, MediaVideo, MediaGifv:
		return true
	}
	return false
}

// MediaAttachment is one attachment on a status. URL is the full-size asset;
// PreviewURL is the fallback when URL is absent.
type MediaAttachment struct {
	Type       MediaType `json:"type"`
	URL        string    `json:"url"`
	PreviewURL string    `json:"preview_url"`
}

// SourceURL returns the address to download, preferring the full asset.
func (m MediaAttachment) SourceURL() string {
	if m.URL != "" {
		return m.URL
	}
	return m.PreviewURL
}

// Account is the author block embedded in a status.
type Account struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Status is one raw item as fetched from the upstream statuses endpoint.
// A status without an ID is invalid and must never reach the store or the
// webhook.
type Status struct {
	ID               string            `json:"id"`
	CreatedAt        string            `json:"created_at"`
	Content          string            `json:"content"`
	Account          Account           `json:"account"`
	MediaAttachments []MediaAttachment `json:"media_attachments"`
}

// PostedAt parses the upstream timestamp into a timezone-aware instant.
func (s Status) PostedAt() (time.Time, error) {
	return time.Parse(time.RFC3339, s.CreatedAt)
}

// ProcessedPost is the dedup record persisted once per delivered status.
// Its existence is the sole dedup signal: a row is written exactly once, at
// the moment delivery is confirmed, and never mutated afterwards.
type ProcessedPost struct {
	ID          string           `json:"id"`
	Content     string           `json:"content"`
	CreatedAt   string           `json:"created_at"`
	SentAt      time.Time        `json:"sent_at"`
	Username    string           `json:"username"`
	DisplayName string           `json:"display_name"`
	Media       []ProcessedMedia `json:"media_attachments"`
}

// ProcessedMedia is the filtered attachment form kept in the dedup record:
// deliverable types only, collapsed to a single resolved URL.
type ProcessedMedia struct {
	Type MediaType `json:"type"`
	URL  string    `json:"url"`
}

// Attachment is one downloaded media blob ready for the multipart payload.
type Attachment struct {
	Filename string
	Data     []byte
}

// Notification is the ephemeral outbound payload. It is built fresh per
// delivery attempt and discarded after send; nothing persists it.
type Notification struct {
	Text        string
	Attachments []Attachment
}
