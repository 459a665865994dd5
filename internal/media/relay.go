// Package media downloads status attachments for inclusion in the outbound
// multipart payload.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/darrenwatt/truthy/internal/domain"
)

// Relay fetches attachment bytes and derives a sensible filename.
// A failed download is never fatal for the notification: the caller logs
// the error and sends without that attachment.
type Relay struct {
	client *http.Client
}

func NewRelay(timeout time.Duration) *Relay {
	return &Relay{client: &http.Client{Timeout: timeout}}
}

// Download fetches the attachment, preferring the full-size URL over the
// preview, and returns the bytes with an inferred filename.
func (r *Relay) Download(ctx context.Context, att domain.MediaAttachment) ([]byte, string, error) {
	src := att.SourceURL()
	if src == "" {
		return nil, "", domain.ErrNoMediaURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("download media: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read media body: %w", err)
	}

	filename := Filename(src, resp.Header.Get("Content-Type"))
	return data, filename, nil
}

// Filename derives a filename from the URL path (query stripped) and appends
// the extension implied by the content type when the existing one does not
// already match. An existing mismatched extension is kept, never replaced.
func Filename(rawURL, contentType string) string {
	name := path.Base(rawURL)
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		name = path.Base(u.Path)
	}
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}

	lower := strings.ToLower(name)
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "image/jpeg"):
		if !strings.HasSuffix(lower, ".jpg") && !strings.HasSuffix(lower, ".jpeg") {
			name += ".jpg"
		}
	case strings.Contains(ct, "image/png"):
		if !strings.HasSuffix(lower, ".png") {
			name += ".png"
		}
	case strings.Contains(ct, "image/gif"):
		if !strings.HasSuffix(lower, ".gif") {
			name += ".gif"
		}
	case strings.Contains(ct, "video/"):
		if !strings.HasSuffix(lower, ".mp4") && !strings.HasSuffix(lower, ".mov") && !strings.HasSuffix(lower, ".webm") {
			name += ".mp4"
		}
	}
	return name
}
