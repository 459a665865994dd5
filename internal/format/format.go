// Package format turns a raw status into a bounded-length webhook message.
// Everything here is pure: for the same status the output is identical, and
// only the footer depends on the status' own timestamp, never on wall clock.
package format

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/net/html"

	"github.com/darrenwatt/truthy/internal/domain"
)

// hardLimit is the channel's absolute message length; budget leaves slack
// below it for formatting markers.
const (
	hardLimit = 2000
	budget    = 1950
)

var (
	blankRuns    = regexp.MustCompile(`\n\s*\n`)
	spaceRuns    = regexp.MustCompile(`[ \t]+`)
	urlPattern   = regexp.MustCompile(`[<(\[]?https?://\S+`)
	bracketedURL = regexp.MustCompile(`<https?://[^<>\s]+>`)
)

// Formatter composes messages for one monitored account.
type Formatter struct {
	postType     string
	fallbackUser string
}

func New(postType, fallbackUser string) *Formatter {
	return &Formatter{postType: postType, fallbackUser: fallbackUser}
}

// Message builds the header/body/footer text for a status.
//
// clamped reports that the emergency clamp fired: header and footer alone
// blew the budget and the whole message was hard-truncated. Callers should
// log it as a warning, since it means the reserved slack was insufficient.
func (f *Formatter) Message(st domain.Status) (msg string, clamped bool, err error) {
	if st.ID == "" {
		return "", false, domain.ErrInvalidStatus
	}

	postedAt, err := st.PostedAt()
	if err != nil {
		return "", false, fmt.Errorf("parse created_at %q: %w", st.CreatedAt, err)
	}

	content := StripHTML(st.Content)

	username := st.Account.Username
	if username == "" {
		username = f.fallbackUser
	}
	display := st.Account.DisplayName
	if display == "" {
		display = username
	}

	header := fmt.Sprintf("**New %s from %s (@%s)**\n", capitalize(f.postType), display, username)
	footer := fmt.Sprintf("\n*Posted at: %s*", postedAt.Format("January 02, 2006 at 03:04 PM MST"))

	maxContent := budget - runeLen(header) - runeLen(footer)
	if r := []rune(content); len(r) > maxContent && maxContent > 3 {
		content = string(r[:maxContent-3]) + "..."
	}

	msg = header + content + footer
	if r := []rune(msg); len(r) > hardLimit {
		return string(r[:hardLimit-3]) + "...", true, nil
	}
	return msg, false, nil
}

// DeliverableMedia returns the status' attachments that can be forwarded,
// in their original order.
func DeliverableMedia(st domain.Status) []domain.MediaAttachment {
	return lo.Filter(st.MediaAttachments, func(m domain.MediaAttachment, _ int) bool {
		return m.Type.Deliverable()
	})
}

// StripHTML flattens upstream rich text into plain text: <br> and <p>
// boundaries become newlines, blank-line runs collapse to one blank line,
// horizontal whitespace runs collapse to a single space, and bare URLs are
// wrapped in angle brackets so the channel does not expand previews.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}

	// The tokenizer reads an author-bracketed <https://...> as a start tag
	// and would swallow it. Stash those spans behind NUL placeholders and
	// put them back once the markup is gone.
	var stash []string
	s = bracketedURL.ReplaceAllStringFunc(s, func(m string) string {
		stash = append(stash, m)
		return "\x00"
	})

	var sb strings.Builder
	tz := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := tz.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tz.TagName()
			if tag := string(name); tag == "br" || tag == "p" {
				sb.WriteByte('\n')
			}
		case html.TextToken:
			sb.WriteString(tz.Token().Data)
		}
	}

	text := blankRuns.ReplaceAllString(sb.String(), "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	for _, u := range stash {
		text = strings.Replace(text, "\x00", u, 1)
	}

	return urlPattern.ReplaceAllStringFunc(text, func(m string) string {
		switch m[0] {
		case '<', '(', '[':
			return m // already bracketed; leave preview suppression to the author
		}
		return "<" + m + ">"
	})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func runeLen(s string) int { return len([]rune(s)) }
