package feed

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// upstreamResponse is the narrow view the client needs of a reply body,
// regardless of which intermediary produced it. The direct and scrapeops
// paths hand back the body as-is; the solver path has to unwrap its
// envelope first and may find the JSON re-wrapped in an HTML page.
type upstreamResponse interface {
	Bytes() []byte
	Decode(v any) error
}

// rawResponse is a plain JSON body from a direct or forwarding-proxy request.
type rawResponse struct {
	body []byte
}

func (r rawResponse) Bytes() []byte { return r.body }

func (r rawResponse) Decode(v any) error {
	return json.Unmarshal(r.body, v)
}

// solverResponse holds the inner payload extracted from a challenge-solver
// envelope. The solver renders the target in a browser, so a JSON endpoint
// frequently comes back as an HTML document with the JSON inside a <pre>.
type solverResponse struct {
	payload []byte
}

func (r solverResponse) Bytes() []byte { return r.payload }

func (r solverResponse) Decode(v any) error {
	if err := json.Unmarshal(r.payload, v); err == nil {
		return nil
	}

	pre, err := extractPre(r.payload)
	if err != nil {
		return fmt.Errorf("solver payload is neither JSON nor a <pre>-wrapped document: %w", err)
	}
	if err := json.Unmarshal([]byte(pre), v); err != nil {
		return fmt.Errorf("decode <pre> content: %w", err)
	}
	return nil
}

// extractPre returns the text of the first <pre> element in an HTML document.
func extractPre(doc []byte) (string, error) {
	root, err := html.Parse(strings.NewReader(string(doc)))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var pre *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if pre != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "pre" {
			pre = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if pre == nil {
		return "", fmt.Errorf("no <pre> element found")
	}

	var sb strings.Builder
	for c := pre.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String(), nil
}
