package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// transport issues one request to the target URL through whichever
// intermediary is configured and returns the reply body as an
// upstreamResponse. Implementations do not retry; the client owns backoff.
type transport interface {
	Get(ctx context.Context, target string, headers http.Header) (upstreamResponse, error)
}

// directTransport fetches the target URL with no intermediary.
// Used in tests and in deployments that do not need anti-bot bypass.
type directTransport struct {
	client *http.Client
}

func newDirectTransport(timeout time.Duration) *directTransport {
	return &directTransport{client: &http.Client{Timeout: timeout}}
}

func (t *directTransport) Get(ctx context.Context, target string, headers http.Header) (upstreamResponse, error) {
	body, err := doGet(ctx, t.client, target, headers)
	if err != nil {
		return nil, err
	}
	return rawResponse{body: body}, nil
}

// proxyTransport routes the request through a forwarding proxy service
// (ScrapeOps-style): the real target URL travels as a query parameter and
// the proxy fetches it on our behalf from a residential exit.
type proxyTransport struct {
	client   *http.Client
	proxyURL string
	apiKey   string
	country  string
}

func newProxyTransport(timeout time.Duration, proxyURL, apiKey, country string) *proxyTransport {
	return &proxyTransport{
		client:   &http.Client{Timeout: timeout},
		proxyURL: proxyURL,
		apiKey:   apiKey,
		country:  country,
	}
}

func (t *proxyTransport) Get(ctx context.Context, target string, headers http.Header) (upstreamResponse, error) {
	q := url.Values{}
	q.Set("api_key", t.apiKey)
	q.Set("url", target)
	q.Set("country", t.country)

	body, err := doGet(ctx, t.client, t.proxyURL+"?"+q.Encode(), headers)
	if err != nil {
		return nil, err
	}
	return rawResponse{body: body}, nil
}

// solverTransport sends the request through a browser challenge solver
// (FlareSolverr-style JSON command API). The solver's reply wraps the target
// page in an envelope; the payload may itself be HTML around the JSON.
type solverTransport struct {
	client    *http.Client
	solverURL string
}

func newSolverTransport(timeout time.Duration, solverURL string) *solverTransport {
	return &solverTransport{client: &http.Client{Timeout: timeout}, solverURL: solverURL}
}

type solverCommand struct {
	Cmd        string            `json:"cmd"`
	URL        string            `json:"url"`
	MaxTimeout int               `json:"maxTimeout"`
	Headers    map[string]string `json:"headers,omitempty"`
}

type solverEnvelope struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Solution struct {
		Response string `json:"response"`
	} `json:"solution"`
}

func (t *solverTransport) Get(ctx context.Context, target string, headers http.Header) (upstreamResponse, error) {
	cmd := solverCommand{Cmd: "request.get", URL: target, MaxTimeout: 25000}
	if len(headers) > 0 {
		cmd.Headers = make(map[string]string, len(headers))
		for k := range headers {
			cmd.Headers[k] = headers.Get(k)
		}
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, transportError("solver request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.solverURL, bytes.NewReader(payload))
	if err != nil {
		return nil, transportError("solver request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, transportError("solver request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("solver request", resp.StatusCode)
	}

	var env solverEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, transportError("solver response", err)
	}
	if env.Status != "ok" {
		return nil, transportError("solver response", fmt.Errorf("solver status %q: %s", env.Status, env.Message))
	}

	return solverResponse{payload: []byte(env.Solution.Response)}, nil
}

// doGet performs a plain GET and returns the body on any 2xx status.
func doGet(ctx context.Context, client *http.Client, target string, headers http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, transportError("get", err)
	}
	for k := range headers {
		req.Header.Set(k, headers.Get(k))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError("get", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused; the body is small on errors.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, statusError("get", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError("read body", err)
	}
	return body, nil
}
