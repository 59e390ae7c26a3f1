package ingest

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
)

const (
	fetchTimeout = 30 * time.Second
	// maxFetchBytes caps the response body read. News articles are far
	// smaller; the cap guards against pathological endpoints.
	maxFetchBytes = 10 << 20
)

// Fetcher downloads article pages. Requests carry a browser-like header
// profile because many news sites serve bot user agents a stub page, and
// no-cache headers so re-ingesting a URL sees the live article.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher. A nil client gets a default with an
// instrumented transport.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{
			Timeout:   fetchTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Fetcher{client: client}
}

// Fetch retrieves the raw HTML of a page. Non-2xx responses and non-HTML
// content types are errors; nothing is read past the byte cap.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("ingest: build request: %w", err)
	}
	setBrowserHeaders(req.Header)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ingest: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("ingest: fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	if !isHTML(resp.Header.Get("Content-Type")) {
		return "", fmt.Errorf("ingest: fetch %s: %w", url, domain.ErrNotHTML)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("ingest: read body %s: %w", url, err)
	}
	return string(body), nil
}

func setBrowserHeaders(h http.Header) {
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	return strings.HasPrefix(mediaType, "text/html") || strings.HasPrefix(mediaType, "application/xhtml+xml")
}
