package offline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sarthi/gateway/internal/cachestore"
)

// Fetcher performs the network leg of a fetch. A returned error means the
// network was unreachable; HTTP error statuses are returned as snapshots.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*cachestore.Snapshot, error)
}

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type HTTPFetcher struct {
	client *http.Client
	origin *url.URL
	now    func() time.Time
}

func NewHTTPFetcher(origin *url.URL, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		origin: origin,
		now:    time.Now,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*cachestore.Snapshot, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for name, values := range req.Header {
		httpReq.Header[name] = append([]string(nil), values...)
	}
	// The transport negotiates compression itself and hands back decoded bodies.
	httpReq.Header.Del("Accept-Encoding")
	removeHopHeaders(httpReq.Header)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)

	return &cachestore.Snapshot{
		URL:      resp.Request.URL.String(),
		Status:   resp.StatusCode,
		Header:   header,
		Body:     data,
		Type:     f.classify(resp.Request.URL),
		StoredAt: f.now().UTC(),
	}, nil
}

// classify reports basic for responses served by the origin itself, after
// redirects, and cors for anything that left it.
func (f *HTTPFetcher) classify(final *url.URL) cachestore.ResponseType {
	if final.Scheme == f.origin.Scheme && strings.EqualFold(final.Host, f.origin.Host) {
		return cachestore.TypeBasic
	}
	return cachestore.TypeCORS
}

func removeHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
