package offline

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Mode follows the fetch API request modes.
type Mode string

const (
	ModeNavigate   Mode = "navigate"
	ModeSameOrigin Mode = "same-origin"
	ModeNoCORS     Mode = "no-cors"
	ModeCORS       Mode = "cors"
)

type Request struct {
	Method string
	URL    *url.URL
	Mode   Mode
	Header http.Header
	Body   []byte
}

func NewRequest(method, rawURL string, mode Mode) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse request url: %w", err)
	}
	if method == "" {
		method = http.MethodGet
	}
	return &Request{
		Method: strings.ToUpper(method),
		URL:    u,
		Mode:   mode,
		Header: http.Header{},
	}, nil
}

// Key is the cache identity of the request: method plus URL without fragment.
func (r *Request) Key() string {
	u := *r.URL
	u.Fragment = ""
	u.RawFragment = ""
	u.Host = strings.ToLower(u.Host)
	return r.Method + " " + u.String()
}

func (r *Request) Navigate() bool {
	return r.Mode == ModeNavigate
}

func (r *Request) HTTPScheme() bool {
	return r.URL != nil && (r.URL.Scheme == "http" || r.URL.Scheme == "https")
}

// FromHTTP maps a request received by the gateway onto the upstream origin.
func FromHTTP(r *http.Request, origin *url.URL) (*Request, error) {
	target := origin.ResolveReference(&url.URL{
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	})

	var body []byte
	if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	return &Request{
		Method: r.Method,
		URL:    target,
		Mode:   detectMode(r),
		Header: r.Header.Clone(),
		Body:   body,
	}, nil
}

// IsNavigation reports whether r is a top-level document load.
func IsNavigation(r *http.Request) bool {
	return detectMode(r) == ModeNavigate
}

func detectMode(r *http.Request) Mode {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return Mode(strings.ToLower(mode))
	}
	if r.Method == http.MethodGet && prefersHTML(r.Header.Get("Accept")) {
		return ModeNavigate
	}
	return ModeNoCORS
}

func prefersHTML(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch mediaType {
		case "text/html", "application/xhtml+xml":
			return true
		}
	}
	return false
}
