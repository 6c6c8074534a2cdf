package offline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarthi/gateway/internal/cachestore"
)

func TestHTTPFetcherClassifiesResponses(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "elsewhere")
	}))
	defer other.Close()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/away":
			http.Redirect(w, r, other.URL+"/x", http.StatusFound)
		case "/missing":
			http.NotFound(w, r)
		default:
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "home:"+r.URL.Path)
		}
	}))
	defer upstream.Close()

	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	f := NewHTTPFetcher(u, 5*time.Second)
	ctx := context.Background()

	snap, err := f.Fetch(ctx, mustRequest(t, upstream.URL+"/index.html", ModeNavigate))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, snap.Status)
	assert.Equal(t, cachestore.TypeBasic, snap.Type)
	assert.Equal(t, "home:/index.html", string(snap.Body))
	assert.True(t, snap.Cacheable())

	snap, err = f.Fetch(ctx, mustRequest(t, upstream.URL+"/away", ModeNoCORS))
	require.NoError(t, err)
	assert.Equal(t, cachestore.TypeCORS, snap.Type)
	assert.False(t, snap.Cacheable())

	snap, err = f.Fetch(ctx, mustRequest(t, upstream.URL+"/missing", ModeNoCORS))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, snap.Status)
}

func TestHTTPFetcherReportsNetworkFailure(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	u, err := url.Parse(addr)
	require.NoError(t, err)
	f := NewHTTPFetcher(u, time.Second)

	_, err = f.Fetch(context.Background(), mustRequest(t, addr+"/", ModeNavigate))
	assert.Error(t, err)
}
