package docloader

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedkit/fedkit/kv"
)

func TestPrivateAddressBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	blocked := New(Options{})
	_, err := blocked.LoadDocument(srv.URL + "/doc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPrivateAddress))

	allowed := New(Options{AllowPrivateAddress: true})
	doc, err := allowed.LoadDocument(srv.URL + "/doc")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, doc.Document)
}

func TestCheckPublicAddress(t *testing.T) {
	for _, host := range []string{"localhost", "127.0.0.1", "::1", "10.1.2.3", "192.168.0.1", "169.254.1.1", "fd00::1", "0.0.0.0"} {
		assert.ErrorIs(t, CheckPublicAddress(host), ErrPrivateAddress, host)
	}
	assert.NoError(t, CheckPublicAddress("93.184.216.34"))
	assert.NoError(t, CheckPublicAddress("2606:2800:220:1::1"))
}

func TestCacheHit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/activity+json")
		w.Write([]byte(`{"type":"Note"}`))
	}))
	defer srv.Close()

	l := New(Options{
		Store:               kv.NewMemoryStore(),
		AllowPrivateAddress: true,
		// The loopback zero-TTL default would bypass the cache here.
		Rules: []Rule{{Pattern: srv.URL + "/*", TTL: time.Minute}},
	})

	for range 3 {
		doc, err := l.LoadDocument(srv.URL + "/notes/1")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"type": "Note"}, doc.Document)
	}
	assert.Equal(t, int32(1), hits.Load(), "repeat loads must come from the cache")
}

func TestLoopbackZeroTTLByDefault(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	l := New(Options{Store: kv.NewMemoryStore(), AllowPrivateAddress: true})
	for range 2 {
		_, err := l.LoadDocument(srv.URL + "/x")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), hits.Load(), "loopback responses must not be cached")
}

func TestGoneAndNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gone":
			w.WriteHeader(http.StatusGone)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	l := New(Options{AllowPrivateAddress: true})
	_, err := l.LoadDocument(srv.URL + "/gone")
	assert.ErrorIs(t, err, ErrGone)
	_, err = l.LoadDocument(srv.URL + "/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserAgent(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("User-Agent")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	l := New(Options{AllowPrivateAddress: true, UserAgentPrefix: "MyApp/2.0 (+https://myapp.example)"})
	_, err := l.LoadDocument(srv.URL + "/x")
	require.NoError(t, err)
	assert.Equal(t, "MyApp/2.0 (+https://myapp.example) fedkit/"+Version, <-got)
}
