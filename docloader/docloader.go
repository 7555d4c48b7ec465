// Package docloader fetches JSON-LD documents for the federation stack:
// KV-backed caching with per-URL TTL rules, an SSRF guard for private
// addresses, and an authorized variant that signs fetches with HTTP
// Signatures. Loaders satisfy json-gold's ld.DocumentLoader so they plug
// straight into the codec.
package docloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/piprate/json-gold/ld"

	"github.com/fedkit/fedkit/kv"
)

// Sentinel errors callers branch on with errors.Is.
var (
	// ErrPrivateAddress marks a fetch blocked by the SSRF guard.
	ErrPrivateAddress = errors.New("destination resolves to a private address")
	// ErrGone marks a document answered with HTTP 410.
	ErrGone = errors.New("document is gone")
	// ErrNotFound marks a document answered with HTTP 404.
	ErrNotFound = errors.New("document not found")
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBody  = 1 << 20 // 1 MiB
	cacheKeyPrefix  = "doc-cache/"
	acceptActivity  = `application/activity+json, application/ld+json; profile="https://www.w3.org/ns/activitystreams", application/json; q=0.5`
	activityJSONTyp = "application/activity+json"
)

// Rule maps a URL pattern to a cache TTL. Patterns match against the full
// URL; a trailing * matches any suffix. The first matching rule wins.
type Rule struct {
	Pattern string
	TTL     time.Duration
}

func (r Rule) matches(u string) bool {
	if strings.HasSuffix(r.Pattern, "*") {
		return strings.HasPrefix(u, strings.TrimSuffix(r.Pattern, "*"))
	}
	return u == r.Pattern
}

// Options configures a Loader. The zero value works: no cache, default
// client, guard enabled.
type Options struct {
	// Store caches fetched documents under doc-cache/<url>. Nil disables
	// caching.
	Store kv.Store
	// Rules override the cache TTL per URL pattern.
	Rules []Rule
	// DefaultTTL applies when no rule matches. Zero means one hour.
	DefaultTTL time.Duration
	// AllowPrivateAddress disables the SSRF guard.
	AllowPrivateAddress bool
	// Client is the HTTP client; nil uses a client with a 30s timeout.
	Client *http.Client
	// UserAgentPrefix is prepended to the product user-agent string.
	UserAgentPrefix string
	// MaxBodySize caps response bodies; zero means 1 MiB.
	MaxBodySize int64
	// Timeout bounds each fetch; zero means 30s.
	Timeout time.Duration
}

// Loader is a caching, SSRF-guarded document loader.
type Loader struct {
	opts   Options
	client *http.Client

	mu       sync.Mutex
	inflight map[string]*flight
}

type flight struct {
	done chan struct{}
	doc  *ld.RemoteDocument
	err  error
}

// cacheEntry is the JSON stored in the KV.
type cacheEntry struct {
	DocumentURL string          `json:"documentUrl"`
	ContextURL  string          `json:"contextUrl,omitempty"`
	Document    json.RawMessage `json:"document"`
}

// New creates a Loader.
func New(opts Options) *Loader {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	if opts.DefaultTTL == 0 {
		opts.DefaultTTL = time.Hour
	}
	if opts.MaxBodySize == 0 {
		opts.MaxBodySize = defaultMaxBody
	}
	return &Loader{opts: opts, client: client, inflight: make(map[string]*flight)}
}

// UserAgent builds the deterministic user-agent string.
func (l *Loader) UserAgent() string {
	ua := "fedkit/" + Version
	if l.opts.UserAgentPrefix != "" {
		ua = l.opts.UserAgentPrefix + " " + ua
	}
	return ua
}

// Version is the product version reported in User-Agent headers.
var Version = "0.1.0"

// LoadDocument implements ld.DocumentLoader. Concurrent loads of one URL
// coalesce into a single fetch.
func (l *Loader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	if cached := l.fromCache(u); cached != nil {
		return cached, nil
	}

	l.mu.Lock()
	if f, ok := l.inflight[u]; ok {
		l.mu.Unlock()
		<-f.done
		return f.doc, f.err
	}
	f := &flight{done: make(chan struct{})}
	l.inflight[u] = f
	l.mu.Unlock()

	f.doc, f.err = l.fetch(u, nil)

	l.mu.Lock()
	delete(l.inflight, u)
	l.mu.Unlock()
	close(f.done)

	return f.doc, f.err
}

func (l *Loader) fromCache(u string) *ld.RemoteDocument {
	if l.opts.Store == nil {
		return nil
	}
	raw, ok, err := l.opts.Store.Get(context.Background(), cacheKeyPrefix+u)
	if err != nil {
		slog.Warn("document cache read failed", "url", u, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil
	}
	var doc any
	if err := json.Unmarshal(entry.Document, &doc); err != nil {
		return nil
	}
	return &ld.RemoteDocument{DocumentURL: entry.DocumentURL, ContextURL: entry.ContextURL, Document: doc}
}

func (l *Loader) store(u string, remote *ld.RemoteDocument) {
	if l.opts.Store == nil {
		return
	}
	ttl := l.ttlFor(u)
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(remote.Document)
	if err != nil {
		return
	}
	entry, err := json.Marshal(cacheEntry{
		DocumentURL: remote.DocumentURL,
		ContextURL:  remote.ContextURL,
		Document:    raw,
	})
	if err != nil {
		return
	}
	if err := l.opts.Store.Set(context.Background(), cacheKeyPrefix+u, entry, ttl); err != nil {
		slog.Warn("document cache write failed", "url", u, "error", err)
	}
}

// ttlFor applies the rule list; loopback hosts default to zero TTL so test
// fixtures are never cached.
func (l *Loader) ttlFor(u string) time.Duration {
	for _, r := range l.opts.Rules {
		if r.matches(u) {
			return r.TTL
		}
	}
	if parsed, err := url.Parse(u); err == nil && isLoopbackHost(parsed.Hostname()) {
		return 0
	}
	return l.opts.DefaultTTL
}

// fetch performs the guarded HTTP GET. sign, when non-nil, signs the
// request before sending (authorized fetch).
func (l *Loader) fetch(u string, sign func(*http.Request) error) (*ld.RemoteDocument, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("docloader: invalid url %q: %w", u, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("docloader: unsupported scheme %q", parsed.Scheme)
	}
	if !l.opts.AllowPrivateAddress {
		if err := CheckPublicAddress(parsed.Hostname()); err != nil {
			return nil, fmt.Errorf("docloader: %s: %w", u, err)
		}
	}

	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("docloader: %w", err)
	}
	req.Header.Set("Accept", acceptActivity)
	req.Header.Set("User-Agent", l.UserAgent())
	if sign != nil {
		if err := sign(req); err != nil {
			return nil, fmt.Errorf("docloader: sign fetch: %w", err)
		}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docloader: fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("docloader: %s: %w", u, ErrGone)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("docloader: %s: %w", u, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("docloader: fetch %s: unexpected status %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.opts.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("docloader: read %s: %w", u, err)
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("docloader: %s is not JSON: %w", u, err)
	}

	remote := &ld.RemoteDocument{
		DocumentURL: finalURL(resp, u),
		ContextURL:  linkedContextURL(resp),
		Document:    doc,
	}
	l.store(u, remote)
	return remote, nil
}

func finalURL(resp *http.Response, fallback string) string {
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return fallback
}

// linkedContextURL honors the Link rel="...jsonld#context" header on plain
// JSON responses.
func linkedContextURL(resp *http.Response) string {
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "application/ld+json") || strings.Contains(ct, activityJSONTyp) {
		return ""
	}
	for _, link := range resp.Header.Values("Link") {
		if !strings.Contains(link, `rel="http://www.w3.org/ns/json-ld#context"`) {
			continue
		}
		if start := strings.Index(link, "<"); start >= 0 {
			if end := strings.Index(link, ">"); end > start {
				return link[start+1 : end]
			}
		}
	}
	return ""
}

// ─── SSRF guard ───

func isLoopbackHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.IsLoopback()
	}
	return false
}

// CheckPublicAddress resolves a hostname and rejects destinations on
// loopback, link-local, private, ULA, multicast, or unspecified addresses.
func CheckPublicAddress(host string) error {
	if isLoopbackHost(host) {
		return ErrPrivateAddress
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if isPrivateAddr(addr) {
			return ErrPrivateAddress
		}
		return nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		if isPrivateAddr(addr.Unmap()) {
			return ErrPrivateAddress
		}
	}
	return nil
}

func isPrivateAddr(addr netip.Addr) bool {
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified()
}
