package webfinger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fedkit/fedkit/docloader"
)

const (
	maxRedirects   = 5
	maxJRDBody     = 1 << 20
	lookupTimeout  = 30 * time.Second
	acceptJRD      = "application/jrd+json, application/json; q=0.5"
)

// LookupOptions tunes Lookup.
type LookupOptions struct {
	// Client overrides the HTTP client; redirects are always handled
	// manually.
	Client *http.Client
	// AllowPrivateAddress disables the SSRF guard, for test fixtures.
	AllowPrivateAddress bool
	// UserAgent overrides the request User-Agent.
	UserAgent string
}

// Lookup resolves an acct:user@host or https resource to its JRD. Any
// failure class (bad resource, blocked address, redirect loop, non-2xx,
// malformed body) returns nil.
func Lookup(ctx context.Context, resource string, opts *LookupOptions) *JRD {
	if opts == nil {
		opts = &LookupOptions{}
	}
	host, err := resourceHost(resource)
	if err != nil {
		slog.Debug("webfinger: bad resource", "resource", resource, "error", err)
		return nil
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: lookupTimeout}
	}
	// Redirects are followed manually so each hop passes the policy
	// checks.
	client = &http.Client{
		Transport: client.Transport,
		Timeout:   client.Timeout,
		Jar:       client.Jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	target := &url.URL{
		Scheme:   "https",
		Host:     host,
		Path:     "/.well-known/webfinger",
		RawQuery: "resource=" + url.QueryEscape(resource),
	}

	for hop := 0; ; hop++ {
		if hop > maxRedirects {
			slog.Debug("webfinger: too many redirects", "resource", resource)
			return nil
		}
		if !opts.AllowPrivateAddress {
			if err := docloader.CheckPublicAddress(target.Hostname()); err != nil {
				slog.Debug("webfinger: destination blocked", "url", target, "error", err)
				return nil
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return nil
		}
		req.Header.Set("Accept", acceptJRD)
		if opts.UserAgent != "" {
			req.Header.Set("User-Agent", opts.UserAgent)
		}

		resp, err := client.Do(req)
		if err != nil {
			slog.Debug("webfinger: request failed", "url", target, "error", err)
			return nil
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			next, err := target.Parse(loc)
			if err != nil {
				slog.Debug("webfinger: bad redirect target", "location", loc)
				return nil
			}
			// Refuse protocol downgrades.
			if target.Scheme == "https" && next.Scheme != "https" {
				slog.Debug("webfinger: refusing protocol downgrade", "location", loc)
				return nil
			}
			target = next
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxJRDBody))
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			slog.Debug("webfinger: unexpected status", "url", target, "status", resp.StatusCode)
			return nil
		}
		if readErr != nil {
			return nil
		}
		var jrd JRD
		if err := json.Unmarshal(body, &jrd); err != nil {
			slog.Debug("webfinger: malformed JRD", "url", target, "error", err)
			return nil
		}
		return &jrd
	}
}

// resourceHost extracts the host a resource should be resolved against.
func resourceHost(resource string) (string, error) {
	if rest, ok := strings.CutPrefix(resource, "acct:"); ok {
		_, host, found := strings.Cut(rest, "@")
		if !found || host == "" {
			return "", fmt.Errorf("acct resource %q has no host", resource)
		}
		return host, nil
	}
	u, err := url.Parse(resource)
	if err != nil {
		return "", err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("unsupported resource scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("resource %q has no host", resource)
	}
	return u.Host, nil
}
