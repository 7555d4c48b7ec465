// Package nodeinfo serves the NodeInfo 2.1 discovery protocol: a
// /.well-known/nodeinfo link document pointing at the schema endpoint, and
// the descriptor itself.
package nodeinfo

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
)

// SchemaVersion is the served descriptor revision.
const SchemaVersion = "2.1"

const schemaRel = "http://nodeinfo.diaspora.software/ns/schema/2.1"

// NodeInfo is the schema 2.1 descriptor.
type NodeInfo struct {
	Version           string         `json:"version"`
	Software          Software       `json:"software"`
	Protocols         []string       `json:"protocols"`
	Services          Services       `json:"services"`
	OpenRegistrations bool           `json:"openRegistrations"`
	Usage             Usage          `json:"usage"`
	Metadata          map[string]any `json:"metadata"`
}

// Software names the server implementation.
type Software struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Repository string `json:"repository,omitempty"`
	Homepage   string `json:"homepage,omitempty"`
}

// Services lists connected third-party networks.
type Services struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

// Usage carries server activity statistics.
type Usage struct {
	Users         Users `json:"users"`
	LocalPosts    int64 `json:"localPosts"`
	LocalComments int64 `json:"localComments"`
}

// Users counts registered and active accounts.
type Users struct {
	Total          int `json:"total"`
	ActiveMonth    int `json:"activeMonth"`
	ActiveHalfYear int `json:"activeHalfYear"`
}

// Dispatcher produces the current descriptor. The handler fills in
// Version, Protocols, and empty slices/maps the schema requires.
type Dispatcher func(r *http.Request) (*NodeInfo, error)

// Handler serves both NodeInfo endpoints.
type Handler struct {
	// Path is where the descriptor is mounted, e.g. "/nodeinfo/2.1".
	Path string
	// Dispatch supplies the descriptor.
	Dispatch Dispatcher
}

// ServeLinks answers /.well-known/nodeinfo with the schema link document.
func (h *Handler) ServeLinks(w http.ResponseWriter, r *http.Request) {
	href := (&url.URL{
		Scheme: scheme(r),
		Host:   r.Host,
		Path:   h.Path,
	}).String()
	writeJSON(w, map[string]any{
		"links": []map[string]string{{"rel": schemaRel, "href": href}},
	})
}

// ServeDescriptor answers the schema endpoint.
func (h *Handler) ServeDescriptor(w http.ResponseWriter, r *http.Request) {
	info, err := h.Dispatch(r)
	if err != nil {
		slog.Error("nodeinfo: dispatch failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if info == nil {
		http.NotFound(w, r)
		return
	}
	normalize(info)
	writeJSON(w, info)
}

// normalize pins the fields the schema fixes and replaces nil collections,
// which would serialize as null, with empty ones.
func normalize(info *NodeInfo) {
	info.Version = SchemaVersion
	info.Protocols = []string{"activitypub"}
	if info.Services.Inbound == nil {
		info.Services.Inbound = []string{}
	}
	if info.Services.Outbound == nil {
		info.Services.Outbound = []string{}
	}
	if info.Metadata == nil {
		info.Metadata = map[string]any{}
	}
}

func scheme(r *http.Request) string {
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		return "https"
	}
	return "http"
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "max-age=3600")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("nodeinfo: response write failed", "error", err)
	}
}
