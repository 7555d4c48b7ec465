package nodeinfo

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHandler() *Handler {
	return &Handler{
		Path: "/nodeinfo/2.1",
		Dispatch: func(*http.Request) (*NodeInfo, error) {
			return &NodeInfo{
				Software: Software{Name: "fedkit-demo", Version: "0.1.0"},
				Usage:    Usage{Users: Users{Total: 1, ActiveMonth: 1, ActiveHalfYear: 1}},
			}, nil
		},
	}
}

func TestServeLinks(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "https://example.com/.well-known/nodeinfo", nil)
	req.Host = "example.com"
	req.Header.Set("X-Forwarded-Proto", "https")
	testHandler().ServeLinks(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string][]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc["links"], 1)
	assert.Equal(t, "http://nodeinfo.diaspora.software/ns/schema/2.1", doc["links"][0]["rel"])
	assert.Equal(t, "https://example.com/nodeinfo/2.1", doc["links"][0]["href"])
}

func TestServeDescriptor(t *testing.T) {
	rec := httptest.NewRecorder()
	testHandler().ServeDescriptor(rec, httptest.NewRequest(http.MethodGet, "/nodeinfo/2.1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "max-age=3600", rec.Header().Get("Cache-Control"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "2.1", doc["version"])
	assert.Equal(t, []any{"activitypub"}, doc["protocols"])
	assert.Equal(t, map[string]any{"inbound": []any{}, "outbound": []any{}}, doc["services"])
	assert.Equal(t, map[string]any{}, doc["metadata"])
	assert.Equal(t, false, doc["openRegistrations"])

	sw := doc["software"].(map[string]any)
	assert.Equal(t, "fedkit-demo", sw["name"])
}

func TestServeDescriptorNil(t *testing.T) {
	h := &Handler{Path: "/nodeinfo/2.1", Dispatch: func(*http.Request) (*NodeInfo, error) { return nil, nil }}
	rec := httptest.NewRecorder()
	h.ServeDescriptor(rec, httptest.NewRequest(http.MethodGet, "/nodeinfo/2.1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
