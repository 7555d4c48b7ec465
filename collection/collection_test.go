package collection

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedkit/fedkit/vocab"
)

func followersHandler(t *testing.T, items []string) *Handler {
	t.Helper()
	const pageSize = 2
	return &Handler{
		Dispatch: func(_ *http.Request, identifier, cursor string) (*Page, error) {
			assert.Equal(t, "someone", identifier)
			offset := 0
			if cursor != "" {
				var err error
				offset, err = strconv.Atoi(cursor)
				if err != nil || offset < 0 || offset >= len(items) {
					return nil, nil
				}
			}
			end := min(offset+pageSize, len(items))
			page := &Page{}
			for _, it := range items[offset:end] {
				u, err := url.Parse(it)
				require.NoError(t, err)
				page.Items = append(page.Items, vocab.RefValue(u))
			}
			if end < len(items) {
				page.NextCursor = strconv.Itoa(end)
			}
			if offset > 0 {
				page.PrevCursor = strconv.Itoa(max(offset-pageSize, 0))
			}
			idx := uint64(offset)
			page.StartIndex = &idx
			return page, nil
		},
		Count: func(*http.Request, string) (uint64, bool) { return uint64(len(items)), true },
		First: func(*http.Request, string) (string, bool) { return "0", true },
		Last: func(*http.Request, string) (string, bool) {
			if len(items) == 0 {
				return "", false
			}
			return strconv.Itoa((len(items) - 1) / pageSize * pageSize), true
		},
	}
}

func serve(t *testing.T, h *Handler, target string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	base, err := url.Parse("https://example.com/users/someone/followers")
	require.NoError(t, err)
	h.Serve(req.Context(), rec, req, "someone", base)
	if rec.Code != http.StatusOK {
		return rec.Code, nil
	}
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	return rec.Code, doc
}

func TestEnvelope(t *testing.T) {
	h := followersHandler(t, []string{
		"https://a.example/alice",
		"https://b.example/bob",
		"https://c.example/carol",
	})

	code, doc := serve(t, h, "/users/someone/followers")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OrderedCollection", doc["type"])
	assert.EqualValues(t, 3, doc["totalItems"])
	assert.Equal(t, "https://example.com/users/someone/followers?cursor=0", doc["first"])
	assert.Equal(t, "https://example.com/users/someone/followers?cursor=2", doc["last"])
	assert.NotContains(t, doc, "orderedItems", "envelope must not inline items")
}

func TestPage(t *testing.T) {
	h := followersHandler(t, []string{
		"https://a.example/alice",
		"https://b.example/bob",
		"https://c.example/carol",
	})

	code, doc := serve(t, h, "/users/someone/followers?cursor=0")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OrderedCollectionPage", doc["type"])
	assert.Equal(t, "https://example.com/users/someone/followers", doc["partOf"])
	assert.Equal(t, "https://example.com/users/someone/followers?cursor=2", doc["next"])
	assert.NotContains(t, doc, "prev")
	assert.EqualValues(t, 0, doc["startIndex"])
	assert.Equal(t, []any{"https://a.example/alice", "https://b.example/bob"}, doc["orderedItems"])

	code, doc = serve(t, h, "/users/someone/followers?cursor=2")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"https://c.example/carol"}, doc["orderedItems"])
	assert.Equal(t, "https://example.com/users/someone/followers?cursor=0", doc["prev"])
	assert.NotContains(t, doc, "next")
}

func TestUnknownCursor(t *testing.T) {
	h := followersHandler(t, []string{"https://a.example/alice"})
	code, _ := serve(t, h, "/users/someone/followers?cursor=99")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUnpagedInlinesItems(t *testing.T) {
	h := followersHandler(t, []string{"https://a.example/alice", "https://b.example/bob"})
	h.First = nil
	h.Last = nil

	code, doc := serve(t, h, "/users/someone/followers")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OrderedCollection", doc["type"])
	assert.Equal(t, []any{"https://a.example/alice", "https://b.example/bob"}, doc["orderedItems"])
	assert.NotContains(t, doc, "first")
}

func TestAuthorize(t *testing.T) {
	h := followersHandler(t, nil)
	h.Authorize = func(*http.Request, string) bool { return false }
	code, _ := serve(t, h, "/users/someone/followers")
	assert.Equal(t, http.StatusUnauthorized, code)
}
