package federation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/piprate/json-gold/ld"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedkit/fedkit/collection"
	"github.com/fedkit/fedkit/kv"
	"github.com/fedkit/fedkit/nodeinfo"
	"github.com/fedkit/fedkit/queue"
	"github.com/fedkit/fedkit/vocab"
)

type stubLoader struct {
	docs map[string]any
}

func (s *stubLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	doc, ok := s.docs[u]
	if !ok {
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, u)
	}
	return &ld.RemoteDocument{DocumentURL: u, Document: doc}, nil
}

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}

func newTestFederation(t *testing.T, mutate ...func(*Options)) *Federation {
	t.Helper()
	opts := Options{
		Origin:              "https://example.com",
		Store:               kv.NewMemoryStore(),
		Queue:               queue.NewMemoryQueue(),
		AllowPrivateAddress: true,
	}
	for _, m := range mutate {
		m(&opts)
	}
	fed, err := New(opts)
	require.NoError(t, err)
	return fed
}

func localPerson(t *testing.T, identifier string) vocab.Actor {
	t.Helper()
	base := "https://example.com/users/" + identifier
	person, err := vocab.NewPerson(vocab.Props{
		"id":                base,
		"preferredUsername": identifier,
		"inbox":             mustURL(t, base+"/inbox"),
		"outbox":            mustURL(t, base+"/outbox"),
	})
	require.NoError(t, err)
	return person
}

func registerAlice(t *testing.T, fed *Federation) {
	t.Helper()
	_, err := fed.SetActorDispatcher("/users/{handle}", func(_ *Context, identifier string) (vocab.Actor, error) {
		if identifier != "alice" {
			return nil, nil
		}
		return localPerson(t, "alice"), nil
	})
	require.NoError(t, err)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Store: kv.NewMemoryStore()})
	assert.Error(t, err, "missing origin")

	_, err = New(Options{Origin: "example.com", Store: kv.NewMemoryStore()})
	assert.Error(t, err, "origin without scheme")

	_, err = New(Options{Origin: "https://example.com"})
	assert.Error(t, err, "missing store")
}

func TestDoubleRegistrationRejected(t *testing.T) {
	fed := newTestFederation(t)
	registerAlice(t, fed)

	_, err := fed.SetActorDispatcher("/actors/{handle}", func(*Context, string) (vocab.Actor, error) {
		return nil, nil
	})
	assert.Error(t, err, "second actor dispatcher")

	// A template with the same shape collides in the router.
	_, err = fed.SetFollowersDispatcher("/users/{id}", nil)
	assert.Error(t, err)

	_, err = fed.SetFollowersDispatcher("/users/{handle}/followers", func(*http.Request, string, string) (*collection.Page, error) {
		return &collection.Page{}, nil
	})
	require.NoError(t, err)
	_, err = fed.SetFollowersDispatcher("/users/{handle}/followers", nil)
	assert.Error(t, err, "same collection path twice")
}

func TestFetchActor(t *testing.T) {
	fed := newTestFederation(t)
	registerAlice(t, fed)

	req := httptest.NewRequest(http.MethodGet, "https://example.com/users/alice", nil)
	req.Header.Set("Accept", "application/activity+json")
	rec := httptest.NewRecorder()
	fed.Fetch(rec, req, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, activityJSONType, rec.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "Person", doc["type"])
	assert.Equal(t, "https://example.com/users/alice", doc["id"])
	assert.Equal(t, "alice", doc["preferredUsername"])

	rec = httptest.NewRecorder()
	fed.Fetch(rec, httptest.NewRequest(http.MethodGet, "https://example.com/users/nobody", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFetchContentNegotiation(t *testing.T) {
	fed := newTestFederation(t)
	registerAlice(t, fed)

	htmlReq := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "https://example.com/users/alice", nil)
		r.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		return r
	}

	rec := httptest.NewRecorder()
	fed.Fetch(rec, htmlReq(), nil)
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)

	delegated := false
	rec = httptest.NewRecorder()
	fed.Fetch(rec, htmlReq(), &FetchOptions{
		OnNotAcceptable: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			delegated = true
			w.WriteHeader(http.StatusOK)
		}),
	})
	assert.True(t, delegated, "HTML preference must delegate when a view exists")

	// A browser-ish Accept that still ranks JSON equal does not delegate.
	req := httptest.NewRequest(http.MethodGet, "https://example.com/users/alice", nil)
	req.Header.Set("Accept", "application/activity+json, text/html")
	rec = httptest.NewRecorder()
	fed.Fetch(rec, req, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFetchCollection(t *testing.T) {
	fed := newTestFederation(t)
	registerAlice(t, fed)

	_, err := fed.SetFollowersDispatcher("/users/{handle}/followers",
		func(_ *http.Request, identifier, cursor string) (*collection.Page, error) {
			return &collection.Page{Items: []vocab.Value{
				vocab.RefValue(mustURL(t, "https://remote.example/users/bob")),
			}}, nil
		})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	fed.Fetch(rec, httptest.NewRequest(http.MethodGet, "https://example.com/users/alice/followers", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "OrderedCollection", doc["type"])
	assert.Equal(t, []any{"https://remote.example/users/bob"}, doc["orderedItems"])
}

func TestFetchWebFinger(t *testing.T) {
	fed := newTestFederation(t)
	registerAlice(t, fed)

	rec := httptest.NewRecorder()
	fed.Fetch(rec, httptest.NewRequest(http.MethodGet,
		"https://example.com/.well-known/webfinger?resource=acct%3Aalice%40example.com", nil), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/jrd+json", rec.Header().Get("Content-Type"))

	var jrd map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jrd))
	assert.Equal(t, "acct:alice@example.com", jrd["subject"])
	links := jrd["links"].([]any)
	self := links[0].(map[string]any)
	assert.Equal(t, "self", self["rel"])
	assert.Equal(t, "https://example.com/users/alice", self["href"])
}

func TestFetchNodeInfo(t *testing.T) {
	fed := newTestFederation(t)
	require.NoError(t, fed.SetNodeInfoDispatcher("/nodeinfo/2.1", func(*http.Request) (*nodeinfo.NodeInfo, error) {
		return &nodeinfo.NodeInfo{Software: nodeinfo.Software{Name: "fedkit-demo", Version: "0.1.0"}}, nil
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "https://example.com/.well-known/nodeinfo", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	fed.Fetch(rec, req, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://example.com/nodeinfo/2.1")

	rec = httptest.NewRecorder()
	fed.Fetch(rec, httptest.NewRequest(http.MethodGet, "https://example.com/nodeinfo/2.1", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "2.1", doc["version"])
}

func TestFetchHostMeta(t *testing.T) {
	fed := newTestFederation(t)
	rec := httptest.NewRecorder()
	fed.Fetch(rec, httptest.NewRequest(http.MethodGet, "https://example.com/.well-known/host-meta", nil), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xrd+xml", rec.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(rec.Body.String(),
		"https://example.com/.well-known/webfinger?resource={uri}"))
}

func TestContextURLBuilders(t *testing.T) {
	fed := newTestFederation(t)
	registerAlice(t, fed)
	_, err := fed.SetInboxListeners("/users/{handle}/inbox", "/inbox")
	require.NoError(t, err)
	_, err = fed.SetOutboxDispatcher("/users/{handle}/outbox", func(*http.Request, string, string) (*collection.Page, error) {
		return nil, nil
	})
	require.NoError(t, err)

	fctx := fed.CreateContext(nil, nil)

	u, err := fctx.ActorURL("alice")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/users/alice", u.String())

	u, err = fctx.InboxURL("alice")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/users/alice/inbox", u.String())

	u, err = fctx.SharedInboxURL()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/inbox", u.String())

	u, err = fctx.CollectionURL("outbox", "alice")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/users/alice/outbox", u.String())

	_, err = fctx.CollectionURL("liked", "alice")
	assert.Error(t, err)
}

func TestStartQueueTwice(t *testing.T) {
	fed := newTestFederation(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fed.StartQueue(ctx, nil))
	assert.Error(t, fed.StartQueue(ctx, nil))
}
