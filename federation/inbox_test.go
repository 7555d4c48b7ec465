package federation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedkit/fedkit/httpsig"
	"github.com/fedkit/fedkit/keyutil"
	"github.com/fedkit/fedkit/vocab"
)

const (
	remoteActor = "https://remote.example/users/bob"
	remoteKeyID = remoteActor + "#main-key"
)

// remoteActorDoc mimics a Mastodon-style actor document with an inline
// publicKey node.
func remoteActorDoc(t *testing.T, pub any) map[string]any {
	t.Helper()
	pem, err := keyutil.ExportSPKI(pub)
	require.NoError(t, err)
	raw, err := json.Marshal(map[string]any{
		"@context":          []any{"https://www.w3.org/ns/activitystreams", "https://w3id.org/security/v1"},
		"id":                remoteActor,
		"type":              "Person",
		"preferredUsername": "bob",
		"inbox":             remoteActor + "/inbox",
		"publicKey": map[string]any{
			"id":           remoteKeyID,
			"owner":        remoteActor,
			"publicKeyPem": pem,
		},
	})
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

type inboxFixture struct {
	fed      *Federation
	pair     *keyutil.KeyPair
	handled  atomic.Int32
	lastErr  error
	listener Listener
}

func newInboxFixture(t *testing.T, listenType string) *inboxFixture {
	t.Helper()
	fx := &inboxFixture{}

	pair, err := keyutil.GenerateKeyPair(keyutil.RSA)
	require.NoError(t, err)
	fx.pair = pair

	loader := &stubLoader{docs: map[string]any{
		remoteActor: remoteActorDoc(t, pair.Public),
		remoteKeyID: remoteActorDoc(t, pair.Public),
	}}

	fx.fed = newTestFederation(t, func(o *Options) { o.DocumentLoader = loader })
	registerAlice(t, fx.fed)

	listeners, err := fx.fed.SetInboxListeners("/users/{handle}/inbox", "/inbox")
	require.NoError(t, err)
	listeners.On(listenType, func(fctx *Context, activity vocab.ActivityEntity) error {
		fx.handled.Add(1)
		if fx.listener != nil {
			return fx.listener(fctx, activity)
		}
		return nil
	}).OnError(func(_ *Context, err error) {
		fx.lastErr = err
	})
	return fx
}

func activityDoc(id, typ string) map[string]any {
	return map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       id,
		"type":     typ,
		"actor":    remoteActor,
		"object":   map[string]any{"type": "Note", "content": "Hello world"},
	}
}

// post delivers doc to alice's inbox, signed with the remote key unless
// sign is false.
func (fx *inboxFixture) post(t *testing.T, doc any, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(doc)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "https://example.com/users/alice/inbox", bytes.NewReader(body))
	req.Header.Set("Content-Type", activityJSONType)
	if sign {
		require.NoError(t, httpsig.SignRequest(req, fx.pair.Private, mustURL(t, remoteKeyID), body))
	}
	rec := httptest.NewRecorder()
	fx.fed.Fetch(rec, req, nil)
	return rec
}

func TestInboxDispatch(t *testing.T) {
	fx := newInboxFixture(t, "Create")
	var gotInbox string
	fx.listener = func(fctx *Context, activity vocab.ActivityEntity) error {
		gotInbox = fctx.InboxIdentifier
		assert.Equal(t, "https://remote.example/activities/1", activity.ID().String())
		assert.IsType(t, &vocab.Create{}, activity)
		return nil
	}

	rec := fx.post(t, activityDoc("https://remote.example/activities/1", "Create"), true)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.EqualValues(t, 1, fx.handled.Load())
	assert.Equal(t, "alice", gotInbox)
}

func TestInboxDedup(t *testing.T) {
	fx := newInboxFixture(t, "Create")
	doc := activityDoc("https://remote.example/activities/dup", "Create")

	rec := fx.post(t, doc, true)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = fx.post(t, doc, true)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.EqualValues(t, 1, fx.handled.Load(), "duplicate id must not re-dispatch")
}

func TestInboxRejectsUnsigned(t *testing.T) {
	fx := newInboxFixture(t, "Create")
	rec := fx.post(t, activityDoc("https://remote.example/activities/2", "Create"), false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.EqualValues(t, 0, fx.handled.Load())
}

func TestInboxRejectsMalformed(t *testing.T) {
	fx := newInboxFixture(t, "Create")

	req := httptest.NewRequest(http.MethodPost, "https://example.com/users/alice/inbox",
		bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	fx.fed.Fetch(rec, req, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInboxSupertypeListener(t *testing.T) {
	// Only the Activity base type is registered; a Create must still be
	// routed to it.
	fx := newInboxFixture(t, "Activity")
	rec := fx.post(t, activityDoc("https://remote.example/activities/3", "Create"), true)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.EqualValues(t, 1, fx.handled.Load())
}

func TestInboxUnhandledTypeAccepted(t *testing.T) {
	fx := newInboxFixture(t, "Follow")
	rec := fx.post(t, activityDoc("https://remote.example/activities/4", "Create"), true)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.EqualValues(t, 0, fx.handled.Load())
}

func TestInboxListenerErrorStillAccepted(t *testing.T) {
	fx := newInboxFixture(t, "Create")
	fx.listener = func(*Context, vocab.ActivityEntity) error {
		return fmt.Errorf("application failure")
	}

	rec := fx.post(t, activityDoc("https://remote.example/activities/5", "Create"), true)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Error(t, fx.lastErr)
}

func TestInboxListenerRetryEscalates(t *testing.T) {
	fx := newInboxFixture(t, "Create")
	fx.listener = func(*Context, vocab.ActivityEntity) error {
		return fmt.Errorf("database down: %w", ErrRetry)
	}

	rec := fx.post(t, activityDoc("https://remote.example/activities/6", "Create"), true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.ErrorIs(t, fx.lastErr, ErrRetry)
}

func TestSharedInbox(t *testing.T) {
	fx := newInboxFixture(t, "Create")
	var gotInbox string
	fx.listener = func(fctx *Context, _ vocab.ActivityEntity) error {
		gotInbox = fctx.InboxIdentifier
		return nil
	}

	body, err := json.Marshal(activityDoc("https://remote.example/activities/7", "Create"))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "https://example.com/inbox", bytes.NewReader(body))
	req.Header.Set("Content-Type", activityJSONType)
	require.NoError(t, httpsig.SignRequest(req, fx.pair.Private, mustURL(t, remoteKeyID), body))

	rec := httptest.NewRecorder()
	fx.fed.Fetch(rec, req, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.EqualValues(t, 1, fx.handled.Load())
	assert.Empty(t, gotInbox, "shared inbox carries no identifier")
}
