// Package federation ties the framework together: a registry of actor,
// collection, object, and inbox dispatchers bound to URI templates, a
// single HTTP entry point with ActivityPub content negotiation, and the
// outbound delivery pipeline on top of the queue contract.
package federation

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/piprate/json-gold/ld"

	"github.com/fedkit/fedkit/collection"
	"github.com/fedkit/fedkit/docloader"
	"github.com/fedkit/fedkit/keyutil"
	"github.com/fedkit/fedkit/kv"
	"github.com/fedkit/fedkit/nodeinfo"
	"github.com/fedkit/fedkit/queue"
	"github.com/fedkit/fedkit/router"
	"github.com/fedkit/fedkit/vocab"
)

const activityJSONType = "application/activity+json"

// ErrRetry, wrapped or returned by an inbox listener, escalates the HTTP
// response to 500 so the sender redelivers. Any other listener error is
// reported and answered with 202.
var ErrRetry = errors.New("federation: retry delivery")

// Options configures a Federation. Store is required; Queue is required
// for outbound delivery.
type Options struct {
	// Origin is the scheme and authority local URLs live under,
	// e.g. "https://example.com".
	Origin string

	// Store persists the document cache and the inbox dedup window.
	Store kv.Store

	// Queue carries outbound delivery jobs. At-least-once semantics.
	Queue queue.Queue

	// Client is used for outbound POSTs; http.DefaultClient when nil.
	Client *http.Client

	// DocumentLoader overrides the default KV-cached loader.
	DocumentLoader ld.DocumentLoader

	// AllowPrivateAddress disables the SSRF guard on the default loader.
	AllowPrivateAddress bool

	// UserAgentPrefix is prepended to the default loader's User-Agent.
	UserAgentPrefix string

	// MaxBodySize caps inbox POST bodies. Default 1 MiB.
	MaxBodySize int64

	// SignatureTimeWindow is the accepted Date skew on inbound HTTP
	// signatures. Default 30s.
	SignatureTimeWindow time.Duration

	// DedupWindow is how long received activity ids are remembered.
	// Default 72h, minimum 24h.
	DedupWindow time.Duration

	// DeliveryTimeout bounds each outbound POST. Default 30s.
	DeliveryTimeout time.Duration

	// MaxDeliveryAttempts before a job is dropped. Default 10.
	MaxDeliveryAttempts int

	// BackoffBase and BackoffCap bound the retry schedule
	// min(base << attempt, cap) with 10% jitter. Defaults 30s and 12h.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// OnDeliveryFailure receives jobs that exhausted their attempts or
	// failed terminally. The context carries the data handed to
	// StartQueue. Logged when nil.
	OnDeliveryFailure func(fctx *Context, job *DeliveryJob, err error)
}

// Federation is the facade. Register dispatchers up front, then serve
// requests through Fetch (or NewMux) and start the delivery worker with
// StartQueue.
type Federation struct {
	opts   Options
	origin *url.URL
	loader ld.DocumentLoader
	// baseLoader is the default loader when we own it; used to build
	// authorized (signed) fetches.
	baseLoader *docloader.Loader
	client     *http.Client
	router     *router.Router

	actor       *actorEndpoint
	collections map[string]*collectionEndpoint
	objects     map[string]*objectEndpoint
	inbox       *inboxEndpoint
	nodeInfo    *nodeinfo.Handler

	queueStarted atomic.Bool
	// queueData is the context data handed to StartQueue, surfaced on
	// contexts the delivery worker creates.
	queueData any
}

type actorEndpoint struct {
	template  string
	dispatch  ActorDispatcher
	keyPairs  KeyPairsDispatcher
	mapHandle HandleMapper
	authorize collection.Authorizer
}

type collectionEndpoint struct {
	kind    string
	handler *collection.Handler
}

type objectEndpoint struct {
	typeName string
	template string
	dispatch ObjectDispatcher
}

type inboxEndpoint struct {
	template       string
	sharedTemplate string
	listeners      map[string]Listener
	onError        ErrorHandler
	sharedKey      SharedKeyDispatcher
}

// ActorDispatcher resolves an identifier to the local actor, or nil when
// the identifier is unknown.
type ActorDispatcher func(fctx *Context, identifier string) (vocab.Actor, error)

// KeyPairsDispatcher supplies the signing key pairs of a local actor.
type KeyPairsDispatcher func(fctx *Context, identifier string) ([]*keyutil.KeyPair, error)

// HandleMapper translates a webfinger handle to the internal identifier.
type HandleMapper func(handle string) (string, bool)

// ObjectDispatcher resolves route variables to an entity, or nil.
type ObjectDispatcher func(fctx *Context, vars map[string]string) (vocab.Entity, error)

// Listener handles one verified inbound activity.
type Listener func(fctx *Context, activity vocab.ActivityEntity) error

// ErrorHandler receives listener errors.
type ErrorHandler func(fctx *Context, err error)

// SharedKeyDispatcher names the local actor whose keys sign verification
// fetches from the shared inbox (authorized fetch).
type SharedKeyDispatcher func(fctx *Context) string

// New builds a Federation. The zero values of most options get defaults;
// Origin and Store are required.
func New(opts Options) (*Federation, error) {
	if opts.Origin == "" {
		return nil, fmt.Errorf("federation: Origin is required")
	}
	origin, err := url.Parse(opts.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("federation: invalid Origin %q", opts.Origin)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("federation: Store is required")
	}

	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 1 << 20
	}
	if opts.DedupWindow < 24*time.Hour {
		opts.DedupWindow = 72 * time.Hour
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 30 * time.Second
	}
	if opts.MaxDeliveryAttempts <= 0 {
		opts.MaxDeliveryAttempts = 10
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 30 * time.Second
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 12 * time.Hour
	}

	f := &Federation{
		opts:        opts,
		origin:      origin,
		client:      opts.Client,
		router:      router.New(),
		collections: make(map[string]*collectionEndpoint),
		objects:     make(map[string]*objectEndpoint),
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	f.loader = opts.DocumentLoader
	if f.loader == nil {
		f.baseLoader = docloader.New(docloader.Options{
			Store:               opts.Store,
			Client:              opts.Client,
			AllowPrivateAddress: opts.AllowPrivateAddress,
			UserAgentPrefix:     opts.UserAgentPrefix,
		})
		f.loader = f.baseLoader
	}
	return f, nil
}

// DocumentLoader returns the loader remote documents are fetched through.
func (f *Federation) DocumentLoader() ld.DocumentLoader { return f.loader }

// ─── Registration ───

// ActorCallbacks chains the optional actor dispatcher callbacks.
type ActorCallbacks struct{ ep *actorEndpoint }

// SetKeyPairsDispatcher registers the key-pairs dispatcher.
func (c *ActorCallbacks) SetKeyPairsDispatcher(d KeyPairsDispatcher) *ActorCallbacks {
	c.ep.keyPairs = d
	return c
}

// MapHandle registers the webfinger handle mapper.
func (c *ActorCallbacks) MapHandle(m HandleMapper) *ActorCallbacks {
	c.ep.mapHandle = m
	return c
}

// Authorize gates GETs of the actor document.
func (c *ActorCallbacks) Authorize(a collection.Authorizer) *ActorCallbacks {
	c.ep.authorize = a
	return c
}

// SetActorDispatcher registers the actor endpoint. The template must have
// exactly one variable, the identifier.
func (f *Federation) SetActorDispatcher(template string, d ActorDispatcher) (*ActorCallbacks, error) {
	if f.actor != nil {
		return nil, fmt.Errorf("federation: actor dispatcher already registered at %q", f.actor.template)
	}
	if _, err := soleVar(template); err != nil {
		return nil, err
	}
	if err := f.router.Add(template); err != nil {
		return nil, err
	}
	f.actor = &actorEndpoint{template: template, dispatch: d}
	return &ActorCallbacks{ep: f.actor}, nil
}

// CollectionCallbacks chains the optional collection callbacks.
type CollectionCallbacks struct{ h *collection.Handler }

// SetCounter registers the totalItems counter.
func (c *CollectionCallbacks) SetCounter(fn collection.Counter) *CollectionCallbacks {
	c.h.Count = fn
	return c
}

// SetFirstCursor registers the first-page cursor.
func (c *CollectionCallbacks) SetFirstCursor(fn collection.Cursor) *CollectionCallbacks {
	c.h.First = fn
	return c
}

// SetLastCursor registers the last-page cursor.
func (c *CollectionCallbacks) SetLastCursor(fn collection.Cursor) *CollectionCallbacks {
	c.h.Last = fn
	return c
}

// Authorize gates the collection.
func (c *CollectionCallbacks) Authorize(fn collection.Authorizer) *CollectionCallbacks {
	c.h.Authorize = fn
	return c
}

func (f *Federation) setCollection(kind, template string, d collection.Dispatcher) (*CollectionCallbacks, error) {
	if _, dup := f.collections[template]; dup {
		return nil, fmt.Errorf("federation: collection already registered at %q", template)
	}
	// The inbox template may carry both the POST pipeline and a GET
	// collection view; anything else must be a fresh route.
	if !f.isInboxTemplate(template) {
		if err := f.router.Add(template); err != nil {
			return nil, err
		}
	}
	ep := &collectionEndpoint{kind: kind, handler: &collection.Handler{Dispatch: d}}
	f.collections[template] = ep
	return &CollectionCallbacks{h: ep.handler}, nil
}

func (f *Federation) isInboxTemplate(template string) bool {
	return f.inbox != nil && (template == f.inbox.template || template == f.inbox.sharedTemplate)
}

// SetInboxDispatcher serves GETs of an inbox as an OrderedCollection.
func (f *Federation) SetInboxDispatcher(template string, d collection.Dispatcher) (*CollectionCallbacks, error) {
	return f.setCollection("inbox", template, d)
}

// SetOutboxDispatcher serves the outbox collection.
func (f *Federation) SetOutboxDispatcher(template string, d collection.Dispatcher) (*CollectionCallbacks, error) {
	return f.setCollection("outbox", template, d)
}

// SetFollowingDispatcher serves the following collection.
func (f *Federation) SetFollowingDispatcher(template string, d collection.Dispatcher) (*CollectionCallbacks, error) {
	return f.setCollection("following", template, d)
}

// SetFollowersDispatcher serves the followers collection.
func (f *Federation) SetFollowersDispatcher(template string, d collection.Dispatcher) (*CollectionCallbacks, error) {
	return f.setCollection("followers", template, d)
}

// SetLikedDispatcher serves the liked collection.
func (f *Federation) SetLikedDispatcher(template string, d collection.Dispatcher) (*CollectionCallbacks, error) {
	return f.setCollection("liked", template, d)
}

// SetFeaturedDispatcher serves the featured (pinned) collection.
func (f *Federation) SetFeaturedDispatcher(template string, d collection.Dispatcher) (*CollectionCallbacks, error) {
	return f.setCollection("featured", template, d)
}

// SetFeaturedTagsDispatcher serves the featured tags collection.
func (f *Federation) SetFeaturedTagsDispatcher(template string, d collection.Dispatcher) (*CollectionCallbacks, error) {
	return f.setCollection("featuredTags", template, d)
}

// SetObjectDispatcher registers a per-object endpoint. typeName names the
// vocabulary type served, e.g. "Note".
func (f *Federation) SetObjectDispatcher(typeName, template string, d ObjectDispatcher) error {
	if _, dup := f.objects[template]; dup {
		return fmt.Errorf("federation: object dispatcher already registered at %q", template)
	}
	if err := f.router.Add(template); err != nil {
		return err
	}
	f.objects[template] = &objectEndpoint{typeName: typeName, template: template, dispatch: d}
	return nil
}

// InboxListeners chains inbox listener registration.
type InboxListeners struct{ ep *inboxEndpoint }

// On registers a listener for an activity type and, implicitly, its
// unhandled subtypes: dispatch picks the listener of the nearest
// registered supertype. Registering the same type twice panics, matching
// the registry's construction-time error contract.
func (l *InboxListeners) On(typeName string, fn Listener) *InboxListeners {
	if _, dup := l.ep.listeners[typeName]; dup {
		panic("federation: inbox listener already registered for " + typeName)
	}
	l.ep.listeners[typeName] = fn
	return l
}

// OnError registers the listener error handler.
func (l *InboxListeners) OnError(h ErrorHandler) *InboxListeners {
	l.ep.onError = h
	return l
}

// SetSharedKeyDispatcher registers the shared-inbox key dispatcher.
func (l *InboxListeners) SetSharedKeyDispatcher(d SharedKeyDispatcher) *InboxListeners {
	l.ep.sharedKey = d
	return l
}

// SetInboxListeners registers the inbox POST endpoints. sharedTemplate may
// be empty to serve personal inboxes only.
func (f *Federation) SetInboxListeners(template, sharedTemplate string) (*InboxListeners, error) {
	if f.inbox != nil {
		return nil, fmt.Errorf("federation: inbox listeners already registered at %q", f.inbox.template)
	}
	if _, err := soleVar(template); err != nil {
		return nil, err
	}
	if err := f.router.Add(template); err != nil {
		return nil, err
	}
	if sharedTemplate != "" {
		if err := f.router.Add(sharedTemplate); err != nil {
			return nil, err
		}
	}
	f.inbox = &inboxEndpoint{
		template:       template,
		sharedTemplate: sharedTemplate,
		listeners:      make(map[string]Listener),
	}
	return &InboxListeners{ep: f.inbox}, nil
}

// SetNodeInfoDispatcher registers the NodeInfo descriptor endpoint; the
// /.well-known/nodeinfo link document is served automatically.
func (f *Federation) SetNodeInfoDispatcher(path string, d nodeinfo.Dispatcher) error {
	if f.nodeInfo != nil {
		return fmt.Errorf("federation: nodeinfo dispatcher already registered at %q", f.nodeInfo.Path)
	}
	if err := f.router.Add(path); err != nil {
		return err
	}
	f.nodeInfo = &nodeinfo.Handler{Path: path, Dispatch: d}
	return nil
}

// ─── Template helpers ───

// soleVar returns the name of the template's single variable segment.
func soleVar(template string) (string, error) {
	var name string
	for _, seg := range strings.Split(template, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if name != "" {
				return "", fmt.Errorf("federation: template %q must have exactly one variable", template)
			}
			name = seg[1 : len(seg)-1]
		}
	}
	if name == "" {
		return "", fmt.Errorf("federation: template %q must have exactly one variable", template)
	}
	return name, nil
}

// identifierFrom picks the identifier out of matched route variables:
// "handle" when present, otherwise the sole variable.
func identifierFrom(vars map[string]string) string {
	if v, ok := vars["handle"]; ok {
		return v
	}
	if len(vars) == 1 {
		for _, v := range vars {
			return v
		}
	}
	return ""
}

// buildURL materializes a registered template against the origin.
func (f *Federation) buildURL(template string, vars map[string]string) (*url.URL, error) {
	path, err := f.router.Build(template, vars)
	if err != nil {
		return nil, err
	}
	u := *f.origin
	u.Path = path
	return &u, nil
}
