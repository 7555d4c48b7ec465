package federation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/piprate/json-gold/ld"

	"github.com/fedkit/fedkit/vocab"
)

// Context is the value handed to dispatchers and inbox listeners. It
// carries the facade, the triggering request (nil in the delivery worker),
// the embedder's context data, and, inside inbox listeners, the inbox
// identifier the activity arrived on.
type Context struct {
	fed *Federation

	// Request is the HTTP request being served, when any.
	Request *http.Request

	// Data is the embedder's per-call context data.
	Data any

	// InboxIdentifier is the personal-inbox identifier inside inbox
	// listeners; empty for the shared inbox and outside listeners.
	InboxIdentifier string
}

// CreateContext builds the context value passed into dispatchers and
// listeners. r may be nil for background work.
func (f *Federation) CreateContext(r *http.Request, data any) *Context {
	return &Context{fed: f, Request: r, Data: data}
}

// Context returns the request's context, or a background context when the
// call is not request-bound.
func (c *Context) Context() context.Context {
	if c.Request != nil {
		return c.Request.Context()
	}
	return context.Background()
}

// Origin returns the local origin URL.
func (c *Context) Origin() *url.URL {
	u := *c.fed.origin
	return &u
}

// DocumentLoader returns the loader remote documents resolve through.
func (c *Context) DocumentLoader() ld.DocumentLoader { return c.fed.loader }

// ActorURL builds the local actor URL for an identifier.
func (c *Context) ActorURL(identifier string) (*url.URL, error) {
	if c.fed.actor == nil {
		return nil, fmt.Errorf("federation: no actor dispatcher registered")
	}
	return c.templateURL(c.fed.actor.template, identifier)
}

// InboxURL builds the personal inbox URL for an identifier.
func (c *Context) InboxURL(identifier string) (*url.URL, error) {
	if c.fed.inbox == nil {
		return nil, fmt.Errorf("federation: no inbox registered")
	}
	return c.templateURL(c.fed.inbox.template, identifier)
}

// SharedInboxURL builds the shared inbox URL.
func (c *Context) SharedInboxURL() (*url.URL, error) {
	if c.fed.inbox == nil || c.fed.inbox.sharedTemplate == "" {
		return nil, fmt.Errorf("federation: no shared inbox registered")
	}
	return c.fed.buildURL(c.fed.inbox.sharedTemplate, nil)
}

// CollectionURL builds a registered collection URL ("outbox", "followers",
// ...) for an identifier.
func (c *Context) CollectionURL(kind, identifier string) (*url.URL, error) {
	for template, ep := range c.fed.collections {
		if ep.kind == kind {
			return c.templateURL(template, identifier)
		}
	}
	return nil, fmt.Errorf("federation: no %q collection registered", kind)
}

// ObjectURL builds a registered object URL for a type name.
func (c *Context) ObjectURL(typeName string, vars map[string]string) (*url.URL, error) {
	for template, ep := range c.fed.objects {
		if ep.typeName == typeName {
			return c.fed.buildURL(template, vars)
		}
	}
	return nil, fmt.Errorf("federation: no object dispatcher registered for %q", typeName)
}

// SendActivity queues the activity for delivery. It forwards to the
// facade so listeners can reply without holding a Federation reference.
func (c *Context) SendActivity(ctx context.Context, sender *Sender, recipients []vocab.Value, activity vocab.ActivityEntity, opts *SendOptions) error {
	return c.fed.SendActivity(ctx, sender, recipients, activity, opts)
}

func (c *Context) templateURL(template, identifier string) (*url.URL, error) {
	name, err := soleVar(template)
	if err != nil {
		return nil, err
	}
	return c.fed.buildURL(template, map[string]string{name: identifier})
}

// ActorKeyPairs resolves the signing key pairs of a local actor through
// the registered key-pairs dispatcher.
func (c *Context) ActorKeyPairs(identifier string) (*Sender, error) {
	if c.fed.actor == nil || c.fed.actor.keyPairs == nil {
		return nil, fmt.Errorf("federation: no key-pairs dispatcher registered")
	}
	pairs, err := c.fed.actor.keyPairs(c, identifier)
	if err != nil {
		return nil, err
	}
	actorURL, err := c.ActorURL(identifier)
	if err != nil {
		return nil, err
	}
	sender := &Sender{ActorID: actorURL}
	for i, pair := range pairs {
		keyID := *actorURL
		if i == 0 {
			keyID.Fragment = "main-key"
		} else {
			keyID.Fragment = fmt.Sprintf("key-%d", i)
		}
		sender.Keys = append(sender.Keys, SenderKey{ID: &keyID, Private: pair.Private})
	}
	return sender, nil
}
