package federation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fedkit/fedkit/vocab"
	"github.com/fedkit/fedkit/webfinger"
)

// FetchOptions tunes one Fetch call.
type FetchOptions struct {
	// ContextData is handed to dispatchers through the Context.
	ContextData any
	// OnNotFound handles paths and resources the facade does not serve.
	// Defaults to a plain 404.
	OnNotFound http.Handler
	// OnNotAcceptable serves the non-federation (HTML) representation
	// when the client prefers it. A plain 406 when nil.
	OnNotAcceptable http.Handler
	// OnUnauthorized handles failed authorization. A plain 401 when nil.
	OnUnauthorized http.Handler
}

func (o *FetchOptions) notFound(w http.ResponseWriter, r *http.Request) {
	if o.OnNotFound != nil {
		o.OnNotFound.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

func (o *FetchOptions) notAcceptable(w http.ResponseWriter, r *http.Request) {
	if o.OnNotAcceptable != nil {
		o.OnNotAcceptable.ServeHTTP(w, r)
		return
	}
	http.Error(w, "not acceptable", http.StatusNotAcceptable)
}

func (o *FetchOptions) unauthorized(w http.ResponseWriter, r *http.Request) {
	if o.OnUnauthorized != nil {
		o.OnUnauthorized.ServeHTTP(w, r)
		return
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// Fetch is the single HTTP entry point: it routes well-known discovery
// endpoints and every registered dispatcher, applying ActivityPub content
// negotiation on GETs.
func (f *Federation) Fetch(w http.ResponseWriter, r *http.Request, opts *FetchOptions) {
	if opts == nil {
		opts = &FetchOptions{}
	}

	switch r.URL.Path {
	case "/.well-known/webfinger":
		f.webfingerServer(opts).ServeHTTP(w, r)
		return
	case "/.well-known/host-meta":
		f.serveHostMeta(w)
		return
	case "/.well-known/nodeinfo":
		if f.nodeInfo == nil {
			opts.notFound(w, r)
			return
		}
		f.nodeInfo.ServeLinks(w, r)
		return
	}

	match, ok := f.router.Route(r.URL.Path)
	if !ok {
		opts.notFound(w, r)
		return
	}

	if f.inbox != nil && (match.Template == f.inbox.template || match.Template == f.inbox.sharedTemplate) {
		if r.Method == http.MethodPost {
			identifier := ""
			if match.Template == f.inbox.template {
				identifier = identifierFrom(match.Vars)
			}
			f.handleInbox(w, r, identifier, opts)
			return
		}
		// GETs fall through to a registered inbox collection view.
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if ep, ok := f.collections[match.Template]; ok {
		base := *f.origin
		base.Path = r.URL.Path
		ep.handler.Serve(r.Context(), w, r, identifierFrom(match.Vars), &base)
		return
	}

	if f.nodeInfo != nil && match.Template == f.nodeInfo.Path {
		f.nodeInfo.ServeDescriptor(w, r)
		return
	}

	if f.actor != nil && match.Template == f.actor.template {
		f.serveActor(w, r, identifierFrom(match.Vars), opts)
		return
	}

	if ep, ok := f.objects[match.Template]; ok {
		f.serveObject(w, r, ep, match.Vars, opts)
		return
	}

	opts.notFound(w, r)
}

// Handler adapts Fetch to http.Handler with fixed options.
func (f *Federation) Handler(opts *FetchOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.Fetch(w, r, opts)
	})
}

// NewMux mounts the facade on a chi router with the standard middleware
// set: real IP, request logging, panic recovery, CORS.
func (f *Federation) NewMux(opts *FetchOptions) *chi.Mux {
	mux := chi.NewRouter()
	mux.Use(middleware.RealIP)
	mux.Use(requestLogger)
	mux.Use(middleware.Recoverer)
	mux.Use(corsHeaders)
	mux.Handle("/*", f.Handler(opts))
	return mux
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.Status(),
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}

func corsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Signature, Digest, Date")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Endpoint handlers ───

func (f *Federation) serveActor(w http.ResponseWriter, r *http.Request, identifier string, opts *FetchOptions) {
	if f.actor.authorize != nil && !f.actor.authorize(r, identifier) {
		opts.unauthorized(w, r)
		return
	}
	if prefersHTML(r) {
		opts.notAcceptable(w, r)
		return
	}

	fctx := f.CreateContext(r, opts.ContextData)
	actor, err := f.actor.dispatch(fctx, identifier)
	if err != nil {
		slog.Error("actor dispatch failed", "identifier", identifier, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if actor == nil {
		opts.notFound(w, r)
		return
	}
	f.serveEntity(w, r, actor)
}

func (f *Federation) serveObject(w http.ResponseWriter, r *http.Request, ep *objectEndpoint, vars map[string]string, opts *FetchOptions) {
	if prefersHTML(r) {
		opts.notAcceptable(w, r)
		return
	}
	fctx := f.CreateContext(r, opts.ContextData)
	entity, err := ep.dispatch(fctx, vars)
	if err != nil {
		slog.Error("object dispatch failed", "template", ep.template, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if entity == nil {
		opts.notFound(w, r)
		return
	}
	f.serveEntity(w, r, entity)
}

func (f *Federation) serveEntity(w http.ResponseWriter, r *http.Request, entity vocab.Entity) {
	doc, err := entity.ToJSONLD(r.Context())
	if err != nil {
		slog.Error("entity encode failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", activityJSONType)
	w.Header().Set("Vary", "Accept")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		slog.Warn("response write failed", "error", err)
	}
}

func (f *Federation) webfingerServer(opts *FetchOptions) *webfinger.Server {
	srv := &webfinger.Server{
		Host:     f.origin.Host,
		NotFound: http.HandlerFunc(opts.notFound),
	}
	if f.actor == nil {
		return srv
	}
	srv.MapHandle = f.actor.mapHandle
	srv.ParseActorURL = func(u *url.URL) (string, bool) {
		match, ok := f.router.Route(u.Path)
		if !ok || match.Template != f.actor.template {
			return "", false
		}
		return identifierFrom(match.Vars), true
	}
	srv.LookupActor = func(r *http.Request, identifier string) (vocab.Actor, *url.URL) {
		fctx := f.CreateContext(r, opts.ContextData)
		actor, err := f.actor.dispatch(fctx, identifier)
		if err != nil || actor == nil {
			return nil, nil
		}
		actorURL, err := fctx.ActorURL(identifier)
		if err != nil {
			return nil, nil
		}
		return actor, actorURL
	}
	return srv
}

func (f *Federation) serveHostMeta(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/xrd+xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0">
  <Link rel="lrdd" template="%s/.well-known/webfinger?resource={uri}"/>
</XRD>`, f.origin)
}

// ─── Content negotiation ───

// prefersHTML reports whether the Accept header ranks text/html strictly
// above every ActivityPub representation.
func prefersHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return false
	}
	var htmlQ, apQ float64
	for _, part := range strings.Split(accept, ",") {
		mt, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		q := 1.0
		if s, ok := params["q"]; ok {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				q = v
			}
		}
		switch mt {
		case "text/html", "application/xhtml+xml":
			htmlQ = max(htmlQ, q)
		case activityJSONType, "application/ld+json", "application/json":
			apQ = max(apQ, q)
		case "*/*", "application/*":
			apQ = max(apQ, q)
		case "text/*":
			htmlQ = max(htmlQ, q)
		}
	}
	return htmlQ > apQ
}
