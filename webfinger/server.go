package webfinger

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/fedkit/fedkit/vocab"
)

// Server answers /.well-known/webfinger for local actors.
type Server struct {
	// Host is the authority local acct: resources must name.
	Host string
	// ParseActorURL reverse-matches a URL against the actor route,
	// returning the actor identifier.
	ParseActorURL func(u *url.URL) (string, bool)
	// MapHandle translates an acct: user part to the internal actor
	// identifier; identity when nil.
	MapHandle func(handle string) (string, bool)
	// LookupActor resolves an identifier to the actor entity and its
	// canonical URL. A nil actor delegates to NotFound.
	LookupActor func(r *http.Request, identifier string) (vocab.Actor, *url.URL)
	// NotFound handles unrecognized resources; defaults to a plain 404.
	NotFound http.Handler
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	if s.NotFound != nil {
		s.NotFound.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

// ServeHTTP implements the webfinger endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		http.Error(w, "missing resource parameter", http.StatusBadRequest)
		return
	}

	identifier, ok := s.identifierFor(resource)
	if !ok {
		http.Error(w, "invalid resource", http.StatusBadRequest)
		return
	}
	if identifier == "" {
		s.notFound(w, r)
		return
	}

	actor, actorURL := s.LookupActor(r, identifier)
	if actor == nil || actorURL == nil {
		s.notFound(w, r)
		return
	}

	jrd := BuildJRD(resource, actor, actorURL)
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "max-age=3600")
	if err := json.NewEncoder(w).Encode(jrd); err != nil {
		slog.Warn("webfinger: response write failed", "error", err)
	}
}

// identifierFor maps a resource to an actor identifier. ok=false means the
// resource is malformed; an empty identifier means it is well-formed but
// not ours.
func (s *Server) identifierFor(resource string) (string, bool) {
	if rest, found := strings.CutPrefix(resource, "acct:"); found {
		user, host, ok := strings.Cut(rest, "@")
		if !ok || user == "" || host == "" {
			return "", false
		}
		if !strings.EqualFold(host, s.Host) {
			return "", true
		}
		if s.MapHandle != nil {
			id, ok := s.MapHandle(user)
			if !ok {
				return "", true
			}
			return id, true
		}
		return user, true
	}

	u, err := url.Parse(resource)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return "", false
	}
	if !strings.EqualFold(u.Host, s.Host) {
		return "", true
	}
	if s.ParseActorURL != nil {
		if id, ok := s.ParseActorURL(u); ok {
			return id, true
		}
	}
	return "", true
}

// BuildJRD renders the descriptor for an actor: a self link, profile-page
// and alternate links from the actor's urls, avatar links from its icons,
// and the alternate identifier form as an alias.
func BuildJRD(resource string, actor vocab.Actor, actorURL *url.URL) *JRD {
	jrd := &JRD{
		Subject: resource,
		Links: []Link{{
			Rel:  RelSelf,
			Type: "application/activity+json",
			Href: actorURL.String(),
		}},
	}

	// The alias is the identifier form the subject is not.
	if strings.HasPrefix(resource, "acct:") {
		jrd.Aliases = []string{actorURL.String()}
	} else if handle := actor.PreferredUsername(); handle != "" {
		jrd.Aliases = []string{"acct:" + handle + "@" + actorURL.Host}
	}

	for _, v := range actor.URLs() {
		switch {
		case v.Obj != nil:
			link, ok := v.Obj.(interface {
				Href() *url.URL
				Rel() string
				MediaType() string
			})
			if !ok || link.Href() == nil {
				continue
			}
			rel := link.Rel()
			if rel == "" {
				rel = RelProfilePage
			}
			jrd.Links = append(jrd.Links, Link{
				Rel:  rel,
				Type: link.MediaType(),
				Href: link.Href().String(),
			})
		case v.Ref != nil:
			jrd.Links = append(jrd.Links, Link{
				Rel:  RelProfilePage,
				Href: v.Ref.String(),
			})
		}
	}

	for _, icon := range actor.Icons() {
		iconURLs := icon.Get("urls")
		if len(iconURLs) == 0 {
			continue
		}
		u := iconURLs[0].URL()
		if u == nil {
			continue
		}
		link := Link{Rel: RelAvatar, Href: u.String()}
		if mt := icon.Get("mediaType"); len(mt) > 0 {
			if s, ok := mt[0].String(); ok {
				link.Type = s
			}
		}
		jrd.Links = append(jrd.Links, link)
	}
	return jrd
}
