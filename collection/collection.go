// Package collection serves ActivityPub collections from cursor-based
// dispatcher callbacks. A handler renders either a paged summary
// (OrderedCollection with totalItems/first/last), one page
// (OrderedCollectionPage), or a single-page collection with inlined items
// when no cursor scheme is configured.
package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/fedkit/fedkit/vocab"
)

const contentType = "application/activity+json"

// Page is one dispatched slice of a collection. Cursors are opaque to the
// engine; an empty cursor means "no such page".
type Page struct {
	Items      []vocab.Value
	NextCursor string
	PrevCursor string
	// StartIndex is the offset of the first item, when the backing store
	// can surface one. nil omits it from the page.
	StartIndex *uint64
}

// Dispatcher returns the page at a cursor. The empty cursor requests the
// only page of an unpaged collection.
type Dispatcher func(r *http.Request, identifier, cursor string) (*Page, error)

// Counter reports the total item count, or ok=false when unknown.
type Counter func(r *http.Request, identifier string) (uint64, bool)

// Cursor resolves a boundary cursor (first or last page), or ok=false when
// the collection is empty or the boundary is not tracked.
type Cursor func(r *http.Request, identifier string) (string, bool)

// Authorizer gates access to a collection.
type Authorizer func(r *http.Request, identifier string) bool

// Handler renders one collection endpoint.
type Handler struct {
	// Dispatch is required; the remaining callbacks are optional.
	Dispatch  Dispatcher
	Count     Counter
	First     Cursor
	Last      Cursor
	Authorize Authorizer
}

// Serve answers a GET for the collection rooted at base. Without a cursor
// query parameter the response is the collection envelope; with one it is
// the matching page.
func (h *Handler) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, identifier string, base *url.URL) {
	if h.Authorize != nil && !h.Authorize(r, identifier) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var entity vocab.Entity
	var err error
	if r.URL.Query().Has("cursor") {
		entity, err = h.page(r, identifier, r.URL.Query().Get("cursor"), base)
	} else {
		entity, err = h.envelope(r, identifier, base)
	}
	if err != nil {
		slog.Error("collection: dispatch failed", "url", base, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if entity == nil {
		http.NotFound(w, r)
		return
	}

	doc, err := entity.ToJSONLD(ctx)
	if err != nil {
		slog.Error("collection: encode failed", "url", base, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		slog.Warn("collection: response write failed", "url", base, "error", err)
	}
}

// envelope renders the cursorless view. With a First callback the items
// live behind first/last page links; without one the single page is
// inlined.
func (h *Handler) envelope(r *http.Request, identifier string, base *url.URL) (vocab.Entity, error) {
	props := vocab.Props{"id": base}
	if h.Count != nil {
		if n, ok := h.Count(r, identifier); ok {
			props["totalItems"] = int64(n)
		}
	}

	if h.First != nil {
		if first, ok := h.First(r, identifier); ok {
			props["first"] = cursorURL(base, first)
		}
		if h.Last != nil {
			if last, ok := h.Last(r, identifier); ok {
				props["last"] = cursorURL(base, last)
			}
		}
		return vocab.NewOrderedCollection(props)
	}

	page, err := h.dispatch(r, identifier, "")
	if err != nil || page == nil {
		return nil, err
	}
	props["orderedItems"] = page.Items
	return vocab.NewOrderedCollection(props)
}

// page renders one OrderedCollectionPage.
func (h *Handler) page(r *http.Request, identifier, cursor string, base *url.URL) (vocab.Entity, error) {
	page, err := h.dispatch(r, identifier, cursor)
	if err != nil || page == nil {
		return nil, err
	}

	props := vocab.Props{
		"id":           cursorURL(base, cursor),
		"partOf":       base,
		"orderedItems": page.Items,
	}
	if page.NextCursor != "" {
		props["next"] = cursorURL(base, page.NextCursor)
	}
	if page.PrevCursor != "" {
		props["prev"] = cursorURL(base, page.PrevCursor)
	}
	if page.StartIndex != nil {
		props["startIndex"] = int64(*page.StartIndex)
	}
	return vocab.NewOrderedCollectionPage(props)
}

func (h *Handler) dispatch(r *http.Request, identifier, cursor string) (*Page, error) {
	if h.Dispatch == nil {
		return nil, fmt.Errorf("collection: no dispatcher configured")
	}
	return h.Dispatch(r, identifier, cursor)
}

// cursorURL derives a page URL from the collection URL.
func cursorURL(base *url.URL, cursor string) *url.URL {
	u := *base
	q := u.Query()
	q.Set("cursor", cursor)
	u.RawQuery = q.Encode()
	return &u
}
