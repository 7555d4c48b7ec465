package vocab

import "net/url"

// Collection groups objects, optionally paged.
type Collection struct{ Object }

var specCollection = register(&TypeSpec{
	Name: "Collection", URI: nsAS + "Collection", Extends: nsAS + "Object",
	DefaultContext: ASContext,
	Properties: []PropertySpec{
		{Singular: "totalItems", CompactName: "totalItems", URI: nsAS + "totalItems",
			Range: []string{rangeNonNegInt}, Functional: true},
		{Singular: "current", CompactName: "current", URI: nsAS + "current",
			Range: []string{nsAS + "CollectionPage", rangeAnyURI}, Functional: true},
		{Singular: "first", CompactName: "first", URI: nsAS + "first",
			Range: []string{nsAS + "CollectionPage", rangeAnyURI}, Functional: true},
		{Singular: "last", CompactName: "last", URI: nsAS + "last",
			Range: []string{nsAS + "CollectionPage", rangeAnyURI}, Functional: true},
		{Singular: "item", Plural: "items", CompactName: "items", URI: nsAS + "items",
			Range: []string{nsAS + "Object", nsAS + "Link", rangeAnyURI}},
	},
	New: func() Entity { return &Collection{} },
})

// NewCollection constructs a Collection.
func NewCollection(props Props) (*Collection, error) {
	e, err := newEntity(specCollection, props)
	if err != nil {
		return nil, err
	}
	return e.(*Collection), nil
}

// TotalItems returns the declared item count.
func (c *Collection) TotalItems() (uint64, bool) { return c.uintProp("totalItems") }

// FirstID returns the first page URL.
func (c *Collection) FirstID() *url.URL { return c.urlProp("first") }

// LastID returns the last page URL.
func (c *Collection) LastID() *url.URL { return c.urlProp("last") }

// ItemIDs returns the item URLs without fetching.
func (c *Collection) ItemIDs() []*url.URL { return c.urlProps("items") }

// Items returns the raw item values.
func (c *Collection) Items() []Value { return c.values("items") }

// OrderedCollection preserves item order with an @list container.
type OrderedCollection struct{ Collection }

var specOrderedCollection = register(&TypeSpec{
	Name: "OrderedCollection", URI: nsAS + "OrderedCollection", Extends: nsAS + "Collection",
	DefaultContext: ASContext,
	Properties: []PropertySpec{
		{Singular: "orderedItem", Plural: "orderedItems", CompactName: "orderedItems", URI: nsAS + "items",
			Range:     []string{nsAS + "Object", nsAS + "Link", rangeAnyURI},
			Container: ContainerList},
	},
	New: func() Entity { return &OrderedCollection{} },
})

// NewOrderedCollection constructs an OrderedCollection.
func NewOrderedCollection(props Props) (*OrderedCollection, error) {
	e, err := newEntity(specOrderedCollection, props)
	if err != nil {
		return nil, err
	}
	return e.(*OrderedCollection), nil
}

// OrderedItems returns the raw ordered item values.
func (c *OrderedCollection) OrderedItems() []Value { return c.values("orderedItems") }

// CollectionPage is one page of a paged Collection.
type CollectionPage struct{ Collection }

func pageProperties() []PropertySpec {
	return []PropertySpec{
		{Singular: "partOf", CompactName: "partOf", URI: nsAS + "partOf",
			Range: []string{nsAS + "Collection", rangeAnyURI}, Functional: true},
		{Singular: "next", CompactName: "next", URI: nsAS + "next",
			Range: []string{nsAS + "CollectionPage", rangeAnyURI}, Functional: true},
		{Singular: "prev", CompactName: "prev", URI: nsAS + "prev",
			Range: []string{nsAS + "CollectionPage", rangeAnyURI}, Functional: true},
	}
}

var specCollectionPage = register(&TypeSpec{
	Name: "CollectionPage", URI: nsAS + "CollectionPage", Extends: nsAS + "Collection",
	DefaultContext: ASContext,
	Properties:     pageProperties(),
	New:            func() Entity { return &CollectionPage{} },
})

// NextID returns the next page URL.
func (p *CollectionPage) NextID() *url.URL { return p.urlProp("next") }

// PrevID returns the previous page URL.
func (p *CollectionPage) PrevID() *url.URL { return p.urlProp("prev") }

// PartOfID returns the parent collection URL.
func (p *CollectionPage) PartOfID() *url.URL { return p.urlProp("partOf") }

// OrderedCollectionPage is one page of an OrderedCollection.
type OrderedCollectionPage struct{ OrderedCollection }

var specOrderedCollectionPage = register(&TypeSpec{
	Name: "OrderedCollectionPage", URI: nsAS + "OrderedCollectionPage", Extends: nsAS + "OrderedCollection",
	DefaultContext: ASContext,
	Properties: append(pageProperties(),
		PropertySpec{Singular: "startIndex", CompactName: "startIndex", URI: nsAS + "startIndex",
			Range: []string{rangeNonNegInt}, Functional: true}),
	New: func() Entity { return &OrderedCollectionPage{} },
})

// NewOrderedCollectionPage constructs an OrderedCollectionPage.
func NewOrderedCollectionPage(props Props) (*OrderedCollectionPage, error) {
	e, err := newEntity(specOrderedCollectionPage, props)
	if err != nil {
		return nil, err
	}
	return e.(*OrderedCollectionPage), nil
}

// NextID returns the next page URL.
func (p *OrderedCollectionPage) NextID() *url.URL { return p.urlProp("next") }

// PrevID returns the previous page URL.
func (p *OrderedCollectionPage) PrevID() *url.URL { return p.urlProp("prev") }

// PartOfID returns the parent collection URL.
func (p *OrderedCollectionPage) PartOfID() *url.URL { return p.urlProp("partOf") }

// StartIndex returns the page's offset into the collection.
func (p *OrderedCollectionPage) StartIndex() (uint64, bool) { return p.uintProp("startIndex") }
