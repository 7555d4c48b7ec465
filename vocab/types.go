package vocab

import (
	"net/url"
	"time"
)

// ─── Shared property tables ───

func objectProperties() []PropertySpec {
	return []PropertySpec{
		{Singular: "name", Plural: "names", CompactName: "name", URI: nsAS + "name",
			Range: []string{rangeString, rangeLangString}},
		{Singular: "content", Plural: "contents", CompactName: "content", URI: nsAS + "content",
			Range: []string{rangeString, rangeLangString}},
		{Singular: "summary", Plural: "summaries", CompactName: "summary", URI: nsAS + "summary",
			Range: []string{rangeString, rangeLangString}},
		{Singular: "published", CompactName: "published", URI: nsAS + "published",
			Range: []string{rangeDateTime}, Functional: true},
		{Singular: "updated", CompactName: "updated", URI: nsAS + "updated",
			Range: []string{rangeDateTime}, Functional: true},
		{Singular: "duration", CompactName: "duration", URI: nsAS + "duration",
			Range: []string{rangeDuration}, Functional: true},
		{Singular: "mediaType", CompactName: "mediaType", URI: nsAS + "mediaType",
			Range: []string{rangeString}, Functional: true},
		{Singular: "sensitive", CompactName: "sensitive", URI: nsAS + "sensitive",
			Range: []string{rangeBoolean}, Functional: true},
		{Singular: "url", Plural: "urls", CompactName: "url", URI: nsAS + "url",
			Range: []string{rangeAnyURI, nsAS + "Link"}},
		{Singular: "icon", Plural: "icons", CompactName: "icon", URI: nsAS + "icon",
			Range: []string{nsAS + "Image"}},
		{Singular: "image", Plural: "images", CompactName: "image", URI: nsAS + "image",
			Range: []string{nsAS + "Image"}},
		{Singular: "attachment", Plural: "attachments", CompactName: "attachment", URI: nsAS + "attachment",
			Range: []string{nsAS + "Object", nsAS + "Link", nsSchema + "PropertyValue"}},
		{Singular: "attribution", Plural: "attributions", CompactName: "attributedTo", URI: nsAS + "attributedTo",
			Range: []string{nsAS + "Object", nsAS + "Link"}},
		{Singular: "to", Plural: "tos", CompactName: "to", URI: nsAS + "to",
			Range: []string{nsAS + "Object", rangeAnyURI}},
		{Singular: "cc", Plural: "ccs", CompactName: "cc", URI: nsAS + "cc",
			Range: []string{nsAS + "Object", rangeAnyURI}},
		{Singular: "bto", Plural: "btos", CompactName: "bto", URI: nsAS + "bto",
			Range: []string{nsAS + "Object", rangeAnyURI}},
		{Singular: "bcc", Plural: "bccs", CompactName: "bcc", URI: nsAS + "bcc",
			Range: []string{nsAS + "Object", rangeAnyURI}},
		{Singular: "audience", Plural: "audiences", CompactName: "audience", URI: nsAS + "audience",
			Range: []string{nsAS + "Object", rangeAnyURI}},
		{Singular: "inReplyTo", Plural: "inReplyTos", CompactName: "inReplyTo", URI: nsAS + "inReplyTo",
			Range: []string{nsAS + "Object", nsAS + "Link"}},
		{Singular: "tag", Plural: "tags", CompactName: "tag", URI: nsAS + "tag",
			Range: []string{nsAS + "Object", nsAS + "Link"}},
		{Singular: "replies", CompactName: "replies", URI: nsAS + "replies",
			Range: []string{nsAS + "Collection"}, Functional: true},
		{Singular: "location", Plural: "locations", CompactName: "location", URI: nsAS + "location",
			Range: []string{nsAS + "Object", nsAS + "Link"}},
		{Singular: "proof", Plural: "proofs", CompactName: "proof", URI: nsSec + "proof",
			Range: []string{nsSec + "DataIntegrityProof"}, Container: ContainerGraph, EmbedContext: true},
		{Singular: "signature", CompactName: "signature", URI: nsSec + "signature",
			Range: []string{nsAS + "Object"}, Functional: true, EmbedContext: true},
	}
}

// ─── Object ───

// Object is declared in object.go; its spec is the root of the hierarchy.
var specObject = register(&TypeSpec{
	Name:           "Object",
	URI:            nsAS + "Object",
	DefaultContext: ASContext,
	Properties:     objectProperties(),
	New:            func() Entity { return &Object{} },
})

// NewObject constructs a generic Object.
func NewObject(props Props) (*Object, error) {
	e, err := newEntity(specObject, props)
	if err != nil {
		return nil, err
	}
	return e.(*Object), nil
}

// Get returns the raw values stored for an accessor name (singular or
// plural form).
func (o *Object) Get(name string) []Value { return o.values(name) }

// Name returns the first name value.
func (o *Object) Name() string { return o.strProp("name") }

// Content returns the first content value.
func (o *Object) Content() string { return o.strProp("content") }

// Summary returns the first summary value.
func (o *Object) Summary() string { return o.strProp("summary") }

// Published returns the publication time.
func (o *Object) Published() (time.Time, bool) { return o.timeProp("published") }

// URLs returns the url property values; entries are plain URL references
// or Link entities.
func (o *Object) URLs() []Value { return o.values("urls") }

// Icons returns the materialized icon entities.
func (o *Object) Icons() []Entity {
	var out []Entity
	for _, v := range o.values("icons") {
		if v.Obj != nil {
			out = append(out, v.Obj)
		}
	}
	return out
}

// ToIDs etc. return recipient URLs without fetching.
func (o *Object) ToIDs() []*url.URL       { return o.urlProps("tos") }
func (o *Object) CcIDs() []*url.URL       { return o.urlProps("ccs") }
func (o *Object) BtoIDs() []*url.URL      { return o.urlProps("btos") }
func (o *Object) BccIDs() []*url.URL      { return o.urlProps("bccs") }
func (o *Object) AudienceIDs() []*url.URL { return o.urlProps("audiences") }

// AttributionID returns the first attributedTo URL.
func (o *Object) AttributionID() *url.URL { return o.urlProp("attribution") }

// Proofs returns the attached integrity proofs.
func (o *Object) Proofs() []*DataIntegrityProof {
	var out []*DataIntegrityProof
	for _, v := range o.values("proofs") {
		if p, ok := v.Obj.(*DataIntegrityProof); ok {
			out = append(out, p)
		}
	}
	return out
}

// Signature returns the legacy LD signature node, if any.
func (o *Object) Signature() Entity { return o.entityProp("signature") }

// ─── Link ───

// Link is an indirect reference with its own metadata (href, rel, media
// type).
type Link struct {
	Object
}

var specLink = register(&TypeSpec{
	Name:           "Link",
	URI:            nsAS + "Link",
	DefaultContext: ASContext,
	Properties: []PropertySpec{
		{Singular: "href", CompactName: "href", URI: nsAS + "href",
			Range: []string{rangeAnyURI}, Functional: true},
		{Singular: "rel", Plural: "rels", CompactName: "rel", URI: nsAS + "rel",
			Range: []string{rangeString}},
		{Singular: "hreflang", CompactName: "hreflang", URI: nsAS + "hreflang",
			Range: []string{rangeString}, Functional: true},
		{Singular: "height", CompactName: "height", URI: nsAS + "height",
			Range: []string{rangeNonNegInt}, Functional: true},
		{Singular: "width", CompactName: "width", URI: nsAS + "width",
			Range: []string{rangeNonNegInt}, Functional: true},
		{Singular: "linkName", Plural: "linkNames", CompactName: "name", URI: nsAS + "name",
			Range: []string{rangeString, rangeLangString}},
		{Singular: "linkMediaType", CompactName: "mediaType", URI: nsAS + "mediaType",
			Range: []string{rangeString}, Functional: true},
	},
	New: func() Entity { return &Link{} },
})

// NewLink constructs a Link.
func NewLink(props Props) (*Link, error) {
	e, err := newEntity(specLink, props)
	if err != nil {
		return nil, err
	}
	return e.(*Link), nil
}

// Href returns the link target.
func (l *Link) Href() *url.URL { return l.urlProp("href") }

// Rel returns the first rel value.
func (l *Link) Rel() string { return l.strProp("rel") }

// MediaType returns the link's media type.
func (l *Link) MediaType() string { return l.strProp("linkMediaType") }

// Mention is a Link subtype for @-mentions.
type Mention struct {
	Link
}

var specMention = register(&TypeSpec{
	Name: "Mention", URI: nsAS + "Mention", Extends: nsAS + "Link",
	DefaultContext: ASContext,
	New:            func() Entity { return &Mention{} },
})

// NewMention constructs a Mention.
func NewMention(props Props) (*Mention, error) {
	e, err := newEntity(specMention, props)
	if err != nil {
		return nil, err
	}
	return e.(*Mention), nil
}

// Hashtag is the fediverse hashtag Link extension.
type Hashtag struct {
	Link
}

var specHashtag = register(&TypeSpec{
	Name: "Hashtag", URI: nsAS + "Hashtag", Extends: nsAS + "Link",
	DefaultContext: []any{ASContext, map[string]any{"Hashtag": "as:Hashtag"}},
	New:            func() Entity { return &Hashtag{} },
})

// NewHashtag constructs a Hashtag.
func NewHashtag(props Props) (*Hashtag, error) {
	e, err := newEntity(specHashtag, props)
	if err != nil {
		return nil, err
	}
	return e.(*Hashtag), nil
}

// ─── Object subtypes ───

func objectSubtype(name string, extends string, makeNew func() Entity, props ...PropertySpec) *TypeSpec {
	return register(&TypeSpec{
		Name:           name,
		URI:            nsAS + name,
		Extends:        extends,
		DefaultContext: ASContext,
		Properties:     props,
		New:            makeNew,
	})
}

type Article struct{ Object }
type Note struct{ Object }
type Event struct{ Object }
type Document struct{ Object }
type Audio struct{ Document }
type Image struct{ Document }
type Video struct{ Document }
type Page struct{ Document }

var (
	specArticle  = objectSubtype("Article", nsAS+"Object", func() Entity { return &Article{} })
	specNote     = objectSubtype("Note", nsAS+"Object", func() Entity { return &Note{} })
	specEvent    = objectSubtype("Event", nsAS+"Object", func() Entity { return &Event{} })
	specDocument = objectSubtype("Document", nsAS+"Object", func() Entity { return &Document{} })
	specAudio    = objectSubtype("Audio", nsAS+"Document", func() Entity { return &Audio{} })
	specImage    = objectSubtype("Image", nsAS+"Document", func() Entity { return &Image{} })
	specVideo    = objectSubtype("Video", nsAS+"Document", func() Entity { return &Video{} })
	specPage     = objectSubtype("Page", nsAS+"Document", func() Entity { return &Page{} })
)

// NewNote constructs a Note.
func NewNote(props Props) (*Note, error) {
	e, err := newEntity(specNote, props)
	if err != nil {
		return nil, err
	}
	return e.(*Note), nil
}

// NewImage constructs an Image.
func NewImage(props Props) (*Image, error) {
	e, err := newEntity(specImage, props)
	if err != nil {
		return nil, err
	}
	return e.(*Image), nil
}

// NewArticle constructs an Article.
func NewArticle(props Props) (*Article, error) {
	e, err := newEntity(specArticle, props)
	if err != nil {
		return nil, err
	}
	return e.(*Article), nil
}

// Place is a location with geographic coordinates.
type Place struct{ Object }

var specPlace = register(&TypeSpec{
	Name: "Place", URI: nsAS + "Place", Extends: nsAS + "Object",
	DefaultContext: ASContext,
	Properties: []PropertySpec{
		{Singular: "latitude", CompactName: "latitude", URI: nsAS + "latitude",
			Range: []string{rangeFloat}, Functional: true},
		{Singular: "longitude", CompactName: "longitude", URI: nsAS + "longitude",
			Range: []string{rangeFloat}, Functional: true},
		{Singular: "altitude", CompactName: "altitude", URI: nsAS + "altitude",
			Range: []string{rangeFloat}, Functional: true},
		{Singular: "accuracy", CompactName: "accuracy", URI: nsAS + "accuracy",
			Range: []string{rangeFloat}, Functional: true},
		{Singular: "radius", CompactName: "radius", URI: nsAS + "radius",
			Range: []string{rangeFloat}, Functional: true},
		{Singular: "units", CompactName: "units", URI: rangeUnits,
			Range: []string{rangeUnits}, Functional: true},
	},
	New: func() Entity { return &Place{} },
})

// NewPlace constructs a Place.
func NewPlace(props Props) (*Place, error) {
	e, err := newEntity(specPlace, props)
	if err != nil {
		return nil, err
	}
	return e.(*Place), nil
}

// Latitude returns the latitude in decimal degrees.
func (p *Place) Latitude() (float64, bool) { return p.floatProp("latitude") }

// Longitude returns the longitude in decimal degrees.
func (p *Place) Longitude() (float64, bool) { return p.floatProp("longitude") }

// Radius returns the radius around the point.
func (p *Place) Radius() (float64, bool) { return p.floatProp("radius") }

// Units returns the unit the radius is measured in.
func (p *Place) Units() string { return p.strProp("units") }

// Profile describes another object, typically an actor.
type Profile struct{ Object }

var specProfile = register(&TypeSpec{
	Name: "Profile", URI: nsAS + "Profile", Extends: nsAS + "Object",
	DefaultContext: ASContext,
	Properties: []PropertySpec{
		{Singular: "describes", CompactName: "describes", URI: nsAS + "describes",
			Range: []string{nsAS + "Object"}, Functional: true},
	},
	New: func() Entity { return &Profile{} },
})

// Tombstone marks a deleted object.
type Tombstone struct{ Object }

var specTombstone = register(&TypeSpec{
	Name: "Tombstone", URI: nsAS + "Tombstone", Extends: nsAS + "Object",
	DefaultContext: ASContext,
	Properties: []PropertySpec{
		{Singular: "formerType", Plural: "formerTypes", CompactName: "formerType", URI: nsAS + "formerType",
			Range: []string{rangeAnyURI}},
		{Singular: "deleted", CompactName: "deleted", URI: nsAS + "deleted",
			Range: []string{rangeDateTime}, Functional: true},
	},
	New: func() Entity { return &Tombstone{} },
})

// NewTombstone constructs a Tombstone.
func NewTombstone(props Props) (*Tombstone, error) {
	e, err := newEntity(specTombstone, props)
	if err != nil {
		return nil, err
	}
	return e.(*Tombstone), nil
}

// Deleted returns the deletion time.
func (t *Tombstone) Deleted() (time.Time, bool) { return t.timeProp("deleted") }

// Relationship describes a relation between two objects.
type Relationship struct{ Object }

var specRelationship = register(&TypeSpec{
	Name: "Relationship", URI: nsAS + "Relationship", Extends: nsAS + "Object",
	DefaultContext: ASContext,
	Properties: []PropertySpec{
		{Singular: "subject", CompactName: "subject", URI: nsAS + "subject",
			Range: []string{nsAS + "Object", nsAS + "Link"}, Functional: true},
		{Singular: "relationship", Plural: "relationships", CompactName: "relationship", URI: nsAS + "relationship",
			Range: []string{rangeAnyURI}},
		{Singular: "relObject", Plural: "relObjects", CompactName: "object", URI: nsAS + "object",
			Range: []string{nsAS + "Object"}},
	},
	New: func() Entity { return &Relationship{} },
})

// Emoji is the custom emoji extension carried by most fediverse servers.
type Emoji struct{ Object }

var specEmoji = register(&TypeSpec{
	Name: "Emoji", URI: nsToot + "Emoji", Extends: nsAS + "Object",
	DefaultContext: []any{ASContext, map[string]any{"toot": nsToot, "Emoji": "toot:Emoji"}},
	New:            func() Entity { return &Emoji{} },
})

// NewEmoji constructs an Emoji.
func NewEmoji(props Props) (*Emoji, error) {
	e, err := newEntity(specEmoji, props)
	if err != nil {
		return nil, err
	}
	return e.(*Emoji), nil
}

// PropertyValue is the schema.org name/value pair used for profile fields.
type PropertyValue struct{ Object }

var specPropertyValue = register(&TypeSpec{
	Name: "PropertyValue", URI: nsSchema + "PropertyValue", Extends: nsAS + "Object",
	DefaultContext: []any{ASContext, map[string]any{
		"schema": nsSchema, "PropertyValue": "schema:PropertyValue", "value": "schema:value",
	}},
	Properties: []PropertySpec{
		{Singular: "value", CompactName: "value", URI: nsSchema + "value",
			Range: []string{rangeString}, Functional: true},
	},
	New: func() Entity { return &PropertyValue{} },
})

// NewPropertyValue constructs a PropertyValue.
func NewPropertyValue(props Props) (*PropertyValue, error) {
	e, err := newEntity(specPropertyValue, props)
	if err != nil {
		return nil, err
	}
	return e.(*PropertyValue), nil
}

// Value returns the field value.
func (p *PropertyValue) Value() string { return p.strProp("value") }
