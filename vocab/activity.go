package vocab

import (
	"context"
	"net/url"
)

// Activity is the base type of everything delivered between inboxes.
type Activity struct {
	Object
}

var specActivity = register(&TypeSpec{
	Name: "Activity", URI: nsAS + "Activity", Extends: nsAS + "Object",
	DefaultContext: ASContext,
	Properties: []PropertySpec{
		{Singular: "actor", Plural: "actors", CompactName: "actor", URI: nsAS + "actor",
			Range: []string{nsAS + "Object", rangeAnyURI}},
		{Singular: "object", Plural: "objects", CompactName: "object", URI: nsAS + "object",
			Range: []string{nsAS + "Object", rangeAnyURI}},
		{Singular: "target", Plural: "targets", CompactName: "target", URI: nsAS + "target",
			Range: []string{nsAS + "Object", rangeAnyURI}},
		{Singular: "origin", Plural: "origins", CompactName: "origin", URI: nsAS + "origin",
			Range: []string{nsAS + "Object", rangeAnyURI}},
		{Singular: "result", Plural: "results", CompactName: "result", URI: nsAS + "result",
			Range: []string{nsAS + "Object", rangeAnyURI}},
		{Singular: "instrument", Plural: "instruments", CompactName: "instrument", URI: nsAS + "instrument",
			Range: []string{nsAS + "Object", rangeAnyURI}},
	},
	New: func() Entity { return &Activity{} },
})

// ActivitySpec exposes the Activity type spec for decode dispatch.
func ActivitySpec() *TypeSpec { return specActivity }

// NewActivity constructs a generic Activity.
func NewActivity(props Props) (*Activity, error) {
	e, err := newEntity(specActivity, props)
	if err != nil {
		return nil, err
	}
	return e.(*Activity), nil
}

// ActorID returns the first actor URL without fetching.
func (a *Activity) ActorID() *url.URL { return a.urlProp("actor") }

// ActorIDs returns every actor URL without fetching.
func (a *Activity) ActorIDs() []*url.URL { return a.urlProps("actors") }

// GetActor fetches and memoizes the first actor entity.
func (a *Activity) GetActor(ctx context.Context) (Entity, error) {
	return a.getEntity(ctx, "actors", 0)
}

// ObjectID returns the first object URL without fetching.
func (a *Activity) ObjectID() *url.URL { return a.urlProp("object") }

// GetObject fetches and memoizes the first object entity.
func (a *Activity) GetObject(ctx context.Context) (Entity, error) {
	return a.getEntity(ctx, "objects", 0)
}

// GetObjects fetches every object entity.
func (a *Activity) GetObjects(ctx context.Context) ([]Entity, error) {
	return a.getEntities(ctx, "objects")
}

// TargetID returns the first target URL without fetching.
func (a *Activity) TargetID() *url.URL { return a.urlProp("target") }

// ActivityEntity is satisfied by every Activity subtype; non-activity
// entities do not implement it.
type ActivityEntity interface {
	Entity
	ActorID() *url.URL
	ActorIDs() []*url.URL
	GetActor(ctx context.Context) (Entity, error)
	ObjectID() *url.URL
	GetObject(ctx context.Context) (Entity, error)
}

// IntransitiveActivity has no object.
type IntransitiveActivity struct {
	Activity
}

var specIntransitive = register(&TypeSpec{
	Name: "IntransitiveActivity", URI: nsAS + "IntransitiveActivity", Extends: nsAS + "Activity",
	DefaultContext: ASContext,
	New:            func() Entity { return &IntransitiveActivity{} },
})

func activitySubtype(name, extends string, makeNew func() Entity, props ...PropertySpec) *TypeSpec {
	return register(&TypeSpec{
		Name:           name,
		URI:            nsAS + name,
		Extends:        extends,
		DefaultContext: ASContext,
		Properties:     props,
		New:            makeNew,
	})
}

type Accept struct{ Activity }
type Reject struct{ Activity }
type TentativeAccept struct{ Accept }
type TentativeReject struct{ Reject }
type Add struct{ Activity }
type Remove struct{ Activity }
type Create struct{ Activity }
type Delete struct{ Activity }
type Update struct{ Activity }
type Follow struct{ Activity }
type Ignore struct{ Activity }
type Block struct{ Ignore }
type Flag struct{ Activity }
type Like struct{ Activity }
type Dislike struct{ Activity }
type EmojiReact struct{ Activity }
type Announce struct{ Activity }
type Undo struct{ Activity }
type Move struct{ Activity }
type ReadActivity struct{ Activity }
type View struct{ Activity }
type Listen struct{ Activity }
type Offer struct{ Activity }
type Invite struct{ Offer }
type Join struct{ Activity }
type Leave struct{ Activity }
type Travel struct{ IntransitiveActivity }
type Arrive struct{ IntransitiveActivity }

var (
	specAccept          = activitySubtype("Accept", nsAS+"Activity", func() Entity { return &Accept{} })
	specReject          = activitySubtype("Reject", nsAS+"Activity", func() Entity { return &Reject{} })
	specTentativeAccept = activitySubtype("TentativeAccept", nsAS+"Accept", func() Entity { return &TentativeAccept{} })
	specTentativeReject = activitySubtype("TentativeReject", nsAS+"Reject", func() Entity { return &TentativeReject{} })
	specAdd             = activitySubtype("Add", nsAS+"Activity", func() Entity { return &Add{} })
	specRemove          = activitySubtype("Remove", nsAS+"Activity", func() Entity { return &Remove{} })
	specCreate          = activitySubtype("Create", nsAS+"Activity", func() Entity { return &Create{} })
	specDelete          = activitySubtype("Delete", nsAS+"Activity", func() Entity { return &Delete{} })
	specUpdate          = activitySubtype("Update", nsAS+"Activity", func() Entity { return &Update{} })
	specFollow          = activitySubtype("Follow", nsAS+"Activity", func() Entity { return &Follow{} })
	specIgnore          = activitySubtype("Ignore", nsAS+"Activity", func() Entity { return &Ignore{} })
	specBlock           = activitySubtype("Block", nsAS+"Ignore", func() Entity { return &Block{} })
	specFlag            = activitySubtype("Flag", nsAS+"Activity", func() Entity { return &Flag{} })
	specLike            = activitySubtype("Like", nsAS+"Activity", func() Entity { return &Like{} })
	specDislike         = activitySubtype("Dislike", nsAS+"Activity", func() Entity { return &Dislike{} })
	specEmojiReact      = activitySubtype("EmojiReact", nsAS+"Activity", func() Entity { return &EmojiReact{} })
	specAnnounce        = activitySubtype("Announce", nsAS+"Activity", func() Entity { return &Announce{} })
	specUndo            = activitySubtype("Undo", nsAS+"Activity", func() Entity { return &Undo{} })
	specMove            = activitySubtype("Move", nsAS+"Activity", func() Entity { return &Move{} })
	specRead            = activitySubtype("Read", nsAS+"Activity", func() Entity { return &ReadActivity{} })
	specView            = activitySubtype("View", nsAS+"Activity", func() Entity { return &View{} })
	specListen          = activitySubtype("Listen", nsAS+"Activity", func() Entity { return &Listen{} })
	specOffer           = activitySubtype("Offer", nsAS+"Activity", func() Entity { return &Offer{} })
	specInvite          = activitySubtype("Invite", nsAS+"Offer", func() Entity { return &Invite{} })
	specJoin            = activitySubtype("Join", nsAS+"Activity", func() Entity { return &Join{} })
	specLeave           = activitySubtype("Leave", nsAS+"Activity", func() Entity { return &Leave{} })
	specTravel          = activitySubtype("Travel", nsAS+"IntransitiveActivity", func() Entity { return &Travel{} })
	specArrive          = activitySubtype("Arrive", nsAS+"IntransitiveActivity", func() Entity { return &Arrive{} })
)

// Question is a poll.
type Question struct{ IntransitiveActivity }

var specQuestion = register(&TypeSpec{
	Name: "Question", URI: nsAS + "Question", Extends: nsAS + "IntransitiveActivity",
	DefaultContext: ASContext,
	Properties: []PropertySpec{
		{Singular: "exclusiveOption", Plural: "exclusiveOptions", CompactName: "oneOf", URI: nsAS + "oneOf",
			Range: []string{nsAS + "Object", nsAS + "Link"}},
		{Singular: "inclusiveOption", Plural: "inclusiveOptions", CompactName: "anyOf", URI: nsAS + "anyOf",
			Range: []string{nsAS + "Object", nsAS + "Link"}},
		{Singular: "closed", CompactName: "closed", URI: nsAS + "closed",
			Range: []string{rangeDateTime, rangeBoolean}, Functional: true},
	},
	New: func() Entity { return &Question{} },
})

// Typed constructors for the activity shapes applications build directly.

func NewCreate(props Props) (*Create, error) {
	e, err := newEntity(specCreate, props)
	if err != nil {
		return nil, err
	}
	return e.(*Create), nil
}

func NewUpdate(props Props) (*Update, error) {
	e, err := newEntity(specUpdate, props)
	if err != nil {
		return nil, err
	}
	return e.(*Update), nil
}

func NewDelete(props Props) (*Delete, error) {
	e, err := newEntity(specDelete, props)
	if err != nil {
		return nil, err
	}
	return e.(*Delete), nil
}

func NewFollow(props Props) (*Follow, error) {
	e, err := newEntity(specFollow, props)
	if err != nil {
		return nil, err
	}
	return e.(*Follow), nil
}

func NewAccept(props Props) (*Accept, error) {
	e, err := newEntity(specAccept, props)
	if err != nil {
		return nil, err
	}
	return e.(*Accept), nil
}

func NewReject(props Props) (*Reject, error) {
	e, err := newEntity(specReject, props)
	if err != nil {
		return nil, err
	}
	return e.(*Reject), nil
}

func NewLike(props Props) (*Like, error) {
	e, err := newEntity(specLike, props)
	if err != nil {
		return nil, err
	}
	return e.(*Like), nil
}

func NewAnnounce(props Props) (*Announce, error) {
	e, err := newEntity(specAnnounce, props)
	if err != nil {
		return nil, err
	}
	return e.(*Announce), nil
}

func NewUndo(props Props) (*Undo, error) {
	e, err := newEntity(specUndo, props)
	if err != nil {
		return nil, err
	}
	return e.(*Undo), nil
}
