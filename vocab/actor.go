package vocab

import (
	"context"
	"net/url"
	"time"
)

// actorContext is the compact @context emitted for actor documents: the
// core vocabularies plus the extension terms most fediverse servers expect.
var actorContext = []any{
	ASContext,
	SecurityV1Context,
	DataIntegrityContext,
	MultikeyContext,
	map[string]any{
		"toot":                      nsToot,
		"schema":                    nsSchema,
		"discoverable":              "toot:discoverable",
		"featured":                  map[string]any{"@id": "toot:featured", "@type": "@id"},
		"featuredTags":              map[string]any{"@id": "toot:featuredTags", "@type": "@id"},
		"Emoji":                     "toot:Emoji",
		"Hashtag":                   "as:Hashtag",
		"PropertyValue":             "schema:PropertyValue",
		"value":                     "schema:value",
		"manuallyApprovesFollowers": "as:manuallyApprovesFollowers",
		"sensitive":                 "as:sensitive",
		"alsoKnownAs":               map[string]any{"@id": "as:alsoKnownAs", "@type": "@id"},
	},
}

func actorProperties() []PropertySpec {
	return []PropertySpec{
		{Singular: "preferredUsername", CompactName: "preferredUsername", URI: nsAS + "preferredUsername",
			Range: []string{rangeString, rangeLangString}, Functional: true},
		{Singular: "inbox", CompactName: "inbox", URI: "http://www.w3.org/ns/ldp#inbox",
			Range: []string{nsAS + "OrderedCollection", rangeAnyURI}, Functional: true},
		{Singular: "outbox", CompactName: "outbox", URI: nsAS + "outbox",
			Range: []string{nsAS + "OrderedCollection", rangeAnyURI}, Functional: true},
		{Singular: "following", CompactName: "following", URI: nsAS + "following",
			Range: []string{nsAS + "Collection", rangeAnyURI}, Functional: true},
		{Singular: "followers", CompactName: "followers", URI: nsAS + "followers",
			Range: []string{nsAS + "Collection", rangeAnyURI}, Functional: true},
		{Singular: "liked", CompactName: "liked", URI: nsAS + "liked",
			Range: []string{nsAS + "Collection", rangeAnyURI}, Functional: true},
		{Singular: "featured", CompactName: "featured", URI: nsToot + "featured",
			Range: []string{nsAS + "Collection", rangeAnyURI}, Functional: true},
		{Singular: "featuredTags", CompactName: "featuredTags", URI: nsToot + "featuredTags",
			Range: []string{nsAS + "Collection", rangeAnyURI}, Functional: true},
		{Singular: "endpoints", CompactName: "endpoints", URI: nsAS + "endpoints",
			Range: []string{nsAS + "Endpoints"}, Functional: true},
		{Singular: "publicKey", Plural: "publicKeys", CompactName: "publicKey", URI: nsSec + "publicKey",
			Range: []string{nsSec + "Key"}, EmbedContext: true},
		{Singular: "assertionMethod", Plural: "assertionMethods", CompactName: "assertionMethod", URI: nsSec + "assertionMethod",
			Range: []string{nsSec + "Multikey"}, EmbedContext: true},
		{Singular: "manuallyApprovesFollowers", CompactName: "manuallyApprovesFollowers", URI: nsAS + "manuallyApprovesFollowers",
			Range: []string{rangeBoolean}, Functional: true},
		{Singular: "discoverable", CompactName: "discoverable", URI: nsToot + "discoverable",
			Range: []string{rangeBoolean}, Functional: true},
		{Singular: "alsoKnownAs", Plural: "alsoKnownAses", CompactName: "alsoKnownAs", URI: nsAS + "alsoKnownAs",
			Range: []string{rangeAnyURI}},
	}
}

// actorBase carries the properties shared by the five actor types.
type actorBase struct {
	Object
}

// PreferredUsername returns the actor's handle.
func (a *actorBase) PreferredUsername() string { return a.strProp("preferredUsername") }

// InboxID returns the personal inbox URL.
func (a *actorBase) InboxID() *url.URL { return a.urlProp("inbox") }

// OutboxID returns the outbox URL.
func (a *actorBase) OutboxID() *url.URL { return a.urlProp("outbox") }

// FollowersID returns the followers collection URL.
func (a *actorBase) FollowersID() *url.URL { return a.urlProp("followers") }

// FollowingID returns the following collection URL.
func (a *actorBase) FollowingID() *url.URL { return a.urlProp("following") }

// Endpoints returns the materialized endpoints entity, if any.
func (a *actorBase) Endpoints() *Endpoints {
	if e, ok := a.entityProp("endpoints").(*Endpoints); ok {
		return e
	}
	return nil
}

// SharedInboxID returns the shared inbox URL, or nil.
func (a *actorBase) SharedInboxID() *url.URL {
	if ep := a.Endpoints(); ep != nil {
		return ep.SharedInbox()
	}
	return nil
}

// PublicKeys returns the materialized publicKey entries.
func (a *actorBase) PublicKeys() []*CryptographicKey {
	var out []*CryptographicKey
	for _, v := range a.values("publicKeys") {
		if k, ok := v.Obj.(*CryptographicKey); ok {
			out = append(out, k)
		}
	}
	return out
}

// GetPublicKeys fetches every publicKey entry, resolving references.
func (a *actorBase) GetPublicKeys(ctx context.Context) ([]*CryptographicKey, error) {
	ents, err := a.getEntities(ctx, "publicKeys")
	if err != nil {
		return nil, err
	}
	var out []*CryptographicKey
	for _, e := range ents {
		if k, ok := e.(*CryptographicKey); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

// AssertionMethods returns the materialized Multikey entries.
func (a *actorBase) AssertionMethods() []*Multikey {
	var out []*Multikey
	for _, v := range a.values("assertionMethods") {
		if k, ok := v.Obj.(*Multikey); ok {
			out = append(out, k)
		}
	}
	return out
}

// KeyIDs returns the ids of every published key, public keys first.
func (a *actorBase) KeyIDs() []*url.URL {
	ids := a.urlProps("publicKeys")
	return append(ids, a.urlProps("assertionMethods")...)
}

// Actor is satisfied by the five actor types; it is also the Recipient
// shape the delivery pipeline consumes.
type Actor interface {
	Entity
	PreferredUsername() string
	InboxID() *url.URL
	SharedInboxID() *url.URL
	PublicKeys() []*CryptographicKey
	KeyIDs() []*url.URL
	URLs() []Value
	Icons() []Entity
}

func actorType(name string, makeNew func() Entity) *TypeSpec {
	return register(&TypeSpec{
		Name:           name,
		URI:            nsAS + name,
		Extends:        nsAS + "Object",
		DefaultContext: actorContext,
		Properties:     actorProperties(),
		New:            makeNew,
	})
}

type Person struct{ actorBase }
type Application struct{ actorBase }
type Group struct{ actorBase }
type Organization struct{ actorBase }
type Service struct{ actorBase }

var (
	specPerson       = actorType("Person", func() Entity { return &Person{} })
	specApplication  = actorType("Application", func() Entity { return &Application{} })
	specGroup        = actorType("Group", func() Entity { return &Group{} })
	specOrganization = actorType("Organization", func() Entity { return &Organization{} })
	specService      = actorType("Service", func() Entity { return &Service{} })
)

func NewPerson(props Props) (*Person, error) {
	e, err := newEntity(specPerson, props)
	if err != nil {
		return nil, err
	}
	return e.(*Person), nil
}

func NewApplication(props Props) (*Application, error) {
	e, err := newEntity(specApplication, props)
	if err != nil {
		return nil, err
	}
	return e.(*Application), nil
}

func NewGroup(props Props) (*Group, error) {
	e, err := newEntity(specGroup, props)
	if err != nil {
		return nil, err
	}
	return e.(*Group), nil
}

func NewOrganization(props Props) (*Organization, error) {
	e, err := newEntity(specOrganization, props)
	if err != nil {
		return nil, err
	}
	return e.(*Organization), nil
}

func NewService(props Props) (*Service, error) {
	e, err := newEntity(specService, props)
	if err != nil {
		return nil, err
	}
	return e.(*Service), nil
}

// ─── Endpoints ───

// Endpoints carries an actor's auxiliary endpoint URLs.
type Endpoints struct{ Object }

var specEndpoints = register(&TypeSpec{
	Name: "Endpoints", URI: nsAS + "Endpoints", Extends: nsAS + "Object",
	DefaultContext: ASContext,
	Properties: []PropertySpec{
		{Singular: "sharedInbox", CompactName: "sharedInbox", URI: nsAS + "sharedInbox",
			Range: []string{rangeAnyURI}, Functional: true},
		{Singular: "proxyUrl", CompactName: "proxyUrl", URI: nsAS + "proxyUrl",
			Range: []string{rangeAnyURI}, Functional: true},
	},
	New: func() Entity { return &Endpoints{} },
})

// NewEndpoints constructs an Endpoints node.
func NewEndpoints(props Props) (*Endpoints, error) {
	e, err := newEntity(specEndpoints, props)
	if err != nil {
		return nil, err
	}
	return e.(*Endpoints), nil
}

// SharedInbox returns the shared inbox URL.
func (e *Endpoints) SharedInbox() *url.URL { return e.urlProp("sharedInbox") }

// ─── Keys and proofs ───

// CryptographicKey is the security/v1 RSA key shape actors publish for
// HTTP Signatures.
type CryptographicKey struct{ Object }

var specCryptographicKey = register(&TypeSpec{
	Name: "CryptographicKey", URI: nsSec + "Key", Extends: nsAS + "Object",
	DefaultContext: []any{ASContext, SecurityV1Context},
	Properties: []PropertySpec{
		{Singular: "owner", CompactName: "owner", URI: nsSec + "owner",
			Range: []string{rangeAnyURI, nsAS + "Object"}, Functional: true},
		{Singular: "publicKeyPem", CompactName: "publicKeyPem", URI: nsSec + "publicKeyPem",
			Range: []string{rangeString}, Functional: true},
	},
	New: func() Entity { return &CryptographicKey{} },
})

// NewCryptographicKey constructs a CryptographicKey.
func NewCryptographicKey(props Props) (*CryptographicKey, error) {
	e, err := newEntity(specCryptographicKey, props)
	if err != nil {
		return nil, err
	}
	return e.(*CryptographicKey), nil
}

// OwnerID returns the key owner's URL.
func (k *CryptographicKey) OwnerID() *url.URL { return k.urlProp("owner") }

// PublicKeyPEM returns the SPKI PEM text.
func (k *CryptographicKey) PublicKeyPEM() string { return k.strProp("publicKeyPem") }

// Multikey is the multibase key shape used for integrity proofs.
type Multikey struct{ Object }

var specMultikey = register(&TypeSpec{
	Name: "Multikey", URI: nsSec + "Multikey", Extends: nsAS + "Object",
	DefaultContext: []any{ASContext, MultikeyContext},
	Properties: []PropertySpec{
		{Singular: "controller", CompactName: "controller", URI: nsSec + "controller",
			Range: []string{rangeAnyURI, nsAS + "Object"}, Functional: true},
		{Singular: "publicKeyMultibase", CompactName: "publicKeyMultibase", URI: nsSec + "publicKeyMultibase",
			Range: []string{rangeMultibase}, Functional: true},
	},
	New: func() Entity { return &Multikey{} },
})

// NewMultikey constructs a Multikey.
func NewMultikey(props Props) (*Multikey, error) {
	e, err := newEntity(specMultikey, props)
	if err != nil {
		return nil, err
	}
	return e.(*Multikey), nil
}

// ControllerID returns the controlling actor's URL.
func (k *Multikey) ControllerID() *url.URL { return k.urlProp("controller") }

// PublicKeyMultibase returns the multibase-encoded public key.
func (k *Multikey) PublicKeyMultibase() string { return k.strProp("publicKeyMultibase") }

// DataIntegrityProof is a FEP-8b32 object integrity proof node.
type DataIntegrityProof struct{ Object }

var specDataIntegrityProof = register(&TypeSpec{
	Name: "DataIntegrityProof", URI: nsSec + "DataIntegrityProof", Extends: nsAS + "Object",
	DefaultContext: []any{ASContext, DataIntegrityContext},
	Properties: []PropertySpec{
		{Singular: "cryptosuite", CompactName: "cryptosuite", URI: nsSec + "cryptosuite",
			Range: []string{rangeString}, Functional: true},
		{Singular: "verificationMethod", CompactName: "verificationMethod", URI: nsSec + "verificationMethod",
			Range: []string{rangeAnyURI, nsSec + "Multikey"}, Functional: true},
		{Singular: "proofPurpose", CompactName: "proofPurpose", URI: nsSec + "proofPurpose",
			Range: []string{rangeAnyURI}, Functional: true},
		{Singular: "proofValue", CompactName: "proofValue", URI: nsSec + "proofValue",
			Range: []string{rangeMultibase}, Functional: true},
		{Singular: "created", CompactName: "created", URI: "http://purl.org/dc/terms/created",
			Range: []string{rangeDateTime}, Functional: true},
	},
	New: func() Entity { return &DataIntegrityProof{} },
})

// NewDataIntegrityProof constructs a DataIntegrityProof.
func NewDataIntegrityProof(props Props) (*DataIntegrityProof, error) {
	e, err := newEntity(specDataIntegrityProof, props)
	if err != nil {
		return nil, err
	}
	return e.(*DataIntegrityProof), nil
}

// Cryptosuite returns the proof's cryptosuite label.
func (p *DataIntegrityProof) Cryptosuite() string { return p.strProp("cryptosuite") }

// VerificationMethodID returns the verification key URL.
func (p *DataIntegrityProof) VerificationMethodID() *url.URL { return p.urlProp("verificationMethod") }

// ProofPurpose returns the proof purpose URI.
func (p *DataIntegrityProof) ProofPurpose() *url.URL { return p.urlProp("proofPurpose") }

// ProofValue returns the multibase-encoded signature.
func (p *DataIntegrityProof) ProofValue() string { return p.strProp("proofValue") }

// Created returns the proof creation time.
func (p *DataIntegrityProof) Created() (time.Time, bool) { return p.timeProp("created") }
