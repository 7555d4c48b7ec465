// Package webfinger implements RFC 7033 resource discovery: the client
// side resolves acct: and https resources to JSON Resource Descriptors,
// the server side serves descriptors for local actors.
package webfinger

// Link is one entry of a JRD's links array.
type Link struct {
	Rel      string            `json:"rel"`
	Type     string            `json:"type,omitempty"`
	Href     string            `json:"href,omitempty"`
	Titles   map[string]string `json:"titles,omitempty"`
	Template string            `json:"template,omitempty"`
}

// JRD is a JSON Resource Descriptor.
type JRD struct {
	Subject    string         `json:"subject"`
	Aliases    []string       `json:"aliases,omitempty"`
	Links      []Link         `json:"links,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Well-known link relations used in fediverse JRDs.
const (
	RelSelf        = "self"
	RelProfilePage = "http://webfinger.net/rel/profile-page"
	RelAvatar      = "http://webfinger.net/rel/avatar"

	ContentType = "application/jrd+json"
)
