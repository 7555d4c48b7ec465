package docloader

import (
	"crypto"
	"net/http"
	"net/url"

	"github.com/piprate/json-gold/ld"

	"github.com/fedkit/fedkit/httpsig"
)

// AuthorizedLoader wraps a Loader and signs every fetch with HTTP
// Signatures, for remotes that require authorized fetch.
type AuthorizedLoader struct {
	base  *Loader
	keyID *url.URL
	key   crypto.PrivateKey
}

// NewAuthorized builds an authorized loader around base.
func NewAuthorized(base *Loader, keyID *url.URL, key crypto.PrivateKey) *AuthorizedLoader {
	return &AuthorizedLoader{base: base, keyID: keyID, key: key}
}

// LoadDocument implements ld.DocumentLoader. Signed fetches bypass the
// shared cache: the response may depend on who is asking.
func (a *AuthorizedLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	return a.base.fetch(u, func(req *http.Request) error {
		return httpsig.SignRequest(req, a.key, a.keyID, nil)
	})
}
