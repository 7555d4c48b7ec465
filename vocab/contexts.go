package vocab

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/piprate/json-gold/ld"
)

// DocumentLoader is the json-gold loader interface; the document loader
// package provides caching, SSRF-guarded implementations.
type DocumentLoader = ld.DocumentLoader

// Well-known context URLs served from the embedded copies below.
const (
	ASContext            = "https://www.w3.org/ns/activitystreams"
	SecurityV1Context    = "https://w3id.org/security/v1"
	DataIntegrityContext = "https://w3id.org/security/data-integrity/v1"
	MultikeyContext      = "https://w3id.org/security/multikey/v1"
	DIDContext           = "https://www.w3.org/ns/did/v1"
)

//go:embed contexts/*.jsonld
var contextFS embed.FS

var preloadedFiles = map[string]string{
	ASContext:            "contexts/activitystreams.jsonld",
	SecurityV1Context:    "contexts/security-v1.jsonld",
	DataIntegrityContext: "contexts/data-integrity-v1.jsonld",
	MultikeyContext:      "contexts/multikey-v1.jsonld",
	DIDContext:           "contexts/did-v1.jsonld",
}

var preloadedDocs = func() map[string]any {
	docs := make(map[string]any, len(preloadedFiles))
	for u, path := range preloadedFiles {
		raw, err := contextFS.ReadFile(path)
		if err != nil {
			panic(fmt.Sprintf("vocab: missing embedded context %s: %v", path, err))
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			panic(fmt.Sprintf("vocab: malformed embedded context %s: %v", path, err))
		}
		docs[u] = doc
	}
	return docs
}()

// OfflineLoader serves the well-known JSON-LD contexts from embedded
// copies, so codec operations never hit the network for them. Unknown URLs
// go to the fallback loader; with no fallback they fail.
type OfflineLoader struct {
	Fallback ld.DocumentLoader
}

// NewOfflineLoader wraps a fallback loader (which may be nil).
func NewOfflineLoader(fallback ld.DocumentLoader) *OfflineLoader {
	return &OfflineLoader{Fallback: fallback}
}

func (l *OfflineLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	if doc, ok := preloadedDocs[u]; ok {
		return &ld.RemoteDocument{DocumentURL: u, Document: doc}, nil
	}
	if l.Fallback != nil {
		return l.Fallback.LoadDocument(u)
	}
	return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed,
		fmt.Sprintf("no offline copy of %s and no fallback loader", u))
}
