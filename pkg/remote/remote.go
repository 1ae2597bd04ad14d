// Package remote defines the boundary contract between the sync engine and
// the WebDAV-style protocol client: property retrieval and body download.
// Only the contract lives here; the protocol client itself (URL dialect,
// XML property parsing, authentication handshakes) is a host concern and is
// never implemented by this module.
package remote

import (
	"context"

	"github.com/meridianlabs/davsync/pkg/types"
)

// PropertyResult is the parsed outcome of a successful property fetch: the
// properties of the resource at the requested URL, plus one level of
// children keyed by their name relative to that URL.
type PropertyResult struct {
	Self     types.Properties
	Children map[string]types.Properties
	// NotFound is true when the remote reported the resource no longer
	// exists (404 or the protocol's equivalent). Self and Children are
	// meaningless when NotFound is true.
	NotFound bool
}

// DownloadResult is the outcome of a successful body download.
type DownloadResult struct {
	TemporaryPath string
	Etag          string
	StatusCode    int
}

// ProgressFunc receives byte-count updates during a download.
type ProgressFunc func(completed, total int64)

type passwordKey struct{}

// WithPassword attaches a resolved credential to ctx so a Client
// implementation can retry a challenged request with it. Populated by
// transfer.Manager after its PasswordDelegate resolves an
// KindAuthenticationRequired error; never set by callers otherwise.
func WithPassword(ctx context.Context, password string) context.Context {
	return context.WithValue(ctx, passwordKey{}, password)
}

// PasswordFromContext retrieves a credential attached by WithPassword.
func PasswordFromContext(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(passwordKey{}).(string)
	return p, ok
}

// Client is the contract a protocol client must satisfy. Implementations
// translate a resource's URL into whatever wire dialect the remote speaks;
// every failure mode not covered by the typed *types.Error returns from
// RetrieveProperties/Download must still surface as one.
type Client interface {
	// RetrieveProperties fetches the properties of the collection or
	// resource at url plus one level of children. Implementations surface
	// network failures as KindNetwork, authentication challenges as
	// KindAuthenticationRequired, and malformed responses (e.g. a resource
	// missing a version/etag) as KindProtocol.
	RetrieveProperties(ctx context.Context, url string) (PropertyResult, error)

	// Download fetches the body at url into a temporary local file,
	// invoking onProgress as bytes arrive. The caller owns the returned
	// temporary path and is responsible for either adopting it (via
	// Store.MoveFile) or removing it.
	Download(ctx context.Context, url string, onProgress ProgressFunc) (DownloadResult, error)
}

// URL composes a resource's remote URL from an account's base URL and its
// path, percent-encoding each component and appending a trailing slash
// when trailingSlash is true (the caller supplies true for collections and
// for paths of unknown kind, matching the reconcile algorithm's rule).
func URL(baseURL string, path types.Path, trailingSlash bool) string {
	u := trimTrailingSlash(baseURL)
	for _, c := range path {
		u += "/" + encodePathComponent(c)
	}
	if trailingSlash {
		u += "/"
	}
	return u
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func encodePathComponent(c string) string {
	const hex = "0123456789ABCDEF"
	var out []byte
	for i := 0; i < len(c); i++ {
		b := c[i]
		if isUnreserved(b) {
			out = append(out, b)
			continue
		}
		out = append(out, '%', hex[b>>4], hex[b&0x0f])
	}
	return string(out)
}

func isUnreserved(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '_' || b == '.' || b == '~':
		return true
	default:
		return false
	}
}
