// Package cookies extracts the credential bundle the remote API needs to
// poll the source feed on the grantor's behalf. The bundle is forwarded
// opaquely; nothing here interprets the secrets.
package cookies

import (
	"errors"
	"net/http"
	"net/url"
)

// The fixed cookie namespace of the host site.
const SiteURL = "https://x.com/"

// Bundle member names. Exactly these four are extracted.
const (
	NameGuestID   = "guest_id"
	NameAuthToken = "auth_token"
	NameTwID      = "twid"
	NameCT0       = "ct0"
)

var bundleNames = []string{NameGuestID, NameAuthToken, NameTwID, NameCT0}

var (
	// ErrNoCookies means the jar holds nothing for the host site.
	ErrNoCookies = errors.New("ensure you are logged in to X.com")
	// ErrNotLoggedIn means the authentication-critical cookies are absent.
	// A bundle missing them is rejected before any network attempt.
	ErrNotLoggedIn = errors.New("user is not logged in to X.com - missing authentication cookies")
)

// Bundle is the named secret set relayed to the server.
type Bundle map[string]string

// Valid reports whether both authentication-critical members are present.
func (b Bundle) Valid() bool {
	return b[NameAuthToken] != "" && b[NameCT0] != ""
}

// Extract reads the host site's cookies from jar and filters them down to
// the bundle. It fails before any network call when the jar is empty or the
// auth-critical cookies are missing; a partial bundle is never returned.
func Extract(jar http.CookieJar) (Bundle, error) {
	site, err := url.Parse(SiteURL)
	if err != nil {
		return nil, err
	}

	all := jar.Cookies(site)
	if len(all) == 0 {
		return nil, ErrNoCookies
	}
	return FromCookies(all)
}

// FromCookies filters a raw cookie list down to a validated bundle.
func FromCookies(all []*http.Cookie) (Bundle, error) {
	if len(all) == 0 {
		return nil, ErrNoCookies
	}

	bundle := make(Bundle, len(bundleNames))
	for _, c := range all {
		for _, name := range bundleNames {
			if c.Name == name {
				bundle[name] = c.Value
			}
		}
	}

	if !bundle.Valid() {
		return nil, ErrNotLoggedIn
	}
	return bundle, nil
}
