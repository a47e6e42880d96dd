// Package site derives site identities from page addresses.
package site

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// Identity selects which knowledge map applies to a page. It never takes
// part in element fingerprints.
type Identity struct {
	// Canonical is scheme://host/path with query and fragment dropped.
	Canonical string
	// Token disambiguates several knowledge maps for one address, e.g. per
	// viewport or login state. Empty means the default map.
	Token string

	host string
}

// Parse builds an Identity from a page address. Bare hosts such as
// "example.com" are treated as https.
func Parse(raw, token string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, fmt.Errorf("site: empty address")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Identity{}, fmt.Errorf("site: parse %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return Identity{}, fmt.Errorf("site: no host in %q", raw)
	}

	host := strings.ToLower(u.Hostname())
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	hostport := host
	if p := u.Port(); p != "" {
		hostport = host + ":" + p
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	return Identity{
		Canonical: strings.ToLower(u.Scheme) + "://" + hostport + path,
		Token:     strings.TrimSpace(token),
		host:      host,
	}, nil
}

// NavigationURL returns raw as an absolute URL a browser can open. Bare
// hosts get https like in Parse; query and fragment are kept.
func NavigationURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("site: empty address")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("site: parse %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("site: no host in %q", raw)
	}
	return u.String(), nil
}

// MustParse is Parse that panics on error. Intended for tests and constants.
func MustParse(raw string) Identity {
	id, err := Parse(raw, "")
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the full identity key.
func (id Identity) String() string {
	if id.Token == "" {
		return id.Canonical
	}
	return id.Canonical + "#" + id.Token
}

// Host returns the ASCII host name without port.
func (id Identity) Host() string {
	return id.host
}

// Hash returns the first 12 hex characters of SHA-256 over the identity key.
func (id Identity) Hash() string {
	h := sha256.Sum256([]byte(id.String()))
	return hex.EncodeToString(h[:6])
}

// FileName returns a filesystem-safe name that keeps the host readable and
// the identity hash for uniqueness, e.g. "example.com_1a2b3c4d5e6f".
func (id Identity) FileName() string {
	host := strings.TrimPrefix(id.host, "www.")
	var b strings.Builder
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		b.WriteString("site")
	}
	return b.String() + "_" + id.Hash()
}
