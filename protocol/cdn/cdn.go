// Package cdn derives content-delivery endpoints from a BPSV cdns row and
// builds the two-level hex-sharded URLs CDN hosts expect (spec.md §4.5,
// §6).
package cdn

import (
	"fmt"
	"strings"
)

// ContentType selects the URL path segment for a content family.
type ContentType int

const (
	Config ContentType = iota
	Data
	Patch
)

func (t ContentType) String() string {
	switch t {
	case Config:
		return "config"
	case Data:
		return "data"
	case Patch:
		return "patch"
	default:
		return "unknown"
	}
}

// Endpoint is the host/path/scheme triple used to build content URLs. The
// ProductPath field is retained for completeness (BPSV carries it) but is
// never consulted by BuildURL: spec.md §4.5 is explicit that substituting
// it into content URLs desynchronises with the official client.
type Endpoint struct {
	Host        string
	Path        string
	ProductPath string
	Scheme      string
}

// FromRow builds an Endpoint from a parsed cdns BPSV row, taking the first
// whitespace-separated host from the Hosts column.
func FromRow(hosts, path, productPath, scheme string) (Endpoint, error) {
	first, _, _ := strings.Cut(strings.TrimSpace(hosts), " ")
	if first == "" {
		return Endpoint{}, &NoHostsError{}
	}
	if scheme == "" {
		scheme = "https"
	}
	return Endpoint{Host: first, Path: strings.Trim(path, "/"), ProductPath: productPath, Scheme: scheme}, nil
}

// BuildURL builds the content URL for a hex-encoded key under the given
// content type: "{scheme}://{host}/{path}/{type}/{hex[0:2]}/{hex[2:4]}/{hex}".
func (e Endpoint) BuildURL(t ContentType, hexKey string) (string, error) {
	if len(hexKey) < 4 {
		return "", &ShortKeyError{HexKey: hexKey}
	}
	return fmt.Sprintf("%s://%s/%s/%s/%s/%s/%s",
		e.Scheme, e.Host, e.Path, t, hexKey[0:2], hexKey[2:4], hexKey), nil
}

// BuildIndexURL builds the sibling ".index" URL for an archive index,
// always under the "data" content family.
func (e Endpoint) BuildIndexURL(hexKey string) (string, error) {
	u, err := e.BuildURL(Data, hexKey)
	if err != nil {
		return "", err
	}
	return u + ".index", nil
}

// ValidateEndpoint enforces spec.md §4.5's endpoint-path grammar: non-empty,
// at most 1000 characters, and restricted to [A-Za-z0-9/_.-].
func ValidateEndpoint(endpoint string) error {
	if len(endpoint) == 0 {
		return &InvalidEndpointError{Endpoint: endpoint, Reason: "empty"}
	}
	if len(endpoint) > 1000 {
		return &InvalidEndpointError{Endpoint: endpoint, Reason: "exceeds 1000 characters"}
	}
	for _, r := range endpoint {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '/' || r == '_' || r == '.' || r == '-':
		default:
			return &InvalidEndpointError{Endpoint: endpoint, Reason: fmt.Sprintf("disallowed character %q", r)}
		}
	}
	return nil
}
