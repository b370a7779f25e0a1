package transport

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/cuemby/lookout/pkg/types"
)

var (
	// ErrInvalidURL is returned for a base_url that cannot be used with its transport
	ErrInvalidURL = errors.New("invalid base_url")

	// ErrForbiddenCharacters is returned for any traversal marker in a docker url path
	ErrForbiddenCharacters = errors.New("docker url path contains forbidden characters")

	// ErrUnsupportedTransport is returned for a transport other than http or docker
	ErrUnsupportedTransport = errors.New("unsupported transport")
)

var containerIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Markers checked against the raw (undecoded) path. Any percent sign is
// rejected so encoded variants of the other markers never reach decoding.
var rawForbidden = []string{"..", "\\", "%", "?", "#"}

// Markers checked again after decoding.
var decodedForbidden = []string{"..", "\\", "?", "#"}

// DockerTarget is a parsed docker:// base_url
type DockerTarget struct {
	Host        string
	Port        int
	ContainerID string
}

// Addr returns host:port of the docker API proxy
func (t DockerTarget) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ValidateBaseURLForTransport checks that raw is usable with the declared transport
func ValidateBaseURLForTransport(raw string, transport types.Transport) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidURL)
	}

	switch transport {
	case types.TransportHTTP:
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%w: scheme %q does not match transport http", ErrInvalidURL, u.Scheme)
		}
		if u.Hostname() == "" {
			return fmt.Errorf("%w: missing host", ErrInvalidURL)
		}
		if p := u.Port(); p != "" {
			if _, err := parsePort(p); err != nil {
				return err
			}
		}
		return nil
	case types.TransportDocker:
		_, err := ParseDockerURL(raw)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedTransport, transport)
	}
}

// ParseDockerURL parses docker://host:port/<container>. The path must be a
// single container segment; traversal markers anywhere in the raw or decoded
// path fail with ErrForbiddenCharacters before the segment shape is checked.
func ParseDockerURL(raw string) (DockerTarget, error) {
	raw = strings.TrimSpace(raw)

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || !strings.EqualFold(scheme, "docker") {
		return DockerTarget{}, fmt.Errorf("%w: scheme must be docker", ErrInvalidURL)
	}

	authority, rawPath := splitAuthority(rest)
	if strings.Contains(authority, "\\") {
		return DockerTarget{}, ErrForbiddenCharacters
	}

	for _, marker := range rawForbidden {
		if strings.Contains(rawPath, marker) {
			return DockerTarget{}, ErrForbiddenCharacters
		}
	}

	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		return DockerTarget{}, ErrForbiddenCharacters
	}
	segments := nonEmptySegments(decoded)
	for _, seg := range segments {
		for _, marker := range decodedForbidden {
			if strings.Contains(seg, marker) {
				return DockerTarget{}, ErrForbiddenCharacters
			}
		}
	}

	u, err := url.Parse("docker://" + authority)
	if err != nil {
		return DockerTarget{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.User != nil {
		return DockerTarget{}, fmt.Errorf("%w: credentials are not allowed in docker urls", ErrInvalidURL)
	}
	host := u.Hostname()
	if host == "" {
		return DockerTarget{}, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if u.Port() == "" {
		return DockerTarget{}, fmt.Errorf("%w: missing port", ErrInvalidURL)
	}
	port, err := parsePort(u.Port())
	if err != nil {
		return DockerTarget{}, err
	}

	if len(segments) != 1 {
		return DockerTarget{}, fmt.Errorf("%w: path must be exactly one container segment", ErrInvalidURL)
	}
	if !containerIDPattern.MatchString(segments[0]) {
		return DockerTarget{}, fmt.Errorf("%w: invalid container id %q", ErrInvalidURL, segments[0])
	}

	return DockerTarget{Host: host, Port: port, ContainerID: segments[0]}, nil
}

// splitAuthority separates host:port from whatever follows it
func splitAuthority(rest string) (string, string) {
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		return rest[:i], rest[i:]
	}
	return rest, ""
}

func nonEmptySegments(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func parsePort(p string) (int, error) {
	port, err := strconv.Atoi(p)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: invalid port %q", ErrInvalidURL, p)
	}
	return port, nil
}
