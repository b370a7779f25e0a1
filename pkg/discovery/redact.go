package discovery

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// AnnouncePath is the hub endpoint nodes announce to
const AnnouncePath = "/api/discovery/announce"

// SanitizeURL returns the announce endpoint on the hub named by raw. The
// path is replaced and credentials, query and fragment are dropped.
func SanitizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid management url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("management url must use http or https")
	}
	if u.Host == "" {
		return "", fmt.Errorf("management url must include a host")
	}

	u.User = nil
	u.Path = AnnouncePath
	u.RawPath = ""
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

// RedactURL strips credentials, query and fragment so a url is safe to log
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
