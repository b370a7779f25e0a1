package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/lookout/pkg/transport"
	"github.com/cuemby/lookout/pkg/types"
)

// ValidationError describes a rejected field
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateRecord fully validates and normalises a record. A missing
// last_seen is stamped with now.
func ValidateRecord(rec types.NodeRecord, now time.Time) (types.NodeRecord, error) {
	out := rec.Clone()
	var err error

	if out.ID, err = requireString("id", rec.ID); err != nil {
		return types.NodeRecord{}, err
	}
	if out.Name, err = requireString("name", rec.Name); err != nil {
		return types.NodeRecord{}, err
	}
	if out.BaseURL, err = requireString("base_url", rec.BaseURL); err != nil {
		return types.NodeRecord{}, err
	}
	if out.Transport, err = validateTransport(rec.Transport); err != nil {
		return types.NodeRecord{}, err
	}
	if out.Auth, err = validateAuth(rec.Auth); err != nil {
		return types.NodeRecord{}, err
	}
	if rec.Labels == nil {
		return types.NodeRecord{}, invalid("labels", "is required")
	}
	if out.Labels, err = validateLabels(rec.Labels); err != nil {
		return types.NodeRecord{}, err
	}
	if rec.Capabilities == nil {
		return types.NodeRecord{}, invalid("capabilities", "is required")
	}
	if out.Capabilities, err = validateCapabilities(rec.Capabilities); err != nil {
		return types.NodeRecord{}, err
	}

	if strings.TrimSpace(rec.LastSeen) == "" {
		out.LastSeen = types.Timestamp(now)
	} else {
		out.LastSeen = strings.TrimSpace(rec.LastSeen)
	}

	if out.Discovery != nil {
		if err := validateDiscovery(out.Discovery); err != nil {
			return types.NodeRecord{}, err
		}
	}

	if err := validateURL(out.BaseURL, out.Transport); err != nil {
		return types.NodeRecord{}, err
	}

	return out, nil
}

// ValidatePatch validates only the fields present in p and returns them
// normalised. Cross-field checks that need the stored record are left to
// ValidateRecord on the merged result.
func ValidatePatch(p types.NodePatch) (types.NodePatch, error) {
	var out types.NodePatch

	if p.ID != nil {
		v, err := requireString("id", *p.ID)
		if err != nil {
			return types.NodePatch{}, err
		}
		out.ID = &v
	}
	if p.Name != nil {
		v, err := requireString("name", *p.Name)
		if err != nil {
			return types.NodePatch{}, err
		}
		out.Name = &v
	}
	if p.BaseURL != nil {
		v, err := requireString("base_url", *p.BaseURL)
		if err != nil {
			return types.NodePatch{}, err
		}
		out.BaseURL = &v
	}
	if p.Transport != nil {
		v, err := validateTransport(*p.Transport)
		if err != nil {
			return types.NodePatch{}, err
		}
		out.Transport = &v
	}
	if p.Auth != nil {
		a, err := validateAuth(p.Auth)
		if err != nil {
			return types.NodePatch{}, err
		}
		out.Auth = a
	}
	if p.Labels != nil {
		l, err := validateLabels(p.Labels)
		if err != nil {
			return types.NodePatch{}, err
		}
		out.Labels = l
	}
	if p.Capabilities != nil {
		c, err := validateCapabilities(p.Capabilities)
		if err != nil {
			return types.NodePatch{}, err
		}
		out.Capabilities = c
	}
	if p.LastSeen != nil {
		v, err := requireString("last_seen", *p.LastSeen)
		if err != nil {
			return types.NodePatch{}, err
		}
		out.LastSeen = &v
	}
	if p.Discovery != nil {
		d := *p.Discovery
		if err := validateDiscovery(&d); err != nil {
			return types.NodePatch{}, err
		}
		out.Discovery = &d
	}

	if out.BaseURL != nil && out.Transport != nil {
		if err := validateURL(*out.BaseURL, *out.Transport); err != nil {
			return types.NodePatch{}, err
		}
	}

	return out, nil
}

func requireString(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", invalid(field, "must be a non-empty string")
	}
	return v, nil
}

func validateTransport(t types.Transport) (types.Transport, error) {
	v, err := requireString("transport", string(t))
	if err != nil {
		return "", err
	}
	switch types.Transport(v) {
	case types.TransportHTTP, types.TransportDocker:
		return types.Transport(v), nil
	default:
		return "", &ValidationError{
			Field:   "transport",
			Message: fmt.Sprintf("unsupported transport %q", v),
			Err:     transport.ErrUnsupportedTransport,
		}
	}
}

func validateURL(raw string, t types.Transport) error {
	if err := transport.ValidateBaseURLForTransport(raw, t); err != nil {
		return &ValidationError{Field: "base_url", Message: err.Error(), Err: err}
	}
	return nil
}

// validateAuth migrates legacy basic auth to bearer. Basic auth without a
// token is rejected rather than silently downgraded to none.
func validateAuth(a *types.Auth) (*types.Auth, error) {
	if a == nil {
		return nil, invalid("auth", "is required")
	}

	token := strings.TrimSpace(a.Token)
	switch types.AuthType(strings.TrimSpace(string(a.Type))) {
	case types.AuthNone:
		return &types.Auth{Type: types.AuthNone}, nil
	case types.AuthBearer:
		if token == "" {
			return nil, invalid("auth.token", "is required for bearer auth")
		}
		return &types.Auth{Type: types.AuthBearer, Token: token}, nil
	case types.AuthBasic:
		if token == "" {
			return nil, invalid("auth", "legacy basic auth cannot be auto-migrated without an API token")
		}
		return &types.Auth{Type: types.AuthBearer, Token: token}, nil
	default:
		return nil, invalid("auth.type", "must be one of none, bearer, basic")
	}
}

func validateLabels(labels map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, invalid("labels", "keys must be non-empty")
		}
		out[key] = v
	}
	return out, nil
}

func validateCapabilities(caps []string) ([]string, error) {
	out := make([]string, 0, len(caps))
	for i, c := range caps {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, invalid("capabilities", "entry %d must be a non-empty string", i)
		}
		out = append(out, c)
	}
	return out, nil
}

func validateDiscovery(d *types.Discovery) error {
	switch d.Source {
	case types.SourceDiscovered, types.SourceManual:
		return nil
	default:
		return invalid("discovery.source", "must be discovered or manual")
	}
}

// IsValidation reports whether err is a *ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
