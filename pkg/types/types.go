package types

import (
	"maps"
	"slices"
	"time"
)

// Transport is how the hub reaches a node
type Transport string

const (
	TransportHTTP   Transport = "http"
	TransportDocker Transport = "docker"
)

// AuthType selects the credential the hub presents to a node
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	// AuthBasic is accepted on input only and migrated to bearer
	AuthBasic AuthType = "basic"
)

// Auth is the credential used for outbound calls to a node
type Auth struct {
	Type  AuthType `json:"type"`
	Token string   `json:"token,omitempty"`

	// Legacy basic-auth fields, dropped during migration
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// DiscoverySource records how a node entered the registry
type DiscoverySource string

const (
	SourceDiscovered DiscoverySource = "discovered"
	SourceManual     DiscoverySource = "manual"
)

// Discovery is server-owned metadata about how and when a node was seen
type Discovery struct {
	Source         DiscoverySource `json:"source"`
	FirstSeen      string          `json:"first_seen,omitempty"`
	LastAnnounceAt string          `json:"last_announce_at,omitempty"`
	Approved       bool            `json:"approved"`
}

// NodeRecord is one webcam node in the registry
type NodeRecord struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	BaseURL      string            `json:"base_url"`
	Transport    Transport         `json:"transport"`
	Auth         *Auth             `json:"auth"`
	Labels       map[string]string `json:"labels"`
	Capabilities []string          `json:"capabilities"`
	LastSeen     string            `json:"last_seen,omitempty"`
	Discovery    *Discovery        `json:"discovery,omitempty"`
}

// Clone returns a deep copy of the record
func (r NodeRecord) Clone() NodeRecord {
	out := r
	if r.Auth != nil {
		a := *r.Auth
		out.Auth = &a
	}
	if r.Discovery != nil {
		d := *r.Discovery
		out.Discovery = &d
	}
	out.Labels = maps.Clone(r.Labels)
	out.Capabilities = slices.Clone(r.Capabilities)
	return out
}

// Approved reports whether an operator has accepted the node
func (r NodeRecord) Approved() bool {
	return r.Discovery != nil && r.Discovery.Approved
}

// NodePatch is a partial update; nil fields are left untouched
type NodePatch struct {
	ID           *string           `json:"id,omitempty"`
	Name         *string           `json:"name,omitempty"`
	BaseURL      *string           `json:"base_url,omitempty"`
	Transport    *Transport        `json:"transport,omitempty"`
	Auth         *Auth             `json:"auth,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	LastSeen     *string           `json:"last_seen,omitempty"`
	Discovery    *Discovery        `json:"discovery,omitempty"`
}

// IsEmpty reports whether the patch carries no fields
func (p NodePatch) IsEmpty() bool {
	return p.ID == nil && p.Name == nil && p.BaseURL == nil && p.Transport == nil &&
		p.Auth == nil && p.Labels == nil && p.Capabilities == nil && p.LastSeen == nil &&
		p.Discovery == nil
}

// Apply merges the patch onto a copy of rec
func (p NodePatch) Apply(rec NodeRecord) NodeRecord {
	out := rec.Clone()
	if p.ID != nil {
		out.ID = *p.ID
	}
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.BaseURL != nil {
		out.BaseURL = *p.BaseURL
	}
	if p.Transport != nil {
		out.Transport = *p.Transport
	}
	if p.Auth != nil {
		a := *p.Auth
		out.Auth = &a
	}
	if p.Labels != nil {
		out.Labels = maps.Clone(p.Labels)
	}
	if p.Capabilities != nil {
		out.Capabilities = slices.Clone(p.Capabilities)
	}
	if p.LastSeen != nil {
		out.LastSeen = *p.LastSeen
	}
	if p.Discovery != nil {
		d := *p.Discovery
		out.Discovery = &d
	}
	return out
}

// AnnouncementPayload is what a node sends to the discovery endpoint.
// It is merged into a NodeRecord and never persisted as-is.
type AnnouncementPayload struct {
	ID           string            `json:"id,omitempty"`
	Name         string            `json:"name"`
	BaseURL      string            `json:"base_url"`
	Transport    Transport         `json:"transport"`
	Capabilities []string          `json:"capabilities"`
	Labels       map[string]string `json:"labels"`
}

// Timestamp formats t as an ISO-8601 UTC string
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp parses a value produced by Timestamp
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}

// Redacted returns a copy safe to return to API clients: the auth type is
// kept and every credential is removed
func (r NodeRecord) Redacted() NodeRecord {
	out := r.Clone()
	if out.Auth != nil {
		out.Auth = &Auth{Type: out.Auth.Type}
	}
	return out
}
