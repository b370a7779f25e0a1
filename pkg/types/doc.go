/*
Package types defines the data model shared by the hub, the registry and the
node agent.

# Core Types

  - NodeRecord: one webcam node as stored in the registry file. The id is the
    unique key; base_url must match transport; auth is always bearer or none
    once validated.
  - Auth: outbound credential. Legacy basic auth is accepted on input and
    rewritten to bearer when a token is present.
  - Discovery: server-owned metadata (source, first_seen, last_announce_at,
    approved). Discovered nodes start unapproved; manual nodes start approved.
  - NodePatch: partial update with pointer fields; nil means "leave as is".
  - AnnouncementPayload: the body a node POSTs to the discovery endpoint.

Timestamps are ISO-8601 UTC strings (see Timestamp) so the JSON registry file
stays human-editable.
*/
package types
