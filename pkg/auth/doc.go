// Package auth generates shared secrets and checks bearer credentials in
// constant time. The hub uses three independent tokens: the discovery
// shared secret for announces, an optional API token for registry writes
// and proxying, and an admin token for container actions.
package auth
