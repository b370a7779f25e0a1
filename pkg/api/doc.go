/*
Package api implements the Lookout management hub HTTP API.

The hub keeps the node registry, accepts self-announcements from webcam
nodes and proxies status and action requests to them. Routing uses
gorilla/mux; every response is JSON.

# Routes

Health:
  - GET /health: liveness
  - GET /ready: registry readable under its lock
  - GET /metrics: Prometheus metrics

Discovery:
  - POST /api/discovery/announce: node self-registration, authenticated
    with the discovery shared secret and rate limited per client IP

Registry:
  - GET /api/nodes, POST /api/nodes
  - GET, PUT, DELETE /api/nodes/{id}
  - POST /api/nodes/{id}/discovery/approve

Management:
  - GET /api/nodes/{id}/status
  - POST /api/nodes/{id}/actions/{action}
  - GET /api/management/overview

# Credentials

Three independent secrets are involved:

  - Discovery secret: presented by nodes on announce. Empty disables the
    announce endpoint (403 DISCOVERY_DISABLED).
  - API token: required on every mutating route. Empty leaves them open,
    which is only meant for LAN testing.
  - Admin token: required for docker container actions, sent either as the
    bearer token or in the X-Admin-Token header. It is checked even when
    the API token is disabled, and an unset admin token rejects those
    actions outright.

Credentials stored for outbound calls to nodes are never returned; records
in responses carry only the auth type.

# Errors

Failures use a single envelope:

	{"error": {"code": "NODE_NOT_FOUND", "message": "node not found", "details": {}}}

Outbound failures are reduced to NODE_UNREACHABLE or NODE_UNAUTHORIZED
with fixed messages so addresses and dial errors stay in the hub log.

# Usage

	store, _ := registry.NewStore("/data/node-registry.json")
	srv, err := api.NewServer(api.Options{
		Store:           store,
		DiscoverySecret: secret,
		APIToken:        apiToken,
		AdminToken:      adminToken,
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, ":8080")
*/
package api
