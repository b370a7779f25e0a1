/*
Package proxy is the hub's outbound side: it asks registered nodes how they
are doing and forwards operator actions to them.

Every request passes the SSRF guard first, against the base_url host for
http nodes and the docker API proxy host for docker nodes, and the dialer
checks the address again when the connection is opened. Redirects are
never followed.

For http nodes, Status fetches /health, /ready and /metrics concurrently
under one timeout. A 401 or 403 on any of them is ErrNodeUnauthorized;
otherwise any connection failure is ErrNodeUnreachable. The synthesized
status is online when health and ready both return 200, degraded when
only health does, and error otherwise. stream_available requires ready to
return 200 with {"status":"ready"}.

For docker nodes, Status inspects the container through the docker API
proxy and ContainerAction runs start, stop or restart on it.

Overview fans Status out over a list of nodes with bounded concurrency and
reports per-node failures without failing the whole call.
*/
package proxy
