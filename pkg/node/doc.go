// Package node serves the HTTP surface of a webcam node: liveness,
// readiness gated on the camera component, Prometheus metrics and
// registered actions. The hub probes these endpoints through its proxy.
package node
