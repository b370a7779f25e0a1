/*
Package metrics defines the Prometheus collectors shared by the hub and the
node agent, plus a small component health tracker.

Collectors are registered with the default registry at init and exposed
through Handler. Names are prefixed with lookout_:

	lookout_registry_nodes{source,approved}
	lookout_registry_operations_total{operation,result}
	lookout_announces_total{result}
	lookout_announcer_attempts_total{outcome}
	lookout_announcer_consecutive_failures
	lookout_proxy_requests_total{kind,outcome}
	lookout_proxy_request_duration_seconds{kind}
	lookout_api_requests_total{method,status}
	lookout_api_request_duration_seconds{method}
	lookout_node_actions_total{action,result}

The Collector refreshes the registry gauges on an interval. A failed
registry read keeps the last values rather than zeroing them.

HealthChecker backs the /health and /ready endpoints. Health is unhealthy
when any registered component is unhealthy; readiness additionally
requires every critical component named at construction to have
registered as healthy:

	hc := metrics.NewHealthChecker("camera")
	hc.RegisterComponent("camera", true, "")
	mux.Handle("GET /ready", hc.ReadyHandler())
*/
package metrics
