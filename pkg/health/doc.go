/*
Package health probes the camera attached to a lookout node.

A node advertises whether it is ready to serve frames through its own
/ready endpoint. When the operator configures a camera check, a Monitor
runs one Checker on an interval and reports each healthy/unhealthy flip
to the node's component health, so the hub's status probe sees a node
whose capture pipeline has died as degraded rather than online.

# Checkers

Three probe kinds are supported, selected by Parse from the
camera_check setting:

	http://127.0.0.1:8081/stream.mjpg   HTTPChecker, GET and inspect headers
	tcp://127.0.0.1:8554               TCPChecker, connect and close
	exec:v4l2-ctl --list-devices       ExecChecker, exit status 0 is healthy

The HTTP checker never reads the body. MJPEG streams do not end, so it
only verifies the status code and that the Content-Type is an image,
video or multipart type.

# Thresholds

Status applies Retries and StartPeriod the same way container health
checks do: a single success marks the camera healthy, and it is marked
unhealthy only after Retries consecutive failures outside the start
period. A new Status starts unhealthy until the first success.

# Usage

	checker, err := health.Parse(cfg.Node.CameraCheck, 3*time.Second)
	if err != nil {
		return err
	}
	mon := health.NewMonitor(checker, health.Config{
		Interval: cfg.Node.CameraCheckInterval,
		Retries:  3,
	}, func(healthy bool, msg string) {
		srv.Health().UpdateComponent(node.ComponentCamera, healthy, msg)
	})
	go mon.Run(ctx)
*/
package health
