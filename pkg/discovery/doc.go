/*
Package discovery runs the node side of self registration.

An Announcer POSTs the node's AnnouncementPayload to the hub's
/api/discovery/announce endpoint with a bearer shared secret, once per
interval. A 200 or 201 response is success and resets the failure count.
Anything else, including transport errors and timeouts, is a failure that
is logged and retried after Backoff:

	wait = min(interval * 2^min(failures-1, 5), 300s) + uniform(0, min(2s, wait/4))

Start is idempotent. Stop may be called repeatedly and a stopped announcer
can be started again. Trigger forces an announce without waiting for the
next tick. URLs are passed through RedactURL before they are logged.
*/
package discovery
