// Package ssrf keeps the hub from being used to reach internal networks
// through attacker supplied node addresses.
//
// A Guard rejects loopback, private, link-local, multicast, reserved and
// unspecified addresses, whether given as a literal or obtained through DNS,
// plus a list of blocked host names. The same Guard also supplies a dialer
// that repeats the address check on the connection being opened.
package ssrf
