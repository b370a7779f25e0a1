// Package settings persists a webcam node's local tunables (its generated
// identity, display name, labels and announce interval) in bbolt.
//
// The store fails soft. An unreadable database file is renamed aside and
// replaced with an empty one, and an undecodable value reads as defaults.
// This is the opposite of the hub registry, which refuses to run on a
// damaged file because it holds approval decisions.
package settings
