/*
Package registry persists webcam node records in a single JSON file.

The file holds one document, {"nodes": [...]}, and is shared by every hub
process pointed at it. Each operation takes an exclusive advisory lock on
a sibling "<file>.lock", reads the newest contents, applies its change and
replaces the file atomically (temp file, fsync, rename) before releasing
the lock. Readers therefore never observe a half-written document and
concurrent writers never lose each other's updates.

Records are validated on every write. Legacy basic auth carrying a token
is migrated to bearer; basic auth without a token is rejected.

A file that fails to parse is reported as ErrCorrupted (wrapped in
ErrUnavailable) and is never overwritten, so an operator can inspect it.
*/
package registry
