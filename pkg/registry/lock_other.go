//go:build !unix

package registry

import "os"

const lockSupported = false

func lockFile(*os.File) error {
	return ErrLockUnsupported
}

func unlockFile(*os.File) error {
	return nil
}
