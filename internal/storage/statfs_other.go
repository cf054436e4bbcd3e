//go:build !unix

package storage

import "errors"

// AvailableBytes is not supported on this platform.
func AvailableBytes(string) (int64, error) {
	return 0, errors.New("disk statistics unavailable on this platform")
}
