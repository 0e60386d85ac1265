//go:build !darwin && !windows

package truststore

import "errors"

// Only macOS and Windows trust stores are supported; callers on other
// platforms get a clear unsupported error rather than a silent no-op.
var errUnsupportedPlatform = errors.New("trust-store enrollment is not supported on this platform")

func isTrustedPlatform(string) (bool, error) {
	return false, nil
}

func enrollPlatform(string) error {
	return errUnsupportedPlatform
}
