//go:build windows

package truststore

import (
	"os/exec"
	"strings"

	"github.com/mvacoimbra/where-is-teemo/internal/certs"
)

func isTrustedPlatform(wantFingerprint string) (bool, error) {
	out, err := exec.Command("certutil", "-user", "-verifystore", "Root", certs.CACommonName).Output()
	if err != nil {
		return false, nil
	}
	return strings.Contains(strings.ToUpper(string(out)), strings.ToUpper(wantFingerprint)), nil
}

func enrollPlatform(pemPath string) error {
	cmd := exec.Command("certutil", "-addstore", "-user", "Root", pemPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return wrapPermissionDenied(errWithOutput(err, out))
	}
	return nil
}
