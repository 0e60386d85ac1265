//go:build darwin

package truststore

import (
	"os/exec"
	"strings"

	"github.com/mvacoimbra/where-is-teemo/internal/certs"
)

const systemKeychain = "/Library/Keychains/System.keychain"

func isTrustedPlatform(wantFingerprint string) (bool, error) {
	out, err := exec.Command("security", "find-certificate", "-a", "-c", certs.CACommonName, "-Z", systemKeychain).Output()
	if err != nil {
		// find-certificate exits non-zero when nothing matches the
		// common name at all.
		return false, nil
	}
	return strings.Contains(strings.ToUpper(string(out)), strings.ToUpper(wantFingerprint)), nil
}

func enrollPlatform(pemPath string) error {
	cmd := exec.Command("security", "add-trusted-cert", "-d", "-r", "trustRoot", "-k", systemKeychain, pemPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return wrapPermissionDenied(errWithOutput(err, out))
	}
	return nil
}
