package cli

import (
	"fmt"
	"os/exec"
	"strings"
)

func printUsage() {
	fmt.Println(`teemoproxy - local chat-presence relay for Riot Games clients

Runs a loopback TLS relay that rewrites outbound chat presence while
leaving the rest of the XMPP session untouched, plus the config-
rewriting endpoint and trust-store helpers it needs.

Usage:
  teemoproxy run                          Load the CA and settings and wait (no listener starts)
  teemoproxy run --game league_of_legends Start the proxy and launch a game immediately
  teemoproxy run --region NA              Pin the effective chat region
  teemoproxy install-ca                   Enroll the local root CA into the OS trust store
  teemoproxy cert-status                  Print certificate and trust-store state
  teemoproxy version                      Print version
  teemoproxy help                         Show this help

Environment Variables:
  TEEMO_CONFIG_FILE          Path to an optional YAML override file (default: teemoproxy.yml)
  TEEMO_RELAY_LISTEN         XMPP TLS relay listen address
  TEEMO_CONFIG_LISTEN        HTTPS config endpoint listen address
  TEEMO_UPSTREAM_CONFIG_HOST Real Riot client-config host
  TEEMO_APPDATA_DIR          Override app-data directory
  TEEMO_LOG_LEVEL            Log level: debug|info|warn|error
  TEEMO_START_MODE           Starting stealth mode: Online|Invisible`)
}

// Version is set at build time via -ldflags.
var Version = "dev"

func init() {
	if Version == "dev" {
		if desc, err := exec.Command("git", "describe", "--tags", "--always").Output(); err == nil {
			if v := strings.TrimSpace(string(desc)); v != "" {
				Version = v + "-dev"
			}
		}
	}
	if Version != "dev" && !strings.HasPrefix(Version, "v") {
		Version = "v" + Version
	}
}

func printVersion() {
	fmt.Println("teemoproxy", Version)
}
