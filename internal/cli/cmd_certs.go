package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/mvacoimbra/where-is-teemo/internal/config"
	"github.com/mvacoimbra/where-is-teemo/internal/control"
	ilog "github.com/mvacoimbra/where-is-teemo/internal/log"
	"github.com/mvacoimbra/where-is-teemo/internal/orchestrator"
)

func newStandaloneSurface(appDataDir, logLevel string) (*control.Surface, error) {
	logger := ilog.New(logLevel)
	orch, err := orchestrator.New(orchestrator.Options{
		AppDataDir: appDataDir,
		Log:        logger,
	})
	if err != nil {
		return nil, err
	}
	return control.New(orch), nil
}

func runInstallCA(args []string) int {
	fs := flag.NewFlagSet("install-ca", flag.ContinueOnError)
	appDataDir := fs.String("appdata-dir", "", "Override app-data directory")
	logLevel := fs.String("log-level", "info", "Log level: debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.ParseFlags(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}
	if *appDataDir == "" {
		*appDataDir = cfg.AppDataDir
	}

	surface, err := newStandaloneSurface(*appDataDir, *logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "orchestrator error:", err)
		return 1
	}

	cs, err := surface.GetCertStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cert status error:", err)
		return 1
	}
	if cs.CATrusted {
		fmt.Println("root CA is already trusted; nothing to do")
		return 0
	}

	if isInteractiveInput() && !confirm("Install the local root CA into the OS trust store now? [y/N]: ") {
		fmt.Println("declined")
		return 1
	}

	if err := surface.InstallCA(); err != nil {
		fmt.Fprintln(os.Stderr, "install-ca failed:", err)
		return 1
	}
	fmt.Println("root CA installed")
	return 0
}

func runCertStatus(args []string) int {
	fs := flag.NewFlagSet("cert-status", flag.ContinueOnError)
	appDataDir := fs.String("appdata-dir", "", "Override app-data directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.ParseFlags(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}
	if *appDataDir == "" {
		*appDataDir = cfg.AppDataDir
	}

	surface, err := newStandaloneSurface(*appDataDir, "warn")
	if err != nil {
		fmt.Fprintln(os.Stderr, "orchestrator error:", err)
		return 1
	}

	cs, err := surface.GetCertStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cert status error:", err)
		return 1
	}
	fmt.Printf("ca_generated=%v server_generated=%v ca_trusted=%v\n", cs.CAGenerated, cs.ServerGenerated, cs.CATrusted)
	return 0
}
