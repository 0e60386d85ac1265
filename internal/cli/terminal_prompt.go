package cli

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/mvacoimbra/where-is-teemo/internal/control"
)

func isInteractiveInput() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

func confirm(label string) bool {
	fmt.Fprint(os.Stdout, label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// ensureCATrustedInteractively installs the root CA if it is not yet
// trusted, prompting for confirmation first when stdin is a terminal.
// In a non-interactive context it installs without prompting, since
// there is no collaborator UI in this binary to surface the prompt
// through instead.
func ensureCATrustedInteractively(surface *control.Surface, logger *slog.Logger) error {
	cs, err := surface.GetCertStatus()
	if err != nil {
		return err
	}
	if cs.CATrusted {
		return nil
	}

	if isInteractiveInput() {
		if !confirm("The local root CA is not yet trusted by this OS. Install it now? [y/N]: ") {
			return fmt.Errorf("CA install declined")
		}
	}

	logger.Info("installing root CA into the OS trust store")
	return surface.InstallCA()
}
