// Package launcher finds, stops, and starts the Riot Client executable
// that owns the games this system relays chat for.
package launcher

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	ps "github.com/mitchellh/go-ps"

	"github.com/mvacoimbra/where-is-teemo/internal/domain"
)

// riotProcessNames is the set of executable names that indicate a Riot
// game or launcher process is running, matched as a substring against
// each process's executable name.
var riotProcessNames = []string{
	"RiotClientServices",
	"LeagueClient",
	"VALORANT-Win64-Shipping",
	"Riot Client",
}

// installsJSONKeys lists the RiotClientInstalls.json keys to try, in
// priority order: the live patchline install, then whatever default
// install is registered, then the beta channel.
var installsJSONKeys = []string{"rc_live", "rc_default", "rc_beta"}

// Controller finds, stops, and launches the Riot Client.
type Controller struct{}

// New returns a Controller.
func New() *Controller {
	return &Controller{}
}

// IsRunning reports whether any Riot game or launcher process is
// currently running.
func (c *Controller) IsRunning() (bool, error) {
	procs, err := ps.Processes()
	if err != nil {
		return false, fmt.Errorf("%w: listing processes: %v", domain.ErrPersistence, err)
	}
	for _, p := range procs {
		if matchesRiotProcess(p.Executable()) {
			return true, nil
		}
	}
	return false, nil
}

// KillAll stops every running Riot game and launcher process, and
// waits briefly for them to release their sockets and files before
// returning.
func (c *Controller) KillAll() error {
	procs, err := ps.Processes()
	if err != nil {
		return fmt.Errorf("%w: listing processes: %v", domain.ErrPersistence, err)
	}

	killed := 0
	for _, p := range procs {
		if !matchesRiotProcess(p.Executable()) {
			continue
		}
		proc, err := os.FindProcess(p.Pid())
		if err != nil {
			continue
		}
		if err := proc.Kill(); err != nil {
			continue
		}
		killed++
	}
	if killed > 0 {
		time.Sleep(2 * time.Second)
	}
	return nil
}

func matchesRiotProcess(name string) bool {
	base := filepath.Base(name)
	for _, rn := range riotProcessNames {
		if strings.Contains(base, rn) {
			return true
		}
	}
	return false
}

// FindClientExecutable locates the Riot Client executable using the
// platform's known install locations, falling back to
// RiotClientInstalls.json.
func FindClientExecutable() (string, error) {
	path, err := findPlatformClient()
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", domain.ErrLauncherNotInstalled
	}
	return path, nil
}

// findFromInstallsJSON reads RiotClientInstalls.json and returns the
// first installed executable path in installsJSONKeys priority order.
func findFromInstallsJSON(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var installs map[string]string
	if err := json.Unmarshal(data, &installs); err != nil {
		return "", false
	}
	for _, key := range installsJSONKeys {
		candidate, ok := installs[key]
		if !ok || strings.TrimSpace(candidate) == "" {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}

// Launch starts the Riot Client for game, pointed at the local config
// endpoint, with the exact flags the real launcher's auto-update flow
// uses for a live-patchline launch.
func (c *Controller) Launch(game, configURL string) error {
	if !domain.IsValidGame(game) {
		return fmt.Errorf("%w: unknown game %q", domain.ErrLauncherSpawnFailed, game)
	}

	clientPath, err := FindClientExecutable()
	if err != nil {
		return err
	}

	args := []string{
		"--launch-product=" + game,
		"--launch-patchline=live",
		"--client-config-url=" + configURL,
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		cmd = exec.Command("open", append([]string{"-a", clientPath, "--args"}, args...)...)
	} else {
		cmd = exec.Command(clientPath, args...)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLauncherSpawnFailed, err)
	}
	return nil
}
