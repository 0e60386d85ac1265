//go:build darwin

package launcher

import (
	"os"
	"path/filepath"
)

func findPlatformClient() (string, error) {
	home, _ := os.UserHomeDir()

	candidates := []string{
		"/Applications/Riot Client.app/Contents/MacOS/RiotClientServices",
		"/Users/Shared/Riot Games/Riot Client.app/Contents/MacOS/RiotClientServices",
	}
	if home != "" {
		candidates = append(candidates, filepath.Join(home, "Applications/Riot Client.app/Contents/MacOS/RiotClientServices"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	if home != "" {
		installsPath := filepath.Join(home, "Library/Application Support/Riot Games/RiotClientInstalls.json")
		if path, ok := findFromInstallsJSON(installsPath); ok {
			return path, nil
		}
	}

	return "", nil
}
