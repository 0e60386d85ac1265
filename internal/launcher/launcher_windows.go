//go:build windows

package launcher

import (
	"os"
	"path/filepath"
)

func findPlatformClient() (string, error) {
	if programData := os.Getenv("ProgramData"); programData != "" {
		installsPath := filepath.Join(programData, "Riot Games", "RiotClientInstalls.json")
		if path, ok := findFromInstallsJSON(installsPath); ok {
			return path, nil
		}
	}

	candidates := []string{
		`C:\Riot Games\Riot Client\RiotClientServices.exe`,
		`D:\Riot Games\Riot Client\RiotClientServices.exe`,
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	return "", nil
}
