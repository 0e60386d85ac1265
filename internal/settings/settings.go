// Package settings persists the small amount of user-facing state that
// survives a restart: the region override and the most recently
// observed region.
package settings

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mvacoimbra/where-is-teemo/internal/appdata"
	"github.com/mvacoimbra/where-is-teemo/internal/domain"
)

const fileName = "settings.json"

// Settings mirrors the on-disk settings.json shape exactly:
// {region_override, last_observed_region}.
type Settings struct {
	RegionOverride     *string `json:"region_override"`
	LastObservedRegion *string `json:"last_observed_region"`
}

// Load reads settings.json from dir, returning a zero Settings (both
// fields nil) if the file does not exist yet.
func Load(dir string) (Settings, error) {
	data, ok, err := appdata.ReadFile(filepath.Join(dir, fileName))
	if err != nil {
		return Settings{}, err
	}
	if !ok {
		return Settings{}, nil
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("%w: parse %s: %v", domain.ErrPersistence, fileName, err)
	}
	return s, nil
}

// Save atomically writes s to settings.json under dir.
func Save(dir string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", domain.ErrPersistence, fileName, err)
	}
	return appdata.WriteFile(filepath.Join(dir, fileName), data)
}
