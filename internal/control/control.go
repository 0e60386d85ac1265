// Package control exposes the small set of commands a desktop-shell or
// tray-UI collaborator calls into. It is a thin, idempotent wrapper
// over the orchestrator: every command here reads or mutates
// orchestrator state and returns one of its JSON-shaped payloads.
package control

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mvacoimbra/where-is-teemo/internal/domain"
	"github.com/mvacoimbra/where-is-teemo/internal/orchestrator"
)

// Surface is the control-surface command set, backed by one
// Orchestrator.
type Surface struct {
	orch *orchestrator.Orchestrator
}

// New returns a Surface backed by orch.
func New(orch *orchestrator.Orchestrator) *Surface {
	return &Surface{orch: orch}
}

// GetStatus reports the current stealth mode, proxy status and
// connected game.
func (s *Surface) GetStatus() domain.StatusInfo {
	return s.orch.Status()
}

// SetStealthMode changes the stealth mode and returns the resulting
// status.
func (s *Surface) SetStealthMode(mode string) (domain.StatusInfo, error) {
	if err := s.orch.SetMode(mode); err != nil {
		return domain.StatusInfo{}, err
	}
	return s.orch.Status(), nil
}

// LaunchGame starts the relay and config endpoint if they are not
// already running and launches game. If a different game is already
// running, its launcher is killed and the new game is launched through
// the relay and config endpoint that are already up.
func (s *Surface) LaunchGame(ctx context.Context, game string) (domain.StatusInfo, error) {
	if err := s.orch.Launch(ctx, game); err != nil {
		return s.orch.Status(), err
	}
	return s.orch.Status(), nil
}

// StopProxy tears down the relay and config endpoint.
func (s *Surface) StopProxy() (domain.StatusInfo, error) {
	if err := s.orch.Stop(); err != nil {
		return s.orch.Status(), err
	}
	return s.orch.Status(), nil
}

// GetCertStatus reports certificate generation and trust-store state.
func (s *Surface) GetCertStatus() (domain.CertStatus, error) {
	return s.orch.CertStatus()
}

// InstallCA enrolls the root CA into the OS trust store.
func (s *Surface) InstallCA() error {
	return s.orch.InstallCA()
}

// GetRegions enumerates every selectable region.
func (s *Surface) GetRegions() []domain.RegionInfo {
	return s.orch.Regions()
}

// SetRegion pins the effective region to code. An empty code clears
// any existing override and re-enables observation.
func (s *Surface) SetRegion(code string) error {
	if code == "" {
		return s.orch.ClearRegionOverride()
	}
	return s.orch.SetRegion(code)
}

// Summary is a human-readable one-line rendering of the current state,
// for UI collaborators that want a ready-made status string rather
// than formatting StatusInfo themselves.
func (s *Surface) Summary() string {
	status := s.orch.Status()
	region := "no region yet"
	if eff, ok := s.orch.EffectiveRegion(); ok {
		region = eff.Name
	}

	switch status.ProxyStatus {
	case domain.ProxyStatusIdle:
		return fmt.Sprintf("Idle (mode: %s, region: %s)", status.StealthMode, region)
	case domain.ProxyStatusError:
		return fmt.Sprintf("Error: %s", status.ErrorMessage)
	case domain.ProxyStatusRunning:
		uptime := humanize.RelTime(s.orch.StartedAt(), time.Now(), "ago", "")
		return fmt.Sprintf("Running %s, %s since launch (region: %s)", status.ConnectedGame, uptime, region)
	default:
		return status.ProxyStatus
	}
}
