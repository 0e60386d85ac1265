package control

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mvacoimbra/where-is-teemo/internal/domain"
	"github.com/mvacoimbra/where-is-teemo/internal/orchestrator"
)

func newTestSurface(t *testing.T) *Surface {
	t.Helper()
	o, err := orchestrator.New(orchestrator.Options{
		AppDataDir: t.TempDir(),
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	return New(o)
}

func TestGetStatusDefaultsToIdleInvisible(t *testing.T) {
	t.Parallel()

	s := newTestSurface(t)
	status := s.GetStatus()
	if status.ProxyStatus != domain.ProxyStatusIdle || status.StealthMode != domain.ModeInvisible {
		t.Fatalf("got %+v, want Idle/Invisible", status)
	}
}

func TestSetStealthModeIsReflectedInStatus(t *testing.T) {
	t.Parallel()

	s := newTestSurface(t)
	status, err := s.SetStealthMode(domain.ModeOnline)
	if err != nil {
		t.Fatalf("SetStealthMode: %v", err)
	}
	if status.StealthMode != domain.ModeOnline {
		t.Fatalf("got %q, want Online", status.StealthMode)
	}
}

func TestGetRegionsReturnsSixteen(t *testing.T) {
	t.Parallel()

	s := newTestSurface(t)
	if got := len(s.GetRegions()); got != 16 {
		t.Fatalf("got %d, want 16", got)
	}
}

func TestSetRegionEmptyCodeClearsOverride(t *testing.T) {
	t.Parallel()

	s := newTestSurface(t)
	if err := s.SetRegion("KR"); err != nil {
		t.Fatalf("SetRegion: %v", err)
	}
	if err := s.SetRegion(""); err != nil {
		t.Fatalf("SetRegion clear: %v", err)
	}
	if eff, ok := s.orch.EffectiveRegion(); ok {
		t.Fatalf("got effective region %+v, want none once the override is cleared", eff)
	}
}

func TestSummaryReportsIdleWithMode(t *testing.T) {
	t.Parallel()

	s := newTestSurface(t)
	summary := s.Summary()
	if summary == "" {
		t.Fatal("expected non-empty summary")
	}
	if !strings.HasPrefix(summary, "Idle") || !strings.Contains(summary, domain.ModeInvisible) {
		t.Fatalf("got %q, want an Idle summary naming mode %s", summary, domain.ModeInvisible)
	}
}

func TestGetCertStatusReportsGenerated(t *testing.T) {
	t.Parallel()

	s := newTestSurface(t)
	cs, err := s.GetCertStatus()
	if err != nil {
		t.Fatalf("GetCertStatus: %v", err)
	}
	if !cs.CAGenerated {
		t.Fatal("expected CAGenerated=true")
	}
}
