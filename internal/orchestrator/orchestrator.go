// Package orchestrator owns the single source of truth for stealth
// mode, effective region, proxy status and the currently connected
// game, and serializes every lifecycle command (launch, stop, mode and
// region changes) through one coarse lock so state transitions never
// interleave. It is the component the control surface calls into.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/mvacoimbra/where-is-teemo/internal/appdata"
	"github.com/mvacoimbra/where-is-teemo/internal/certs"
	"github.com/mvacoimbra/where-is-teemo/internal/configproxy"
	"github.com/mvacoimbra/where-is-teemo/internal/domain"
	"github.com/mvacoimbra/where-is-teemo/internal/launcher"
	"github.com/mvacoimbra/where-is-teemo/internal/modebus"
	"github.com/mvacoimbra/where-is-teemo/internal/region"
	"github.com/mvacoimbra/where-is-teemo/internal/relay"
	"github.com/mvacoimbra/where-is-teemo/internal/settings"
	"github.com/mvacoimbra/where-is-teemo/internal/truststore"
)

// shutdownGrace bounds how long Stop waits for the relay to close its
// listener and live sessions, and for the config endpoint to shut down.
const shutdownGrace = 3 * time.Second

// Orchestrator couples certificate, trust-store, region, relay,
// config-proxy and launcher lifecycles behind one lock.
type Orchestrator struct {
	dir          string
	relayAddr    string
	configListen string
	upstream     string
	log          *slog.Logger
	authority    *certs.Authority
	trustStore   *truststore.Adapter
	region       *region.Registry
	mode         *modebus.Bus
	launcherC    *launcher.Controller

	mu            sync.Mutex
	proxyStatus   string
	errorMessage  string
	connectedGame string
	cfgProxy      *configproxy.Proxy
	cfgProxyURL   string
	rel           *relay.Relay
	startedAt     time.Time
}

// Options configures a new Orchestrator.
type Options struct {
	AppDataDir         string
	RelayListenAddr    string
	ConfigListenAddr   string
	UpstreamConfigHost string
	StartMode          string
	Log                *slog.Logger
}

// New ensures the CA exists, loads persisted settings, and returns an
// Orchestrator ready to accept control-surface commands. It does not
// start any network listener.
func New(opts Options) (*Orchestrator, error) {
	dir := opts.AppDataDir
	if dir == "" {
		d, err := appdata.Dir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	authority, err := certs.Ensure(dir)
	if err != nil {
		return nil, err
	}

	reg := region.New()
	saved, err := settings.Load(dir)
	if err != nil {
		return nil, err
	}
	if saved.LastObservedRegion != nil {
		reg.Observe(regionHost(*saved.LastObservedRegion))
	}
	if saved.RegionOverride != nil {
		_ = reg.SetOverride(*saved.RegionOverride)
	}

	startMode := opts.StartMode
	if startMode == "" {
		startMode = domain.ModeInvisible
	}

	return &Orchestrator{
		dir:          dir,
		relayAddr:    opts.RelayListenAddr,
		configListen: opts.ConfigListenAddr,
		upstream:     opts.UpstreamConfigHost,
		log:          opts.Log,
		authority:    authority,
		trustStore:   truststore.New(),
		region:       reg,
		mode:         modebus.New(startMode),
		launcherC:    launcher.New(),
		proxyStatus:  domain.ProxyStatusIdle,
	}, nil
}

// regionHost turns a persisted region code back into the FQDN
// region.Registry.Observe expects, since settings.json stores the
// code, not the host.
func regionHost(code string) string {
	for _, r := range region.All() {
		if r.Code == code {
			return r.ChatHostFQDN
		}
	}
	return ""
}

// Launch ensures trust, kills any running launcher, starts the config
// endpoint and relay if not already running, spawns the launcher, then
// marks the proxy Running.
func (o *Orchestrator) Launch(ctx context.Context, game string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !domain.IsValidGame(game) {
		return o.setError(fmt.Errorf("unknown game %q", game))
	}

	trusted, err := o.trustStore.IsTrusted(o.authority.Certificate())
	if err != nil {
		return o.setError(err)
	}
	if !trusted {
		return o.setError(domain.ErrTrustRequired)
	}

	if o.connectedGame == game && o.proxyStatus == domain.ProxyStatusRunning {
		return nil
	}

	if err := o.launcherC.KillAll(); err != nil {
		o.log.Warn("orchestrator failed to kill running launcher", "err", err)
	}

	cfgURL, err := o.ensureConfigProxyLocked()
	if err != nil {
		return o.setError(err)
	}

	if err := o.ensureRelayLocked(); err != nil {
		return o.setError(err)
	}

	if err := o.launcherC.Launch(game, cfgURL); err != nil {
		return o.setError(err)
	}

	o.connectedGame = game
	o.proxyStatus = domain.ProxyStatusRunning
	o.errorMessage = ""
	o.startedAt = time.Now()
	o.log.Info("orchestrator launched game", "game", game, "config_url", cfgURL)
	return nil
}

func (o *Orchestrator) ensureConfigProxyLocked() (string, error) {
	if o.cfgProxy != nil {
		return o.cfgProxyURLLocked()
	}
	p := configproxy.New(o.configListen, o.authority, o.upstream, region.ChatPort, o.region, o.log)
	p.OnError = func(err error) {
		o.mu.Lock()
		o.proxyStatus = domain.ProxyStatusError
		o.errorMessage = err.Error()
		o.mu.Unlock()
	}
	url, err := p.Start()
	if err != nil {
		return "", err
	}
	o.cfgProxy = p
	o.cfgProxyURL = url
	return url, nil
}

func (o *Orchestrator) cfgProxyURLLocked() (string, error) {
	return o.cfgProxyURL, nil
}

func (o *Orchestrator) ensureRelayLocked() error {
	if o.rel != nil {
		return nil
	}
	r := relay.New(o.relayAddr, o.authority, o.region, o.mode, o.log)
	r.OnError = func(err error) {
		o.mu.Lock()
		o.proxyStatus = domain.ProxyStatusError
		o.errorMessage = err.Error()
		o.mu.Unlock()
	}
	if err := r.Start(); err != nil {
		return err
	}
	o.rel = r
	return nil
}

// Stop tears down the relay and config endpoint: listeners and live
// relay sessions are closed, Stop waits up to a short grace period for
// each to finish, then ConnectedGame clears and status goes Idle.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.rel != nil {
		done := make(chan struct{})
		go func() {
			o.rel.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownGrace):
			o.log.Warn("orchestrator relay stop exceeded grace period")
		}
		o.rel = nil
	}

	if o.cfgProxy != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		if err := o.cfgProxy.Stop(ctx); err != nil {
			o.log.Warn("orchestrator config proxy stop error", "err", err)
		}
		cancel()
		o.cfgProxy = nil
		o.cfgProxyURL = ""
	}

	o.connectedGame = ""
	o.proxyStatus = domain.ProxyStatusIdle
	o.errorMessage = ""

	if err := o.saveSettings(); err != nil {
		o.log.Warn("orchestrator failed to persist settings on stop", "err", err)
	}
	return nil
}

func (o *Orchestrator) setError(err error) error {
	o.proxyStatus = domain.ProxyStatusError
	o.errorMessage = err.Error()
	return err
}

// SetMode updates the stealth mode broadcast to every live relay
// session.
func (o *Orchestrator) SetMode(mode string) error {
	if mode != domain.ModeOnline && mode != domain.ModeInvisible {
		return fmt.Errorf("unknown mode %q", mode)
	}
	o.mode.Set(mode)
	return nil
}

// InstallCA enrolls the root CA into the OS trust store and persists
// nothing new (the CA itself is already on disk); it only changes
// trust-store state.
func (o *Orchestrator) InstallCA() error {
	return o.trustStore.Enroll(o.authority.Certificate(), o.caPEMPath())
}

func (o *Orchestrator) caPEMPath() string {
	return filepath.Join(o.dir, "ca.pem")
}

// StartedAt returns when the proxy last transitioned to Running, or
// the zero time if it has never run.
func (o *Orchestrator) StartedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.startedAt
}

// SetRegion pins the effective region to code and persists the
// override, which wins over observation until cleared.
func (o *Orchestrator) SetRegion(code string) error {
	if err := o.region.SetOverride(code); err != nil {
		return err
	}
	return o.saveSettings()
}

// ClearRegionOverride removes the override, re-enabling
// observation-derived effective region, and persists the change.
func (o *Orchestrator) ClearRegionOverride() error {
	o.region.ClearOverride()
	return o.saveSettings()
}

func (o *Orchestrator) saveSettings() error {
	s := settings.Settings{}
	if ov, ok := o.region.Override(); ok {
		code := ov.Code
		s.RegionOverride = &code
	}
	if obs, ok := o.region.Observed(); ok {
		code := obs.Code
		s.LastObservedRegion = &code
	}
	return settings.Save(o.dir, s)
}

// Status returns the current control-surface status snapshot.
func (o *Orchestrator) Status() domain.StatusInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return domain.StatusInfo{
		StealthMode:   o.mode.Value(),
		ProxyStatus:   o.proxyStatus,
		ErrorMessage:  o.errorMessage,
		ConnectedGame: o.connectedGame,
	}
}

// CertStatus reports the certificate and trust-store state.
func (o *Orchestrator) CertStatus() (domain.CertStatus, error) {
	trusted, err := o.trustStore.IsTrusted(o.authority.Certificate())
	if err != nil {
		return domain.CertStatus{}, err
	}
	return domain.CertStatus{
		CAGenerated:     true,
		ServerGenerated: o.authority.LeafIssued(),
		CATrusted:       trusted,
	}, nil
}

// EffectiveRegion returns the region currently in effect (override or
// observation), or ok=false if none has been established yet.
func (o *Orchestrator) EffectiveRegion() (region.Region, bool) {
	return o.region.Effective()
}

// Regions returns every selectable region for control-surface
// enumeration.
func (o *Orchestrator) Regions() []domain.RegionInfo {
	all := region.All()
	out := make([]domain.RegionInfo, 0, len(all))
	for _, r := range all {
		out = append(out, domain.RegionInfo{Code: r.Code, Name: r.Name})
	}
	return out
}
