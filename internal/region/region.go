// Package region holds the closed mapping from region code to chat-host
// address and tracks the effective region, which may come either from
// observing the rewritten config response or from an explicit override.
package region

import (
	"strings"
	"sync"

	"github.com/mvacoimbra/where-is-teemo/internal/domain"
)

// ChatPort is the fixed XMPP chat port used by every region.
const ChatPort = 5223

// Region describes one selectable chat region.
type Region struct {
	Code         string
	Name         string
	ChatHostFQDN string
}

var registry = []Region{
	{"BR", "Brazil", "br1.chat.si.riotgames.com"},
	{"EUN", "EU Nordic & East", "eun1.chat.si.riotgames.com"},
	{"EUW", "EU West", "euw1.chat.si.riotgames.com"},
	{"JP", "Japan", "jp1.chat.si.riotgames.com"},
	{"KR", "Korea", "kr1.chat.si.riotgames.com"},
	{"LA1", "Latin America North", "la1.chat.si.riotgames.com"},
	{"LA2", "Latin America South", "la2.chat.si.riotgames.com"},
	{"NA", "North America", "na2.chat.si.riotgames.com"},
	{"OC", "Oceania", "oc1.chat.si.riotgames.com"},
	{"PH", "Philippines", "ph2.chat.si.riotgames.com"},
	{"RU", "Russia", "ru1.chat.si.riotgames.com"},
	{"SG", "Singapore", "sg2.chat.si.riotgames.com"},
	{"TH", "Thailand", "th2.chat.si.riotgames.com"},
	{"TR", "Turkey", "tr1.chat.si.riotgames.com"},
	{"TW", "Taiwan", "tw2.chat.si.riotgames.com"},
	{"VN", "Vietnam", "vn2.chat.si.riotgames.com"},
}

func byCode(code string) (Region, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, r := range registry {
		if r.Code == code {
			return r, true
		}
	}
	return Region{}, false
}

func byHostPrefix(host string) (Region, bool) {
	host = strings.ToLower(strings.TrimSpace(host))
	for _, r := range registry {
		if strings.EqualFold(r.ChatHostFQDN, host) {
			return r, true
		}
	}
	// Fall back to prefix match (e.g. "na2" inside a differently
	// versioned FQDN) the way the config proxy's host-to-code mapping
	// needs to tolerate launcher version drift.
	for _, r := range registry {
		prefix := strings.SplitN(r.ChatHostFQDN, ".", 2)[0]
		if strings.HasPrefix(host, prefix) {
			return r, true
		}
	}
	return Region{}, false
}

// LookupByHost returns the region whose chat-host FQDN matches host,
// exactly or by prefix: a host that starts with a region FQDN's first
// label (e.g. "na2") matches that region. A host whose first label has
// a different number, such as "na3", matches no region.
func LookupByHost(host string) (Region, bool) {
	return byHostPrefix(host)
}

// All returns every region in the closed set, for control-surface
// enumeration.
func All() []Region {
	out := make([]Region, len(registry))
	copy(out, registry)
	return out
}

// Registry tracks the effective region: an explicit override, if set,
// otherwise the most recently observed region from the config endpoint.
type Registry struct {
	mu       sync.RWMutex
	override *Region
	observed *Region
}

// New returns a Registry with no effective region set.
func New() *Registry {
	return &Registry{}
}

// SetOverride pins the effective region to code until ClearOverride is
// called. Override wins over observation while set.
func (r *Registry) SetOverride(code string) error {
	reg, ok := byCode(code)
	if !ok {
		return domain.ErrPersistence
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.override = &reg
	return nil
}

// ClearOverride removes any override, re-enabling observation-derived
// effective region.
func (r *Registry) ClearOverride() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.override = nil
}

// Observe records host as the real chat host seen in a rewritten config
// response. It is recorded even while an override is set, but does not
// affect Effective until the override is cleared.
func (r *Registry) Observe(host string) {
	reg, ok := byHostPrefix(host)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observed = &reg
}

// Observed returns the most recently observed region independent of
// any override, or ok=false if none has been observed yet. Used by
// settings persistence, which tracks observation and override
// separately.
func (r *Registry) Observed() (Region, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.observed != nil {
		return *r.observed, true
	}
	return Region{}, false
}

// Override returns the current explicit override, or ok=false if none
// is set.
func (r *Registry) Override() (Region, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.override != nil {
		return *r.override, true
	}
	return Region{}, false
}

// Effective returns the currently effective region, or ok=false if none
// has been observed or overridden yet.
func (r *Registry) Effective() (Region, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.override != nil {
		return *r.override, true
	}
	if r.observed != nil {
		return *r.observed, true
	}
	return Region{}, false
}
