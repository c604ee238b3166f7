package engine

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/stealthmode/config"
	"github.com/use-agent/stealthmode/dom"
	"github.com/use-agent/stealthmode/stats"
)

const (
	NameSite    = "site"
	NameGeneric = "generic"
)

// Site is the markup-aware strategy for the configured video host.
type Site struct {
	cfg        config.EngineConfig
	controller *Controller
	logger     *slog.Logger
}

var (
	_ Strategy = (*Site)(nil)
	_ Disabler = (*Site)(nil)
)

func NewSite(cfg config.EngineConfig, logger *slog.Logger) *Site {
	if logger == nil {
		logger = slog.Default()
	}
	return &Site{cfg: cfg, controller: NewController(cfg, logger), logger: logger}
}

func (s *Site) Name() string            { return NameSite }
func (s *Site) Interval() time.Duration { return s.cfg.PollInterval }

// Pass runs locate, detect, intervene, click-skip, suppress-overlays and
// dismiss-notices, in that order.
func (s *Site) Pass(doc dom.Document, st *State) stats.Counts {
	sel := s.cfg.Selectors

	loc := Locate(doc, sel)
	st.Media, st.Player = loc.Media, loc.Player

	var adModule dom.Element
	if sel.AdModule != "" {
		adModule = doc.Query(sel.AdModule)
	}
	active := IsAdActive(st.Player, adModule, sel.AdMarkers)

	counts := s.controller.Apply(st.Media, active, st)
	counts = counts.Add(ClickSkipButtons(doc, s.cfg))
	SuppressOverlays(doc, s.cfg)
	if n := DismissBlockNotices(doc, s.cfg, st.Media); n > 0 {
		s.logger.Debug("site: block notice dismissed", "count", n)
	}
	return counts
}

// OnMutation watches for in-page navigation.
func (s *Site) OnMutation(doc dom.Document, st *State) stats.Counts {
	if WatchNavigation(doc, st, s.cfg.Selectors) {
		s.logger.Debug("site: navigation", "url", st.LastURL)
	}
	return stats.Counts{}
}

// OnDisable restores a held override when RestoreOnDisable is set. By
// default the override stays until the ad ends.
func (s *Site) OnDisable(_ dom.Document, st *State) {
	if !s.cfg.RestoreOnDisable || !st.InterventionActive {
		return
	}
	s.controller.Restore(st.Media, st)
	s.logger.Debug("site: override restored on disable")
}

// Generic is the heuristic strategy for every other page.
type Generic struct {
	cfg    config.EngineConfig
	logger *slog.Logger
}

var _ Strategy = (*Generic)(nil)

func NewGeneric(cfg config.EngineConfig, logger *slog.Logger) *Generic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generic{cfg: cfg, logger: logger}
}

func (g *Generic) Name() string            { return NameGeneric }
func (g *Generic) Interval() time.Duration { return g.cfg.GenericInterval }

func (g *Generic) Pass(doc dom.Document, st *State) stats.Counts {
	st.LastURL = doc.Location()
	return Zap(doc, g.cfg)
}

// OnMutation runs a full zap while enabled.
func (g *Generic) OnMutation(doc dom.Document, st *State) stats.Counts {
	if !st.Enabled {
		return stats.Counts{}
	}
	st.LastURL = doc.Location()
	return Zap(doc, g.cfg)
}

// Select picks the strategy for a page location: the site strategy when
// the host contains any SiteHosts entry, the generic one otherwise.
func Select(location string, cfg config.EngineConfig, logger *slog.Logger) Strategy {
	if IsSiteHost(location, cfg.SiteHosts) {
		return NewSite(cfg, logger)
	}
	return NewGeneric(cfg, logger)
}

// IsSiteHost reports whether the host of location contains any of hosts.
func IsSiteHost(location string, hosts []string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range hosts {
		if h != "" && strings.Contains(host, strings.ToLower(h)) {
			return true
		}
	}
	return false
}
