package engine

import (
	"log/slog"
	"math"

	"github.com/use-agent/stealthmode/config"
	"github.com/use-agent/stealthmode/dom"
	"github.com/use-agent/stealthmode/stats"
)

// Controller moves ad media between the normal and intercepted states.
type Controller struct {
	rate    float64
	epsilon float64
	logger  *slog.Logger
}

func NewController(cfg config.EngineConfig, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		rate:    cfg.SpeedupRate,
		epsilon: cfg.SeekEpsilon.Seconds(),
		logger:  logger,
	}
}

// Apply drives media towards the state matching adActive. While an ad is
// active the media is muted, seeked to just before its end (counted as one
// speed-up), forced to the override rate and resumed. Once the ad ends a
// media still at the override rate is restored. Re-applying the same state
// writes nothing.
func (c *Controller) Apply(media dom.Media, adActive bool, st *State) stats.Counts {
	if media == nil {
		return stats.Counts{}
	}
	if !adActive {
		c.Restore(media, st)
		return stats.Counts{}
	}

	ms, err := media.State()
	if err != nil {
		c.logger.Debug("controller: media state unavailable", "error", err)
		return stats.Counts{}
	}

	var counts stats.Counts
	if !ms.Muted {
		c.try("mute", media.SetMuted(true))
	}
	if end := ms.Duration - c.epsilon; isFinite(ms.Duration) && ms.CurrentTime < end {
		if err := media.Seek(end); err == nil {
			counts.SpedUp++
		} else {
			c.logger.Debug("controller: seek failed", "error", err)
		}
	}
	if ms.PlaybackRate != c.rate {
		c.try("rate", media.SetPlaybackRate(c.rate))
	}
	if ms.Paused {
		c.try("play", media.Play())
	}
	st.InterventionActive = true
	return counts
}

// Restore reverts an override: if media still plays at the override rate
// it goes back to 1.0 and is unmuted.
func (c *Controller) Restore(media dom.Media, st *State) {
	st.InterventionActive = false
	if media == nil {
		return
	}
	ms, err := media.State()
	if err != nil {
		return
	}
	if ms.PlaybackRate == c.rate {
		c.try("rate", media.SetPlaybackRate(1.0))
		c.try("unmute", media.SetMuted(false))
	}
}

func (c *Controller) try(action string, err error) {
	if err != nil {
		c.logger.Debug("controller: action failed", "action", action, "error", err)
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
