package engine

import (
	"github.com/use-agent/stealthmode/config"
	"github.com/use-agent/stealthmode/dom"
)

// Located is the outcome of one lookup. Absent elements are nil.
type Located struct {
	Media  dom.Media
	Player dom.Element
}

// Locate finds the main media element and its player container. It has
// no side effects.
func Locate(doc dom.Document, sel config.Selectors) Located {
	var loc Located
	if sel.Media != "" {
		loc.Media = doc.QueryMedia(sel.Media)
	}
	if sel.Player != "" {
		loc.Player = doc.Query(sel.Player)
	}
	return loc
}

// IsAdActive classifies the current snapshot. A marker class on the player
// wins; otherwise a non-empty ad module means an ad is showing. Without a
// player nothing is active.
func IsAdActive(player, adModule dom.Element, markers []string) bool {
	if player == nil {
		return false
	}
	for _, m := range markers {
		if player.HasClass(m) {
			return true
		}
	}
	return adModule != nil && adModule.ChildCount() > 0
}
