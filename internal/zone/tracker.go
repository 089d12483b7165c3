package zone

import "github.com/gatherly/office/internal/domain"

// Tracker caches the last containing rectangle for one player. Players dwell
// inside a zone across many consecutive ticks, so the cached rect is re-tested
// before falling back to a scan of the full zone list.
type Tracker struct {
	m        *Map
	current  domain.ZoneName
	lastRect *Rect
}

func NewTracker(m *Map) *Tracker {
	return &Tracker{m: m}
}

// Update re-evaluates containment for (x, y) and returns the current zone,
// "" when the player is outside every zone. Repeated calls inside the same
// zone return the same name without rescanning.
func (t *Tracker) Update(x, y float64) domain.ZoneName {
	if t.lastRect != nil && t.lastRect.Contains(x, y) {
		return t.current
	}

	for _, z := range t.m.zones {
		if z.Rect.Contains(x, y) {
			if z.Name != t.current {
				t.current = z.Name
				r := z.Rect
				t.lastRect = &r
			}
			return t.current
		}
	}

	t.current = ""
	t.lastRect = nil
	return ""
}

// Current returns the zone of the last Update call.
func (t *Tracker) Current() domain.ZoneName { return t.current }
