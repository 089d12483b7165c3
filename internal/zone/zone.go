// Package zone holds the static office geometry of a room map and the
// per-player containment tracker the client evaluates every tick.
package zone

import (
	"fmt"

	"github.com/gatherly/office/internal/domain"
)

// Rect is an axis-aligned rectangle. Containment is half-open: a point on
// the left or top edge is inside, a point on the right or bottom edge is not,
// so adjacent zones sharing an edge never both contain the same point.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (r Rect) Contains(x, y float64) bool {
	if r.W <= 0 || r.H <= 0 {
		return false
	}
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

func (r Rect) Intersects(o Rect) bool {
	if r.W <= 0 || r.H <= 0 || o.W <= 0 || o.H <= 0 {
		return false
	}
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Zone is one named office region. The set is fixed at startup.
type Zone struct {
	Name  domain.ZoneName `json:"name"`
	Label string          `json:"label"`
	Rect  Rect            `json:"rect"`
}

// Map is an immutable set of non-overlapping zones.
type Map struct {
	zones []Zone
}

// NewMap validates that no two zones overlap, so Locate can never have two
// answers for one point.
func NewMap(zones []Zone) (*Map, error) {
	seen := make(map[domain.ZoneName]struct{}, len(zones))
	for i, z := range zones {
		if z.Name == "" {
			return nil, fmt.Errorf("zone %d has empty name", i)
		}
		if _, dup := seen[z.Name]; dup {
			return nil, fmt.Errorf("duplicate zone name %q", z.Name)
		}
		seen[z.Name] = struct{}{}
		for _, prev := range zones[:i] {
			if z.Rect.Intersects(prev.Rect) {
				return nil, fmt.Errorf("zones %q and %q overlap", prev.Name, z.Name)
			}
		}
	}
	out := make([]Zone, len(zones))
	copy(out, zones)
	return &Map{zones: out}, nil
}

// Locate returns the zone containing (x, y), if any.
func (m *Map) Locate(x, y float64) (domain.ZoneName, bool) {
	for _, z := range m.zones {
		if z.Rect.Contains(x, y) {
			return z.Name, true
		}
	}
	return "", false
}

// InsideAny is the stateless predicate used to test other players without
// maintaining a tracker for them.
func (m *Map) InsideAny(x, y float64) bool {
	_, ok := m.Locate(x, y)
	return ok
}

func (m *Map) Zones() []Zone {
	out := make([]Zone, len(m.zones))
	copy(out, m.zones)
	return out
}

func (m *Map) Names() []domain.ZoneName {
	out := make([]domain.ZoneName, 0, len(m.zones))
	for _, z := range m.zones {
		out = append(out, z.Name)
	}
	return out
}

func (m *Map) Label(name domain.ZoneName) string {
	for _, z := range m.zones {
		if z.Name == name {
			return z.Label
		}
	}
	return string(name)
}

// DefaultOffices is the five-office layout of the standard map.
func DefaultOffices() *Map {
	m, err := NewMap([]Zone{
		{Name: "mainOffice", Label: "main office", Rect: Rect{X: 799.85, Y: 608.02, W: 799.85, H: 512.02}},
		{Name: "eastOffice", Label: "east office", Rect: Rect{X: 63.96, Y: 351.94, W: 384.12, H: 768.09}},
		{Name: "westOffice", Label: "west office", Rect: Rect{X: 1920.00, Y: 608.25, W: 448.13, H: 544.00}},
		{Name: "northOffice1", Label: "north 1 office", Rect: Rect{X: 927.85, Y: 156.61, W: 512.09, H: 259.42}},
		{Name: "northOffice2", Label: "north 2 office", Rect: Rect{X: 1471.97, Y: 156.61, W: 512.09, H: 259.42}},
	})
	if err != nil {
		panic(err)
	}
	return m
}
