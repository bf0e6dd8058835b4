package territory

import (
	"sort"
	"time"

	"github.com/talgya/frontline/internal/geom"
	"github.com/talgya/frontline/internal/social"
)

// Record is the persisted form of a territory.
type Record struct {
	ID                 int               `json:"id"`
	Name               string            `json:"name"`
	Type               string            `json:"type"`
	ParentID           *int              `json:"parent_id,omitempty"`
	Bounds             BoundsRecord      `json:"bounds"`
	Controller         social.FactionID  `json:"controller"`
	Contested          bool              `json:"contested"`
	StrategicValue     int               `json:"strategic_value"`
	ResourceMultiplier float64           `json:"resource_multiplier"`
	Influences         []InfluenceRecord `json:"influences"`
	LastContestedTime  time.Time         `json:"last_contested_time"`
}

// BoundsRecord is the persisted polygon footprint.
type BoundsRecord struct {
	Polygon [][2]float64 `json:"polygon"`
	Center  [2]float64   `json:"center"`
	Radius  float64      `json:"radius"`
}

// InfluenceRecord is one persisted influence row.
type InfluenceRecord struct {
	Faction    social.FactionID `json:"faction"`
	Level      float64          `json:"level"`
	Points     int              `json:"points"`
	LastAction time.Time        `json:"last_action"`
	Trend      string           `json:"trend"`
}

// ToRecord converts a territory to its persisted form.
func (t Territory) ToRecord() Record {
	r := Record{
		ID:                 int(t.ID),
		Name:               t.Name,
		Type:               t.Type.String(),
		Controller:         t.Controller,
		Contested:          t.Contested,
		StrategicValue:     t.StrategicValue,
		ResourceMultiplier: t.ResourceMultiplier,
		LastContestedTime:  t.LastContestedTime,
		Bounds: BoundsRecord{
			Center: [2]float64{t.Bounds.Center.X, t.Bounds.Center.Y},
			Radius: t.Bounds.Radius,
		},
	}
	if t.ParentID != 0 {
		p := int(t.ParentID)
		r.ParentID = &p
	}
	r.Bounds.Polygon = make([][2]float64, len(t.Bounds.Polygon))
	for i, p := range t.Bounds.Polygon {
		r.Bounds.Polygon[i] = [2]float64{p.X, p.Y}
	}
	r.Influences = make([]InfluenceRecord, len(t.Influences))
	for i, in := range t.Influences {
		r.Influences[i] = InfluenceRecord{
			Faction:    in.Faction,
			Level:      in.Level,
			Points:     in.ControlPoints,
			LastAction: in.LastAction,
			Trend:      in.Trend.String(),
		}
	}
	return r
}

// FromRecord rebuilds a territory from its persisted form.
func FromRecord(r Record) Territory {
	typ, _ := ParseType(r.Type)
	t := Territory{
		ID:                 ID(r.ID),
		Name:               r.Name,
		Type:               typ,
		Controller:         r.Controller,
		Contested:          r.Contested,
		StrategicValue:     r.StrategicValue,
		ResourceMultiplier: r.ResourceMultiplier,
		LastContestedTime:  r.LastContestedTime,
		Bounds: Bounds{
			Center: geom.Point{X: r.Bounds.Center[0], Y: r.Bounds.Center[1]},
			Radius: r.Bounds.Radius,
		},
	}
	if r.ParentID != nil {
		t.ParentID = ID(*r.ParentID)
	}
	t.Bounds.Polygon = make(geom.Polygon, len(r.Bounds.Polygon))
	for i, p := range r.Bounds.Polygon {
		t.Bounds.Polygon[i] = geom.Point{X: p[0], Y: p[1]}
	}
	t.Influences = make([]Influence, len(r.Influences))
	for i, in := range r.Influences {
		t.Influences[i] = Influence{
			Faction:       in.Faction,
			Level:         in.Level,
			ControlPoints: in.Points,
			LastAction:    in.LastAction,
			Trend:         parseTrend(in.Trend),
		}
	}
	return t
}

// Dump returns the records of every territory in id order.
func (s *State) Dump() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.territories[id].ToRecord())
	}
	return out
}

// Load replaces the whole territorial cache. No events are emitted.
func (s *State) Load(recs []Record) {
	ts := make([]Territory, len(recs))
	for i, r := range recs {
		ts[i] = FromRecord(r)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(ts)
}
