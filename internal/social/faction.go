// Package social holds the identities shared by every simulation component:
// factions and the players who fight for them.
package social

import "slices"

// FactionID is a small positive integer identifying a faction. 0 means neutral.
type FactionID uint64

// Neutral is the controller id of unclaimed ground.
const Neutral FactionID = 0

// PlayerID identifies a player in trust records.
type PlayerID uint64

// Faction is a competing organization on the map.
type Faction struct {
	ID   FactionID   `json:"id"`
	Name string      `json:"name"`
	Kind FactionKind `json:"kind"`

	// Doctrine tendencies, used by world seeding and the balance layer.
	Aggression float64 `json:"aggression"` // -1 defensive, +1 expansionist
	Logistics  float64 `json:"logistics"`  // -1 raiders, +1 convoy builders
}

// FactionKind categorizes a faction's doctrine.
type FactionKind uint8

const (
	FactionMilitary   FactionKind = iota // Front-line fighting force
	FactionIndustrial                    // Production and extraction
	FactionMercantile                    // Trade and convoy logistics
	FactionScientific                    // Research and technology
	FactionInsurgent                     // Irregular, raiding
)

var kindNames = [...]string{"military", "industrial", "mercantile", "scientific", "insurgent"}

func (k FactionKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// SeedFactions creates the seven default factions.
func SeedFactions() []*Faction {
	return []*Faction{
		{ID: 1, Name: "Iron Vanguard", Kind: FactionMilitary, Aggression: 0.8, Logistics: 0.1},
		{ID: 2, Name: "Meridian Syndicate", Kind: FactionMercantile, Aggression: -0.3, Logistics: 0.9},
		{ID: 3, Name: "Ashfall Legion", Kind: FactionMilitary, Aggression: 0.9, Logistics: -0.2},
		{ID: 4, Name: "Helix Collective", Kind: FactionScientific, Aggression: -0.5, Logistics: 0.3},
		{ID: 5, Name: "Forge Union", Kind: FactionIndustrial, Aggression: 0.1, Logistics: 0.6},
		{ID: 6, Name: "Dustrunners", Kind: FactionInsurgent, Aggression: 0.6, Logistics: -0.7},
		{ID: 7, Name: "Northwind Compact", Kind: FactionMercantile, Aggression: 0.0, Logistics: 0.5},
	}
}

// Relation is a symmetric starting stance between two factions in [-1, 1].
type Relation struct {
	A, B  FactionID
	Value float64
}

// SeedRelations returns the starting diplomatic stances.
// Pairs not listed start neutral.
func SeedRelations() []Relation {
	return []Relation{
		{1, 3, -0.6}, // Vanguard and Legion contest the same fronts
		{1, 5, 0.4},  // Forge Union arms the Vanguard
		{2, 7, 0.5},  // shared convoy lanes
		{2, 6, -0.7}, // Dustrunners raid Syndicate convoys
		{3, 6, 0.3},
		{4, 5, 0.2},
		{4, 3, -0.4},
		{6, 7, -0.5},
	}
}

// Roster indexes factions by id.
type Roster map[FactionID]*Faction

// NewRoster builds a roster from a faction list.
func NewRoster(fs []*Faction) Roster {
	r := make(Roster, len(fs))
	for _, f := range fs {
		r[f.ID] = f
	}
	return r
}

// Name returns the faction's display name, or "Neutral"/"Unknown".
func (r Roster) Name(id FactionID) string {
	if id == Neutral {
		return "Neutral"
	}
	if f, ok := r[id]; ok {
		return f.Name
	}
	return "Unknown"
}

// IDs returns the roster's faction ids in ascending order.
func (r Roster) IDs() []FactionID {
	ids := make([]FactionID, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
