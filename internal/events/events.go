// Package events defines the typed event vocabulary shared by the simulation
// components and the in-process bus that delivers it.
package events

import "github.com/talgya/frontline/internal/social"

// Topic names one event family on the bus.
type Topic string

const (
	TopicControlChanged       Topic = "control_changed"
	TopicContested            Topic = "contested"
	TopicInfluenceChanged     Topic = "influence_changed"
	TopicProgressionChanged   Topic = "progression_changed"
	TopicAbilityUnlocked      Topic = "ability_unlocked"
	TopicObjectiveCompleted   Topic = "objective_completed"
	TopicResourceBonusChanged Topic = "resource_bonus_changed"
	TopicRouteGenerated       Topic = "route_generated"
	TopicRouteInvalidated     Topic = "route_invalidated"
	TopicRoutesUpdated        Topic = "routes_updated"
	TopicDominanceChanged     Topic = "dominance_changed"
	TopicDominanceThreshold   Topic = "dominance_threshold_reached"
	TopicDominanceComplete    Topic = "dominance_complete"
	TopicTicketsConsumed      Topic = "tickets_consumed"
	TopicTicketsRefilled      Topic = "tickets_refilled"
	TopicTicketsExhausted     Topic = "tickets_exhausted"
	TopicPhaseChanged         Topic = "phase_changed"
	TopicTrustChanged         Topic = "trust_changed"
	TopicFactionRelation      Topic = "faction_relation_changed"
	TopicSiegeAllianceFormed  Topic = "siege_alliance_formed"
	TopicSiegeAllianceBroken  Topic = "siege_alliance_broken"
	TopicIntegrityChanged     Topic = "integrity_index_changed"
)

// Event is implemented by every payload published on the bus.
type Event interface {
	Topic() Topic
}

// Territorial events.

type ControlChanged struct {
	Territory int              `json:"territory_id"`
	Old       social.FactionID `json:"old_faction"`
	New       social.FactionID `json:"new_faction"`
}

type Contested struct {
	Territory int  `json:"territory_id"`
	Contested bool `json:"contested"`
}

type InfluenceChanged struct {
	Territory int              `json:"territory_id"`
	Faction   social.FactionID `json:"faction_id"`
	Level     float64          `json:"new_level"`
	Delta     float64          `json:"delta"`
}

// Progression events.

type ProgressionChanged struct {
	Faction    social.FactionID `json:"faction_id"`
	Tier       string           `json:"tier"`
	Reputation float64          `json:"reputation"`
}

type AbilityUnlocked struct {
	Faction social.FactionID `json:"faction_id"`
	Ability string           `json:"ability_id"`
	Kind    string           `json:"kind"`
}

type ObjectiveCompleted struct {
	Faction   social.FactionID `json:"faction_id"`
	Objective string           `json:"objective_id"`
}

type ResourceBonusChanged struct {
	Faction  social.FactionID `json:"faction_id"`
	Resource string           `json:"resource_type"`
	Value    int              `json:"value"`
}

// Route events.

type RouteGenerated struct {
	Route   string           `json:"route_id"`
	Faction social.FactionID `json:"faction_id"`
	Success bool             `json:"success"`
}

type RouteInvalidated struct {
	Route  string `json:"route_id"`
	Reason string `json:"reason"`
}

type RoutesUpdated struct {
	Faction     social.FactionID `json:"faction_id"`
	Active      int              `json:"active_count"`
	TotalProfit float64          `json:"total_profit"`
}

// Siege events. Every payload carries the siege it belongs to.

type DominanceChanged struct {
	Siege string  `json:"siege_id"`
	Old   float64 `json:"old"`
	New   float64 `json:"new"`
}

type DominanceThresholdReached struct {
	Siege     string  `json:"siege_id"`
	Threshold float64 `json:"threshold"`
	Rising    bool    `json:"rising"`
}

type DominanceComplete struct {
	Siege string  `json:"siege_id"`
	Value float64 `json:"value"`
}

type TicketsConsumed struct {
	Siege     string `json:"siege_id"`
	Side      string `json:"side"`
	Amount    int    `json:"amount"`
	Remaining int    `json:"remaining"`
}

type TicketsRefilled struct {
	Siege     string `json:"siege_id"`
	Side      string `json:"side"`
	Remaining int    `json:"remaining"`
}

type TicketsExhausted struct {
	Siege string `json:"siege_id"`
	Side  string `json:"side"`
}

type PhaseChanged struct {
	Siege string `json:"siege_id"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Trust events.

type TrustChanged struct {
	A     social.PlayerID `json:"a"`
	B     social.PlayerID `json:"b"`
	Trust float64         `json:"trust"`
}

type FactionRelationChanged struct {
	A     social.FactionID `json:"a"`
	B     social.FactionID `json:"b"`
	Value float64          `json:"value"`
}

type SiegeAllianceFormed struct {
	A social.FactionID `json:"a"`
	B social.FactionID `json:"b"`
}

type SiegeAllianceBroken struct {
	A social.FactionID `json:"a"`
	B social.FactionID `json:"b"`
}

// IntegrityIndexChanged reports the world convoy-stability scalar.
type IntegrityIndexChanged struct {
	Value float64 `json:"value"`
	Delta float64 `json:"delta"`
}

func (ControlChanged) Topic() Topic            { return TopicControlChanged }
func (Contested) Topic() Topic                 { return TopicContested }
func (InfluenceChanged) Topic() Topic          { return TopicInfluenceChanged }
func (ProgressionChanged) Topic() Topic        { return TopicProgressionChanged }
func (AbilityUnlocked) Topic() Topic           { return TopicAbilityUnlocked }
func (ObjectiveCompleted) Topic() Topic        { return TopicObjectiveCompleted }
func (ResourceBonusChanged) Topic() Topic      { return TopicResourceBonusChanged }
func (RouteGenerated) Topic() Topic            { return TopicRouteGenerated }
func (RouteInvalidated) Topic() Topic          { return TopicRouteInvalidated }
func (RoutesUpdated) Topic() Topic             { return TopicRoutesUpdated }
func (DominanceChanged) Topic() Topic          { return TopicDominanceChanged }
func (DominanceThresholdReached) Topic() Topic { return TopicDominanceThreshold }
func (DominanceComplete) Topic() Topic         { return TopicDominanceComplete }
func (TicketsConsumed) Topic() Topic           { return TopicTicketsConsumed }
func (TicketsRefilled) Topic() Topic           { return TopicTicketsRefilled }
func (TicketsExhausted) Topic() Topic          { return TopicTicketsExhausted }
func (PhaseChanged) Topic() Topic              { return TopicPhaseChanged }
func (TrustChanged) Topic() Topic              { return TopicTrustChanged }
func (FactionRelationChanged) Topic() Topic    { return TopicFactionRelation }
func (SiegeAllianceFormed) Topic() Topic       { return TopicSiegeAllianceFormed }
func (SiegeAllianceBroken) Topic() Topic       { return TopicSiegeAllianceBroken }
func (IntegrityIndexChanged) Topic() Topic     { return TopicIntegrityChanged }
