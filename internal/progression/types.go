// Package progression derives per-faction reputation, tiers, resource bonuses,
// and unlocks from the territorial cache.
package progression

import (
	"strings"
	"time"

	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/territory"
)

// Tier quantizes reputation into named brackets.
type Tier uint8

const (
	TierRecruit Tier = iota
	TierVeteran
	TierElite
	TierCommander
	TierWarlord
	tierCount
)

var tierNames = [tierCount]string{"recruit", "veteran", "elite", "commander", "warlord"}

func (t Tier) String() string {
	if t < tierCount {
		return tierNames[t]
	}
	return "unknown"
}

// ParseTier maps a tier name back to its value.
func ParseTier(s string) (Tier, bool) {
	for i, n := range tierNames {
		if strings.EqualFold(n, s) {
			return Tier(i), true
		}
	}
	return TierRecruit, false
}

// Bonus floors per tier. Reaching a tier lifts the faction's multipliers to
// at least these values; falling back never lowers them.
var tierFloor = [tierCount]float64{1.0, 1.05, 1.10, 1.15, 1.25}

// ResourceType classifies territories for reputation and bonus purposes.
type ResourceType uint8

const (
	ResourceStrategic ResourceType = iota
	ResourceMilitary
	ResourceResearch
	ResourceIndustrial
	ResourceEconomic
	resourceCount
)

var resourceNames = [resourceCount]string{"strategic", "military", "research", "industrial", "economic"}

func (r ResourceType) String() string {
	if r < resourceCount {
		return resourceNames[r]
	}
	return "unknown"
}

// ParseResource maps a resource name back to its value.
func ParseResource(s string) (ResourceType, bool) {
	for i, n := range resourceNames {
		if strings.EqualFold(n, s) {
			return ResourceType(i), true
		}
	}
	return ResourceEconomic, false
}

// ResourceFor returns the resource type a territory of the given type yields.
// Containers (regions, districts, zones) count as economic ground.
func ResourceFor(t territory.Type) ResourceType {
	switch t {
	case territory.TypeOutpost:
		return ResourceStrategic
	case territory.TypeMilitary:
		return ResourceMilitary
	case territory.TypeResearch:
		return ResourceResearch
	case territory.TypeIndustrial:
		return ResourceIndustrial
	default:
		return ResourceEconomic
	}
}

// AbilityKind selects the side effect of an unlock.
type AbilityKind uint8

const (
	AbilityExtraction  AbilityKind = iota // +15% extraction
	AbilityInfluence                      // +10% influence rate
	AbilitySupplyRoute                    // supply-route access
	AbilityCodex                          // delegated to the codex
)

var abilityNames = [...]string{"extraction", "influence", "supply_route", "codex"}

func (k AbilityKind) String() string {
	if int(k) < len(abilityNames) {
		return abilityNames[k]
	}
	return "unknown"
}

// ParseAbilityKind maps a kind name back to its value.
func ParseAbilityKind(s string) (AbilityKind, bool) {
	for i, n := range abilityNames {
		if strings.EqualFold(n, s) {
			return AbilityKind(i), true
		}
	}
	return AbilityCodex, false
}

const (
	extractionStep = 1.15
	influenceStep  = 1.10
)

// Ability is an unlock reward.
type Ability struct {
	ID   string      `json:"id"`
	Kind AbilityKind `json:"kind"`
}

// Objective is a territorial goal: hold Required controlled, uncontested
// territories of Resource.
type Objective struct {
	ID               string           `json:"id"`
	Faction          social.FactionID `json:"faction"`
	Name             string           `json:"name"`
	Resource         ResourceType     `json:"resource"`
	Required         int              `json:"required"`
	ReputationReward float64          `json:"reputation_reward"`
	Unlocks          []Ability        `json:"unlocks,omitempty"`
	Active           bool             `json:"active"`
	Completed        bool             `json:"completed"`
	CompletedAt      time.Time        `json:"completed_at"`
}

// Snapshot is a read copy of a faction's progression.
type Snapshot struct {
	Faction               social.FactionID     `json:"faction"`
	Name                  string               `json:"name"`
	Reputation            float64              `json:"reputation"`
	Tier                  Tier                 `json:"tier"`
	TerritoriesControlled int                  `json:"territories_controlled"`
	TotalHours            float64              `json:"total_hours"` // territory-hours held uncontested
	ResourceBonuses       map[ResourceType]int `json:"resource_bonuses"`
	Unlocked              []string             `json:"unlocked"`
	SupplyAccess          bool                 `json:"supply_access"`
	ExtractionMul         float64              `json:"extraction_mul"`
	InfluenceMul          float64              `json:"influence_mul"`
	BalanceMul            float64              `json:"balance_mul"`
	LastUpdate            time.Time            `json:"last_update"`
}

// Codex receives unlocks of kind AbilityCodex.
type Codex interface {
	Unlock(faction social.FactionID, ability string) error
}

// TerritorySource supplies territorial snapshots.
type TerritorySource interface {
	All() []territory.Territory
}

func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Tier) UnmarshalText(b []byte) error {
	*t, _ = ParseTier(string(b))
	return nil
}

func (r ResourceType) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *ResourceType) UnmarshalText(b []byte) error {
	*r, _ = ParseResource(string(b))
	return nil
}

func (k AbilityKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *AbilityKind) UnmarshalText(b []byte) error {
	*k, _ = ParseAbilityKind(string(b))
	return nil
}
