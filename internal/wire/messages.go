// Package wire carries real-time territorial updates to clients over
// websocket and accepts their influence actions.
package wire

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/territory"
)

// Message types.
const (
	TypeInfluenceAction = "influence_action"
	TypeRequestUpdate   = "request_update"
	TypePing            = "ping"

	TypeInitialState   = "initial_state"
	TypeControlChanged = "territory_control_changed"
	TypeTerritory      = "territory_update"
	TypeContest        = "territorial_contest"
	TypePong           = "pong"
	TypeError          = "error"
)

// Base is the envelope every message shares.
type Base struct {
	Type string `json:"type"`
}

// InfluenceAction asks the server to move a faction's influence.
type InfluenceAction struct {
	Type            string           `json:"type"`
	TerritoryID     territory.ID     `json:"territory_id"`
	FactionID       social.FactionID `json:"faction_id"`
	InfluenceChange float64          `json:"influence_change"`
	StrategicValue  int              `json:"strategic_value,omitempty"`
}

// RequestUpdate asks for one territory's current record.
type RequestUpdate struct {
	Type        string       `json:"type"`
	TerritoryID territory.ID `json:"territory_id"`
}

// InitialState is sent once on connect.
type InitialState struct {
	Type        string             `json:"type"`
	Territories []territory.Record `json:"territories"`
	Timestamp   time.Time          `json:"timestamp"`
}

// ControlChanged announces a new controller.
type ControlChanged struct {
	Type                string           `json:"type"`
	TerritoryID         territory.ID     `json:"territory_id"`
	TerritoryName       string           `json:"territory_name"`
	ControllerFactionID social.FactionID `json:"controller_faction_id"`
	ControllerName      string           `json:"controller_name"`
	Timestamp           time.Time        `json:"timestamp"`
}

// TerritoryUpdate carries one territory's full record.
type TerritoryUpdate struct {
	Type      string           `json:"type"`
	Territory territory.Record `json:"territory"`
	Timestamp time.Time        `json:"timestamp"`
}

// Contest announces a contested flag transition.
type Contest struct {
	Type          string       `json:"type"`
	TerritoryID   territory.ID `json:"territory_id"`
	TerritoryName string       `json:"territory_name"`
	Contested     bool         `json:"contested"`
	Timestamp     time.Time    `json:"timestamp"`
}

// Pong answers a ping.
type Pong struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Error reports a rejected client message.
type Error struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode wire message", "error", err)
		return nil
	}
	return b
}
