package wire

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const inboundSchemaURL = "https://frontline.local/wire/inbound.schema.json"

// inboundSchema describes every message a client may send.
const inboundSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type"],
  "oneOf": [
    {
      "properties": {
        "type": {"const": "influence_action"},
        "territory_id": {"type": "integer", "minimum": 1},
        "faction_id": {"type": "integer", "minimum": 1},
        "influence_change": {"type": "number", "minimum": -100, "maximum": 100},
        "strategic_value": {"type": "integer", "minimum": 1, "maximum": 10}
      },
      "required": ["type", "territory_id", "faction_id", "influence_change"],
      "additionalProperties": false
    },
    {
      "properties": {
        "type": {"const": "request_update"},
        "territory_id": {"type": "integer", "minimum": 1}
      },
      "required": ["type", "territory_id"],
      "additionalProperties": false
    },
    {
      "properties": {
        "type": {"const": "ping"}
      },
      "required": ["type"],
      "additionalProperties": false
    }
  ]
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(inboundSchemaURL, strings.NewReader(inboundSchema)); err != nil {
			schemaErr = fmt.Errorf("add inbound schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(inboundSchemaURL)
	})
	return schema, schemaErr
}

// Validate checks a raw client message against the inbound schema and
// returns its type.
func Validate(msg []byte) (string, error) {
	s, err := compiledSchema()
	if err != nil {
		return "", err
	}
	var doc any
	if err := json.Unmarshal(msg, &doc); err != nil {
		return "", fmt.Errorf("decode message: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return "", fmt.Errorf("invalid message: %w", err)
	}
	var base Base
	if err := json.Unmarshal(msg, &base); err != nil {
		return "", fmt.Errorf("decode message type: %w", err)
	}
	return base.Type, nil
}
