package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

const schemaURL = "toolgate://policy.schema.json"

const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "threshold": {"type": "number", "minimum": 0, "maximum": 1},
    "weights": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "base": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "execute": {"$ref": "#/$defs/weight"},
            "registration": {"$ref": "#/$defs/weight"}
          }
        },
        "roles": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "guest": {"$ref": "#/$defs/weight"},
            "read_only": {"$ref": "#/$defs/weight"},
            "analyst": {"$ref": "#/$defs/weight"},
            "blue_team": {"$ref": "#/$defs/weight"},
            "red_team": {"$ref": "#/$defs/weight"},
            "administrator": {"$ref": "#/$defs/weight"}
          }
        },
        "sensitive": {"$ref": "#/$defs/weight"}
      }
    },
    "sensitive_tools": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "pending_ttl": {"type": "string", "pattern": "^([0-9]+(\\.[0-9]+)?(ns|us|ms|s|m|h))+$"},
    "alerts": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["url"],
        "additionalProperties": false,
        "properties": {
          "url": {"type": "string", "minLength": 1},
          "format": {"enum": ["generic", "slack", "pagerduty"]},
          "events": {"type": "array", "items": {"type": "string"}},
          "headers": {"type": "object", "additionalProperties": {"type": "string"}}
        }
      }
    }
  },
  "$defs": {
    "weight": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(configSchema))
		if err != nil {
			schemaErr = fmt.Errorf("schema unmarshal error: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("schema compile error: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// validateSchema checks the raw YAML document against the policy schema.
// YAML is converted to JSON first so that numbers reach the validator in
// the form it expects.
func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("yaml: %w", err)
	}
	if doc == nil {
		return nil
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("yaml to json: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}

	sch, err := loadSchema()
	if err != nil {
		return err
	}
	return sch.Validate(inst)
}
