package lift

import (
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

// scieSchema structurally validates the scie object of a lift manifest read
// from a scie tip. Field presence rules that depend on mode (permissive vs
// strict) are enforced in Go, not here.
const scieSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["lift"],
  "additionalProperties": false,
  "properties": {
    "jump": {
      "type": "object",
      "required": ["size", "version"],
      "additionalProperties": false,
      "properties": {
        "size": {"type": "integer", "minimum": 1},
        "version": {"type": "string", "minLength": 1},
        "hash": {"type": "string"}
      }
    },
    "lift": {
      "type": "object",
      "required": ["name"],
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "description": {"type": "string"},
        "base": {"type": "string"},
        "load_dotenv": {"type": "boolean"},
        "files": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name"],
            "additionalProperties": false,
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "key": {"type": "string", "minLength": 1},
              "size": {"type": "integer", "minimum": 0},
              "hash": {"type": "string", "minLength": 1},
              "type": {"type": "string", "minLength": 1},
              "executable": {"type": "boolean"},
              "eager_extract": {"type": "boolean"},
              "source": {"type": "string", "minLength": 1}
            }
          }
        },
        "boot": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "commands": {
              "type": "object",
              "additionalProperties": {"$ref": "#/$defs/command"}
            },
            "bindings": {
              "type": "object",
              "additionalProperties": {"$ref": "#/$defs/command"}
            }
          }
        }
      }
    }
  },
  "$defs": {
    "command": {
      "type": "object",
      "required": ["exe"],
      "additionalProperties": false,
      "properties": {
        "exe": {"type": "string", "minLength": 1},
        "args": {"type": "array", "items": {"type": "string"}},
        "env": {
          "type": "object",
          "additionalProperties": {"type": ["string", "null"]}
        },
        "description": {"type": "string"}
      }
    }
  }
}`

var compileScieSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(scieSchema))
	if err != nil {
		return nil, fmt.Errorf("compile scie schema: %w", err)
	}
	return schema, nil
})

func validateScieShape(rawScie []byte) error {
	schema, err := compileScieSchema()
	if err != nil {
		return err
	}
	result := schema.ValidateJSON(rawScie)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("lift manifest schema validation failed: %v", result.Errors)
}
