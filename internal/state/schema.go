package state

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// documentSchema describes the state file. The profile is opaque here; its
// shape belongs to the profile package.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "orca simulation state",
  "type": "object",
  "required": ["profile", "preflight_flags", "persons"],
  "additionalProperties": false,
  "properties": {
    "profile": {"type": "object"},
    "preflight_flags": {
      "type": "array",
      "items": {"enum": ["disable_all_persons_mfa_policy"]}
    },
    "persons": {
      "type": "array",
      "items": {"$ref": "#/definitions/person"}
    }
  },
  "definitions": {
    "person": {
      "type": "object",
      "required": ["preflight_state", "username", "display_name", "member_of", "credential", "model"],
      "additionalProperties": false,
      "properties": {
        "preflight_state": {"enum": ["present", "absent"]},
        "username": {"type": "string", "minLength": 1},
        "display_name": {"type": "string"},
        "member_of": {
          "type": "array",
          "items": {"type": "string"},
          "uniqueItems": true
        },
        "credential": {"$ref": "#/definitions/credential"},
        "model": {"$ref": "#/definitions/model"}
      }
    },
    "credential": {
      "type": "object",
      "required": ["type", "plain"],
      "additionalProperties": false,
      "properties": {
        "type": {"const": "password"},
        "plain": {"type": "string"}
      }
    },
    "model": {
      "oneOf": [
        {
          "type": "object",
          "required": ["type"],
          "additionalProperties": false,
          "properties": {"type": {"const": "basic"}}
        },
        {
          "type": "object",
          "required": ["type", "distributions_matrix"],
          "additionalProperties": false,
          "properties": {
            "type": {"const": "markov"},
            "distributions_matrix": {"type": "array", "items": {"type": "number"}},
            "rng_seed": {"type": ["integer", "null"], "minimum": 0},
            "normal_dist_mean_and_std_dev": {
              "oneOf": [
                {"type": "null"},
                {"type": "array", "items": {"type": "number"}, "minItems": 2, "maxItems": 2}
              ]
            }
          }
        }
      ]
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
})

// validateDocument checks raw JSON against the state schema.
func validateDocument(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("%w: compile schema: %v", ErrSerialization, err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrSerialization, strings.Join(msgs, "; "))
	}
	return nil
}
