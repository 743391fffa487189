package autoresponse

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "https://sellerbot.local/schemas/auto_response.json"

const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "enabled": {"type": "boolean"},
    "greeting_enabled": {"type": "boolean"},
    "greeting_message": {"type": "string"},
    "greeting_only_first_message": {"type": "boolean"},
    "responded_users": {"type": "array", "items": {"type": ["string", "integer"]}},
    "keywords": {"type": "object", "additionalProperties": {"type": "string"}},
    "review_auto_reply_enabled": {"type": "boolean"},
    "review_replies": {
      "type": "object",
      "propertyNames": {"pattern": "^[1-5]$"},
      "additionalProperties": {"type": "string"}
    },
    "review_default_reply": {"type": "string"}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// validate checks raw against the auto-response schema.
func validate(raw []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return sch.Validate(inst)
}
