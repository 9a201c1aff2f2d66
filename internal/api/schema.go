package api

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const subscriptionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["status", "endDate"],
  "additionalProperties": false,
  "properties": {
    "store_id": {"type": "string", "minLength": 1},
    "status": {"type": "string", "enum": ["active", "expired", "suspended"]},
    "startDate": {"type": "string"},
    "endDate": {"type": "string", "minLength": 10},
    "plan": {"type": "string", "maxLength": 120}
  }
}`

func compileSubscriptionSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("subscription.json", strings.NewReader(subscriptionSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("subscription.json")
}
