package ai

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// matchResponseSchema is the contract the model's JSON array must satisfy.
// Anything that doesn't validate is a recoverable enrichment failure, never a
// crash.
const matchResponseSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["index", "score", "matchType", "reasons"],
    "properties": {
      "index": {"type": "integer", "minimum": 0},
      "score": {"type": "number", "minimum": 0, "maximum": 100},
      "matchType": {
        "type": "string",
        "enum": ["mutual", "service-provider", "ideal-client", "industry-match", "partnership", "networking"]
      },
      "reasons": {
        "type": "array",
        "items": {"type": "string"},
        "minItems": 1,
        "maxItems": 3
      },
      "valueProposition": {"type": "string"}
    }
  }
}`

var matchSchemaLoader = gojsonschema.NewStringLoader(matchResponseSchema)

// validateMatchResponse checks the raw JSON document against the match
// schema before unmarshalling.
func validateMatchResponse(document string) error {
	result, err := gojsonschema.Validate(matchSchemaLoader, gojsonschema.NewStringLoader(document))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		first := ""
		if errs := result.Errors(); len(errs) > 0 {
			first = errs[0].String()
		}
		return fmt.Errorf("response does not match schema: %s", first)
	}
	return nil
}
