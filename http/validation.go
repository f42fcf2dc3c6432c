package http

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// paywallSchema is the structural contract a paywall payload must satisfy
// before it is decoded. Unknown fields are allowed so the server can add
// fields without breaking older clients.
const paywallSchema = `{
	"type": "object",
	"required": ["identifier", "name", "url_config"],
	"properties": {
		"identifier": {"type": "string", "minLength": 1},
		"name": {"type": "string"},
		"url_config": {
			"type": "object",
			"required": ["endpoints"],
			"properties": {
				"endpoints": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["url"],
						"properties": {
							"url": {"type": "string", "minLength": 1},
							"score": {"type": "integer", "minimum": 0},
							"timeout_ms": {"type": "integer", "minimum": 0}
						}
					}
				},
				"max_attempts": {"type": "integer", "minimum": 0}
			}
		},
		"product_items": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "product_id"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"product_id": {"type": "string", "minLength": 1}
				}
			}
		},
		"feature_gating": {"enum": ["gated", "non_gated"]},
		"presentation_style": {"type": "string"}
	}
}`

var paywallSchemaLoader = gojsonschema.NewStringLoader(paywallSchema)

// ValidatePaywallPayload checks a raw paywall payload against the structural
// schema. It returns a single error listing every violation.
func ValidatePaywallPayload(payload []byte) error {
	result, err := gojsonschema.Validate(paywallSchemaLoader, gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("paywall payload is not valid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return fmt.Errorf("invalid paywall payload: %s", strings.Join(violations, "; "))
}
