package facilitator

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// paymentRequestSchema is the inbound shape shared by /verify and /settle.
// Only the envelope is checked here; scheme-specific payload validation
// happens in the gateways.
var paymentRequestSchema = []byte(`{
	"type": "object",
	"required": ["paymentPayload", "paymentRequirements"],
	"properties": {
		"paymentPayload": {
			"type": "object",
			"required": ["x402Version", "scheme", "network", "payload"],
			"properties": {
				"x402Version": {"type": "integer"},
				"scheme": {"type": "string", "minLength": 1},
				"network": {"type": "string", "minLength": 1},
				"payload": {"type": "object"}
			}
		},
		"paymentRequirements": {
			"type": "object",
			"required": ["scheme", "network", "maxAmountRequired", "payTo"],
			"properties": {
				"scheme": {"type": "string", "minLength": 1},
				"network": {"type": "string", "minLength": 1},
				"maxAmountRequired": {"type": "string", "minLength": 1},
				"payTo": {"type": "string", "minLength": 1}
			}
		}
	}
}`)

var paymentRequestLoader = gojsonschema.NewBytesLoader(paymentRequestSchema)

// validatePaymentRequest checks a /verify or /settle body against the
// envelope schema. Malformed JSON and schema violations both return an error.
func validatePaymentRequest(body []byte) error {
	result, err := gojsonschema.Validate(paymentRequestLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("missing paymentPayload or paymentRequirements")
	}
	return nil
}
