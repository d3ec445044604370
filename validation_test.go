package facilitator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePaymentRequest(t *testing.T) {
	valid := `{
		"paymentPayload": {
			"x402Version": 1,
			"scheme": "exact",
			"network": "base-sepolia",
			"payload": {}
		},
		"paymentRequirements": {
			"scheme": "exact",
			"network": "base-sepolia",
			"maxAmountRequired": "10000",
			"payTo": "0x857f2a04Bb17D2e00E7EA4837B9e68b6cF4b1574"
		}
	}`
	assert.NoError(t, validatePaymentRequest([]byte(valid)))
}

func TestValidatePaymentRequestRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"missing requirements", `{"paymentPayload": {"x402Version": 1, "scheme": "exact", "network": "base", "payload": {}}}`},
		{"missing payload", `{"paymentRequirements": {"scheme": "exact", "network": "base", "maxAmountRequired": "1", "payTo": "0x0"}}`},
		{"wrong types", `{"paymentPayload": "yes", "paymentRequirements": "please"}`},
		{"empty scheme", `{"paymentPayload": {"x402Version": 1, "scheme": "", "network": "base", "payload": {}}, "paymentRequirements": {"scheme": "exact", "network": "base", "maxAmountRequired": "1", "payTo": "0x0"}}`},
		{"not json", `settle everything`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, validatePaymentRequest([]byte(tt.body)))
		})
	}
}
